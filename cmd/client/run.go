package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	apiclient "github.com/saveenergy/ispcheck/pkg/client"
	"github.com/saveenergy/ispcheck/pkg/isp"
	"github.com/saveenergy/ispcheck/pkg/types"
)

func execute(ctx context.Context, config *Config, formatter OutputFormatter) error {
	c := apiclient.New(config.ServerURL)

	switch config.Mode {
	case modeHistory:
		entries, err := c.History(ctx, config.Limit)
		if err != nil {
			return wrapRequestError("history", config.ServerURL, err)
		}
		formatter.FormatHistory(entries)
	case modeDetect:
		det, err := c.DetectISP(ctx)
		if err != nil {
			return wrapRequestError("isp detection", config.ServerURL, err)
		}
		formatter.FormatDetection(det)
	case modeISP:
		contact, err := c.ISPInfo(ctx, strings.TrimSpace(config.ISP))
		if err != nil {
			return wrapRequestError("isp lookup", config.ServerURL, err)
		}
		formatter.FormatContacts([]isp.Contact{*contact})
	case modeISPs:
		contacts, err := c.ISPs(ctx)
		if err != nil {
			return wrapRequestError("isp directory", config.ServerURL, err)
		}
		formatter.FormatContacts(contacts)
	default:
		var (
			result *types.SpeedTestResponse
			err    error
		)
		if config.JSON || config.Plain || config.NoProgress || config.Quiet {
			result, err = c.RunSpeedTest(ctx)
		} else {
			result, err = c.RunSpeedTestWithProgress(ctx, formatter.FormatPhase)
		}
		if err != nil {
			return wrapRequestError("speed test", config.ServerURL, err)
		}
		formatter.FormatResult(result)
	}
	return nil
}

func wrapRequestError(what, serverURL string, err error) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s failed: %w", what, err)
	}
	return fmt.Errorf("%s failed: %w\n\n"+
		"Troubleshooting:\n"+
		"  - Check server is running: curl %s/health\n"+
		"  - Verify server URL: ispcheck client --server-url %s\n"+
		"  - Check network connectivity", what, err, serverURL, serverURL)
}

func createFormatter(config *Config, stdout, stderr io.Writer) OutputFormatter {
	if config.Quiet {
		stdout = io.Discard
	}
	if config.JSON {
		return &JSONFormatter{writer: stdout, errWriter: stderr}
	}
	if config.Plain {
		return &PlainFormatter{writer: stdout, errWriter: stderr}
	}
	return NewInteractiveFormatter(stdout, stderr, config.NoColor, config.NoProgress)
}
