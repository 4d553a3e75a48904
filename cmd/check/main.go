// Package check implements `ispcheck check`: a measurement run from this
// machine against an ispcheck target, graded locally without touching any
// server's history.
package check

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/saveenergy/ispcheck/internal/measure"
	"github.com/saveenergy/ispcheck/pkg/quality"
	"github.com/saveenergy/ispcheck/pkg/types"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

const (
	minTimeoutSeconds = 5
	maxTimeoutSeconds = 300
)

// Result is the structured output of ispcheck check.
type Result struct {
	SchemaVersion string             `json:"schema_version"`
	ServerURL     string             `json:"server_url"`
	Ping          float64            `json:"ping"`
	DownloadSpeed float64            `json:"download_speed"`
	UploadSpeed   float64            `json:"upload_speed"`
	Timestamp     string             `json:"timestamp"`
	Assessment    quality.Assessment `json:"quality_assessment"`
	DurationMs    int64              `json:"duration_ms"`
}

var runCheckFn = runCheck

func Run(args []string, _ string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	flagSet := flag.NewFlagSet("ispcheck check", flag.ContinueOnError)
	flagSet.SetOutput(stderr)

	var (
		serverURL string
		jsonOut   bool
		timeout   int
		duration  time.Duration
	)
	flagSet.StringVar(&serverURL, "server-url", "http://localhost:8080", "Measurement target URL")
	flagSet.StringVar(&serverURL, "S", "http://localhost:8080", "Measurement target URL (short)")
	flagSet.BoolVar(&jsonOut, "json", false, "Output as JSON")
	flagSet.IntVar(&timeout, "timeout", 60, "Overall timeout in seconds")
	flagSet.DurationVar(&duration, "duration", 4*time.Second, "Transfer time per direction")
	help := flagSet.Bool("help", false, "Show help")
	flagSet.BoolVar(help, "h", false, "Show help (short)")

	if err := flagSet.Parse(args); err != nil {
		return exitUsage
	}
	if *help {
		printUsage(stdout)
		return exitSuccess
	}
	if timeout < minTimeoutSeconds || timeout > maxTimeoutSeconds {
		fmt.Fprintf(stderr, "ispcheck check: timeout must be between %d and %d seconds\n", minTimeoutSeconds, maxTimeoutSeconds)
		return exitUsage
	}
	if duration <= 0 || duration > 60*time.Second {
		fmt.Fprintln(stderr, "ispcheck check: duration must be within (0, 60s]")
		return exitUsage
	}

	rest := flagSet.Args()
	if len(rest) > 1 {
		fmt.Fprintln(stderr, "ispcheck check: too many positional arguments")
		return exitUsage
	}
	if len(rest) == 1 {
		serverURL = rest[0]
	}
	if !isValidServerURL(serverURL) {
		fmt.Fprintf(stderr, "ispcheck check: invalid server URL: %q\n", serverURL)
		return exitUsage
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	start := time.Now()
	result, err := runCheckFn(ctx, serverURL, duration)
	if err != nil {
		if jsonOut {
			_ = json.NewEncoder(stdout).Encode(map[string]any{
				"schema_version": "1.0",
				"error":          true,
				"code":           "MEASUREMENT_FAILED",
				"message":        err.Error(),
			})
		} else {
			fmt.Fprintf(stderr, "ispcheck check: error: %v\n", err)
		}
		return exitFailure
	}
	if result.DurationMs == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
	}

	if jsonOut {
		if err := json.NewEncoder(stdout).Encode(result); err != nil {
			fmt.Fprintf(stderr, "ispcheck check: json encode error: %v\n", err)
			return exitFailure
		}
	} else {
		printHuman(stdout, result)
	}

	if result.Assessment.Tier == quality.TierPoor {
		return exitFailure
	}
	return exitSuccess
}

func runCheck(ctx context.Context, serverURL string, duration time.Duration) (*Result, error) {
	m := measure.New([]string{serverURL}, measure.WithDuration(duration))
	sample, err := m.Measure(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Result{
		SchemaVersion: "1.0",
		ServerURL:     sample.Server,
		Ping:          sample.PingMs,
		DownloadSpeed: sample.DownloadMbps,
		UploadSpeed:   sample.UploadMbps,
		Timestamp:     types.FormatTimestamp(sample.MeasuredAt),
		Assessment:    quality.Assess(sample.PingMs, sample.DownloadMbps, sample.UploadMbps),
	}, nil
}

func printHuman(w io.Writer, r *Result) {
	fmt.Fprintf(w, "Quality: %s\n", r.Assessment.Tier)
	fmt.Fprintf(w, "  Ping:     %.1f ms\n", r.Ping)
	fmt.Fprintf(w, "  Download: %.1f Mbps\n", r.DownloadSpeed)
	fmt.Fprintf(w, "  Upload:   %.1f Mbps\n", r.UploadSpeed)
	if len(r.Assessment.Issues) > 0 {
		fmt.Fprintf(w, "  Issues:   %s\n", strings.Join(r.Assessment.Issues, "; "))
	}
	for _, rec := range r.Assessment.Recommendations {
		fmt.Fprintf(w, "  - %s\n", rec)
	}
	if r.Assessment.ContactSupport {
		fmt.Fprintln(w, "  Consider contacting your ISP's support line.")
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: ispcheck check [flags] [server-url]

Measures ping, download and upload from this machine against an ispcheck
server's target endpoints and grades the connection. Nothing is saved.

Flags:
  -h, --help              Show help
  -S, --server-url string Target URL (default: http://localhost:8080)
  --json                  Output as JSON
  --duration duration     Transfer time per direction (default: 4s)
  --timeout int           Overall timeout in seconds (default: 60)

Exit codes:
  0   good or fair
  1   poor, or the measurement failed
  2   usage error
`)
}

func isValidServerURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if port := u.Port(); port != "" {
		var n int
		if _, err := fmt.Sscanf(port, "%d", &n); err != nil || n < 1 || n > 65535 {
			return false
		}
	}
	return true
}
