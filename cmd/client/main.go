// Package client implements `ispcheck client`: runs a speed test on an
// ispcheck server or queries its history and ISP directory.
package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"
)

const (
	exitSuccess   = 0
	exitFailure   = 1
	exitUsage     = 2
	exitInterrupt = 130
)

const (
	defaultServerURL = "http://localhost:8080"
	defaultTimeout   = 120
	defaultLimit     = 10
)

var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func Run(args []string, version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, version, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, version string, stdout, stderr io.Writer) int {
	flagConfig, flagsSet, exitCode, err := parseFlags(args, version, stdout, stderr)
	if err != nil || flagConfig == nil {
		return exitCode
	}

	configFile, err := loadConfigFile()
	if err != nil {
		fmt.Fprintf(stderr, "ispcheck client: warning: failed to load config file: %v\n", err)
	}

	config := mergeConfig(flagConfig, configFile, flagsSet, stderr)
	if err := validateConfig(config); err != nil {
		fmt.Fprintf(stderr, "ispcheck client: error: %v\n", err)
		return exitUsage
	}

	if !config.JSON && !config.Plain && !isTerminal(stdout) {
		config.Plain = true
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(config.Timeout)*time.Second)
	defer cancel()

	formatter := createFormatter(config, stdout, stderr)
	if err := execute(runCtx, config, formatter); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(stderr, "ispcheck client: interrupted")
			return exitInterrupt
		}
		formatter.FormatError(err)
		return exitFailure
	}
	return exitSuccess
}
