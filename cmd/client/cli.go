package client

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"strings"
)

func parseFlags(args []string, version string, stdout, stderr io.Writer) (*Config, map[string]bool, int, error) {
	config := &Config{}
	flagsSet := make(map[string]bool)

	var (
		testFlag    bool
		historyFlag bool
		detectFlag  bool
		ispsFlag    bool
	)

	flagSet := flag.NewFlagSet("ispcheck client", flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVar(&testFlag, "test", false, "Run a speed test (default)")
	flagSet.BoolVar(&historyFlag, "history", false, "Show speed test history")
	flagSet.BoolVar(&detectFlag, "detect", false, "Detect the server's ISP")
	flagSet.StringVar(&config.ISP, "isp", "", "Show support contacts for an ISP key")
	flagSet.BoolVar(&ispsFlag, "isps", false, "List every known ISP")
	flagSet.StringVar(&config.ServerURL, "server-url", "", "Server URL")
	flagSet.StringVar(&config.ServerURL, "S", "", "Server URL (short)")
	flagSet.IntVar(&config.Limit, "limit", 0, "History entries to show (1-100)")
	flagSet.IntVar(&config.Timeout, "timeout", 0, "Overall timeout in seconds")
	flagSet.BoolVar(&config.JSON, "json", false, "Output as JSON")
	flagSet.BoolVar(&config.Plain, "plain", false, "Plain key=value output")
	flagSet.BoolVar(&config.NoColor, "no-color", false, "Disable color output")
	flagSet.BoolVar(&config.NoProgress, "no-progress", false, "Disable live phase display")
	flagSet.BoolVar(&config.Quiet, "quiet", false, "Errors only")
	flagSet.BoolVar(&config.Quiet, "q", false, "Errors only (short)")
	versionFlag := flagSet.Bool("version", false, "Print version")
	help := flagSet.Bool("help", false, "Show help")
	flagSet.BoolVar(help, "h", false, "Show help (short)")

	if err := flagSet.Parse(args); err != nil {
		return nil, nil, exitUsage, err
	}

	flagSet.Visit(func(f *flag.Flag) {
		flagsSet[f.Name] = true
		switch f.Name {
		case "S":
			flagsSet["server-url"] = true
		case "q":
			flagsSet["quiet"] = true
		}
	})

	if *versionFlag {
		fmt.Fprintf(stdout, "ispcheck %s\n", version)
		return nil, nil, exitSuccess, nil
	}
	if *help {
		printUsage(stdout)
		return nil, nil, exitSuccess, nil
	}

	var modes []mode
	if testFlag {
		modes = append(modes, modeTest)
	}
	if historyFlag {
		modes = append(modes, modeHistory)
	}
	if detectFlag {
		modes = append(modes, modeDetect)
	}
	if flagsSet["isp"] {
		modes = append(modes, modeISP)
	}
	if ispsFlag {
		modes = append(modes, modeISPs)
	}
	switch len(modes) {
	case 0:
		config.Mode = modeTest
	case 1:
		config.Mode = modes[0]
	default:
		err := fmt.Errorf("--test, --history, --detect, --isp and --isps are mutually exclusive")
		fmt.Fprintf(stderr, "ispcheck client: error: %v\n", err)
		return nil, nil, exitUsage, err
	}

	rest := flagSet.Args()
	if len(rest) > 1 {
		err := fmt.Errorf("unexpected arguments: %s", strings.Join(rest[1:], " "))
		fmt.Fprintf(stderr, "ispcheck client: error: %v\n", err)
		return nil, nil, exitUsage, err
	}
	if len(rest) == 1 {
		config.ServerURL = rest[0]
		flagsSet["server-url"] = true
	}

	return config, flagsSet, 0, nil
}

func validateConfig(config *Config) error {
	u, err := url.Parse(config.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL: %q\n\n"+
			"Server URL must be an http(s) URL.\n"+
			"Use: ispcheck client http://localhost:8080\n"+
			"See: ispcheck client --help", config.ServerURL)
	}
	if config.Timeout < 1 || config.Timeout > 600 {
		return fmt.Errorf("invalid timeout: %d\n\n"+
			"Timeout must be between 1 and 600 seconds.\n"+
			"See: ispcheck client --help", config.Timeout)
	}
	if config.Limit < 1 || config.Limit > 100 {
		return fmt.Errorf("invalid limit: %d\n\n"+
			"Limit must be between 1 and 100.\n"+
			"Use: ispcheck client --history --limit 20\n"+
			"See: ispcheck client --help", config.Limit)
	}
	if config.Mode == modeISP && strings.TrimSpace(config.ISP) == "" {
		return fmt.Errorf("--isp requires an ISP key (for example: --isp vodacom)")
	}
	if config.JSON && config.Plain {
		return fmt.Errorf("--json and --plain cannot be combined")
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: ispcheck client [flags] [server-url]

Run a speed test on an ispcheck server, or query its history and ISP directory.

Modes (pick one):
  --test                  Run a speed test (default)
  --history               Show recent speed tests, newest first
  --detect                Detect the ISP serving the server
  --isp string            Show support contacts for an ISP key
  --isps                  List every known ISP

Flags:
  -h, --help              Show help
  --version               Print version
  -S, --server-url string Server URL (default: http://localhost:8080)
  --limit int             History entries to show, 1-100 (default: 10)
  --timeout int           Overall timeout in seconds (default: 120)
  --json                  Output as JSON
  --plain                 Plain key=value output
  --no-color              Disable color output
  --no-progress           Disable live phase display
  -q, --quiet             Errors only

Configuration file: ~/.config/ispcheck/config.yaml

Environment:
  ISPCHECK_SERVER_URL     Default server URL
  ISPCHECK_TIMEOUT        Default timeout in seconds
  NO_COLOR                Disable colors (standard convention)

Examples:
  ispcheck client                              # Speed test on localhost
  ispcheck client https://speed.example.com
  ispcheck client --history --limit 20
  ispcheck client --isp vodacom --json
`)
}
