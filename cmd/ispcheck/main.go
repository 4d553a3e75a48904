package main

import (
	"fmt"
	"os"
	"strings"

	check "github.com/saveenergy/ispcheck/cmd/check"
	client "github.com/saveenergy/ispcheck/cmd/client"
	mcpcmd "github.com/saveenergy/ispcheck/cmd/mcp"
	server "github.com/saveenergy/ispcheck/cmd/server"
)

var version = "dev"

var (
	runServer = server.Run
	runClient = client.Run
	runCheck  = check.Run
	runMCP    = mcpcmd.Run
)

func main() {
	os.Exit(run(os.Args[1:], version))
}

func run(args []string, version string) int {
	if len(args) == 0 {
		return runServer(nil, version)
	}

	switch args[0] {
	case "server":
		return runServer(args[1:], version)
	case "client":
		return runClient(args[1:], version)
	case "check":
		return runCheck(args[1:], version)
	case "mcp":
		return runMCP(args[1:], version)
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "version", "--version":
		fmt.Printf("ispcheck %s\n", version)
		return 0
	default:
		if strings.HasPrefix(args[0], "-") {
			return runServer(args, version)
		}
		fmt.Fprintf(os.Stderr, "ispcheck: unknown command %q\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprint(os.Stdout, `Usage: ispcheck <command> [args]

Commands:
  server    Run the API server (default when no command provided)
  client    Run a speed test or query history on a server
  check     Measure and grade this machine's connection, nothing saved
  mcp       Run as MCP server (stdio transport, for AI agents)

Examples:
  ispcheck server --port 8080
  ispcheck client --history http://localhost:8080
  ispcheck check --json https://speed.example.com
  ispcheck mcp --server-url http://localhost:8080
`)
}
