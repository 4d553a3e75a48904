// Package mcp implements `ispcheck mcp`: an MCP (Model Context Protocol)
// server over stdio. Agents spawn this process and call the tools, which
// forward to a running ispcheck server.
package mcp

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/saveenergy/ispcheck/pkg/client"
)

const (
	defaultServerURL = "http://localhost:8080"
	speedTestTimeout = 2 * time.Minute
	queryTimeout     = 15 * time.Second
)

// Run starts the MCP stdio server. Blocks until stdin closes.
func Run(args []string, version string) int {
	fs := flag.NewFlagSet("ispcheck mcp", flag.ContinueOnError)
	serverURL := fs.String("server-url", envOr("ISPCHECK_SERVER_URL", defaultServerURL), "ispcheck server the tools call")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s := server.NewMCPServer("ispcheck", version, server.WithToolCapabilities(true))
	tools := &toolset{defaultURL: *serverURL}
	tools.register(s)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "ispcheck mcp: error: %v\n", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

type toolset struct {
	defaultURL string
}

func serverURLOption() mcp.ToolOption {
	return mcp.WithString("server_url",
		mcp.Description("ispcheck server URL (default: the server given at startup)"),
	)
}

// ToolDefinitions lists the tools this server exposes.
func ToolDefinitions() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("run_speed_test",
			mcp.WithDescription("Run a full speed test on the ispcheck server (about 20 seconds). Returns ping, download and upload speeds, the detected ISP with its support contacts, and a quality assessment with issues and recommendations. The result is saved to the server's history."),
			serverURLOption(),
		),
		mcp.NewTool("detect_isp",
			mcp.WithDescription("Detect the ISP serving the ispcheck server from its public IP address. Returns the ISP key and support contact details; the key is \"unknown\" when it cannot be identified."),
			serverURLOption(),
		),
		mcp.NewTool("isp_info",
			mcp.WithDescription("Look up support contact details (phone, email, WhatsApp, website, live chat, social media) for an ISP key such as afrihost, vodacom or telkom. Unknown keys return the generic unknown entry."),
			mcp.WithString("isp", mcp.Required(), mcp.Description("ISP key, case-insensitive")),
			serverURLOption(),
		),
		mcp.NewTool("speed_history",
			mcp.WithDescription("List past speed tests, newest first, with ping, speeds, detected ISP and quality tier."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries, 1-100 (default: 10)")),
			serverURLOption(),
		),
	}
}

func (t *toolset) register(s *server.MCPServer) {
	handlers := map[string]server.ToolHandlerFunc{
		"run_speed_test": t.handleRunSpeedTest,
		"detect_isp":     t.handleDetectISP,
		"isp_info":       t.handleISPInfo,
		"speed_history":  t.handleSpeedHistory,
	}
	for _, tool := range ToolDefinitions() {
		s.AddTool(tool, handlers[tool.Name])
	}
}

func (t *toolset) client(req mcp.CallToolRequest) *client.Client {
	serverURL := strings.TrimSpace(req.GetString("server_url", ""))
	if serverURL == "" {
		serverURL = t.defaultURL
	}
	return client.New(serverURL)
}

func (t *toolset) handleRunSpeedTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, speedTestTimeout)
	defer cancel()

	result, err := t.client(req).RunSpeedTest(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Speed test failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (t *toolset) handleDetectISP(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := t.client(req).DetectISP(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ISP detection failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (t *toolset) handleISPInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := strings.TrimSpace(req.GetString("isp", ""))
	if key == "" {
		return mcp.NewToolResultError("isp is required"), nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := t.client(req).ISPInfo(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ISP lookup failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (t *toolset) handleSpeedHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := min(max(req.GetInt("limit", 10), 1), 100)
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := t.client(req).History(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("History query failed: %v", err)), nil
	}
	return jsonResult(result)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("JSON encoding failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
