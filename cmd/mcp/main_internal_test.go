package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %#v", res.Content[0])
	}
	return text.Text
}

func fakeServer(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	queries := make(chan string, 8)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /isp-info/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := strings.ToLower(r.PathValue("key"))
		_ = json.NewEncoder(w).Encode(map[string]string{"key": key, "name": "Test " + key})
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		_, _ = w.Write([]byte(`[{"id":"a","ping":10,"download_speed":50,"upload_speed":10,"timestamp":"2025-01-01 00:00:00","isp_detected":"vox","quality_assessment":"good"}]`))
	})
	mux.HandleFunc("GET /speedtest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"too many concurrent speed tests","code":"RESOURCE_EXHAUSTED"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, queries
}

func TestToolDefinitions(t *testing.T) {
	want := map[string]bool{"run_speed_test": true, "detect_isp": true, "isp_info": true, "speed_history": true}
	tools := ToolDefinitions()
	if len(tools) != len(want) {
		t.Fatalf("tools = %d, want %d", len(tools), len(want))
	}
	for _, tool := range tools {
		if !want[tool.Name] {
			t.Fatalf("unexpected tool %s", tool.Name)
		}
		if strings.TrimSpace(tool.Description) == "" {
			t.Fatalf("tool %s missing description", tool.Name)
		}
		if _, ok := tool.InputSchema.Properties["server_url"]; !ok {
			t.Fatalf("tool %s missing server_url property", tool.Name)
		}
	}
}

func TestHandleISPInfo(t *testing.T) {
	srv, _ := fakeServer(t)
	tools := &toolset{defaultURL: srv.URL}

	res, err := tools.handleISPInfo(context.Background(), callRequest(map[string]any{"isp": "Telkom"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError || !strings.Contains(resultText(t, res), `"key": "telkom"`) {
		t.Fatalf("result = %#v", res)
	}

	res, _ = tools.handleISPInfo(context.Background(), callRequest(map[string]any{"isp": "  "}))
	if !res.IsError {
		t.Fatal("blank isp should be a tool error")
	}
}

func TestHandleSpeedHistoryClampsLimit(t *testing.T) {
	srv, queries := fakeServer(t)
	tools := &toolset{defaultURL: "http://127.0.0.1:1"}

	res, err := tools.handleSpeedHistory(context.Background(), callRequest(map[string]any{"limit": 500, "server_url": srv.URL}))
	if err != nil || res.IsError {
		t.Fatalf("result = %#v, err %v", res, err)
	}
	if got := <-queries; got != "limit=100" {
		t.Fatalf("query = %q, want limit=100", got)
	}
	if !strings.Contains(resultText(t, res), `"isp_detected": "vox"`) {
		t.Fatalf("text = %s", resultText(t, res))
	}
}

func TestHandleRunSpeedTestSurfacesAPIError(t *testing.T) {
	srv, _ := fakeServer(t)
	tools := &toolset{defaultURL: srv.URL}

	res, err := tools.handleRunSpeedTest(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "RESOURCE_EXHAUSTED") {
		t.Fatalf("result = %#v", res)
	}
}
