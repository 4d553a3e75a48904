package check

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/saveenergy/ispcheck/internal/api"
	"github.com/saveenergy/ispcheck/pkg/quality"
)

func TestIsValidServerURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com:443":   true,
		"http://localhost:8080":     true,
		"https://example.com:99999": false,
		"ftp://example.com":         false,
		"example.com":               false,
	}
	for raw, want := range cases {
		if got := isValidServerURL(raw); got != want {
			t.Errorf("isValidServerURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--server-url", "https://example.com:99999"},
		{"--timeout", "1"},
		{"--duration", "0s"},
		{"a", "b"},
	} {
		var stdout, stderr bytes.Buffer
		if code := run(args, &stdout, &stderr); code != exitUsage {
			t.Errorf("%v: exit = %d, want %d", args, code, exitUsage)
		}
	}
}

func stubCheck(t *testing.T, res *Result, err error) {
	t.Helper()
	orig := runCheckFn
	t.Cleanup(func() { runCheckFn = orig })
	runCheckFn = func(_ context.Context, serverURL string, _ time.Duration) (*Result, error) {
		if res != nil {
			res.ServerURL = serverURL
		}
		return res, err
	}
}

func TestRunJSONOutput(t *testing.T) {
	stubCheck(t, &Result{
		SchemaVersion: "1.0",
		Ping:          10,
		DownloadSpeed: 100,
		UploadSpeed:   50,
		Assessment:    quality.Assess(10, 100, 50),
		DurationMs:    1234,
	}, nil)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--json", "https://speed.example.com"}, &stdout, &stderr); code != exitSuccess {
		t.Fatalf("exit = %d, stderr %s", code, stderr.String())
	}
	var out Result
	if err := json.NewDecoder(&stdout).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.DurationMs != 1234 || out.ServerURL != "https://speed.example.com" || out.Assessment.Tier != quality.TierGood {
		t.Fatalf("out = %+v", out)
	}
}

func TestRunPoorExitsNonZero(t *testing.T) {
	stubCheck(t, &Result{Assessment: quality.Assess(150, 2, 0.5)}, nil)
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != exitFailure {
		t.Fatalf("exit = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stdout.String(), "Quality: poor") || !strings.Contains(stdout.String(), "support") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunMeasurementError(t *testing.T) {
	stubCheck(t, nil, errors.New("boom"))
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--json"}, &stdout, &stderr); code != exitFailure {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout.String(), `"MEASUREMENT_FAILED"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunCheckAgainstTarget(t *testing.T) {
	target := api.NewTargetHandler(2, 5)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/ping", target.Ping)
	mux.HandleFunc("GET /api/v1/download", target.Download)
	mux.HandleFunc("POST /api/v1/upload", target.Upload)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := runCheck(context.Background(), srv.URL, time.Second)
	if err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	if res.DownloadSpeed <= 0 || res.UploadSpeed <= 0 || !res.Assessment.Tier.Valid() {
		t.Fatalf("result = %+v", res)
	}
}
