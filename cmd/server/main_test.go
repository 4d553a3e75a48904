package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saveenergy/ispcheck/internal/config"
	ispErrors "github.com/saveenergy/ispcheck/pkg/errors"
	"github.com/saveenergy/ispcheck/pkg/types"
)

func TestApplyServerFlagOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Port = "9000"

	fs, fv := buildServerFlagSet(cfg)
	if err := fs.Parse([]string{
		"--port=9100",
		"--measure-duration=3s",
		"--measure-servers=https://a.example.com, https://b.example.com",
		"--allowed-origins=https://dash.example.com",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := applyServerFlagOverrides(cfg, fs, fv); err != nil {
		t.Fatalf("apply overrides: %v", err)
	}

	if cfg.Port != "9100" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.MeasureDuration != 3*time.Second {
		t.Fatalf("measure duration = %s", cfg.MeasureDuration)
	}
	if len(cfg.MeasureServers) != 2 || cfg.MeasureServers[1] != "https://b.example.com" {
		t.Fatalf("measure servers = %#v", cfg.MeasureServers)
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("allowed origins = %#v", cfg.AllowedOrigins)
	}
	if cfg.BindAddress != "0.0.0.0" {
		t.Fatalf("unset flag changed bind address to %q", cfg.BindAddress)
	}
}

func TestApplyServerFlagOverridesFailsFast(t *testing.T) {
	cfg := config.DefaultConfig()
	fs, fv := buildServerFlagSet(cfg)
	if err := fs.Parse([]string{"--port=9100", "--measure-duration=soon"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := applyServerFlagOverrides(cfg, fs, fv); err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if cfg.Port != "8080" {
		t.Fatalf("port changed despite parse error: %q", cfg.Port)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("MAX_CONCURRENT_TESTS=7\nLOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9200")
	t.Setenv("DATA_DIR", dir)
	// godotenv does not override variables that are already set; keep the
	// keys it writes scoped to this test.
	t.Setenv("MAX_CONCURRENT_TESTS", "")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("MAX_CONCURRENT_TESTS")
	os.Unsetenv("LOG_LEVEL")

	cfg, code, err := loadConfig([]string{"--env-file", envFile, "--port", "9300"})
	if err != nil {
		t.Fatalf("loadConfig: %v (code %d)", err, code)
	}
	if cfg.Port != "9300" {
		t.Fatalf("flag should win over env: port = %q", cfg.Port)
	}
	if cfg.MaxConcurrentTests != 7 || cfg.LogLevel != "debug" {
		t.Fatalf("dotenv values not applied: %+v", cfg)
	}
	if cfg.DataDir != dir {
		t.Fatalf("data dir = %q", cfg.DataDir)
	}
}

func TestLoadConfigUsageErrors(t *testing.T) {
	if _, code, err := loadConfig([]string{"--nope"}); err == nil || code != exitUsage {
		t.Fatalf("unknown flag: code %d err %v", code, err)
	}
	if _, code, err := loadConfig([]string{"stray"}); err == nil || code != exitUsage {
		t.Fatalf("positional: code %d err %v", code, err)
	}
	t.Setenv("DATA_DIR", t.TempDir())
	if _, code, err := loadConfig([]string{"--env-file", "/nonexistent/.env", "--port", "0"}); err == nil || code != exitFailure {
		t.Fatalf("invalid port: code %d err %v", code, err)
	}
}

func TestBuildComponentsServesAPI(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	comps, err := buildComponents(context.Background(), cfg, "test-version")
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	defer comps.Close()

	srv := httptest.NewServer(comps.handler)
	defer srv.Close()

	for path, want := range map[string]int{
		"/health":            http.StatusOK,
		"/version":           http.StatusOK,
		"/isps":              http.StatusOK,
		"/isp-info/vox":      http.StatusOK,
		"/history":           http.StatusOK,
		"/history/chart.png": http.StatusNotFound,
		"/api/v1/ping":       http.StatusOK,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestComponentsCloseReleasesHistoryStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	comps, err := buildComponents(context.Background(), cfg, "test-version")
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	comps.Close()
	if _, err := comps.store.List(context.Background(), 0); err == nil {
		t.Fatal("history store still usable after Close")
	}

	again, err := buildComponents(context.Background(), cfg, "test-version")
	if err != nil {
		t.Fatalf("reopen on same data dir: %v", err)
	}
	defer again.Close()
	if _, err := again.store.List(context.Background(), 0); err != nil {
		t.Fatalf("List after reopen: %v", err)
	}
}

func TestSpeedTestWithoutMeasureServersFails(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.PublicIPDNSServer = ""
	cfg.PublicIPURL = ""
	cfg.LookupTimeout = 100 * time.Millisecond

	comps, err := buildComponents(context.Background(), cfg, "test-version")
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	defer comps.Close()

	srv := httptest.NewServer(comps.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/speedtest")
	if err != nil {
		t.Fatalf("GET /speedtest: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != ispErrors.ErrCodeMeasurementFailed {
		t.Fatalf("code = %q, want %q", body.Code, ispErrors.ErrCodeMeasurementFailed)
	}
	if body.Error != "no measurement servers configured" {
		t.Fatalf("error = %q", body.Error)
	}

	list, err := comps.store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("failed run persisted %d records", len(list))
	}
}
