package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saveenergy/ispcheck/internal/config"
	ispErrors "github.com/saveenergy/ispcheck/pkg/errors"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := config.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidateGlobalRateLimitLessThanPerIP(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimitPerIP = 200
	cfg.GlobalRateLimit = 100

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for global rate limit < rate limit per IP")
	}
}

func TestConfigValidateReturnsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxConcurrentTests = 0
	err := cfg.Validate()
	if !ispErrors.HasCode(err, ispErrors.ErrCodeInvalidConfig) {
		t.Fatalf("err = %v, want INVALID_CONFIG", err)
	}
}

func TestConfigValidatePortRange(t *testing.T) {
	for _, port := range []string{"0", "65536", "http", ""} {
		cfg := config.DefaultConfig()
		cfg.Port = port
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for port %q", port)
		}
	}
}

func TestConfigValidateMeasureServers(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MeasureServers = []string{"ftp://speed.example.net"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http measure server")
	}

	cfg.MeasureServers = []string{"https://speed.example.net", "http://10.0.0.5:8080"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateTelegramPair(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TelegramBotToken = "123:abc"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for token without chat ID")
	}
	cfg.TelegramChatID = -100123
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.NotificationsEnabled() {
		t.Fatal("notifications should be enabled")
	}
}

func TestConfigValidateNeedsPublicIPSource(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PublicIPDNSServer = ""
	cfg.PublicIPURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error with no public IP source")
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://ispcheck@db/ispcheck")
	t.Setenv("MEASURE_SERVERS", " https://a.example.net , ,https://b.example.net")
	t.Setenv("MEASURE_DURATION", "3s")
	t.Setenv("MEASURE_PING_SAMPLES", "7")
	t.Setenv("LOOKUP_TIMEOUT", "2s")
	t.Setenv("PUBLIC_IP_DNS_SERVER", "")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("TRUSTED_PROXY_CIDRS", "10.0.0.0/8, 192.168.0.0/16")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "9090" || cfg.LogLevel != "debug" {
		t.Fatalf("port/log level = %s/%s", cfg.Port, cfg.LogLevel)
	}
	if cfg.DatabaseURL != "postgres://ispcheck@db/ispcheck" {
		t.Fatalf("database URL = %q", cfg.DatabaseURL)
	}
	if len(cfg.MeasureServers) != 2 || cfg.MeasureServers[1] != "https://b.example.net" {
		t.Fatalf("measure servers = %v", cfg.MeasureServers)
	}
	if cfg.MeasureDuration != 3*time.Second || cfg.MeasurePingSamples != 7 || cfg.LookupTimeout != 2*time.Second {
		t.Fatalf("durations = %v %d %v", cfg.MeasureDuration, cfg.MeasurePingSamples, cfg.LookupTimeout)
	}
	if cfg.PublicIPDNSServer != "" {
		t.Fatalf("empty PUBLIC_IP_DNS_SERVER should disable DNS lookup, got %q", cfg.PublicIPDNSServer)
	}
	if !cfg.TrustProxyHeaders || len(cfg.TrustedProxyCIDRs) != 2 {
		t.Fatalf("proxy config = %v %v", cfg.TrustProxyHeaders, cfg.TrustedProxyCIDRs)
	}
	if cfg.TelegramChatID != -1001 {
		t.Fatalf("chat ID = %d", cfg.TelegramChatID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}
}

func TestConfigLoadFromEnvInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "eighty"},
		{"LOG_LEVEL", "chatty"},
		{"MEASURE_DURATION", "-1s"},
		{"MEASURE_PING_SAMPLES", "0"},
		{"MAX_CONCURRENT_TESTS", "many"},
		{"LOOKUP_TIMEOUT", "soon"},
		{"GLOBAL_RATE_LIMIT", "-5"},
		{"TELEGRAM_CHAT_ID", "chat"},
		{"PERF_STATS_INTERVAL", "often"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := config.DefaultConfig()
			if err := cfg.LoadFromEnv(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ISPCHECK_TEST_DOTENV=from-file\nPORT=7000\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PORT", "7100")
	t.Setenv("ISPCHECK_TEST_DOTENV", "")
	os.Unsetenv("ISPCHECK_TEST_DOTENV")

	if err := config.LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("ISPCHECK_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("ISPCHECK_TEST_DOTENV = %q", got)
	}
	if got := os.Getenv("PORT"); got != "7100" {
		t.Fatalf("existing PORT overridden: %q", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := config.LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}

func TestDefaultConfigHasNoMeasureServers(t *testing.T) {
	t.Setenv("MEASURE_SERVERS", "")
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if len(cfg.MeasureServers) != 0 {
		t.Fatalf("measure servers = %v, want none", cfg.MeasureServers)
	}
}

func TestConfigValidatePprof(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PprofEnabled = true
	cfg.PprofAddress = "localhost"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for pprof address without port")
	}

	cfg.PprofAddress = "127.0.0.1:6061"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid pprof config rejected: %v", err)
	}

	cfg.PprofEnabled = false
	cfg.PprofAddress = "ignored"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled pprof address should not be checked: %v", err)
	}
}

func TestConfigLoadFromEnvProfiling(t *testing.T) {
	t.Setenv("PPROF_ENABLED", "true")
	t.Setenv("PPROF_ADDRESS", "127.0.0.1:7070")
	t.Setenv("PERF_STATS_INTERVAL", "30s")

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if !cfg.PprofEnabled || cfg.PprofAddress != "127.0.0.1:7070" {
		t.Fatalf("pprof = %v %q", cfg.PprofEnabled, cfg.PprofAddress)
	}
	if cfg.PerfStatsInterval != 30*time.Second {
		t.Fatalf("perf stats interval = %v", cfg.PerfStatsInterval)
	}
}
