package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/saveenergy/ispcheck/internal/logging"
	ispErrors "github.com/saveenergy/ispcheck/pkg/errors"
)

type Config struct {
	Port        string
	BindAddress string
	LogLevel    string

	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// DatabaseURL selects the PostgreSQL history store when set; otherwise
	// history lives in SQLite under DataDir.
	DatabaseURL string
	DataDir     string

	// MeasureServers are the ispcheck-compatible targets speed tests run
	// against. There is no default: measuring this instance over loopback
	// says nothing about the ISP connection.
	MeasureServers     []string
	MeasureDuration    time.Duration
	MeasurePingSamples int
	MaxConcurrentTests int

	LookupTimeout     time.Duration
	GeoAPIURL         string
	PublicIPDNSServer string
	PublicIPURL       string

	RateLimitPerIP    int
	GlobalRateLimit   int
	TrustProxyHeaders bool
	TrustedProxyCIDRs []string
	AllowedOrigins    []string

	WebSocketPingInterval time.Duration

	TelegramBotToken string
	TelegramChatID   int64

	PprofEnabled      bool
	PprofAddress      string
	PerfStatsInterval time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Port:                  "8080",
		BindAddress:           "0.0.0.0",
		LogLevel:              "info",
		ReadTimeout:           0, // upload target manages its own body deadline
		ReadHeaderTimeout:     15 * time.Second,
		WriteTimeout:          0, // a full speed test outlives any fixed write timeout
		IdleTimeout:           60 * time.Second,
		DataDir:               "./data",
		MeasureDuration:       8 * time.Second,
		MeasurePingSamples:    5,
		MaxConcurrentTests:    4,
		LookupTimeout:         5 * time.Second,
		GeoAPIURL:             "http://ip-api.com/json/",
		PublicIPDNSServer:     "resolver1.opendns.com:53",
		PublicIPURL:           "https://api.ipify.org?format=json",
		RateLimitPerIP:        30,
		GlobalRateLimit:       600,
		TrustProxyHeaders:     false,
		AllowedOrigins:        []string{"*"},
		WebSocketPingInterval: 30 * time.Second,
		PprofAddress:          "127.0.0.1:6060",
	}
}

// LoadDotEnv loads variables from a dotenv file into the process
// environment without overriding ones already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	logging.Debug("loaded environment file", logging.F("path", path))
	return nil
}

func (c *Config) LoadFromEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid PORT %q: must be a number", port)
		}
		c.Port = port
	}
	if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
		c.BindAddress = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if _, err := logging.ParseLevel(level); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		c.LogLevel = level
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.DatabaseURL = dsn
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.DataDir = dataDir
	}

	if servers := os.Getenv("MEASURE_SERVERS"); servers != "" {
		c.MeasureServers = splitList(servers)
	}
	if err := envDuration("MEASURE_DURATION", &c.MeasureDuration); err != nil {
		return err
	}
	if err := envPositiveInt("MEASURE_PING_SAMPLES", &c.MeasurePingSamples); err != nil {
		return err
	}
	if err := envPositiveInt("MAX_CONCURRENT_TESTS", &c.MaxConcurrentTests); err != nil {
		return err
	}

	if err := envDuration("LOOKUP_TIMEOUT", &c.LookupTimeout); err != nil {
		return err
	}
	if u := os.Getenv("GEO_API_URL"); u != "" {
		c.GeoAPIURL = u
	}
	if v, ok := os.LookupEnv("PUBLIC_IP_DNS_SERVER"); ok {
		c.PublicIPDNSServer = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("PUBLIC_IP_URL"); ok {
		c.PublicIPURL = strings.TrimSpace(v)
	}

	if err := envPositiveInt("RATE_LIMIT_PER_IP", &c.RateLimitPerIP); err != nil {
		return err
	}
	if err := envPositiveInt("GLOBAL_RATE_LIMIT", &c.GlobalRateLimit); err != nil {
		return err
	}
	if trust := os.Getenv("TRUST_PROXY_HEADERS"); trust == "true" || trust == "1" {
		c.TrustProxyHeaders = true
	}
	if cidrs := os.Getenv("TRUSTED_PROXY_CIDRS"); cidrs != "" {
		c.TrustedProxyCIDRs = splitList(cidrs)
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
	if err := envDuration("WEBSOCKET_PING_INTERVAL", &c.WebSocketPingInterval); err != nil {
		return err
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		c.TelegramBotToken = token
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", chat, err)
		}
		c.TelegramChatID = id
	}

	if v := os.Getenv("PPROF_ENABLED"); v == "true" || v == "1" {
		c.PprofEnabled = true
	}
	if addr := os.Getenv("PPROF_ADDRESS"); addr != "" {
		c.PprofAddress = addr
	}
	if err := envDuration("PERF_STATS_INTERVAL", &c.PerfStatsInterval); err != nil {
		return err
	}

	return nil
}

// Validate reports the first invalid setting as an INVALID_CONFIG error.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return ispErrors.ErrInvalidConfig("invalid configuration", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port %q: must be 1-65535", c.Port)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.DatabaseURL == "" && c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty without a database URL")
	}
	for _, server := range c.MeasureServers {
		u, err := url.Parse(server)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid measure server %q: must be an http(s) URL", server)
		}
	}
	if c.MeasureDuration <= 0 || c.MeasureDuration > 60*time.Second {
		return fmt.Errorf("measure duration must be within (0, 60s]")
	}
	if c.MeasurePingSamples <= 0 || c.MeasurePingSamples > 50 {
		return fmt.Errorf("measure ping samples must be 1-50")
	}
	if c.MaxConcurrentTests <= 0 {
		return fmt.Errorf("max concurrent tests must be > 0")
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("lookup timeout must be > 0")
	}
	if c.GeoAPIURL == "" {
		return fmt.Errorf("geolocation API URL cannot be empty")
	}
	if c.PublicIPDNSServer == "" && c.PublicIPURL == "" {
		return fmt.Errorf("at least one public IP source must be configured")
	}
	if c.RateLimitPerIP <= 0 {
		return fmt.Errorf("rate limit per IP must be > 0")
	}
	if c.GlobalRateLimit <= 0 {
		return fmt.Errorf("global rate limit must be > 0")
	}
	if c.GlobalRateLimit < c.RateLimitPerIP {
		return fmt.Errorf("global rate limit must be >= rate limit per IP")
	}
	if c.TrustProxyHeaders {
		for _, entry := range c.TrustedProxyCIDRs {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("invalid trusted proxy CIDR: %s", entry)
			}
		}
	}
	if c.WebSocketPingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be > 0")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == 0) {
		return fmt.Errorf("telegram bot token and chat ID must be set together")
	}
	if c.PprofEnabled {
		if _, _, err := net.SplitHostPort(c.PprofAddress); err != nil {
			return fmt.Errorf("invalid pprof address %q: %w", c.PprofAddress, err)
		}
	}
	if c.PerfStatsInterval < 0 {
		return fmt.Errorf("perf stats interval must be >= 0")
	}
	return nil
}

// ListenAddress is the host:port the HTTP server binds to.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.BindAddress, c.Port)
}

func (c *Config) NotificationsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func envDuration(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s %q: must be a positive duration (e.g. 5s)", key, raw)
	}
	*dst = d
	return nil
}

func envPositiveInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	*dst = n
	return nil
}

func splitList(raw string) []string {
	entries := strings.Split(raw, ",")
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if value := strings.TrimSpace(entry); value != "" {
			out = append(out, value)
		}
	}
	return out
}
