// Package server implements `ispcheck server`: the HTTP API, the progress
// stream and the measurement-target endpoints in one process.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/saveenergy/ispcheck/internal/api"
	"github.com/saveenergy/ispcheck/internal/config"
	"github.com/saveenergy/ispcheck/internal/geoip"
	"github.com/saveenergy/ispcheck/internal/history"
	"github.com/saveenergy/ispcheck/internal/logging"
	"github.com/saveenergy/ispcheck/internal/measure"
	"github.com/saveenergy/ispcheck/internal/notify"
	"github.com/saveenergy/ispcheck/internal/publicip"
	"github.com/saveenergy/ispcheck/internal/speedtest"
	"github.com/saveenergy/ispcheck/internal/websocket"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2

	shutdownTimeout = 30 * time.Second
)

type serverFlags struct {
	envFile            string
	port               string
	bind               string
	logLevel           string
	dataDir            string
	databaseURL        string
	measureServers     string
	measureDuration    string
	maxConcurrentTests int
	allowedOrigins     string
}

func buildServerFlagSet(cfg *config.Config) (*flag.FlagSet, *serverFlags) {
	fv := &serverFlags{}
	fs := flag.NewFlagSet("ispcheck server", flag.ContinueOnError)
	fs.StringVar(&fv.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	fs.StringVar(&fv.port, "port", cfg.Port, "HTTP port")
	fs.StringVar(&fv.bind, "bind", cfg.BindAddress, "bind address")
	fs.StringVar(&fv.logLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&fv.dataDir, "data-dir", cfg.DataDir, "directory for the SQLite history")
	fs.StringVar(&fv.databaseURL, "database-url", "", "PostgreSQL URL; overrides the SQLite history")
	fs.StringVar(&fv.measureServers, "measure-servers", "", "comma-separated measurement target URLs")
	fs.StringVar(&fv.measureDuration, "measure-duration", cfg.MeasureDuration.String(), "transfer time per direction")
	fs.IntVar(&fv.maxConcurrentTests, "max-concurrent-tests", cfg.MaxConcurrentTests, "speed tests allowed at once")
	fs.StringVar(&fv.allowedOrigins, "allowed-origins", "", "comma-separated CORS origins")
	return fs, fv
}

// applyServerFlagOverrides copies explicitly set flags onto cfg. Every value
// is parsed before any is assigned so a bad flag leaves cfg untouched.
func applyServerFlagOverrides(cfg *config.Config, fs *flag.FlagSet, fv *serverFlags) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var duration time.Duration
	if set["measure-duration"] {
		d, err := time.ParseDuration(fv.measureDuration)
		if err != nil {
			return fmt.Errorf("invalid --measure-duration: %w", err)
		}
		duration = d
	}

	if set["port"] {
		cfg.Port = fv.port
	}
	if set["bind"] {
		cfg.BindAddress = fv.bind
	}
	if set["log-level"] {
		cfg.LogLevel = fv.logLevel
	}
	if set["data-dir"] {
		cfg.DataDir = fv.dataDir
	}
	if set["database-url"] {
		cfg.DatabaseURL = fv.databaseURL
	}
	if set["measure-servers"] {
		cfg.MeasureServers = splitCSV(fv.measureServers)
	}
	if set["measure-duration"] {
		cfg.MeasureDuration = duration
	}
	if set["max-concurrent-tests"] {
		cfg.MaxConcurrentTests = fv.maxConcurrentTests
	}
	if set["allowed-origins"] {
		cfg.AllowedOrigins = splitCSV(fv.allowedOrigins)
	}
	return nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadConfig resolves defaults, the dotenv file, the environment and flags,
// in that order of increasing precedence.
func loadConfig(args []string) (*config.Config, int, error) {
	cfg := config.DefaultConfig()
	fs, fv := buildServerFlagSet(cfg)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, exitSuccess, err
		}
		return nil, exitUsage, err
	}
	if fs.NArg() > 0 {
		return nil, exitUsage, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if err := config.LoadDotEnv(fv.envFile); err != nil {
		return nil, exitFailure, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, exitFailure, fmt.Errorf("load config: %w", err)
	}
	if err := applyServerFlagOverrides(cfg, fs, fv); err != nil {
		return nil, exitUsage, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, exitFailure, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, exitSuccess, nil
}

func Run(args []string, version string) int {
	cfg, code, err := loadConfig(args)
	if err != nil {
		if code != exitSuccess {
			fmt.Fprintf(os.Stderr, "ispcheck server: %v\n", err)
		}
		return code
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Init(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, version); err != nil {
		logging.Error("server failed", logging.Err(err))
		return exitFailure
	}
	return exitSuccess
}

// components holds everything serve must close on the way out.
type components struct {
	store   history.Store
	hub     *websocket.Server
	service *speedtest.Service
	handler http.Handler
}

func buildComponents(ctx context.Context, cfg *config.Config, version string) (*components, error) {
	store, err := history.Open(ctx, cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if len(cfg.MeasureServers) == 0 {
		logging.Warn("no measurement servers configured; speed tests will fail until MEASURE_SERVERS is set")
	}

	var ipChain publicip.Chain
	if cfg.PublicIPDNSServer != "" {
		ipChain = append(ipChain, publicip.NewDNSProvider(cfg.PublicIPDNSServer, cfg.LookupTimeout))
	}
	if cfg.PublicIPURL != "" {
		ipChain = append(ipChain, publicip.NewHTTPProvider(cfg.PublicIPURL, cfg.LookupTimeout))
	}

	svcCfg := speedtest.Config{
		PublicIP: ipChain,
		Geo:      geoip.NewClient(cfg.GeoAPIURL, cfg.LookupTimeout),
		Measurer: measure.New(cfg.MeasureServers,
			measure.WithDuration(cfg.MeasureDuration),
			measure.WithPingSamples(cfg.MeasurePingSamples)),
		Store:              store,
		LookupTimeout:      cfg.LookupTimeout,
		MaxConcurrentTests: cfg.MaxConcurrentTests,
	}
	if cfg.NotificationsEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, 10*time.Second)
		if err != nil {
			logging.Warn("telegram notifications disabled", logging.Err(err))
		} else {
			svcCfg.Notifier = tg
			logging.Info("support alerts enabled", logging.F("notifier", tg.Name()))
		}
	}
	service := speedtest.NewService(svcCfg)

	hub := websocket.NewServer()
	hub.SetAllowedOrigins(cfg.AllowedOrigins)
	hub.SetPingInterval(cfg.WebSocketPingInterval)

	handler := api.NewHandler(service, hub)
	handler.SetVersion(version)

	// Other instances may measure against this one with longer transfers.
	maxTargetSec := max(int(cfg.MeasureDuration.Seconds())*2, 10)
	target := api.NewTargetHandler(cfg.MaxConcurrentTests*2, maxTargetSec)

	router := api.NewRouter(handler, target)
	router.SetClientIPResolver(api.NewClientIPResolver(cfg.TrustProxyHeaders, cfg.TrustedProxyCIDRs))
	router.SetRateLimiter(api.NewRateLimiter(cfg.RateLimitPerIP, cfg.GlobalRateLimit))
	router.SetAllowedOrigins(cfg.AllowedOrigins)

	return &components{
		store:   store,
		hub:     hub,
		service: service,
		handler: router.SetupRoutes(),
	}, nil
}

func (c *components) Close() {
	c.service.WaitAlerts()
	c.hub.Close()
	c.store.Close()
}

func serve(ctx context.Context, cfg *config.Config, version string) error {
	comps, err := buildComponents(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer comps.Close()

	pprofServer := startPprofServer(cfg)
	startRuntimeStatsLogger(ctx, cfg.PerfStatsInterval, comps.service.ActiveTests)

	srv := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           comps.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server starting",
			logging.F("address", cfg.ListenAddress()),
			logging.F("version", version),
			logging.F("targets", strings.Join(cfg.MeasureServers, ",")))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			shutdownPprofServer(pprofServer, 5*time.Second)
			return err
		}
	case <-ctx.Done():
		logging.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server shutdown error", logging.Err(err))
	}
	shutdownPprofServer(pprofServer, 5*time.Second)
	logging.Info("Server stopped")
	return nil
}
