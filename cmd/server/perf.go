package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/saveenergy/ispcheck/internal/config"
	"github.com/saveenergy/ispcheck/internal/logging"
)

// startPprofServer serves the profiling endpoints on their own listener so
// they never share the public address.
func startPprofServer(cfg *config.Config) *http.Server {
	if cfg == nil || !cfg.PprofEnabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:              cfg.PprofAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info("pprof server starting", logging.F("address", cfg.PprofAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("pprof server failed", logging.Err(err))
		}
	}()
	return srv
}

func shutdownPprofServer(srv *http.Server, timeout time.Duration) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("pprof server shutdown error", logging.Err(err))
	}
}

// startRuntimeStatsLogger logs heap and goroutine figures until ctx ends.
// activeTests is sampled alongside so slow runs can be correlated with load.
func startRuntimeStatsLogger(ctx context.Context, interval time.Duration, activeTests func() int) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var mem runtime.MemStats
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			runtime.ReadMemStats(&mem)
			logging.Info("runtime stats",
				logging.F("goroutines", runtime.NumGoroutine()),
				logging.F("heap_alloc_bytes", mem.HeapAlloc),
				logging.F("heap_inuse_bytes", mem.HeapInuse),
				logging.F("gc_count", mem.NumGC),
				logging.F("active_tests", activeTests()))
		}
	}()
}
