package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/saveenergy/ispcheck/internal/logging"
	"github.com/saveenergy/ispcheck/pkg/types"
)

type Router struct {
	handler        *Handler
	target         *TargetHandler
	limiter        *RateLimiter
	clientIP       *ClientIPResolver
	allowedOrigins []string
	logger         *logging.Logger
}

func NewRouter(handler *Handler, target *TargetHandler) *Router {
	return &Router{
		handler: handler,
		target:  target,
		logger:  logging.NewLogger("http"),
	}
}

func (r *Router) SetRateLimiter(limiter *RateLimiter) {
	r.limiter = limiter
}

func (r *Router) SetClientIPResolver(resolver *ClientIPResolver) {
	r.clientIP = resolver
	if r.target != nil {
		r.target.SetClientIPResolver(resolver)
	}
}

func (r *Router) SetAllowedOrigins(origins []string) {
	r.allowedOrigins = origins
}

func (r *Router) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	limited := func(pattern string, h http.HandlerFunc) {
		if r.limiter != nil {
			h = r.limiter.Limit(r.clientIP, h)
		}
		mux.HandleFunc(pattern, h)
	}

	limited("GET /speedtest", r.handler.RunSpeedTest)
	limited("GET /speedtest/{id}/stream", r.handler.StreamRun)
	limited("GET /history", r.handler.History)
	limited("GET /history/chart.png", r.handler.HistoryChart)
	limited("GET /isp-info/{isp_name}", r.handler.ISPInfo)
	limited("GET /isps", r.handler.ListISPs)
	limited("GET /detect-isp", r.handler.DetectISP)
	limited("GET /version", r.handler.Version)

	// Measurement targets are hit in tight loops by measurers.
	if r.target != nil {
		mux.HandleFunc("GET /api/v1/ping", r.target.Ping)
		mux.HandleFunc("GET /api/v1/download", r.target.Download)
		mux.HandleFunc("POST /api/v1/upload", r.target.Upload)
	}

	mux.HandleFunc("GET /health", HealthCheck)

	// Outermost runs first.
	var handler http.Handler = mux
	handler = r.CORSMiddleware(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = middleware.Recoverer(handler)
	handler = r.LoggingMiddleware(handler)
	handler = middleware.RequestID(handler)
	return handler
}

func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (r *Router) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		allowed := origin != "" && types.OriginAllowed(r.allowedOrigins, origin)
		if allowed {
			allowOrigin := origin
			if types.AllowsAll(r.allowedOrigins) {
				allowOrigin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
			if allowOrigin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		if req.Method == http.MethodOptions {
			if origin != "" && !allowed {
				respondJSON(w, errorBody("origin not allowed", ""), http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self' data:; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *Router) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		reqID := middleware.GetReqID(req.Context())
		if reqID != "" {
			w.Header().Set(middleware.RequestIDHeader, reqID)
		}

		path := req.URL.Path
		if strings.HasPrefix(path, "/api/v1/") || path == "/health" || strings.HasSuffix(path, "/stream") {
			next.ServeHTTP(w, req)
			return
		}

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, req)

		r.logger.Info("HTTP request",
			logging.F("method", req.Method),
			logging.F("path", path),
			logging.F("status", rw.statusCode),
			logging.F("duration_ms", float64(time.Since(start).Microseconds())/1000),
			logging.F("ip", r.clientIP.FromRequest(req)),
			logging.F("request_id", reqID))
	})
}
