package api

import (
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/saveenergy/ispcheck/internal/logging"
)

const (
	targetPoolSize     = 4 << 20
	defaultChunkSize   = 1 << 20
	minChunkSize       = 64 << 10
	maxChunkSize       = 4 << 20
	defaultTargetSec   = 10
	uploadReadBufSize  = 256 << 10
	downloadFlushEvery = 8
)

// TargetHandler serves the ping, download and upload endpoints that the
// measurer runs against, so every instance can act as a measurement target.
type TargetHandler struct {
	active         atomic.Int64
	maxConcurrent  int64
	maxDurationSec int
	pool           []byte
	clientIP       *ClientIPResolver
	logger         *logging.Logger
}

func NewTargetHandler(maxConcurrent, maxDurationSec int) *TargetHandler {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if maxDurationSec <= 0 {
		maxDurationSec = 60
	}
	h := &TargetHandler{
		maxConcurrent:  int64(maxConcurrent),
		maxDurationSec: maxDurationSec,
		pool:           make([]byte, targetPoolSize),
		logger:         logging.NewLogger("target"),
	}
	if _, err := rand.Read(h.pool); err != nil {
		// Zeros are still a valid payload; only compressing proxies would notice.
		h.logger.Warn("random payload init failed", logging.Err(err))
	}
	return h
}

func (h *TargetHandler) SetClientIPResolver(resolver *ClientIPResolver) {
	h.clientIP = resolver
}

// Active returns the number of transfers in flight.
func (h *TargetHandler) Active() int64 {
	return h.active.Load()
}

func (h *TargetHandler) acquire() bool {
	if h.active.Add(1) > h.maxConcurrent {
		h.active.Add(-1)
		return false
	}
	return true
}

func (h *TargetHandler) release() {
	h.active.Add(-1)
}

// Ping answers immediately so round trips can be timed.
func (h *TargetHandler) Ping(w http.ResponseWriter, r *http.Request) {
	drainRequestBody(r)
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, map[string]any{
		"pong":      true,
		"timestamp": time.Now().UnixMilli(),
		"client_ip": h.clientIP.FromRequest(r),
	}, http.StatusOK)
}

// Download streams random bytes for ?duration= seconds in ?chunk= sized writes.
func (h *TargetHandler) Download(w http.ResponseWriter, r *http.Request) {
	drainRequestBody(r)

	seconds := defaultTargetSec
	if raw := r.URL.Query().Get("duration"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 || d > h.maxDurationSec {
			respondInvalid(w, "duration must be 1-"+strconv.Itoa(h.maxDurationSec))
			return
		}
		seconds = d
	}
	chunk := defaultChunkSize
	if raw := r.URL.Query().Get("chunk"); raw != "" {
		c, err := strconv.Atoi(raw)
		if err != nil || c < minChunkSize || c > maxChunkSize {
			respondInvalid(w, "chunk must be "+strconv.Itoa(minChunkSize)+"-"+strconv.Itoa(maxChunkSize))
			return
		}
		chunk = c
	}

	if !h.acquire() {
		respondBusy(w, "too many concurrent transfers")
		return
	}
	defer h.release()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	offset := 0
	for writes := 1; time.Now().Before(deadline); writes++ {
		if r.Context().Err() != nil {
			return
		}
		var err error
		if offset, err = writeFromPool(w, h.pool, chunk, offset); err != nil {
			return
		}
		if canFlush && writes%downloadFlushEvery == 0 {
			flusher.Flush()
		}
	}
	if canFlush {
		flusher.Flush()
	}
}

// Upload consumes the request body and reports how much was received.
func (h *TargetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	defer drainRequestBody(r)

	if !h.acquire() {
		respondBusy(w, "too many concurrent transfers")
		return
	}
	defer h.release()

	start := time.Now()
	deadline := start.Add(time.Duration(h.maxDurationSec) * time.Second)
	total, err := readUntil(r, deadline)
	if err != nil {
		h.logger.Debug("upload read failed", logging.Err(err))
		respondJSON(w, errorBody("upload failed", "INTERNAL"), http.StatusInternalServerError)
		return
	}

	elapsed := max(time.Since(start), time.Millisecond)
	respondJSON(w, map[string]any{
		"bytes":           total,
		"duration_ms":     elapsed.Milliseconds(),
		"throughput_mbps": float64(total*8) / elapsed.Seconds() / 1_000_000,
	}, http.StatusOK)
}

func readUntil(r *http.Request, deadline time.Time) (int64, error) {
	buf := make([]byte, uploadReadBufSize)
	var total int64
	for time.Now().Before(deadline) {
		if r.Context().Err() != nil {
			return total, nil
		}
		n, err := r.Body.Read(buf)
		total += int64(n)
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// writeFromPool writes size bytes cycling through pool starting at offset
// and returns the offset to continue from.
func writeFromPool(w io.Writer, pool []byte, size, offset int) (int, error) {
	if len(pool) == 0 || size <= 0 {
		return 0, errors.New("empty payload pool")
	}
	for size > 0 {
		if offset >= len(pool) {
			offset = 0
		}
		n := min(size, len(pool)-offset)
		if _, err := w.Write(pool[offset : offset+n]); err != nil {
			return offset, err
		}
		size -= n
		offset += n
	}
	return offset % len(pool), nil
}

func drainRequestBody(r *http.Request) {
	if r == nil || r.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
}
