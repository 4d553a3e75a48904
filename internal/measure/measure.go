// Package measure runs ping, download and upload measurements over HTTP
// against ispcheck-compatible targets (GET /api/v1/ping, GET
// /api/v1/download, POST /api/v1/upload).
package measure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/saveenergy/ispcheck/internal/logging"
	"github.com/saveenergy/ispcheck/pkg/types"
)

var (
	ErrNoServers                 = errors.New("no measurement servers configured")
	ErrNoServerReachable         = errors.New("no measurement server reachable")
	ErrLatencyMeasurementFailed  = errors.New("latency measurement failed")
	ErrDownloadMeasurementFailed = errors.New("download measurement failed")
	ErrUploadMeasurementFailed   = errors.New("upload measurement failed")
)

const (
	reachSamples      = 3
	reachTimeout      = 5 * time.Second
	downloadChunkSize = 1 << 20
	uploadPayloadSize = 1 << 20
	transferSlack     = 5 * time.Second
)

type Measurer struct {
	servers     []string
	httpClient  *http.Client
	pingSamples int
	duration    time.Duration
	logger      *logging.Logger
}

type Option func(*Measurer)

func WithHTTPClient(hc *http.Client) Option {
	return func(m *Measurer) { m.httpClient = hc }
}

func WithPingSamples(n int) Option {
	return func(m *Measurer) {
		if n > 0 {
			m.pingSamples = n
		}
	}
}

// WithDuration sets how long each transfer direction runs. It is rounded up
// to whole seconds, which is the resolution of the download endpoint.
func WithDuration(d time.Duration) Option {
	return func(m *Measurer) {
		if d > 0 {
			m.duration = d
		}
	}
}

func New(servers []string, opts ...Option) *Measurer {
	cleaned := make([]string, 0, len(servers))
	for _, s := range servers {
		if s = strings.TrimRight(strings.TrimSpace(s), "/"); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	m := &Measurer{
		servers:     cleaned,
		httpClient:  &http.Client{},
		pingSamples: 5,
		duration:    8 * time.Second,
		logger:      logging.NewLogger("measure"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Measure picks the lowest-latency server and measures ping, download and
// upload against it.
func (m *Measurer) Measure(ctx context.Context, progress types.ProgressFunc) (types.SpeedSample, error) {
	progress.Report(types.PhaseSelectingServer)
	server, err := m.selectServer(ctx)
	if err != nil {
		return types.SpeedSample{}, err
	}
	m.logger.Debug("measurement server selected", logging.F("server", server))

	progress.Report(types.PhasePing)
	pingMs, _, ok := m.measureLatency(ctx, server, m.pingSamples)
	if !ok {
		return types.SpeedSample{}, fmt.Errorf("%s: %w", server, ErrLatencyMeasurementFailed)
	}

	seconds := durationSeconds(m.duration)

	progress.Report(types.PhaseDownload)
	down, _, ok := m.downloadMeasured(ctx, server, seconds)
	if !ok {
		return types.SpeedSample{}, fmt.Errorf("%s: %w", server, ErrDownloadMeasurementFailed)
	}

	progress.Report(types.PhaseUpload)
	up, _, ok := m.uploadMeasured(ctx, server, seconds)
	if !ok {
		return types.SpeedSample{}, fmt.Errorf("%s: %w", server, ErrUploadMeasurementFailed)
	}

	return types.SpeedSample{
		PingMs:       round2(pingMs),
		DownloadMbps: round2(down),
		UploadMbps:   round2(up),
		MeasuredAt:   time.Now().UTC(),
		Server:       server,
	}, nil
}

func (m *Measurer) selectServer(ctx context.Context) (string, error) {
	switch len(m.servers) {
	case 0:
		return "", ErrNoServers
	case 1:
		return m.servers[0], nil
	}

	reachCtx, cancel := context.WithTimeout(ctx, reachTimeout)
	defer cancel()

	latencies := make([]float64, len(m.servers))
	var wg sync.WaitGroup
	for i, server := range m.servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			avg, _, ok := m.measureLatency(reachCtx, server, reachSamples)
			if !ok {
				avg = math.Inf(1)
			}
			latencies[i] = avg
		}()
	}
	wg.Wait()

	best := -1
	for i, l := range latencies {
		if math.IsInf(l, 1) {
			m.logger.Debug("measurement server unreachable", logging.F("server", m.servers[i]))
			continue
		}
		if best < 0 || l < latencies[best] {
			best = i
		}
	}
	if best < 0 {
		return "", ErrNoServerReachable
	}
	return m.servers[best], nil
}

func (m *Measurer) measureLatency(ctx context.Context, server string, samples int) (avgMs, jitterMs float64, ok bool) {
	pingURL := server + "/api/v1/ping"
	var latencies []time.Duration

	for i := 0; i < samples; i++ {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pingURL, nil)
		if err != nil {
			continue
		}
		resp, err := m.httpClient.Do(req)
		if err != nil {
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			continue
		}
		latencies = append(latencies, time.Since(start))
	}

	// The first sample includes connection setup, so two are required
	// whenever two were asked for.
	if len(latencies) == 0 || len(latencies) < min(samples, 2) {
		return 0, 0, false
	}

	stats := summarizeLatency(latencies)
	m.logger.Debug("latency measured",
		logging.F("server", server),
		logging.F("samples", stats.Count),
		logging.F("min_ms", stats.MinMs),
		logging.F("p95_ms", stats.P95Ms),
		logging.F("max_ms", stats.MaxMs))
	return stats.AvgMs, stats.JitterMs, true
}

func (m *Measurer) downloadMeasured(ctx context.Context, server string, durationSec int) (mbps float64, totalBytes int64, ok bool) {
	dlCtx, cancel := context.WithTimeout(ctx, time.Duration(durationSec)*time.Second+transferSlack)
	defer cancel()

	reqURL := fmt.Sprintf("%s/api/v1/download?duration=%d&chunk=%d", server, durationSec, downloadChunkSize)
	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, 0, false
	}
	req.Header.Set("Accept-Encoding", "identity")

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, 0, false
	}

	buf := make([]byte, 64*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		totalBytes += int64(n)
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				return 0, totalBytes, false
			}
			break
		}
	}

	elapsed := time.Since(start)
	if elapsed <= 0 || totalBytes == 0 {
		return 0, totalBytes, false
	}
	return float64(totalBytes*8) / elapsed.Seconds() / 1_000_000, totalBytes, true
}

func (m *Measurer) uploadMeasured(ctx context.Context, server string, durationSec int) (mbps float64, totalBytes int64, ok bool) {
	target := time.Duration(durationSec) * time.Second
	upCtx, cancel := context.WithTimeout(ctx, target+transferSlack)
	defer cancel()

	payload := make([]byte, uploadPayloadSize)
	start := time.Now()
	for iterations := 0; ; iterations++ {
		if upCtx.Err() != nil {
			break
		}
		if iterations > 0 && time.Since(start) >= target {
			break
		}

		req, err := http.NewRequestWithContext(upCtx, http.MethodPost, server+"/api/v1/upload", bytes.NewReader(payload))
		if err != nil {
			return 0, totalBytes, false
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			if totalBytes > 0 && upCtx.Err() != nil {
				break
			}
			return 0, totalBytes, false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return 0, totalBytes, false
		}
		totalBytes += int64(len(payload))
	}

	elapsed := time.Since(start)
	if elapsed <= 0 || totalBytes == 0 {
		return 0, totalBytes, false
	}
	return float64(totalBytes*8) / elapsed.Seconds() / 1_000_000, totalBytes, true
}

func durationSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
