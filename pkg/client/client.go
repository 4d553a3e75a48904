// Package client is a Go SDK for an ispcheck server. Applications and agents
// can import it instead of shelling out to the CLI.
//
// Usage:
//
//	c := client.New("http://localhost:8080")
//	result, err := c.RunSpeedTest(ctx)
//	history, err := c.History(ctx, 10)
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/saveenergy/ispcheck/pkg/isp"
	"github.com/saveenergy/ispcheck/pkg/types"
)

const maxErrorBody = 64 << 10

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ispcheck: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("ispcheck: %d: %s", e.Status, e.Message)
}

// Client talks to a single ispcheck server.
type Client struct {
	serverURL  string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

type Option func(*Client)

// WithHTTPClient overrides the default http.Client. The default has no
// timeout; a speed test runs for tens of seconds, so bound calls with ctx.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ServerURL() string { return c.serverURL }

// RunSpeedTest runs a full test on the server and waits for the result.
func (c *Client) RunSpeedTest(ctx context.Context) (*types.SpeedTestResponse, error) {
	var out types.SpeedTestResponse
	if err := c.getJSON(ctx, "/speedtest", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunSpeedTestWithProgress is RunSpeedTest with phase updates delivered to
// onPhase over the server's progress stream. If the stream cannot be opened
// the test still runs, without updates.
func (c *Client) RunSpeedTestWithProgress(ctx context.Context, onPhase func(types.Phase)) (*types.SpeedTestResponse, error) {
	if onPhase == nil {
		return c.RunSpeedTest(ctx)
	}
	runID := uuid.NewString()

	done := make(chan struct{})
	conn, err := c.subscribe(ctx, runID)
	if err == nil {
		go func() {
			defer close(done)
			defer conn.Close()
			for {
				var ev progressEvent
				if err := conn.ReadJSON(&ev); err != nil {
					return
				}
				if ev.Type == "phase" && ev.Phase != "" {
					onPhase(ev.Phase)
				}
				if ev.Type == "complete" || ev.Type == "error" {
					return
				}
			}
		}()
	} else {
		close(done)
	}

	var out types.SpeedTestResponse
	runErr := c.getJSON(ctx, "/speedtest?run_id="+url.QueryEscape(runID), &out)
	if conn != nil {
		// The server closes the stream after the terminal event; do not hang
		// if that frame never arrives.
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			conn.Close()
			<-done
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	return &out, nil
}

type progressEvent struct {
	Type  string      `json:"type"`
	Phase types.Phase `json:"phase"`
}

func (c *Client) subscribe(ctx context.Context, runID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/speedtest/" + runID + "/stream"

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	// Events published before "connected" are not replayed.
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var ev progressEvent
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != "connected" {
		conn.Close()
		if err == nil {
			err = fmt.Errorf("unexpected first event %q", ev.Type)
		}
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn, nil
}

// History returns saved runs newest first. limit <= 0 returns all.
func (c *Client) History(ctx context.Context, limit int) ([]types.HistoryEntry, error) {
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []types.HistoryEntry
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HistoryChart writes the server's PNG history chart to w.
func (c *Client) HistoryChart(ctx context.Context, w io.Writer) error {
	resp, err := c.do(ctx, "/history/chart.png")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) DetectISP(ctx context.Context) (*types.DetectISPResponse, error) {
	var out types.DetectISPResponse
	if err := c.getJSON(ctx, "/detect-isp", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ISPInfo returns the support contact for key; unknown keys yield the
// fallback contact rather than an error.
func (c *Client) ISPInfo(ctx context.Context, key string) (*isp.Contact, error) {
	var out isp.Contact
	if err := c.getJSON(ctx, "/isp-info/"+url.PathEscape(key), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ISPs(ctx context.Context) ([]isp.Contact, error) {
	var out []isp.Contact
	if err := c.getJSON(ctx, "/isps", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var out types.VersionResponse
	if err := c.getJSON(ctx, "/version", &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Healthy returns nil if the server answers its health check.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.do(ctx, "/health")
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do issues a GET and turns non-2xx answers into *APIError.
func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload types.ErrorResponse
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
	} else if text := strings.TrimSpace(string(body)); text != "" {
		apiErr.Message = text
	}
	return nil, apiErr
}

// IsCode reports whether err is an *APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
