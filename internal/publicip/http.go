package publicip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultHTTPURL = "https://api.ipify.org?format=json"
	maxBodyBytes   = 1 << 10
)

// HTTPProvider reads the address from an echo service that answers with
// either {"ip": "..."} or the bare address.
type HTTPProvider struct {
	url        string
	httpClient *http.Client
}

func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	if url == "" {
		url = DefaultHTTPURL
	}
	return &HTTPProvider{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) WhoAmI(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request %s: status %d", p.url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	raw := strings.TrimSpace(string(body))
	if strings.HasPrefix(raw, "{") {
		var payload struct {
			IP string `json:"ip"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", fmt.Errorf("decode body: %w", err)
		}
		raw = payload.IP
	}
	return normalize(raw)
}
