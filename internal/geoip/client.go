// Package geoip looks up the network operator behind an address using the
// ip-api.com JSON endpoint or any service that speaks the same format.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saveenergy/ispcheck/internal/logging"
	ispErrors "github.com/saveenergy/ispcheck/pkg/errors"
	"github.com/saveenergy/ispcheck/pkg/types"
)

const (
	DefaultBaseURL = "http://ip-api.com/json/"
	lookupFields   = "status,message,country,isp,org,as,query"
	maxBodyBytes   = 16 << 10
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewLogger("geoip"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type lookupResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	ISP     string `json:"isp"`
	Org     string `json:"org"`
	AS      string `json:"as"`
	Query   string `json:"query"`
}

// Lookup returns the ISP and organisation names registered for ip.
func (c *Client) Lookup(ctx context.Context, ip string) (types.GeoLocation, error) {
	if net.ParseIP(ip) == nil {
		return types.GeoLocation{}, ispErrors.ErrGeoLookup(fmt.Sprintf("invalid address %q", ip), nil)
	}

	endpoint := c.baseURL + url.PathEscape(ip) + "?fields=" + lookupFields
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.GeoLocation{}, ispErrors.ErrGeoLookup("create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.GeoLocation{}, ispErrors.ErrGeoLookup("send request", err)
	}
	defer drainAndClose(resp, c.logger)

	if resp.StatusCode != http.StatusOK {
		return types.GeoLocation{}, ispErrors.ErrGeoLookup(fmt.Sprintf("provider returned status %d", resp.StatusCode), nil)
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return types.GeoLocation{}, ispErrors.ErrGeoLookup("decode response", err)
	}
	if body.Status != "" && body.Status != "success" {
		msg := body.Message
		if msg == "" {
			msg = body.Status
		}
		return types.GeoLocation{}, ispErrors.ErrGeoLookup("provider rejected lookup: "+msg, nil)
	}

	return types.GeoLocation{
		ISP:     body.ISP,
		Org:     body.Org,
		AS:      body.AS,
		Country: body.Country,
	}, nil
}

func drainAndClose(resp *http.Response, logger *logging.Logger) {
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes)); err != nil {
		logger.Debug("drain response body", logging.Err(err))
	}
	if err := resp.Body.Close(); err != nil {
		logger.Debug("close response body", logging.Err(err))
	}
}
