// Package pms sends validated tool requests to the property-management REST
// API.
package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 8 << 20
	maxErrorBody    = 4096
)

var ErrNonJSONResponse = errors.New("upstream returned a non-JSON body")

type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	// RatePerSecond limits outbound requests; zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// APIError is a non-2xx answer from the upstream API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("pms api returned status %d", e.Status)
	}
	return fmt.Sprintf("pms api returned status %d: %s", e.Status, e.Body)
}

func (e *APIError) StatusCode() int { return e.Status }

// Client authenticates with HTTP basic auth and sends each request once.
type Client struct {
	base    *url.URL
	key     string
	secret  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse pms base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("pms base url must be http or https, got %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		base:   base,
		key:    cfg.APIKey,
		secret: cfg.APISecret,
		client: &http.Client{Timeout: timeout},
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c, nil
}

// Do sends req and returns the status and body of a 2xx response. Query transports encode
// req.Params in the URL; JSON transports send them as the request body.
func (c *Client) Do(ctx context.Context, req domain.Request) (domain.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Response{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	target, err := url.Parse(c.base.String() + req.Path)
	if err != nil {
		return domain.Response{}, fmt.Errorf("build url: %w", err)
	}

	var body io.Reader
	if req.Transport == domain.TransportJSON {
		payload, err := req.Body()
		if err != nil {
			return domain.Response{}, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(payload)
	} else if len(req.Params) > 0 {
		target.RawQuery = req.Query().Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return domain.Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" || c.secret != "" {
		httpReq.SetBasicAuth(c.key, c.secret)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.Response{}, fmt.Errorf("send %s %s: %w", req.Method, req.Path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.Response{}, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.Response{}, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.Response{Status: resp.StatusCode, Body: json.RawMessage(`{}`)}, nil
	}
	if !json.Valid(data) {
		return domain.Response{}, ErrNonJSONResponse
	}
	return domain.Response{Status: resp.StatusCode, Body: json.RawMessage(data)}, nil
}
