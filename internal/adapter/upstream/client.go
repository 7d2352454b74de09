// Package upstream is the shared HTTP layer for the external data sources.
// Every outbound call goes through a per-source circuit breaker and a
// per-call timeout, and every failure is reported as
// domain.ErrProviderUnavailable.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

const (
	userAgent   = "hdd-momentum-service/1.0"
	maxBodySize = 16 << 20
)

// Client fetches documents from one upstream source.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	timeout    time.Duration
}

// NewClient creates a client whose breaker opens after five consecutive
// failures and probes again after 30 seconds.
func NewClient(name string, timeout time.Duration) *Client {
	return NewClientWithHTTP(name, timeout, &http.Client{})
}

// NewClientWithHTTP is NewClient with a caller-provided *http.Client.
func NewClientWithHTTP(name string, timeout time.Duration, httpClient *http.Client) *Client {
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{httpClient: httpClient, breaker: cb, timeout: timeout}
}

// Get fetches url and returns the response body. Non-2xx statuses, network
// errors, timeouts and an open breaker all wrap domain.ErrProviderUnavailable.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, rawURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: circuit breaker open", domain.ErrProviderUnavailable, c.breaker.Name())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	return body, nil
}

// State reports the breaker state, e.g. for readiness checks.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Drop the *url.Error wrapper: its message repeats the full URL,
		// query-string credentials included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("request %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s returned status %d: %s", req.URL.Host, resp.StatusCode, snippet)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
