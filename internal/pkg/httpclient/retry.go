package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusError is returned for HTTP responses with status >= 400.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client retries transient failures (network errors, 429 and 5xx) with
// exponential backoff while respecting context cancellation.
type Client struct {
	HTTP        *http.Client
	MaxAttempts int
	Backoff     time.Duration
}

// New creates a Client with the given transport timeout.
func New(timeout time.Duration, maxAttempts int) *Client {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Client{
		HTTP:        &http.Client{Timeout: timeout},
		MaxAttempts: maxAttempts,
		Backoff:     200 * time.Millisecond,
	}
}

// Do sends the request built by makeReq until it succeeds or a
// non-retryable error occurs. The caller closes the response body.
func (c *Client) Do(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Backoff
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by MaxAttempts instead
	b.Reset()

	attempts := max(c.MaxAttempts, 1)
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	var url string
	op := func() (*http.Response, error) {
		req, err := makeReq()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("make request: %w", err))
		}
		url = req.URL.Redacted()

		resp, err := c.do(req)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}
	notify := func(err error, wait time.Duration) {
		slog.Debug("retrying request", "url", url, "wait", wait, "error", err)
	}

	return backoff.RetryNotifyWithData(op, policy, notify)
}

// retryable reports whether err is a rate limit, a 5xx or a transport failure.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}
