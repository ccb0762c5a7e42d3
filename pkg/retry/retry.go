// Package retry retries outbound calls that fail with a transient error
// (network failure or timeout, HTTP 5xx, HTTP 429, from our REST clients
// or the Google API client) using bounded exponential backoff.
// Any other error, or the end of the caller's context, stops the retry
// loop immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
)

// Policy bounds the retry loop.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// DefaultPolicy waits 1s, 2s, 4s... capped at 30s, for at most 5 attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		MaxAttempts:     5,
	}
}

// newBackOff returns a fresh instance; BackOff implementations are stateful.
func (p Policy) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Transient reports whether retrying the request may succeed.
func (e *HTTPError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Permanent marks err as not worth retrying whatever its cause.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsTransient classifies err. Client timeouts are transient; whether the
// caller's own context has ended is decided by Do, not here.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) || errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Transient()
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// Do runs op until it succeeds, fails permanently, or the policy gives up.
// The returned error is op's last error.
func Do(ctx context.Context, p Policy, op func() error) error {
	_, err := DoValue(ctx, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return v, err
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.newBackOff(ctx), func(err error, wait time.Duration) {
		slog.Debug("retrying after transient error", "error", err, "wait", wait)
	})
}
