// Package rest is the JSON-over-HTTP plumbing shared by the Anytype, Toggl
// Track and Toggl Plan clients. Every request goes through retry.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/retry"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 10 * time.Second

// Client sends JSON requests relative to BaseURL.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Retry   retry.Policy
	// Authorize decorates every request, e.g. with an Authorization header.
	Authorize func(*http.Request) error
}

// New returns a Client with the default timeout and retry policy.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		Retry:   retry.DefaultPolicy(),
	}
}

// Get is Do with a GET request.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post is Do with a POST request.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Put is Do with a PUT request.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

// Patch is Do with a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPatch, path, in, out)
}

// Delete is Do with a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do encodes in as the JSON body (when non-nil), sends the request with
// retries, and decodes a successful response into out (when non-nil).
// Non-2xx responses are returned as *retry.HTTPError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	return retry.Do(ctx, c.Retry, func() error {
		return c.roundTrip(ctx, method, path, body, out)
	})
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, out any) error {
	url := c.BaseURL + path
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, url, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Authorize != nil {
		if err := c.Authorize(req); err != nil {
			return fmt.Errorf("authorize %s %s: %w", method, url, err)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &retry.HTTPError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		err = fmt.Errorf("decode %s %s: %w", method, url, err)
		// The server already applied a create or patch; sending it again
		// could duplicate the record.
		if method == http.MethodPost || method == http.MethodPatch {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}
