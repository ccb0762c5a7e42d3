package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	c := New(url)
	c.Retry = retry.Policy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxAttempts: 3}
	return c
}

func TestDoSendsJSONAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/things", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "x", in["name"])
		_ = json.NewEncoder(w).Encode(map[string]int{"id": 7})
	}))
	defer srv.Close()

	c := testClient(srv.URL + "/")
	c.Authorize = func(r *http.Request) error {
		r.Header.Set("Authorization", "Bearer tok")
		return nil
	}

	var out struct{ ID int }
	require.NoError(t, c.Post(context.Background(), "/things", map[string]string{"name": "x"}, &out))
	assert.Equal(t, 7, out.ID)
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv.URL).Delete(context.Background(), "/x"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoReturnsHTTPErrorOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Get(context.Background(), "/x", nil)
	var httpErr *retry.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	assert.Equal(t, "nope", httpErr.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRetriesClientTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"id": 7})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.HTTP.Timeout = 50 * time.Millisecond

	var out struct{ ID int }
	require.NoError(t, c.Get(context.Background(), "/slow", &out))
	assert.Equal(t, 7, out.ID)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func truncatedBody(calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 7`))
	})
}

func TestDoDoesNotResendPostAfterTruncatedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(truncatedBody(&calls))
	defer srv.Close()

	var out struct{ ID int }
	err := testClient(srv.URL).Post(context.Background(), "/tasks", map[string]string{"name": "x"}, &out)
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode POST")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRetriesGetAfterTruncatedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(truncatedBody(&calls))
	defer srv.Close()

	var out struct{ ID int }
	err := testClient(srv.URL).Get(context.Background(), "/tasks/1", &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, int32(3), calls.Load())
}
