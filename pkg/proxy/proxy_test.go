package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexops/gateway/pkg/apierror"
)

// newTestProxy returns a proxy whose backoff sleeps are recorded instead
// of waited out.
func newTestProxy(timeout time.Duration, maxRetries int) (*Proxy, *[]time.Duration) {
	p := New(timeout, maxRetries)
	sleeps := &[]time.Duration{}
	p.sleep = func(d time.Duration) {
		*sleeps = append(*sleeps, d)
	}
	return p, sleeps
}

func TestForwardSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v=1", r.URL.RawQuery)
		assert.Equal(t, "custom-value", r.Header.Get("X-Custom"))
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p, sleeps := newTestProxy(time.Second, 3)
	defer p.Close()

	r := httptest.NewRequest("POST", "/api/v1/models?v=1", nil)
	r.Header.Set("X-Custom", "custom-value")

	result, err := p.Forward(context.Background(), r, srv.URL+"/models")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(result.Body))
	assert.Equal(t, "yes", result.Header.Get("X-Upstream"))
	assert.Empty(t, *sleeps)
}

func TestForwardRetriesConnectionFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			// Drop the connection before writing a response.
			if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
				conn.Close()
			}
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	p, sleeps := newTestProxy(time.Second, 3)
	defer p.Close()

	r := httptest.NewRequest("GET", "/api/v1/models", nil)
	result, err := p.Forward(context.Background(), r, srv.URL+"/models")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "recovered", string(result.Body))

	// Two failed attempts mean two backoff waits of 1s then 2s.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestForwardRetries5xxForIdempotent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p, sleeps := newTestProxy(time.Second, 3)
	defer p.Close()

	r := httptest.NewRequest("GET", "/api/v1/models", nil)
	result, err := p.Forward(context.Background(), r, srv.URL+"/models")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *sleeps, 2)
}

func TestForward5xxNotRetriedForPost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, sleeps := newTestProxy(time.Second, 3)
	defer p.Close()

	r := httptest.NewRequest("POST", "/api/v1/chat", nil)
	result, err := p.Forward(context.Background(), r, srv.URL+"/chat")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *sleeps)
}

func TestForward4xxPassesThrough(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	p, sleeps := newTestProxy(time.Second, 3)
	defer p.Close()

	r := httptest.NewRequest("GET", "/api/v1/models/missing", nil)
	result, err := p.Forward(context.Background(), r, srv.URL+"/models/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Equal(t, "nope", string(result.Body))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *sleeps)
}

func TestForwardTimeoutExhaustsBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	p, sleeps := newTestProxy(50*time.Millisecond, 3)
	defer p.Close()

	r := httptest.NewRequest("GET", "/api/v1/slow", nil)
	_, err := p.Forward(context.Background(), r, srv.URL+"/slow")
	require.Error(t, err)

	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.KindUpstreamTimeout, apiErr.Kind)
	assert.Len(t, *sleeps, 2)
}

func TestForwardCircuitOpensAfterRepeatedFailure(t *testing.T) {
	// A listener that is closed immediately gives connection refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	ln.Close()

	p, _ := newTestProxy(time.Second, 3)
	defer p.Close()

	r := httptest.NewRequest("GET", "/api/v1/models", nil)

	_, err = p.Forward(context.Background(), r, "http://"+deadAddr+"/models")
	require.Error(t, err)

	// Five consecutive failures trip the breaker; the next call fails
	// fast without dialling.
	_, err = p.Forward(context.Background(), r, "http://"+deadAddr+"/models")
	require.Error(t, err)

	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.KindUpstreamUnavailable, apiErr.Kind)
}

func TestForwardStripsHopHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Upstream", "yes")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p, _ := newTestProxy(time.Second, 3)
	defer p.Close()

	r := httptest.NewRequest("GET", "/api/v1/models", nil)
	result, err := p.Forward(context.Background(), r, srv.URL+"/models")
	require.NoError(t, err)
	assert.Empty(t, result.Header.Get("Connection"))
	assert.Equal(t, "yes", result.Header.Get("X-Upstream"))
}

func TestForwardStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"data: one\n\n", "data: two\n\n"} {
			w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p, _ := newTestProxy(time.Second, 3)
	defer p.Close()

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/v1/stream", nil)
	err := p.ForwardStream(context.Background(), rec, r, srv.URL+"/stream")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: one\n\ndata: two\n\n", rec.Body.String())
}

func TestInternalRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	p, _ := newTestProxy(time.Second, 3)
	defer p.Close()

	resp, err := p.InternalRequest(context.Background(), "POST", srv.URL+"/notify",
		map[string]string{"event": "deploy"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, resp.JSON["received"])
}

func TestInternalRequestTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("queued"))
	}))
	defer srv.Close()

	p, _ := newTestProxy(time.Second, 3)
	defer p.Close()

	resp, err := p.InternalRequest(context.Background(), "GET", srv.URL+"/status", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", resp.Text)
}

func TestBackoffCapped(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0))
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, maxBackoff, backoff(10))
}
