package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexops/gateway/pkg/types"
)

func TestServeWritesFramesUntilComplete(t *testing.T) {
	h := NewHub(20*time.Millisecond, time.Minute)
	defer h.Shutdown()

	id := h.CreateStream("svc", "", "")

	go func() {
		// Leave a gap long enough for at least one keepalive.
		time.Sleep(60 * time.Millisecond)
		h.SendEvent(id, types.StreamEvent{
			Type: types.EventProgress,
			Data: map[string]interface{}{"pct": 50},
		})
		h.CloseStream(id)
	}()

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/gateway/streams/"+id, nil)
	require.NoError(t, h.Serve(rec, r, id))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, id, rec.Header().Get("X-Stream-ID"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: start\n")
	assert.Contains(t, body, "event: keepalive\n")
	assert.Contains(t, body, "event: progress\n")
	assert.Contains(t, body, `"pct":50`)

	// The complete frame ends the response.
	assert.True(t, strings.Contains(body, "event: complete\n"))
	idx := strings.Index(body, "event: complete")
	assert.NotContains(t, body[idx:], "event: keepalive")
}

func TestServeUnknownStream(t *testing.T) {
	h := NewHub(time.Second, time.Minute)
	defer h.Shutdown()

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/gateway/streams/missing", nil)
	err := h.Serve(rec, r, "missing")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestServeStopsWhenClientDisconnects(t *testing.T) {
	h := NewHub(time.Hour, time.Minute)
	defer h.Shutdown()

	id := h.CreateStream("svc", "", "")

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/gateway/streams/"+id, nil)
	ctx, cancel := context.WithCancel(r.Context())
	r = r.WithContext(ctx)

	done := make(chan error, 1)
	go func() { done <- h.Serve(rec, r, id) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after client disconnect")
	}
}
