package stream

import (
	"net/http"
	"time"

	"github.com/cortexops/gateway/pkg/types"
)

// Serve writes the stream's events to an HTTP response as SSE frames
// until the stream ends or the client disconnects. Keepalive frames are
// emitted whenever the keepalive interval passes without a data event.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, streamID string) error {
	sub, err := h.Subscribe(streamID)
	if err != nil {
		return err
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Stream-ID", streamID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()

	keepalive := time.NewTimer(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := WriteFrame(w, ev); err != nil {
				return nil // client gone
			}
			flush()
			if ev.Type == types.EventComplete || ev.Type == types.EventError {
				return nil
			}
			if !keepalive.Stop() {
				select {
				case <-keepalive.C:
				default:
				}
			}
			keepalive.Reset(h.keepalive)

		case <-keepalive.C:
			if err := KeepaliveFrame(w); err != nil {
				return nil
			}
			flush()
			keepalive.Reset(h.keepalive)

		case <-r.Context().Done():
			return nil
		}
	}
}
