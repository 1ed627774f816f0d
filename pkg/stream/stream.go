package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexops/gateway/pkg/log"
	"github.com/cortexops/gateway/pkg/types"
)

const (
	// defaultQueueBound caps the per-stream event backlog.
	defaultQueueBound = 1000

	// cleanupInterval is how often the reaper scans for dead streams.
	cleanupInterval = 60 * time.Second
)

// ErrStreamNotFound is returned for operations on unknown streams.
var ErrStreamNotFound = fmt.Errorf("stream not found")

// Info is the externally visible state of one stream
type Info struct {
	StreamID         string             `json:"stream_id"`
	ServiceID        string             `json:"service_id"`
	UserID           string             `json:"user_id,omitempty"`
	ToolID           string             `json:"tool_id,omitempty"`
	Status           types.StreamStatus `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
	LastEventAt      time.Time          `json:"last_event_at"`
	EventsSent       int64              `json:"events_sent"`
	ConnectedClients int                `json:"connected_clients"`
}

// stream is one live SSE stream with its event backlog and subscribers
type stream struct {
	id        string
	serviceID string
	userID    string
	toolID    string

	status      types.StreamStatus
	createdAt   time.Time
	lastEventAt time.Time
	eventsSent  int64

	backlog []types.StreamEvent
	subs    map[string]chan types.StreamEvent
}

// Subscriber consumes the events of one stream. Close must be called
// when the consumer disconnects.
type Subscriber struct {
	id       string
	streamID string
	ch       chan types.StreamEvent
	hub      *Hub
	once     sync.Once
}

// Events returns the subscriber's event channel. The channel is closed
// when the stream is destroyed.
func (s *Subscriber) Events() <-chan types.StreamEvent {
	return s.ch
}

// Close detaches the subscriber from its stream.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.streamID, s.id)
	})
}

// Hub owns all SSE streams and fans events out to subscribers.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*stream

	keepalive  time.Duration
	timeout    time.Duration
	queueBound int

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub with the given keepalive interval and idle
// timeout. Zero values fall back to 30 s and 300 s.
func NewHub(keepalive, timeout time.Duration) *Hub {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Hub{
		streams:    make(map[string]*stream),
		keepalive:  keepalive,
		timeout:    timeout,
		queueBound: defaultQueueBound,
		stopCh:     make(chan struct{}),
	}
}

// Keepalive returns the keepalive interval subscribers should use.
func (h *Hub) Keepalive() time.Duration {
	return h.keepalive
}

// CreateStream registers a new active stream and returns its id. The
// stream starts with a queued start event carrying the stream id.
func (h *Hub) CreateStream(serviceID, userID, toolID string) string {
	now := time.Now()
	s := &stream{
		id:          uuid.New().String(),
		serviceID:   serviceID,
		userID:      userID,
		toolID:      toolID,
		status:      types.StreamActive,
		createdAt:   now,
		lastEventAt: now,
		subs:        make(map[string]chan types.StreamEvent),
	}

	h.mu.Lock()
	h.streams[s.id] = s
	h.mu.Unlock()

	h.SendEvent(s.id, types.StreamEvent{
		Type: types.EventStart,
		Data: map[string]interface{}{"stream_id": s.id, "service_id": serviceID},
	})

	log.WithStreamID(s.id).Debug().Str("service", serviceID).Msg("stream created")
	return s.id
}

// SendEvent enqueues an event on the stream. It returns false when the
// stream is unknown, no longer active, or its backlog is full. Complete
// and error events move the stream to its terminal state.
func (h *Hub) SendEvent(streamID string, ev types.StreamEvent) bool {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	s, ok := h.streams[streamID]
	if !ok || s.status != types.StreamActive {
		h.mu.Unlock()
		return false
	}
	if len(s.backlog) >= h.queueBound {
		h.mu.Unlock()
		log.WithStreamID(streamID).Warn().Msg("stream backlog full, event dropped")
		return false
	}

	s.backlog = append(s.backlog, ev)
	s.eventsSent++
	s.lastEventAt = ev.Timestamp

	switch ev.Type {
	case types.EventComplete:
		s.status = types.StreamCompleted
	case types.EventError:
		s.status = types.StreamError
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; it will miss this event.
		}
	}
	h.mu.Unlock()

	// Terminal streams that never had a subscriber are left for the
	// reaper so late subscribers can still replay the backlog.
	return true
}

// Subscribe attaches a new consumer to the stream. The backlog is
// replayed first so late subscribers observe the full event sequence.
func (h *Hub) Subscribe(streamID string) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}

	sub := &Subscriber{
		id:       uuid.New().String(),
		streamID: streamID,
		ch:       make(chan types.StreamEvent, h.queueBound+1),
		hub:      h,
	}
	for _, ev := range s.backlog {
		sub.ch <- ev
	}
	s.subs[sub.id] = sub.ch
	return sub, nil
}

func (h *Hub) unsubscribe(streamID, subID string) {
	h.mu.Lock()
	s, ok := h.streams[streamID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(s.subs, subID)
	destroy := s.status != types.StreamActive && len(s.subs) == 0
	h.mu.Unlock()

	if destroy {
		h.destroy(streamID)
	}
}

// CloseStream sends a final complete event and marks the stream
// completed.
func (h *Hub) CloseStream(streamID string) error {
	if !h.SendEvent(streamID, types.StreamEvent{Type: types.EventComplete}) {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	return nil
}

// Get returns the stream info.
func (h *Hub) Get(streamID string) (Info, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[streamID]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	return s.info(), nil
}

// List returns info for every live stream.
func (h *Hub) List() []Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Info, 0, len(h.streams))
	for _, s := range h.streams {
		out = append(out, s.info())
	}
	return out
}

// Count returns the number of live streams.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

func (s *stream) info() Info {
	return Info{
		StreamID:         s.id,
		ServiceID:        s.serviceID,
		UserID:           s.userID,
		ToolID:           s.toolID,
		Status:           s.status,
		CreatedAt:        s.createdAt,
		LastEventAt:      s.lastEventAt,
		EventsSent:       s.eventsSent,
		ConnectedClients: len(s.subs),
	}
}

// destroy removes the stream and closes all subscriber channels.
func (h *Hub) destroy(streamID string) {
	h.mu.Lock()
	s, ok := h.streams[streamID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.streams, streamID)
	subs := s.subs
	s.subs = map[string]chan types.StreamEvent{}
	h.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
	log.WithStreamID(streamID).Debug().Msg("stream destroyed")
}

// StartReaper launches the periodic sweep for idle and abandoned
// streams.
func (h *Hub) StartReaper() {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.reap()
			case <-h.stopCh:
				return
			}
		}
	}()
}

func (h *Hub) reap() {
	cutoff := time.Now().Add(-h.timeout)

	h.mu.Lock()
	var victims []string
	for id, s := range h.streams {
		idle := s.status == types.StreamActive && s.lastEventAt.Before(cutoff)
		abandoned := s.status != types.StreamActive && len(s.subs) == 0
		if idle {
			s.status = types.StreamTimeout
		}
		if idle || abandoned {
			victims = append(victims, id)
		}
	}
	h.mu.Unlock()

	for _, id := range victims {
		log.WithStreamID(id).Info().Msg("stream reaped")
		h.destroy(id)
	}
}

// Shutdown stops the reaper and destroys every stream.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.stopCh) })

	h.mu.Lock()
	ids := make([]string, 0, len(h.streams))
	for id := range h.streams {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.SendEvent(id, types.StreamEvent{Type: types.EventComplete})
		h.destroy(id)
	}
}

// WriteFrame encodes one event as an SSE frame.
func WriteFrame(w io.Writer, ev types.StreamEvent) error {
	payload := map[string]interface{}{
		"event_id":  ev.ID,
		"timestamp": ev.Timestamp.Format(time.RFC3339Nano),
	}
	for k, v := range ev.Data {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// KeepaliveFrame writes a keepalive frame.
func KeepaliveFrame(w io.Writer) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: {}\n\n", types.EventKeepalive)
	return err
}
