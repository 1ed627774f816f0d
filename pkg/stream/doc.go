/*
Package stream provides the server-sent-events hub for the gateway.

The hub manages the lifecycle of SSE streams: backend services create a
stream, push progress events into it, and close it; clients subscribe
over HTTP and receive every event in order, including events published
before they connected. Streams survive their producer until a reaper
collects idle and abandoned ones.

# Architecture

	┌──────────────────── STREAM HUB ──────────────────────────┐
	│                                                            │
	│  Producer (backend service)                                │
	│    CreateStream ─ SendEvent ─ CloseStream                  │
	│       │                                                    │
	│       ▼                                                    │
	│  ┌────────────────────────────────────────────┐          │
	│  │              stream                         │          │
	│  │  - backlog: every event, in order           │          │
	│  │  - status: active → completed | error       │          │
	│  │  - subscribers: map[id]chan StreamEvent     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│       ┌─────────────┴─────────────┐                       │
	│       ▼                           ▼                       │
	│  Subscriber A               Subscriber B (late)           │
	│  receives live              backlog replayed first,       │
	│  events as sent             then live events              │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Reaper                         │          │
	│  │  - idle active streams past the timeout     │          │
	│  │  - terminal streams nobody subscribed to    │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Stream Lifecycle

CreateStream records a start event immediately, so even a subscriber
arriving after a one-shot producer sees the full history. SendEvent
appends to the backlog and fans out to live subscribers; it returns
false for unknown streams, terminal streams, and a full backlog, and
the producer is expected to stop on false.

A complete or error event is terminal: the stream stops accepting
events but stays subscribable so late clients can replay the outcome.
The stream is destroyed when its last subscriber disconnects after the
terminal event, or by the reaper if nobody ever subscribes.

# HTTP Serving

Serve writes a subscription as an SSE response:

	event: progress
	data: {"event_id":"...","timestamp":"...","pct":40}

Each frame carries the event type, and the data payload is the event's
Data object merged with event_id and an RFC 3339 timestamp. Keepalive
frames (event: keepalive, empty object) go out whenever no data event
has been written for the keepalive interval, so proxies do not time out
idle connections. Serve returns when the stream completes or the client
disconnects.

# Usage

Producer side:

	hub := stream.NewHub(15*time.Second, 5*time.Minute)
	hub.StartReaper()
	defer hub.Shutdown()

	id := hub.CreateStream("agent-service", "user-1", "summarize")
	hub.SendEvent(id, types.StreamEvent{Type: types.EventProgress, Data: map[string]interface{}{"pct": 40}})
	hub.SendEvent(id, types.StreamEvent{Type: types.EventResult, Data: result})
	hub.CloseStream(id)

Consumer side (inside an HTTP handler):

	if err := hub.Serve(w, r, streamID); err != nil {
		// stream.ErrStreamNotFound
	}

Or programmatically:

	sub, err := hub.Subscribe(streamID)
	defer sub.Close()
	for ev := range sub.Events() {
		handle(ev)
	}

# Integration Points

  - pkg/gateway: create/send/close on the admin surface, Serve on the
    open subscribe endpoint (the stream ID acts as the capability)
  - pkg/types: StreamEvent and the event type constants
  - pkg/metrics: active stream and subscriber gauges

# Design Patterns

Backlog Replay:
  - The full event history is the unit of delivery, not the live feed
  - Removes the race between producer completion and client connect

Reaper Over Refcounts:
  - Idle and abandoned streams are collected on a timer rather than
    tracked with ownership counts, keeping SendEvent lock-light

# Troubleshooting

Subscriber Sees Nothing:
  - Check the stream ID; Subscribe returns ErrStreamNotFound after the
    reaper has collected the stream
  - Lower the reap timeout only with care: slow clients replaying a
    long backlog still count as subscribed

SendEvent Returns False:
  - The stream is terminal or its backlog is full
  - Producers must treat false as "stop sending", not retry

# See Also

  - pkg/scheduler for the tasks whose progress these streams carry
  - pkg/events for the internal (non-client-facing) event broker
*/
package stream
