/*
Package events provides an in-memory broker for internal notifications.

The broker is the gateway's pub/sub backbone: the registry publishes
instance lifecycle and health transitions, and interested components
(metrics, the admin surface) subscribe without coupling to the
publisher. Delivery is best-effort and non-blocking; this is a
monitoring channel, not a durable queue.

# Event Flow

	Publish ──▶ event channel (buffered)
	              │
	              ▼
	        broadcast loop ──▶ subscriber channels (buffered)

Publish never blocks: if the main buffer is full the event is dropped.
Each subscriber gets its own buffered channel; a slow subscriber whose
buffer fills skips events rather than stalling the rest.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			switch ev.Type {
			case events.EventHealthLost:
				alert(ev)
			}
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventServiceRegistered,
		Message: "agent-service/a1 registered",
		Metadata: map[string]string{"service": "agent-service"},
	})

Publish fills in the timestamp when the caller leaves it zero.
Unsubscribe closes the channel, ending the consumer's range loop.

# Event Types

  - service.registered, service.deregistered
  - service.health_restored, service.health_lost

# Limitations

No persistence, no replay, no per-topic filtering; subscribers filter
by type. Components that need guaranteed delivery must not build on
this broker.

# See Also

  - pkg/registry for the main publisher
  - pkg/stream for the client-facing (SSE) event path
*/
package events
