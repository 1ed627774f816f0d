package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{
		Type:     EventServiceRegistered,
		Service:  "agent-service",
		Instance: "a1",
	})

	for _, sub := range []Subscriber{sub1, sub2} {
		ev := receive(t, sub)
		assert.Equal(t, EventServiceRegistered, ev.Type)
		assert.Equal(t, "agent-service", ev.Service)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe() // never drained
	fast := b.Subscribe()

	// Overflow the slow subscriber's buffer.
	for i := 0; i < cap(slow)+10; i++ {
		b.Publish(&Event{Type: EventHealthLost})
	}

	// The fast subscriber still receives events.
	ev := receive(t, fast)
	assert.Equal(t, EventHealthLost, ev.Type)
	assert.LessOrEqual(t, len(slow), cap(slow))
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(&Event{Type: EventServiceDeregistered})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked after stop")
	}
}

func TestPublishPreservesExplicitTimestamp(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.Publish(&Event{Type: EventHealthRestored, Timestamp: ts})

	ev := receive(t, sub)
	require.Equal(t, ts, ev.Timestamp)
}
