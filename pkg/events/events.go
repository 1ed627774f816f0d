package events

import (
	"sync"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventServiceRegistered   EventType = "service.registered"
	EventServiceDeregistered EventType = "service.deregistered"
	EventHealthRestored      EventType = "service.health_restored"
	EventHealthLost          EventType = "service.health_lost"
)

// Event is a single gateway notification.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Service   string
	Instance  string
	Message   string
	Metadata  map[string]string
}

// Subscriber receives published events. Delivery is best-effort: a
// subscriber whose buffer is full skips events.
type Subscriber chan *Event

const (
	queueBuffer      = 100
	subscriberBuffer = 50
)

// Broker fans published events out to all subscribers.
type Broker struct {
	mu    sync.RWMutex
	subs  map[Subscriber]struct{}
	queue chan *Event
	quit  chan struct{}
	once  sync.Once
}

// NewBroker creates a broker. Call Start before publishing.
func NewBroker() *Broker {
	return &Broker{
		subs:  make(map[Subscriber]struct{}),
		queue: make(chan *Event, queueBuffer),
		quit:  make(chan struct{}),
	}
}

// Start launches the distribution loop.
func (b *Broker) Start() {
	go func() {
		for {
			select {
			case ev := <-b.queue:
				b.fanOut(ev)
			case <-b.quit:
				return
			}
		}
	}()
}

// Stop halts distribution. Subscriber channels stay open until
// explicitly unsubscribed. Safe to call more than once.
func (b *Broker) Stop() {
	b.once.Do(func() { close(b.quit) })
}

// Subscribe registers a new subscriber channel.
func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberBuffer)

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Unknown
// subscribers are ignored, so double-unsubscribe is harmless.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub)
}

// Publish enqueues an event for distribution. A zero timestamp is
// filled in with the current time. Never blocks after Stop.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- event:
	case <-b.quit:
	}
}

func (b *Broker) fanOut(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			// full buffer, subscriber misses this one
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
