package stream

import (
	"context"
	"sync"

	"firewatch.org/internal/facility"
)

const subscriberBuffer = 16

// Broker fans committed incident events out to every live subscriber
// (SSE clients of GET /incidents/events).
type Broker struct {
	mu   sync.RWMutex
	subs map[int]chan facility.Event
	next int
}

// New returns an empty broker.
func New() *Broker {
	return &Broker{subs: make(map[int]chan facility.Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (b *Broker) Subscribe(ctx context.Context) <-chan facility.Event {
	ch := make(chan facility.Event, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out to all subscribers. It never blocks; a
// subscriber whose buffer is full misses the event.
func (b *Broker) Publish(evt facility.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers reports how many subscribers are attached.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

var _ facility.Publisher = (*Broker)(nil)
