package engine

import (
	"sync"

	"github.com/seantiz/compute/internal/model"
)

// subscriberBufferSize is the channel buffer for each result subscriber.
// Results are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker fans task results out to live subscribers.
// It is safe for concurrent use.
//
// Once closed, Subscribe returns an already closed channel instead of one
// that would never deliver.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan model.Result
	nextID int
	closed bool
}

// NewBroker creates a new result broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[int]chan model.Result),
	}
}

// Subscribe returns a channel that receives every result published from now
// on, and an unsubscribe function.
func (b *Broker) Subscribe() (<-chan model.Result, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.Result, subscriberBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish sends a result to all subscribers.
// Results are dropped for subscribers whose buffers are full.
func (b *Broker) Publish(r model.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- r:
		default:
			// Drop for slow subscribers so workers never wait on a reader.
		}
	}
}

// Close signals that nothing more will be published. All subscriber channels
// are closed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
