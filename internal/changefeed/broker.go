package changefeed

import (
	"context"
	"sync"
)

// Broker is an in-process change feed. Services publish into it after commit
// and every subscriber receives each change once, in publish order.
type Broker struct {
	buffer int

	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

type subscription struct {
	ch   chan Change
	done chan struct{}
}

// NewBroker returns a broker whose subscribers buffer up to buffer changes.
func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{buffer: buffer, subs: make(map[*subscription]struct{})}
}

// Changes registers a subscriber. The channel is closed after ctx is done.
func (b *Broker) Changes(ctx context.Context) (<-chan Change, error) {
	s := &subscription{ch: make(chan Change, b.buffer), done: make(chan struct{})}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(s.done)
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// Publish hands c to every live subscriber. It blocks while a subscriber's
// buffer is full, until ctx is done.
func (b *Broker) Publish(ctx context.Context, c Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- c:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers reports the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
