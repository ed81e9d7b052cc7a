// Package event implements typed, many-to-many fan-out of events between
// independent tasks — the "channel of typed events" rendition of the
// peer/pool callback pattern described in the design notes: publishers call
// Send, subscribers range over a channel, and Unsubscribe stands in for an
// emitter's "disconnect" callback (it stops delivery; the channel itself is
// not closed).
package event

import "sync"

// Feed implements one-to-many subscription: a value sent on a Feed is
// delivered to every channel registered with Subscribe. Feed is safe for
// concurrent use. The zero value is ready to use.
type Feed[T any] struct {
	mu   sync.Mutex
	subs map[*feedSub[T]]struct{}
}

type feedSub[T any] struct {
	feed *Feed[T]
	ch   chan<- T
	once sync.Once
}

// Subscribe adds a channel to the feed. Future sends on the feed are
// delivered on the channel until the returned Subscription is closed or the
// channel's buffer is saturated, in which case that delivery is dropped
// rather than blocking the sender — so a slow subscriber cannot stall a
// fast one. Callers that need lossless delivery should give ch enough
// buffer for their own backpressure needs.
func (f *Feed[T]) Subscribe(ch chan<- T) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[*feedSub[T]]struct{})
	}
	sub := &feedSub[T]{feed: f, ch: ch}
	f.subs[sub] = struct{}{}
	return sub
}

// Send delivers value to all current subscribers. It never blocks: a
// subscriber whose channel is full misses the value.
func (f *Feed[T]) Send(value T) (numSent int) {
	f.mu.Lock()
	subs := make([]*feedSub[T], 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- value:
			numSent++
		default:
		}
	}
	return numSent
}

func (s *feedSub[T]) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
	})
}

// Subscription represents a subscription to an event feed.
type Subscription interface {
	// Unsubscribe cancels the subscription. It can safely be called more
	// than once.
	Unsubscribe()
}
