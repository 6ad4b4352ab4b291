package installer

import "sync"

// Broadcaster fans values out to any number of subscribers. Each subscriber
// has a one slot buffer; a slow subscriber loses the older value, never the
// newest. With replay enabled a new subscriber first receives the latest value.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	replay bool
	latest T
	has    bool
	closed bool
}

// NewBroadcaster creates a broadcaster. replay caches the latest value for late subscribers.
func NewBroadcaster[T any](replay bool) *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[chan T]struct{}), replay: replay}
}

// Subscribe returns a channel of values and a function that ends the subscription.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.replay && b.has {
		ch <- b.latest
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers v to every subscriber without blocking.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.replay {
		b.latest, b.has = v, true
	}
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			// drop the oldest
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

// Latest returns the cached value when replay is enabled.
func (b *Broadcaster[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.has
}

// Close ends every subscription.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
