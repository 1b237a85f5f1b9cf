package bus

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Bus is an in-process publish/subscribe event bus. Subscribers filter by
// kind prefix and, optionally, by event key.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	dropped atomic.Uint64
}

type subscription struct {
	namespace string
	key       string
	ch        chan Event
	missed    atomic.Uint64
}

func (s *subscription) matches(evt Event) bool {
	return strings.HasPrefix(evt.Kind, s.namespace) && (s.key == "" || s.key == evt.Key)
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish delivers evt to every matching subscriber without blocking. A
// subscriber whose buffer is full misses the event; see Dropped.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.matches(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.missed.Add(1)
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
// The channel is never closed.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, "", bufSize)
}

// SubscribeKey is Subscribe restricted to events whose Key equals key.
func (b *Bus) SubscribeKey(namespace, key string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, key, bufSize)
}

func (b *Bus) subscribe(namespace, key string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, key: key, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Missed returns how many events the subscription behind ch lost to a full
// buffer. It is 0 for an unknown or unsubscribed channel.
func (b *Bus) Missed(ch <-chan Event) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if (<-chan Event)(sub.ch) == ch {
			return sub.missed.Load()
		}
	}
	return 0
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
