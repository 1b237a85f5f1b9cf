package notify

import (
	"sync"

	"github.com/matheus3301/mailmirror/internal/store"
)

// State is the lifecycle of a subscription.
type State int

const (
	Connecting State = iota
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Update is the full, sorted message list of a thread at one point in time.
// Err is set when the list could not be read; the subscription closes after it.
type Update struct {
	Handle   string
	Messages []store.Message
	Err      error
}

// Subscription is one viewer's live view of a thread. Only the latest
// undelivered update is kept: a slow viewer skips intermediate lists.
type Subscription struct {
	hub     *Hub
	handle  string
	updates chan Update
	done    chan struct{}

	mu    sync.Mutex
	state State
}

func newSubscription(h *Hub, handle string) *Subscription {
	return &Subscription{
		hub:     h,
		handle:  handle,
		updates: make(chan Update, 1),
		done:    make(chan struct{}),
		state:   Connecting,
	}
}

// Handle returns the thread handle being watched.
func (s *Subscription) Handle() string { return s.handle }

// Updates delivers message lists. It is closed when the subscription closes.
func (s *Subscription) Updates() <-chan Update { return s.updates }

// Done is closed when the subscription closes.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscription) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Closed {
		s.state = st
	}
}

// Close ends the subscription and releases its share of the thread feed.
// It is safe to call more than once.
func (s *Subscription) Close() {
	if s.finish() {
		s.hub.detach(s)
	}
}

// finish marks the subscription closed; it reports whether this call did it.
func (s *Subscription) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return false
	}
	s.state = Closed
	close(s.done)
	close(s.updates)
	return true
}

func (s *Subscription) deliver(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- u
}
