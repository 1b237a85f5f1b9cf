// Package notify pushes the current message list of a thread to live viewers
// whenever the local mirror of that thread changes.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/store"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"go.uber.org/zap"
)

const snapshotTimeout = 10 * time.Second

// Source reads the local mirror.
type Source interface {
	Exists(ctx context.Context, handle string) (bool, error)
	Snapshot(ctx context.Context, handle string) ([]store.Message, error)
}

// Hub fans thread changes out to viewers. Each thread with at least one
// viewer holds exactly one bus subscription, released with its last viewer.
type Hub struct {
	source Source
	bus    *bus.Bus
	logger *zap.Logger

	mu    sync.Mutex
	feeds map[string]*feed
}

type feed struct {
	handle  string
	viewers map[*Subscription]struct{}
	stop    chan struct{}
	// refresh serializes snapshots so viewers never see an older list after a newer one.
	refresh sync.Mutex
}

// NewHub creates a hub reading from source and listening on b.
func NewHub(source Source, b *bus.Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		source: source,
		bus:    b,
		logger: logger,
		feeds:  make(map[string]*feed),
	}
}

// Subscribe opens a live view of handle. The first update, carrying the
// current list, is available as soon as Subscribe returns. A handle with no
// messages and no origin yields intsync.ErrNotFound. The subscription closes
// when ctx is done, on Close, or after an update carrying a store error.
func (h *Hub) Subscribe(ctx context.Context, handle string) (*Subscription, error) {
	sub := newSubscription(h, handle)

	ok, err := h.source.Exists(ctx, handle)
	if err != nil {
		sub.finish()
		return nil, err
	}
	if !ok {
		sub.finish()
		return nil, fmt.Errorf("%w: %s", intsync.ErrNotFound, handle)
	}

	f := h.attach(sub)
	f.refresh.Lock()
	msgs, err := h.snapshot(ctx, handle)
	if err != nil {
		f.refresh.Unlock()
		sub.Close()
		return nil, err
	}
	sub.deliver(Update{Handle: handle, Messages: msgs})
	sub.setState(Streaming)
	f.refresh.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Viewers returns the number of open subscriptions across all threads.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, f := range h.feeds {
		n += len(f.viewers)
	}
	return n
}

// Threads returns the number of threads with at least one viewer.
func (h *Hub) Threads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// Close ends every open subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	var subs []*Subscription
	for _, f := range h.feeds {
		for s := range f.viewers {
			subs = append(subs, s)
		}
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

func (h *Hub) attach(sub *Subscription) *feed {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[sub.handle]
	if !ok {
		f = &feed{
			handle:  sub.handle,
			viewers: make(map[*Subscription]struct{}),
			stop:    make(chan struct{}),
		}
		// One pending event is enough: every push reads a fresh snapshot,
		// so a change dropped behind a queued one is still covered.
		ch, unsub := h.bus.SubscribeKey(bus.KindThreadChanged, sub.handle, 1)
		h.feeds[sub.handle] = f
		go h.run(f, ch, unsub)
		h.logger.Debug("thread feed opened", zap.String("handle", sub.handle))
	}
	f.viewers[sub] = struct{}{}
	return f
}

func (h *Hub) detach(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[sub.handle]
	if !ok {
		return
	}
	delete(f.viewers, sub)
	if len(f.viewers) == 0 {
		delete(h.feeds, sub.handle)
		close(f.stop)
		h.logger.Debug("thread feed released", zap.String("handle", sub.handle))
	}
}

func (h *Hub) run(f *feed, ch <-chan bus.Event, unsub func()) {
	defer unsub()
	for {
		select {
		case <-f.stop:
			return
		case <-ch:
			h.push(f)
		}
	}
}

// push sends one fresh snapshot to every viewer of f. A store error is
// delivered and closes those viewers; other threads are unaffected.
func (h *Hub) push(f *feed) {
	f.refresh.Lock()
	defer f.refresh.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	msgs, err := h.snapshot(ctx, f.handle)

	h.mu.Lock()
	viewers := make([]*Subscription, 0, len(f.viewers))
	for s := range f.viewers {
		viewers = append(viewers, s)
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("thread snapshot failed", zap.String("handle", f.handle), zap.Error(err))
	}
	for _, s := range viewers {
		s.deliver(Update{Handle: f.handle, Messages: msgs, Err: err})
		if err != nil {
			s.Close()
		}
	}
}

func (h *Hub) snapshot(ctx context.Context, handle string) ([]store.Message, error) {
	msgs, err := h.source.Snapshot(ctx, handle)
	if err != nil {
		return nil, err
	}
	intsync.SortStored(msgs)
	return msgs, nil
}
