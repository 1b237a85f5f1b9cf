package notify

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/provider/providertest"
	"github.com/matheus3301/mailmirror/internal/store"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"go.uber.org/zap"
)

type harness struct {
	db     *store.DB
	fake   *providertest.Fake
	bus    *bus.Bus
	engine *intsync.Engine
	hub    *Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := providertest.New()
	b := bus.New()
	engine := intsync.NewEngine(db, fake, b, zap.NewNop(), intsync.Options{})
	hub := NewHub(engine, b, zap.NewNop())
	t.Cleanup(hub.Close)
	return &harness{db: db, fake: fake, bus: b, engine: engine, hub: hub}
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func msgAt(id string, minutes int) provider.Message {
	return provider.Message{ID: id, Subject: "s", Body: "b", SentAt: t0.Add(time.Duration(minutes) * time.Minute)}
}

func next(t *testing.T, sub *Subscription) Update {
	t.Helper()
	select {
	case u, ok := <-sub.Updates():
		if !ok {
			t.Fatal("updates closed")
		}
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for update")
	}
	return Update{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func ids(msgs []store.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ExternalMessageID
	}
	return out
}

func TestSubscribeUnknownHandle(t *testing.T) {
	h := newHarness(t)
	_, err := h.hub.Subscribe(context.Background(), "ghost")
	if !errors.Is(err, intsync.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if h.hub.Viewers() != 0 || h.bus.Subscribers() != 0 {
		t.Errorf("leaked viewers=%d bus subs=%d", h.hub.Viewers(), h.bus.Subscribers())
	}
}

func TestSubscribeOriginOnlyStreamsEmptyList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.db.UpsertOrigin(ctx, &store.Origin{Handle: "h", ExternalThreadID: "T"}); err != nil {
		t.Fatal(err)
	}
	sub, err := h.hub.Subscribe(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	u := next(t, sub)
	if len(u.Messages) != 0 || u.Err != nil {
		t.Errorf("initial update = %+v", u)
	}
	if sub.State() != Streaming {
		t.Errorf("state = %s, want streaming", sub.State())
	}
}

func TestSubscribeReceivesSortedUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.db.UpsertOrigin(ctx, &store.Origin{Handle: "h", ExternalThreadID: "T"}); err != nil {
		t.Fatal(err)
	}
	h.fake.Add("T", msgAt("m2", 5), msgAt("m1", 0))
	if _, err := h.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}

	sub, err := h.hub.Subscribe(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	first := next(t, sub)
	if got := ids(first.Messages); len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("initial = %v, want [m1 m2]", got)
	}

	// A message sent earlier than everything mirrored still lands in order.
	h.fake.Add("T", msgAt("m0", -10), msgAt("m3", 10))
	if _, err := h.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	u := next(t, sub)
	want := []string{"m0", "m1", "m2", "m3"}
	got := ids(u.Messages)
	if len(got) != len(want) {
		t.Fatalf("update = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("update = %v, want %v", got, want)
		}
	}
}

func TestEraseEmitsEmptyList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.db.UpsertOrigin(ctx, &store.Origin{Handle: "h", ExternalThreadID: "T"}); err != nil {
		t.Fatal(err)
	}
	h.fake.Add("T", msgAt("m1", 0))
	if _, err := h.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	sub, err := h.hub.Subscribe(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	next(t, sub)

	if _, err := h.engine.Erase(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	if u := next(t, sub); len(u.Messages) != 0 {
		t.Errorf("after erase = %v, want empty", ids(u.Messages))
	}
}

func TestOneFeedPerThread(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, handle := range []string{"a", "b"} {
		if err := h.db.UpsertOrigin(ctx, &store.Origin{Handle: handle}); err != nil {
			t.Fatal(err)
		}
	}

	var subs []*Subscription
	for _, handle := range []string{"a", "a", "a", "b"} {
		sub, err := h.hub.Subscribe(ctx, handle)
		if err != nil {
			t.Fatal(err)
		}
		subs = append(subs, sub)
	}
	if h.hub.Viewers() != 4 || h.hub.Threads() != 2 {
		t.Errorf("viewers=%d threads=%d, want 4 and 2", h.hub.Viewers(), h.hub.Threads())
	}
	if h.bus.Subscribers() != 2 {
		t.Errorf("bus subscribers = %d, want 2", h.bus.Subscribers())
	}

	for _, s := range subs {
		s.Close()
		s.Close()
	}
	if h.hub.Viewers() != 0 || h.hub.Threads() != 0 {
		t.Errorf("viewers=%d threads=%d after close", h.hub.Viewers(), h.hub.Threads())
	}
	waitFor(t, "bus listeners released", func() bool { return h.bus.Subscribers() == 0 })
}

func TestContextCancelClosesSubscription(t *testing.T) {
	h := newHarness(t)
	if err := h.db.UpsertOrigin(context.Background(), &store.Origin{Handle: "h"}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.hub.Subscribe(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	if sub.State() != Closed {
		t.Errorf("state = %s, want closed", sub.State())
	}
	waitFor(t, "bus listener released", func() bool { return h.bus.Subscribers() == 0 })
}

type flakySource struct {
	mu   gosync.Mutex
	fail error
	msgs []store.Message
}

func (s *flakySource) Exists(context.Context, string) (bool, error) { return true, nil }

func (s *flakySource) Snapshot(context.Context, string) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return append([]store.Message(nil), s.msgs...), nil
}

func TestStoreErrorClosesOnlyThatThread(t *testing.T) {
	b := bus.New()
	src := &flakySource{msgs: []store.Message{{ExternalMessageID: "m1"}}}
	hub := NewHub(src, b, zap.NewNop())
	defer hub.Close()
	ctx := context.Background()

	broken, err := hub.Subscribe(ctx, "broken")
	if err != nil {
		t.Fatal(err)
	}
	healthy, err := hub.Subscribe(ctx, "healthy")
	if err != nil {
		t.Fatal(err)
	}
	next(t, broken)
	next(t, healthy)

	src.mu.Lock()
	src.fail = errors.New("disk I/O error")
	src.mu.Unlock()
	b.Publish(bus.ThreadChanged(bus.ThreadChange{Handle: "broken", Inserted: 1}))

	u := next(t, broken)
	if u.Err == nil {
		t.Fatal("expected an error update")
	}
	select {
	case <-broken.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("broken subscription not closed")
	}
	if healthy.State() != Streaming {
		t.Errorf("healthy state = %s, want streaming", healthy.State())
	}
}

func TestSlowViewerGetsLatest(t *testing.T) {
	b := bus.New()
	src := &flakySource{}
	hub := NewHub(src, b, zap.NewNop())
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "h")
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		src.mu.Lock()
		src.msgs = append(src.msgs, store.Message{ID: int64(i)})
		src.mu.Unlock()
		b.Publish(bus.ThreadChanged(bus.ThreadChange{Handle: "h", Inserted: 1}))
	}
	waitFor(t, "latest update", func() bool {
		select {
		case u := <-sub.Updates():
			return len(u.Messages) == 3
		default:
			return false
		}
	})
}
