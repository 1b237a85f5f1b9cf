package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/provider/providertest"
	"github.com/matheus3301/mailmirror/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fixture struct {
	db     *store.DB
	fake   *providertest.Fake
	bus    *bus.Bus
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	fake := providertest.New()
	b := bus.New()
	return &fixture{
		db:     db,
		fake:   fake,
		bus:    b,
		engine: NewEngine(db, fake, b, zap.NewNop(), Options{}),
	}
}

// seed registers handle with an origin pointing at threadID.
func (f *fixture) seed(t *testing.T, handle, threadID string) {
	t.Helper()
	if err := f.db.UpsertOrigin(context.Background(), &store.Origin{Handle: handle, ExternalThreadID: threadID}); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) mirrored(t *testing.T, handle string) []string {
	t.Helper()
	msgs, err := f.db.ListMessages(context.Background(), handle)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ExternalMessageID
	}
	return ids
}

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func pm(id string, minutes int) provider.Message {
	return provider.Message{
		ID:      id,
		Subject: "Sponsorship",
		Body:    "body of " + id,
		From:    "brand@example.com",
		To:      "creator@example.com",
		SentAt:  base.Add(time.Duration(minutes) * time.Minute),
		Unread:  true,
	}
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Resolve(ctx, "nobody"); !errors.Is(err, ErrUnresolvedThread) {
		t.Errorf("err = %v, want ErrUnresolvedThread", err)
	}

	// Origin without an id falls back to mirrored messages.
	if err := f.db.UpsertOrigin(ctx, &store.Origin{Handle: "h", Subject: "hi"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Resolve(ctx, "h"); !errors.Is(err, ErrUnresolvedThread) {
		t.Errorf("err = %v, want ErrUnresolvedThread", err)
	}
	if _, err := f.db.InsertMessages(ctx, []*store.Message{{Handle: "h", ExternalMessageID: "m1", ExternalThreadID: "from-msg"}}); err != nil {
		t.Fatal(err)
	}
	id, err := f.engine.Resolve(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if id != "from-msg" {
		t.Errorf("id = %q, want from-msg", id)
	}

	// The origin wins once it carries an id.
	f.seed(t, "h2", "from-origin")
	if _, err := f.db.InsertMessages(ctx, []*store.Message{{Handle: "h2", ExternalMessageID: "m1", ExternalThreadID: "other"}}); err != nil {
		t.Fatal(err)
	}
	id, err = f.engine.Resolve(ctx, "h2")
	if err != nil {
		t.Fatal(err)
	}
	if id != "from-origin" {
		t.Errorf("id = %q, want from-origin", id)
	}
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name     string
		fetched  []provider.Message
		existing []string
		want     []string
	}{
		{"all new", []provider.Message{pm("a", 0), pm("b", 1)}, nil, []string{"a", "b"}},
		{"skips existing", []provider.Message{pm("a", 0), pm("b", 1)}, []string{"a"}, []string{"b"}},
		{"nothing new", []provider.Message{pm("a", 0)}, []string{"a"}, []string{}},
		{"resorts", []provider.Message{pm("late", 9), pm("early", 1)}, nil, []string{"early", "late"}},
		{"first duplicate wins", []provider.Message{pm("a", 0), {ID: "a", Body: "second", SentAt: base}}, nil, []string{"a"}},
		{"drops empty ids", []provider.Message{{ID: ""}, pm("a", 0)}, nil, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := make(map[string]struct{})
			for _, id := range tt.existing {
				existing[id] = struct{}{}
			}
			out := Dedupe(tt.fetched, existing)
			got := make([]string, len(out))
			for i, m := range out {
				got[i] = m.ID
			}
			if !equalIDs(got, tt.want) {
				t.Errorf("Dedupe = %v, want %v", got, tt.want)
			}
			if tt.name == "first duplicate wins" && out[0].Body != "body of a" {
				t.Errorf("kept body %q, want the first instance", out[0].Body)
			}
		})
	}
}

func TestSyncUnresolvedIsNoop(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.Sync(context.Background(), "unknown")
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{}) {
		t.Errorf("result = %+v, want zero", res)
	}
}

func TestSyncIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T1")
	f.fake.Add("T1", pm("m1", 0), pm("m2", 5))

	res, err := f.engine.Sync(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 2 || res.Total != 2 {
		t.Fatalf("first sync = %+v, want 2/2", res)
	}
	res, err = f.engine.Sync(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 0 {
		t.Errorf("second sync synced %d, want 0", res.Synced)
	}
	if got := f.mirrored(t, "h"); !equalIDs(got, []string{"m1", "m2"}) {
		t.Errorf("mirrored = %v", got)
	}
}

// A thread gains a message between passes; a pass racing the second one with
// the same provider snapshot must write nothing.
func TestSyncGrowingThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "T1", "T1")
	f.fake.Add("T1", pm("m1", 0), pm("m2", 5))

	res, err := f.engine.Sync(ctx, "T1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 2 {
		t.Fatalf("first sync = %d, want 2", res.Synced)
	}

	f.fake.Add("T1", pm("m3", 10))
	// The racing pass computes its candidates before the second pass writes.
	snapshot, err := f.db.ExternalMessageIDs(ctx, "T1")
	if err != nil {
		t.Fatal(err)
	}
	fetched, err := f.fake.FetchThread(ctx, "T1")
	if err != nil {
		t.Fatal(err)
	}
	stale := Dedupe(fetched, snapshot)
	if len(stale) != 1 || stale[0].ID != "m3" {
		t.Fatalf("stale candidates = %+v", stale)
	}

	res, err = f.engine.Sync(ctx, "T1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 1 {
		t.Errorf("second sync = %d, want 1", res.Synced)
	}

	w := NewWriter(f.db, nil, zap.NewNop())
	n, err := w.Write(ctx, "T1", "T1", stale)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("racing pass wrote %d, want 0", n)
	}
	if got := f.mirrored(t, "T1"); !equalIDs(got, []string{"m1", "m2", "m3"}) {
		t.Errorf("mirrored = %v, want m1 m2 m3", got)
	}
}

func TestConcurrentSyncNoDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	const m = 25
	for i := range m {
		f.fake.Add("T", pm(fmt.Sprintf("m%02d", i), i))
	}

	const n = 8
	var (
		wg    gosync.WaitGroup
		mu    gosync.Mutex
		total int
		errs  []error
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Sync(ctx, "h")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			total += res.Synced
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent sync errors: %v", errs)
	}
	if total != m {
		t.Errorf("sum of synced = %d, want %d", total, m)
	}
	count, err := f.db.CountMessages(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if count != m {
		t.Errorf("mirrored %d messages, want %d", count, m)
	}
}

func TestSyncLargeThreadSpansChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	total := store.MaxBatchSize + 42
	for i := range total {
		f.fake.Add("T", pm(fmt.Sprintf("m%04d", i), i))
	}
	res, err := f.engine.Sync(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != total {
		t.Errorf("synced = %d, want %d", res.Synced, total)
	}
}

func TestSyncStampsCreationTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	f.fake.Add("T", pm("m1", 0))

	if _, err := f.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	msgs, err := f.db.ListMessages(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	m := msgs[0]
	if m.SentAt != base.UnixMilli() {
		t.Errorf("sent_at = %d, want %d", m.SentAt, base.UnixMilli())
	}
	if m.CreatedAt == 0 || m.CreatedAt == m.SentAt {
		t.Errorf("created_at = %d, want a local stamp", m.CreatedAt)
	}
	if m.ExternalThreadID != "T" || m.Sender != "brand@example.com" {
		t.Errorf("message = %+v", m)
	}
}

func TestSyncCachesThreadIDOnOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.db.UpsertOrigin(ctx, &store.Origin{Handle: "h", Subject: "first"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.InsertMessages(ctx, []*store.Message{{Handle: "h", ExternalMessageID: "m0", ExternalThreadID: "T"}}); err != nil {
		t.Fatal(err)
	}
	f.fake.Add("T", pm("m1", 0))

	if _, err := f.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	o, err := f.db.GetOrigin(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if o.ExternalThreadID != "T" {
		t.Errorf("origin thread id = %q, want T", o.ExternalThreadID)
	}
}

func TestSyncProviderFailureLeavesMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	f.fake.Add("T", pm("m1", 0))
	if _, err := f.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}

	f.fake.Fail("T", fmt.Errorf("%w: connection reset", provider.ErrProviderUnavailable))
	res, err := f.engine.Sync(ctx, "h")
	if !errors.Is(err, provider.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	if res.Synced != 0 {
		t.Errorf("synced = %d, want 0", res.Synced)
	}
	if got := f.mirrored(t, "h"); !equalIDs(got, []string{"m1"}) {
		t.Errorf("mirrored = %v", got)
	}
	state, err := f.engine.SyncState(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if state == nil || state.LastError == "" || state.LastSyncedCount != 1 {
		t.Errorf("sync state = %+v", state)
	}
}

func TestSyncThreadNotFoundLeavesMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	f.fake.Add("T", pm("m1", 0), pm("m2", 1))
	if _, err := f.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}

	f.fake.Fail("T", fmt.Errorf("%w: T", provider.ErrThreadNotFound))
	res, err := f.engine.Sync(ctx, "h")
	if !errors.Is(err, provider.ErrThreadNotFound) {
		t.Fatalf("err = %v, want ErrThreadNotFound", err)
	}
	if res.Synced != 0 {
		t.Errorf("synced = %d, want 0", res.Synced)
	}
	if got := f.mirrored(t, "h"); !equalIDs(got, []string{"m1", "m2"}) {
		t.Errorf("mirrored = %v", got)
	}
	o, err := f.db.GetOrigin(ctx, "h")
	if err != nil || o == nil || o.ExternalThreadID != "T" {
		t.Errorf("origin = %+v, %v", o, err)
	}
}

// poison makes any insert of the message id fail inside its transaction.
func poison(t *testing.T, db *store.DB, id string) (undo func()) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf(`CREATE TRIGGER poison BEFORE INSERT ON messages
		WHEN new.external_message_id = '%s' BEGIN SELECT RAISE(ABORT, 'poisoned row'); END`, id))
	if err != nil {
		t.Fatal(err)
	}
	return func() {
		if _, err := db.Exec(`DROP TRIGGER poison`); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSyncStoreErrorResumesNextPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	total := store.MaxBatchSize + 100
	for i := range total {
		f.fake.Add("T", pm(fmt.Sprintf("m%04d", i), i))
	}
	unpoison := poison(t, f.db, fmt.Sprintf("m%04d", store.MaxBatchSize+50))

	res, err := f.engine.Sync(ctx, "h")
	if !errors.Is(err, store.ErrStore) {
		t.Fatalf("err = %v, want ErrStore", err)
	}
	if res.Synced != store.MaxBatchSize {
		t.Errorf("first pass synced = %d, want %d (only the committed chunk)", res.Synced, store.MaxBatchSize)
	}
	if n, _ := f.db.CountMessages(ctx, "h"); n != store.MaxBatchSize {
		t.Fatalf("mirrored %d after failed chunk, want %d", n, store.MaxBatchSize)
	}

	unpoison()
	res, err = f.engine.Sync(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 100 {
		t.Errorf("second pass synced = %d, want 100", res.Synced)
	}
	if n, _ := f.db.CountMessages(ctx, "h"); n != total {
		t.Errorf("mirrored %d, want %d", n, total)
	}
}

func TestSyncAllCountsCommittedChunksOfFailedPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	for i := range store.MaxBatchSize + 10 {
		f.fake.Add("T", pm(fmt.Sprintf("m%04d", i), i))
	}
	poison(t, f.db, fmt.Sprintf("m%04d", store.MaxBatchSize+5))

	res, err := f.engine.SyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Synced != store.MaxBatchSize {
		t.Errorf("sweep = %+v, want 1 failed and %d synced", res, store.MaxBatchSize)
	}
}

func TestSyncPublishesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	changes, unsub := f.bus.Subscribe(bus.KindThreadChanged, 10)
	defer unsub()
	outcomes, unsubOutcomes := f.bus.Subscribe(bus.KindSyncCompleted, 10)
	defer unsubOutcomes()

	f.seed(t, "h", "T")
	f.fake.Add("T", pm("m1", 0), pm("m2", 1))
	if _, err := f.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-changes:
		tc := evt.Payload.(bus.ThreadChange)
		if tc.Handle != "h" || tc.Inserted != 2 {
			t.Errorf("change = %+v", tc)
		}
	case <-time.After(time.Second):
		t.Fatal("no thread change published")
	}
	select {
	case evt := <-outcomes:
		o := evt.Payload.(bus.SyncOutcome)
		if o.Handle != "h" || o.Synced != 2 || o.Err != nil {
			t.Errorf("outcome = %+v", o)
		}
	case <-time.After(time.Second):
		t.Fatal("no sync outcome published")
	}

	// A pass with nothing new changes nothing.
	if _, err := f.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-changes:
		t.Errorf("unexpected change event %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEraseThenResync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	f.fake.Add("T", pm("m1", 0), pm("m2", 1), pm("m3", 2))
	if _, err := f.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	before := f.mirrored(t, "h")

	n, err := f.engine.Erase(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("erased = %d, want 3", n)
	}
	if got := f.mirrored(t, "h"); len(got) != 0 {
		t.Errorf("mirror after erase = %v", got)
	}

	res, err := f.engine.Sync(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 3 {
		t.Errorf("resync = %d, want 3", res.Synced)
	}
	if after := f.mirrored(t, "h"); !equalIDs(after, before) {
		t.Errorf("after resync = %v, want %v", after, before)
	}
}

func TestEraseEmptyThread(t *testing.T) {
	f := newFixture(t)
	n, err := f.engine.Erase(context.Background(), "nothing")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("erased = %d, want 0", n)
	}
}

func TestEraseLeavesProviderUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	f.fake.Add("T", pm("m1", 0))
	if _, err := f.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Erase(ctx, "h"); err != nil {
		t.Fatal(err)
	}
	msgs, err := f.fake.FetchThread(ctx, "T")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || f.fake.Reads("T") != 0 {
		t.Errorf("provider changed by erase: %d msgs, %d reads", len(msgs), f.fake.Reads("T"))
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.MarkRead(ctx, "unknown"); !errors.Is(err, ErrNoThreadID) {
		t.Errorf("err = %v, want ErrNoThreadID", err)
	}

	f.seed(t, "h", "T")
	f.fake.Add("T", pm("m1", 0), pm("m2", 1))
	for range 2 {
		if err := f.engine.MarkRead(ctx, "h"); err != nil {
			t.Fatalf("MarkRead: %v", err)
		}
	}
	n, err := f.fake.ThreadUnreadCount(ctx, "T")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("unread = %d, want 0", n)
	}
}

func TestListThreadsDegradesPerThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Both threads already have one mirrored message.
	for _, h := range []string{"a", "b"} {
		thread := "T" + h
		if _, err := f.db.InsertMessages(ctx, []*store.Message{{
			Handle: h, ExternalMessageID: h + "0", ExternalThreadID: thread, SentAt: base.UnixMilli(),
		}}); err != nil {
			t.Fatal(err)
		}
	}
	f.fake.Add("Ta", pm("a0", 0), pm("a1", 30))
	f.fake.Add("Tb", pm("b0", 0), pm("b1", 60), pm("b2", 61))
	f.fake.Fail("Ta", fmt.Errorf("%w: quota", provider.ErrProviderUnavailable))

	if _, err := f.engine.LinkTask(ctx, "b", "send contract"); err != nil {
		t.Fatal(err)
	}

	threads, err := f.engine.ListThreads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 2 {
		t.Fatalf("got %d threads, want 2", len(threads))
	}
	b, a := threads[0], threads[1]
	if b.Handle != "b" || a.Handle != "a" {
		t.Fatalf("order = %s,%s want b,a", threads[0].Handle, threads[1].Handle)
	}
	if b.Synced != 2 || b.UnreadCount != 3 || !b.HasTask || b.MessageCount != 3 {
		t.Errorf("b = %+v", b)
	}
	if a.Synced != 0 || a.UnreadCount != 0 || a.HasTask || a.MessageCount != 1 {
		t.Errorf("a = %+v", a)
	}
}

func TestSyncAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := range 15 {
		h := fmt.Sprintf("h%02d", i)
		thread := "T" + h
		if _, err := f.db.InsertMessages(ctx, []*store.Message{{Handle: h, ExternalMessageID: "seed", ExternalThreadID: thread}}); err != nil {
			t.Fatal(err)
		}
		f.fake.Add(thread, pm("new-"+h, i))
	}
	f.fake.Fail("Th03", provider.ErrProviderUnavailable)

	res, err := f.engine.SyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Threads != 15 || res.Synced != 14 || res.Failed != 1 {
		t.Errorf("sweep = %+v, want 15 threads, 14 synced, 1 failed", res)
	}
}

func TestCheckUpdatesDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, h := range []string{"fresh", "stale", "broken"} {
		if _, err := f.db.InsertMessages(ctx, []*store.Message{{Handle: h, ExternalMessageID: "m0", ExternalThreadID: "T" + h}}); err != nil {
			t.Fatal(err)
		}
	}
	f.fake.Add("Tfresh", pm("m0", 0))
	f.fake.Add("Tstale", pm("m0", 0), pm("m1", 1))
	f.fake.Fail("Tbroken", provider.ErrProviderUnavailable)

	up, err := f.engine.CheckUpdates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if up.Total != 3 || !equalIDs(up.Handles, []string{"stale"}) {
		t.Errorf("updates = %+v", up)
	}
	if got := f.mirrored(t, "stale"); len(got) != 1 {
		t.Errorf("check-updates wrote messages: %v", got)
	}
}

func TestMessagesFallsBackToOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Messages(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if err := f.db.UpsertOrigin(ctx, &store.Origin{Handle: "h", Subject: "Collab?", Snippet: "Hi there", Sender: "brand@example.com", ReceivedAt: 42}); err != nil {
		t.Fatal(err)
	}
	msgs, err := f.engine.Messages(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Subject != "Collab?" || msgs[0].Body != "Hi there" || msgs[0].SentAt != 42 {
		t.Errorf("fallback = %+v", msgs)
	}
	ok, err := f.engine.Exists(ctx, "h")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
}

func TestSeedOriginSyncs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.Add("T", pm("m1", 0))

	res, err := f.engine.SeedOrigin(ctx, store.Origin{Handle: "h", ExternalThreadID: "T"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 1 {
		t.Errorf("synced = %d, want 1", res.Synced)
	}

	// Seeding without a thread id is allowed and syncs nothing.
	res, err = f.engine.SeedOrigin(ctx, store.Origin{Handle: "later"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 0 {
		t.Errorf("synced = %d, want 0", res.Synced)
	}
}

func TestLinkTaskUnknownHandle(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.LinkTask(context.Background(), "ghost", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "h", "T")
	msg := pm("m1", 0)
	msg.Body = "the invoice is attached"
	f.fake.Add("T", msg, pm("m2", 1))
	if _, err := f.engine.Sync(ctx, "h"); err != nil {
		t.Fatal(err)
	}

	results, err := f.engine.Search(ctx, "invoice", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.ExternalMessageID != "m1" {
		t.Errorf("results = %+v", results)
	}
	empty, err := f.engine.Search(ctx, "   ", "", 10)
	if err != nil || empty != nil {
		t.Errorf("blank query = %v, %v", empty, err)
	}
}

func TestSnapshotSorted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows := []*store.Message{
		{Handle: "h", ExternalMessageID: "c", SentAt: 300},
		{Handle: "h", ExternalMessageID: "a", SentAt: 100},
		{Handle: "h", ExternalMessageID: "b", SentAt: 200},
	}
	if _, err := f.db.InsertMessages(ctx, rows); err != nil {
		t.Fatal(err)
	}
	msgs, err := f.engine.Snapshot(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].SentAt < msgs[i-1].SentAt {
			t.Fatalf("snapshot not sorted: %+v", msgs)
		}
	}
}
