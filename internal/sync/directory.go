package sync

import (
	"context"
	"slices"
	"strings"
	gosync "sync"

	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many threads a directory-wide operation
// talks to the provider about at once.
const DefaultConcurrency = 10

// Thread is one entry of the thread directory.
type Thread struct {
	Handle           string
	ExternalThreadID string
	Subject          string
	Counterpart      string
	LastMessageAt    int64
	MessageCount     int
	UnreadCount      int
	HasTask          bool
	// Synced is how many messages the listing's own sync pass added.
	Synced int
}

// SweepResult summarises a sync pass over every known thread.
type SweepResult struct {
	Threads int
	Synced  int
	Failed  int
}

// Updates lists the handles whose provider thread has messages not yet mirrored.
type Updates struct {
	Handles []string
	Total   int
}

// Directory answers questions about every locally-known thread at once.
// Per-thread failures are logged and never fail the whole operation.
type Directory struct {
	db          *store.DB
	coordinator *Coordinator
	resolver    *Resolver
	provider    provider.Provider
	logger      *zap.Logger
	concurrency int
}

// NewDirectory creates a directory. concurrency <= 0 means DefaultConcurrency.
func NewDirectory(db *store.DB, c *Coordinator, r *Resolver, p provider.Provider, logger *zap.Logger, concurrency int) *Directory {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Directory{db: db, coordinator: c, resolver: r, provider: p, logger: logger, concurrency: concurrency}
}

// SyncAll runs one sync pass per known thread with bounded concurrency.
func (d *Directory) SyncAll(ctx context.Context) (SweepResult, error) {
	handles, err := d.db.Handles(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	synced, failed := d.syncHandles(ctx, handles)
	res := SweepResult{Threads: len(handles), Failed: len(failed)}
	for _, n := range synced {
		res.Synced += n
	}
	return res, nil
}

func (d *Directory) syncHandles(ctx context.Context, handles []string) (map[string]int, map[string]bool) {
	var (
		mu     gosync.Mutex
		synced = make(map[string]int, len(handles))
		failed = make(map[string]bool)
	)
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, h := range handles {
		g.Go(func() error {
			res, err := d.coordinator.Sync(ctx, h)
			mu.Lock()
			defer mu.Unlock()
			// A failed pass may still have committed earlier chunks.
			synced[h] = res.Synced
			if err != nil {
				failed[h] = true
			}
			return nil
		})
	}
	_ = g.Wait()
	return synced, failed
}

// ListThreads syncs every known thread, then returns the directory sorted by
// last message time, newest first. A thread whose sync or unread lookup
// fails reports zero unread.
func (d *Directory) ListThreads(ctx context.Context) ([]Thread, error) {
	handles, err := d.db.Handles(ctx)
	if err != nil {
		return nil, err
	}
	synced, failed := d.syncHandles(ctx, handles)

	sums, err := d.db.ThreadSummaries(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := d.db.HandlesWithTasks(ctx)
	if err != nil {
		return nil, err
	}

	threads := make([]Thread, len(sums))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, s := range sums {
		threads[i] = Thread{
			Handle:           s.Handle,
			ExternalThreadID: s.ExternalThreadID,
			Subject:          s.Subject,
			Counterpart:      s.Sender,
			LastMessageAt:    s.LastMessageAt,
			MessageCount:     s.MessageCount,
			HasTask:          tasks[s.Handle],
			Synced:           synced[s.Handle],
		}
		if failed[s.Handle] || s.ExternalThreadID == "" {
			continue
		}
		g.Go(func() error {
			n, err := d.provider.ThreadUnreadCount(ctx, s.ExternalThreadID)
			if err != nil {
				d.logger.Warn("unread count failed",
					zap.String("handle", s.Handle), zap.String("thread_id", s.ExternalThreadID), zap.Error(err))
				return nil
			}
			threads[i].UnreadCount = n
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(threads, func(a, b Thread) int {
		switch {
		case a.LastMessageAt > b.LastMessageAt:
			return -1
		case a.LastMessageAt < b.LastMessageAt:
			return 1
		}
		return strings.Compare(a.Handle, b.Handle)
	})
	return threads, nil
}

// CheckUpdates reports which known threads have provider messages that are
// not mirrored yet, without writing anything.
func (d *Directory) CheckUpdates(ctx context.Context) (Updates, error) {
	handles, err := d.db.Handles(ctx)
	if err != nil {
		return Updates{}, err
	}
	var (
		mu    gosync.Mutex
		found []string
	)
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, h := range handles {
		g.Go(func() error {
			if d.hasUpdates(ctx, h) {
				mu.Lock()
				found = append(found, h)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(found)
	return Updates{Handles: found, Total: len(handles)}, nil
}

func (d *Directory) hasUpdates(ctx context.Context, handle string) bool {
	threadID, err := d.resolver.Resolve(ctx, handle)
	if err != nil {
		return false
	}
	fetched, err := d.provider.FetchThread(ctx, threadID)
	if err != nil {
		d.logger.Warn("update check failed",
			zap.String("handle", handle), zap.String("thread_id", threadID), zap.Error(err))
		return false
	}
	existing, err := d.db.ExternalMessageIDs(ctx, handle)
	if err != nil {
		d.logger.Warn("update check failed", zap.String("handle", handle), zap.Error(err))
		return false
	}
	return len(Dedupe(fetched, existing)) > 0
}
