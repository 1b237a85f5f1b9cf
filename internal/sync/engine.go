// Package sync mirrors external mailbox threads into the local store and
// answers thread-level queries over the mirror.
package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/store"
	"go.uber.org/zap"
)

// Engine is the outward face of the thread synchronization pipeline. Every
// method takes a thread handle (or nothing) and keeps no state between calls.
type Engine struct {
	db          *store.DB
	logger      *zap.Logger
	resolver    *Resolver
	coordinator *Coordinator
	reads       *ReadState
	directory   *Directory
	eraser      *Eraser
}

// Options tunes an Engine.
type Options struct {
	// Concurrency bounds directory-wide provider fan-out.
	Concurrency int
}

// NewEngine wires the pipeline components over one store and provider.
func NewEngine(db *store.DB, p provider.Provider, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := NewResolver(db)
	writer := NewWriter(db, b, logger)
	coordinator := NewCoordinator(db, resolver, p, writer, b, logger)
	return &Engine{
		db:          db,
		logger:      logger,
		resolver:    resolver,
		coordinator: coordinator,
		reads:       NewReadState(resolver, p, logger),
		directory:   NewDirectory(db, coordinator, resolver, p, logger, opts.Concurrency),
		eraser:      NewEraser(db, b, logger),
	}
}

// Sync runs one sync pass for handle.
func (e *Engine) Sync(ctx context.Context, handle string) (Result, error) {
	return e.coordinator.Sync(ctx, handle)
}

// MarkRead clears the unread flag of the handle's provider thread.
func (e *Engine) MarkRead(ctx context.Context, handle string) error {
	return e.reads.MarkThreadRead(ctx, handle)
}

// ListThreads returns the thread directory after a best-effort sync.
func (e *Engine) ListThreads(ctx context.Context) ([]Thread, error) {
	return e.directory.ListThreads(ctx)
}

// SyncAll syncs every known thread.
func (e *Engine) SyncAll(ctx context.Context) (SweepResult, error) {
	return e.directory.SyncAll(ctx)
}

// CheckUpdates reports threads with unmirrored provider messages.
func (e *Engine) CheckUpdates(ctx context.Context) (Updates, error) {
	return e.directory.CheckUpdates(ctx)
}

// Erase deletes the local mirror of handle.
func (e *Engine) Erase(ctx context.Context, handle string) (int, error) {
	return e.eraser.Erase(ctx, handle)
}

// Resolve exposes the handle to external thread id mapping.
func (e *Engine) Resolve(ctx context.Context, handle string) (string, error) {
	return e.resolver.Resolve(ctx, handle)
}

// Exists reports whether handle has a mirrored message or an origin.
func (e *Engine) Exists(ctx context.Context, handle string) (bool, error) {
	n, err := e.db.CountMessages(ctx, handle)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	origin, err := e.db.GetOrigin(ctx, handle)
	if err != nil {
		return false, err
	}
	return origin != nil, nil
}

// Snapshot returns the mirrored messages of handle sorted by sent time.
func (e *Engine) Snapshot(ctx context.Context, handle string) ([]store.Message, error) {
	msgs, err := e.db.ListMessages(ctx, handle)
	if err != nil {
		return nil, err
	}
	SortStored(msgs)
	return msgs, nil
}

// Messages returns the conversation of handle. When nothing is mirrored yet
// the origin stands in as the only message; with neither, ErrNotFound.
func (e *Engine) Messages(ctx context.Context, handle string) ([]store.Message, error) {
	msgs, err := e.Snapshot(ctx, handle)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		return msgs, nil
	}
	origin, err := e.db.GetOrigin(ctx, handle)
	if err != nil {
		return nil, err
	}
	if origin == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return []store.Message{{
		Handle:            handle,
		ExternalMessageID: handle,
		ExternalThreadID:  origin.ExternalThreadID,
		Subject:           origin.Subject,
		Body:              origin.Snippet,
		Sender:            origin.Sender,
		Recipient:         origin.Recipient,
		SentAt:            origin.ReceivedAt,
	}}, nil
}

// Search runs a full-text query over mirrored messages, optionally within one handle.
func (e *Engine) Search(ctx context.Context, query, handle string, limit int) ([]store.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return e.db.SearchMessages(ctx, query, handle, limit)
}

// SeedOrigin registers the originating record of a handle and, when it
// carries a thread id, runs a first sync pass.
func (e *Engine) SeedOrigin(ctx context.Context, o store.Origin) (Result, error) {
	if o.Handle == "" {
		return Result{}, errors.New("seed origin: empty handle")
	}
	if err := e.db.UpsertOrigin(ctx, &o); err != nil {
		return Result{}, err
	}
	return e.coordinator.Sync(ctx, o.Handle)
}

// LinkTask attaches a task to handle. The handle must exist.
func (e *Engine) LinkTask(ctx context.Context, handle, title string) (*store.Task, error) {
	ok, err := e.Exists(ctx, handle)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return e.db.CreateTask(ctx, handle, title)
}

// HasTaskForThread reports whether a task references handle.
func (e *Engine) HasTaskForThread(ctx context.Context, handle string) (bool, error) {
	return e.db.HasTaskForThread(ctx, handle)
}

// SyncState returns the last recorded sync outcome of handle, or nil.
func (e *Engine) SyncState(ctx context.Context, handle string) (*store.SyncState, error) {
	return e.db.GetSyncState(ctx, handle)
}

// SortStored orders stored messages by sent time, then local id.
func SortStored(msgs []store.Message) {
	slices.SortStableFunc(msgs, func(a, b store.Message) int {
		switch {
		case a.SentAt < b.SentAt:
			return -1
		case a.SentAt > b.SentAt:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
