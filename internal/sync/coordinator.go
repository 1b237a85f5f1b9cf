package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/store"
	"go.uber.org/zap"
)

// Result summarises one sync pass.
type Result struct {
	// Synced is the number of messages this pass created locally.
	Synced int
	// Total is the number of messages the provider reported for the thread.
	Total int
}

// Coordinator runs the resolve, fetch, dedupe, write pipeline for one
// thread. It keeps no state between calls, so any scheduler may drive it.
type Coordinator struct {
	db       *store.DB
	resolver *Resolver
	provider provider.Provider
	writer   *Writer
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewCoordinator wires a coordinator.
func NewCoordinator(db *store.DB, r *Resolver, p provider.Provider, w *Writer, b *bus.Bus, logger *zap.Logger) *Coordinator {
	return &Coordinator{db: db, resolver: r, provider: p, writer: w, bus: b, logger: logger}
}

// Sync mirrors any provider messages of handle not yet stored locally. A
// handle with no known external thread id yields a zero Result and no error.
// Provider and store failures abort only this pass; the local mirror is left
// as it was, apart from chunks already committed.
func (c *Coordinator) Sync(ctx context.Context, handle string) (Result, error) {
	threadID, fromOrigin, err := c.resolver.lookup(ctx, handle)
	if errors.Is(err, ErrUnresolvedThread) {
		c.logger.Debug("sync skipped, thread unresolved", zap.String("handle", handle))
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", handle, err)
	}
	if !fromOrigin {
		c.remember(ctx, handle, threadID)
	}

	res, err := c.pass(ctx, handle, threadID)
	c.record(ctx, handle, threadID, res, err)
	return res, err
}

func (c *Coordinator) pass(ctx context.Context, handle, threadID string) (Result, error) {
	fetched, err := c.provider.FetchThread(ctx, threadID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch thread %s: %w", threadID, err)
	}
	existing, err := c.db.ExternalMessageIDs(ctx, handle)
	if err != nil {
		return Result{Total: len(fetched)}, err
	}
	fresh := Dedupe(fetched, existing)
	n, err := c.writer.Write(ctx, handle, threadID, fresh)
	return Result{Synced: n, Total: len(fetched)}, err
}

// remember caches an id found on a mirrored message onto the origin record.
func (c *Coordinator) remember(ctx context.Context, handle, threadID string) {
	if _, err := c.db.CacheOriginThreadID(ctx, handle, threadID); err != nil {
		c.logger.Warn("failed to cache thread id",
			zap.String("handle", handle), zap.String("thread_id", threadID), zap.Error(err))
	}
}

func (c *Coordinator) record(ctx context.Context, handle, threadID string, res Result, syncErr error) {
	if syncErr != nil {
		c.logger.Warn("sync pass failed",
			zap.String("handle", handle), zap.String("thread_id", threadID), zap.Error(syncErr))
	} else if res.Synced > 0 {
		c.logger.Info("thread synced",
			zap.String("handle", handle), zap.Int("synced", res.Synced), zap.Int("total", res.Total))
	}
	if err := c.db.RecordSync(ctx, handle, res.Synced, syncErr); err != nil {
		c.logger.Warn("failed to record sync state", zap.String("handle", handle), zap.Error(err))
	}
	if c.bus != nil {
		c.bus.Publish(bus.SyncCompleted(bus.SyncOutcome{Handle: handle, Synced: res.Synced, Err: syncErr}))
	}
}
