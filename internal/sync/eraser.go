package sync

import (
	"context"

	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/store"
	"go.uber.org/zap"
)

// Eraser detaches the local mirror of a thread. The provider is never touched,
// so a later sync mirrors the same messages again.
type Eraser struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEraser creates an eraser.
func NewEraser(db *store.DB, b *bus.Bus, logger *zap.Logger) *Eraser {
	return &Eraser{db: db, bus: b, logger: logger}
}

// Erase deletes every mirrored message of handle and returns how many went.
// An empty thread yields 0 and no error.
func (e *Eraser) Erase(ctx context.Context, handle string) (int, error) {
	ids, err := e.db.MessageIDs(ctx, handle)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := e.db.DeleteMessages(ctx, ids)
	if n > 0 {
		e.logger.Info("thread erased", zap.String("handle", handle), zap.Int("deleted", n))
		if e.bus != nil {
			e.bus.Publish(bus.ThreadChanged(bus.ThreadChange{Handle: handle, Deleted: n}))
		}
	}
	return n, err
}
