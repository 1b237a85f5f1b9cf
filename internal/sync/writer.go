package sync

import (
	"context"

	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/store"
	"go.uber.org/zap"
)

// Writer persists deduplicated messages exactly once each.
type Writer struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewWriter creates a batch writer.
func NewWriter(db *store.DB, b *bus.Bus, logger *zap.Logger) *Writer {
	return &Writer{db: db, bus: b, logger: logger}
}

// Write stores msgs under handle in chunks of store.MaxBatchSize. Before
// each chunk is written its ids are checked against the live store, so a
// message another pass wrote in the meantime is dropped; the unique
// (handle, external id) constraint backs this up for the remaining window.
// It returns how many messages this call created. On a store failure the
// count covers the chunks committed before it.
func (w *Writer) Write(ctx context.Context, handle, threadID string, msgs []provider.Message) (int, error) {
	provider.SortMessages(msgs)
	written := 0
	var err error
	for start := 0; start < len(msgs); start += store.MaxBatchSize {
		chunk := msgs[start:min(start+store.MaxBatchSize, len(msgs))]
		var n int
		n, err = w.writeChunk(ctx, handle, threadID, chunk)
		written += n
		if err != nil {
			break
		}
	}
	if written > 0 {
		w.publish(handle, written)
	}
	return written, err
}

func (w *Writer) writeChunk(ctx context.Context, handle, threadID string, chunk []provider.Message) (int, error) {
	ids := make([]string, len(chunk))
	for i, m := range chunk {
		ids[i] = m.ID
	}
	live, err := w.db.ExistingExternalIDs(ctx, handle, ids)
	if err != nil {
		return 0, err
	}

	rows := make([]*store.Message, 0, len(chunk))
	for _, m := range chunk {
		if _, ok := live[m.ID]; ok {
			w.logger.Debug("message appeared during sync, skipping",
				zap.String("handle", handle), zap.String("msg_id", m.ID))
			continue
		}
		rows = append(rows, toStoreMessage(handle, threadID, m))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return w.db.InsertMessages(ctx, rows)
}

func (w *Writer) publish(handle string, inserted int) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(bus.ThreadChanged(bus.ThreadChange{Handle: handle, Inserted: inserted}))
}

func toStoreMessage(handle, threadID string, m provider.Message) *store.Message {
	sm := &store.Message{
		Handle:            handle,
		ExternalMessageID: m.ID,
		ExternalThreadID:  m.ThreadID,
		Subject:           m.Subject,
		Body:              m.Body,
		Sender:            m.From,
		Recipient:         m.To,
	}
	if sm.ExternalThreadID == "" {
		sm.ExternalThreadID = threadID
	}
	if !m.SentAt.IsZero() {
		sm.SentAt = m.SentAt.UnixMilli()
	}
	return sm
}
