package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/mailmirror/internal/provider"
	"go.uber.org/zap"
)

// ReadState clears the provider's unread flag for whole threads.
type ReadState struct {
	resolver *Resolver
	provider provider.Provider
	logger   *zap.Logger
}

// NewReadState creates a read state manager.
func NewReadState(r *Resolver, p provider.Provider, logger *zap.Logger) *ReadState {
	return &ReadState{resolver: r, provider: p, logger: logger}
}

// MarkThreadRead marks every provider message of the handle's thread as
// read. Marking an already-read thread succeeds. Fails with ErrNoThreadID
// when the handle cannot be resolved.
func (s *ReadState) MarkThreadRead(ctx context.Context, handle string) error {
	threadID, err := s.resolver.Resolve(ctx, handle)
	if errors.Is(err, ErrUnresolvedThread) {
		return fmt.Errorf("%w: %s", ErrNoThreadID, handle)
	}
	if err != nil {
		return err
	}
	if err := s.provider.SetThreadRead(ctx, threadID); err != nil {
		return fmt.Errorf("mark thread %s read: %w", threadID, err)
	}
	s.logger.Debug("thread marked read", zap.String("handle", handle), zap.String("thread_id", threadID))
	return nil
}
