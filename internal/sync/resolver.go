package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/mailmirror/internal/store"
)

// Resolver maps a local thread handle to its external thread id. It never
// guesses: the id comes from the handle's origin or from a message already
// mirrored under the handle.
type Resolver struct {
	db *store.DB
}

// NewResolver creates a resolver over the local store.
func NewResolver(db *store.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve returns the external thread id of handle or ErrUnresolvedThread.
func (r *Resolver) Resolve(ctx context.Context, handle string) (string, error) {
	id, _, err := r.lookup(ctx, handle)
	return id, err
}

// lookup also reports whether the id came from the origin record.
func (r *Resolver) lookup(ctx context.Context, handle string) (string, bool, error) {
	origin, err := r.db.GetOrigin(ctx, handle)
	if err != nil {
		return "", false, err
	}
	if origin != nil && origin.ExternalThreadID != "" {
		return origin.ExternalThreadID, true, nil
	}
	id, err := r.db.FirstThreadID(ctx, handle)
	if err != nil {
		return "", false, err
	}
	if id == "" {
		return "", false, fmt.Errorf("%w: %s", ErrUnresolvedThread, handle)
	}
	return id, false, nil
}
