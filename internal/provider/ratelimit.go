package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited throttles every call to an underlying provider so directory
// fan-out stays inside the provider's quota.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that at most perSecond calls (with the given
// burst) reach it. A non-positive rate disables limiting.
func WithRateLimit(p Provider, perSecond float64, burst int) Provider {
	if perSecond <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		next:    p,
		limiter: rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/perSecond)), burst),
	}
}

func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit: %w", ErrProviderUnavailable, err)
	}
	return nil
}

func (r *RateLimited) FetchThread(ctx context.Context, threadID string) ([]Message, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.FetchThread(ctx, threadID)
}

func (r *RateLimited) SetThreadRead(ctx context.Context, threadID string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.SetThreadRead(ctx, threadID)
}

func (r *RateLimited) ThreadUnreadCount(ctx context.Context, threadID string) (int, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.next.ThreadUnreadCount(ctx, threadID)
}
