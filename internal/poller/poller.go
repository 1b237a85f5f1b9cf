// Package poller drives periodic directory-wide sync passes inside the daemon.
package poller

import (
	"context"
	"time"

	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"go.uber.org/zap"
)

// Sweeper syncs every known thread once.
type Sweeper interface {
	SyncAll(ctx context.Context) (intsync.SweepResult, error)
}

// Poller runs a Sweeper on a fixed interval. A pass that is still running
// when the next tick fires is not doubled up; the tick is skipped.
type Poller struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a poller. A non-positive interval disables it.
func New(s Sweeper, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		sweeper:  s,
		interval: interval,
		logger:   logger,
	}
}

// Start begins polling in the background.
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Info("background polling disabled")
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop stops the poller and waits for a running pass to notice.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	start := time.Now()
	res, err := p.sweeper.SyncAll(ctx)
	if err != nil {
		p.logger.Error("poll sweep failed", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.Int("threads", res.Threads),
		zap.Int("synced", res.Synced),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)),
	}
	if res.Synced > 0 || res.Failed > 0 {
		p.logger.Info("poll sweep", fields...)
	} else {
		p.logger.Debug("poll sweep", fields...)
	}
}
