package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/store"
)

// Sweeper purges refresh token records past their expiry, revoked or
// not. Each tick is isolated: a failing run is logged and the next tick
// tries again.
type Sweeper struct {
	tokens   store.RefreshTokenStore
	interval time.Duration
}

func NewSweeper(tokens store.RefreshTokenStore, interval time.Duration) *Sweeper {
	return &Sweeper{tokens: tokens, interval: interval}
}

// Start runs the sweep loop in its own goroutine until done is closed.
func (s *Sweeper) Start(done chan struct{}) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(context.Background())
			case <-done:
				return
			}
		}
	}()
}

// RunOnce deletes everything currently expired. A run that finds nothing
// is a silent success.
func (s *Sweeper) RunOnce(ctx context.Context) {
	deleted, err := s.tokens.DeleteExpired(ctx, time.Now())
	if err != nil {
		slog.Error("refresh token sweep failed", "error", err.Error())
		return
	}
	if deleted > 0 {
		slog.Info("refresh token sweep completed", "deleted", deleted)
	}
}
