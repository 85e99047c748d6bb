// Package worker runs the background timers: the GC sweep and the heartbeat.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Sweeper is the engine surface the GC worker drives.
type Sweeper interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
	CleanupExpiredChannelMessages(ctx context.Context) (int64, error)
}

// GCResult reports one sweep.
type GCResult struct {
	Sessions int64
	Messages int64
	// Skipped is set when a previous sweep was still running.
	Skipped bool
}

// GC sweeps expired sessions and messages on a fixed interval.
// Sweeps never overlap; a tick that lands on a running sweep is dropped.
type GC struct {
	sweeper  Sweeper
	interval time.Duration
	running  atomic.Bool
}

// NewGC creates a GC worker.
func NewGC(sweeper Sweeper, interval time.Duration) *GC {
	return &GC{sweeper: sweeper, interval: interval}
}

// Start runs the worker in a goroutine until ctx is done.
func (g *GC) Start(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("GC worker started", "interval", g.interval)

		for {
			select {
			case <-ticker.C:
				g.RunOnce(ctx)
			case <-ctx.Done():
				slog.Info("GC worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// RunOnce performs a single sweep. Failures are logged, never returned:
// one failed sweep must not stop the next one.
func (g *GC) RunOnce(ctx context.Context) GCResult {
	if !g.running.CompareAndSwap(false, true) {
		slog.Debug("GC worker: previous sweep still running, skipping")
		return GCResult{Skipped: true}
	}
	defer g.running.Store(false)

	var res GCResult
	var err error

	res.Sessions, err = g.sweeper.CleanupExpiredSessions(ctx)
	if err != nil {
		slog.Error("GC worker failed to sweep expired sessions", "error", err)
	} else if res.Sessions > 0 {
		slog.Info("GC worker removed expired sessions", "count", res.Sessions)
	}

	res.Messages, err = g.sweeper.CleanupExpiredChannelMessages(ctx)
	if err != nil {
		slog.Error("GC worker failed to prune expired messages", "error", err)
	} else if res.Messages > 0 {
		slog.Info("GC worker pruned expired messages", "count", res.Messages)
	}

	return res
}
