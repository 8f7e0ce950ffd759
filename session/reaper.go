// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/webcli/lib/clock"
)

// ReaperConfig configures a Reaper.
type ReaperConfig struct {
	Registry *Registry

	// IdleTimeout is how long a session may go without activity.
	// Zero disables eviction (the reaper still runs and can be
	// enabled later with SetIdleTimeout).
	IdleTimeout time.Duration

	// Interval is the scan period. Defaults to one minute.
	Interval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Reaper periodically evicts idle sessions from a Registry.
type Reaper struct {
	registry    *Registry
	interval    time.Duration
	idleTimeout atomic.Int64
	clock       clock.Clock
	logger      *slog.Logger
}

// NewReaper returns a Reaper. Panics if Registry is nil.
func NewReaper(config ReaperConfig) *Reaper {
	if config.Registry == nil {
		panic("session.Reaper: Registry is required")
	}
	interval := config.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reaper := &Reaper{
		registry: config.Registry,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
	reaper.idleTimeout.Store(int64(config.IdleTimeout))
	return reaper
}

// SetIdleTimeout changes the timeout used by subsequent sweeps.
func (r *Reaper) SetIdleTimeout(timeout time.Duration) {
	previous := time.Duration(r.idleTimeout.Swap(int64(timeout)))
	if previous != timeout {
		r.logger.Info("session idle timeout changed", "previous", previous, "idle_timeout", timeout)
	}
}

// IdleTimeout returns the current timeout.
func (r *Reaper) IdleTimeout() time.Duration {
	return time.Duration(r.idleTimeout.Load())
}

// Sweep evicts idle sessions once and returns how many were removed.
func (r *Reaper) Sweep() int {
	timeout := r.IdleTimeout()
	if timeout <= 0 {
		return 0
	}
	evicted := r.registry.EvictIdle(timeout)
	for _, id := range evicted {
		r.logger.Info("idle session evicted", "session_id", id, "idle_timeout", timeout)
	}
	return len(evicted)
}

// Run sweeps every Interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}
