// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/parley/internal/platform/metrics"
)

// Sweeper is the background janitor for the session table. On a fixed
// schedule it revokes sessions that expired while still flagged active, and
// hard-deletes rows whose expiry fell out of the retention window. Active,
// unexpired sessions are never touched.
type Sweeper struct {
	sessions  SessionRepository
	metrics   metrics.Collector
	log       *slog.Logger
	interval  time.Duration
	retention time.Duration

	now func() time.Time
}

// NewSweeper creates a Sweeper with the standard schedule and retention.
func NewSweeper(sessions SessionRepository, collector metrics.Collector, log *slog.Logger) *Sweeper {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Sweeper{
		sessions:  sessions,
		metrics:   collector,
		log:       log,
		interval:  SweepInterval,
		retention: SessionRetention,
		now:       time.Now,
	}
}

/*
RunOnce executes a single sweep cycle.

Description: Two independent passes. The revocation pass flags
expired-but-active rows with the "expired" reason; the deletion pass removes
rows whose expiry predates the retention cutoff. A failure in one pass does
not stop the other.

Parameters:
  - context: context.Context

Returns:
  - int64: Sessions revoked
  - int64: Sessions deleted
  - error: The first pass error, if any
*/
func (sweeper *Sweeper) RunOnce(context context.Context) (int64, int64, error) {
	var firstErr error

	revoked, err := sweeper.sessions.RevokeExpired(context)
	if err != nil {
		sweeper.log.ErrorContext(context, "session sweep revocation pass failed", "error", err)
		firstErr = err
	}

	cutoff := sweeper.now().Add(-sweeper.retention)
	deleted, err := sweeper.sessions.DeleteOlderThan(context, cutoff)
	if err != nil {
		sweeper.log.ErrorContext(context, "session sweep deletion pass failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	sweeper.metrics.RecordSweep(int(revoked), int(deleted))

	if revoked > 0 || deleted > 0 {
		sweeper.log.InfoContext(context, "session sweep completed",
			"revoked", revoked,
			"deleted", deleted,
		)
	}

	return revoked, deleted, firstErr
}

/*
Run drives RunOnce on the sweep interval until the context is cancelled.

Description: Sweeps once immediately on startup, then on every tick.
Intended to run in its own goroutine for the life of the process.

Parameters:
  - context: context.Context
*/
func (sweeper *Sweeper) Run(context context.Context) {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()

	sweeper.log.InfoContext(context, "session sweeper started", "interval", sweeper.interval)

	if _, _, err := sweeper.RunOnce(context); err != nil {
		sweeper.log.ErrorContext(context, "initial session sweep failed", "error", err)
	}

	for {
		select {
		case <-context.Done():
			sweeper.log.InfoContext(context, "session sweeper stopped")
			return
		case <-ticker.C:
			if _, _, err := sweeper.RunOnce(context); err != nil {
				sweeper.log.ErrorContext(context, "session sweep failed", "error", err)
			}
		}
	}
}
