// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codegod100/sqlworker/wire"
)

// DefaultGenerateInterval is the firing cadence of the synthetic generator.
const DefaultGenerateInterval = 15 * time.Second

// Generator periodically synthesizes an entry through the normal
// insert+notify path. The next firing time is persisted as a single-shot
// alarm in the record store and re-armed after each firing, so a firing
// that was due while the process was down is made up exactly once on the
// next start.
type Generator struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	startMu sync.Mutex // serializes the startup catch-up check

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGenerator builds a generator over svc. interval <= 0 selects the
// default.
func NewGenerator(svc *Service, interval time.Duration, logger *slog.Logger) *Generator {
	if interval <= 0 {
		interval = DefaultGenerateInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		svc:      svc,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start checks the persisted alarm, performs at most one catch-up firing
// for an alarm that came due while the process was down, then arms the
// next firing. The whole check runs inside an exclusive section so only
// one starter performs the catch-up.
func (g *Generator) Start(ctx context.Context) error {
	g.startMu.Lock()
	defer g.startMu.Unlock()

	g.mu.Lock()
	if g.done != nil {
		g.mu.Unlock()
		return nil // already running
	}
	runCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})
	g.mu.Unlock()

	at, ok, err := g.svc.store.GetAlarm(ctx)
	if err != nil {
		g.stop()
		return fmt.Errorf("read generator alarm: %w", err)
	}
	if ok && !at.After(g.now()) {
		// A firing was due while we were down. Make it up exactly once
		// before re-arming.
		g.fire(ctx)
	}

	if err := g.arm(ctx, runCtx); err != nil {
		g.stop()
		return err
	}
	return nil
}

// Stop cancels the pending firing. The persisted alarm is left in place so
// a later Start can catch up. Safe to call multiple times.
func (g *Generator) Stop() {
	g.stop()
}

func (g *Generator) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.done != nil {
		close(g.done)
		g.done = nil
	}
}

// arm persists the next firing time and schedules the in-process timer.
func (g *Generator) arm(ctx context.Context, runCtx context.Context) error {
	next := g.now().Add(g.interval)
	if err := g.svc.store.SetAlarm(ctx, next); err != nil {
		return fmt.Errorf("arm generator alarm: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done == nil {
		return nil // stopped while arming
	}
	g.timer = time.AfterFunc(g.interval, func() {
		select {
		case <-runCtx.Done():
			return
		default:
		}
		g.fire(runCtx)
		if err := g.arm(runCtx, runCtx); err != nil {
			g.logger.Error("failed to re-arm generator", "error", err)
		}
	})
	return nil
}

// fire synthesizes one entry through the normal insert+notify path.
// Failures are logged; the generator keeps its cadence.
func (g *Generator) fire(ctx context.Context) {
	at := g.now().UTC()
	entry, err := g.svc.SendEntry(ctx, &wire.SendEntryParams{
		Title:   "Synthetic entry",
		Content: fmt.Sprintf("generated at %s", at.Format(time.RFC3339)),
	})
	if err != nil {
		g.logger.Error("synthetic generation failed", "error", err)
		return
	}
	g.logger.Debug("synthetic entry generated", "entry_id", entry.ID)
}
