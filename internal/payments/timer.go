package payments

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer periodically sweeps pending operations and expires those past the
// payment window. Because the sweep reads the registry each tick, invoices
// that were pending before a restart are picked up automatically.
type Timer struct {
	engine  *Engine
	logger  *slog.Logger
	stop    chan struct{}
	running atomic.Bool
}

// NewTimer creates an invoice expiry timer.
func NewTimer(engine *Engine, logger *slog.Logger) *Timer {
	return &Timer{
		engine: engine,
		logger: logger.With("component", "payments_timer"),
		stop:   make(chan struct{}),
	}
}

// Running reports whether the sweep loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.engine.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeSweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in expiry sweep", "panic", fmt.Sprint(r))
		}
	}()
	t.sweep(ctx)
}

func (t *Timer) sweep(ctx context.Context) {
	pending, err := t.engine.registry.ListPending(ctx)
	if err != nil {
		t.logger.Warn("failed to list pending invoices", "error", err)
		return
	}

	pendingInvoices.Set(float64(len(pending)))

	now := time.Now()
	expired := 0
	for _, op := range pending {
		if now.Before(op.CreatedAt.Add(t.engine.cfg.Window)) {
			continue
		}
		t.engine.expireDue(ctx, op)
		expired++
	}

	if expired > 0 {
		t.logger.Info("expiry sweep complete", "due", expired, "pending", len(pending))
	}
}
