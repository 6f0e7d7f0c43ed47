// Package refresh runs feed synchronisation cycles: one at a time, either on
// demand or on a fixed interval.
package refresh

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusy is returned when a refresh is requested while another is running.
var ErrBusy = errors.New("refresh already in progress")

// Gate is a process-wide single-slot try-lock. It never blocks.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire takes the slot if it is free and reports whether it did.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the slot.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// Runner performs one synchronisation cycle.
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// Refresher guards a Runner with a Gate.
type Refresher struct {
	gate    *Gate
	runner  Runner
	metrics *Metrics
}

// NewRefresher creates a refresher. metrics may be nil.
func NewRefresher(gate *Gate, runner Runner, metrics *Metrics) *Refresher {
	return &Refresher{gate: gate, runner: runner, metrics: metrics}
}

// Refresh runs a cycle unless one is already in flight, in which case it
// returns ErrBusy immediately.
func (r *Refresher) Refresh(ctx context.Context) (Summary, error) {
	if !r.gate.TryAcquire() {
		r.metrics.observeRun("busy", Summary{})
		return Summary{}, ErrBusy
	}
	defer r.gate.Release()

	sum, err := r.runner.Run(ctx)
	if err != nil {
		r.metrics.observeRun("error", sum)
		return sum, err
	}
	r.metrics.observeRun("ok", sum)
	return sum, nil
}
