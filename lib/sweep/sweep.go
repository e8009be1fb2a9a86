// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

// Package sweep runs named background tasks on a fixed interval.
//
// Each Runner owns one goroutine that calls its task function once per
// interval until the context is cancelled. A tick that returns an
// error is logged and does not stop the runner; the scheduler's
// forward-progress guarantee lives in the tasks themselves, not here.
//
// There is no mid-tick cancellation: a tick that has started runs to
// completion even if the context is cancelled while it executes. Tasks
// are expected to keep individual ticks short.
package sweep

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/roleward/roleward/lib/clock"
)

// Task is one unit of periodic work. The context carries process
// shutdown only; it is the context Run was started with, not a
// per-tick deadline.
type Task func(ctx context.Context) error

// Runner executes a Task on a fixed interval.
type Runner struct {
	name     string
	interval time.Duration
	task     Task
	clock    clock.Clock
	logger   *slog.Logger

	// immediate runs the first tick as soon as Run starts instead of
	// waiting one full interval.
	immediate bool
}

// Config holds the parameters for a Runner. Name, Interval, Task, and
// Clock are required.
type Config struct {
	// Name identifies the runner in log output.
	Name string

	// Interval is the wake interval. Must be positive.
	Interval time.Duration

	// Task is called once per interval.
	Task Task

	// Immediate runs the first tick on start rather than after the
	// first interval elapses.
	Immediate bool

	// Clock provides timing. Tests inject a FakeClock.
	Clock clock.Clock

	// Logger receives tick errors. If nil, errors are discarded.
	Logger *slog.Logger
}

// New creates a Runner. Panics on missing required fields — runner
// construction is static wiring, not a runtime input.
func New(cfg Config) *Runner {
	if cfg.Name == "" {
		panic("sweep: Name is required")
	}
	if cfg.Interval <= 0 {
		panic("sweep: Interval must be positive")
	}
	if cfg.Task == nil {
		panic("sweep: Task is required")
	}
	if cfg.Clock == nil {
		panic("sweep: Clock is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}

	return &Runner{
		name:      cfg.Name,
		interval:  cfg.Interval,
		task:      cfg.Task,
		clock:     cfg.Clock,
		logger:    logger,
		immediate: cfg.Immediate,
	}
}

// Run executes ticks until ctx is cancelled, then returns ctx.Err().
// Blocks; callers run it in a goroutine.
func (r *Runner) Run(ctx context.Context) error {
	if r.immediate {
		r.tick(ctx)
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sweep stopped", "name", r.name)
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	start := r.clock.Now()
	if err := r.task(ctx); err != nil {
		r.logger.Error("sweep tick failed",
			"name", r.name,
			"elapsed", r.clock.Now().Sub(start),
			"error", err,
		)
	}
}
