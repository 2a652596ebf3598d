// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package scheduler coalesces bursts of run requests into a bounded number
// of task executions.
package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Config controls debouncing and retries.
type Config struct {
	// Debounce is the quiet period after the latest request before a run fires.
	Debounce time.Duration
	// MaxDebounce caps the delay measured from the first request of a burst.
	MaxDebounce time.Duration
	// MaxRetries is the number of extra attempts after a failed run.
	MaxRetries int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
}

// Validate checks that the durations are usable.
func (c Config) Validate() error {
	if c.Debounce < 0 {
		return semerr.Errorf(semerr.CodeSchedulerConfigInvalid, "debounce must be non-negative, got %s", c.Debounce)
	}
	if c.MaxDebounce < c.Debounce {
		return semerr.Errorf(semerr.CodeSchedulerConfigInvalid,
			"max debounce (%s) must be at least debounce (%s)", c.MaxDebounce, c.Debounce)
	}
	if c.MaxRetries < 0 {
		return semerr.Errorf(semerr.CodeSchedulerConfigInvalid, "max retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.MaxRetries > 0 && c.RetryDelay <= 0 {
		return semerr.Errorf(semerr.CodeSchedulerConfigInvalid, "retry delay must be positive, got %s", c.RetryDelay)
	}
	return nil
}

// Task is the unit of work the scheduler runs.
type Task func(ctx context.Context) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithErrorHandler replaces the default handler, which logs, for runs that
// still fail after all retries.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.onError = fn
		}
	}
}

// Scheduler runs a task at most once at a time, coalescing requests that
// arrive while a run is scheduled or executing.
type Scheduler struct {
	ctx     context.Context
	cfg     Config
	task    Task
	onError func(error)

	mu         sync.Mutex
	timer      *time.Timer
	gen        uint64 // invalidates timers that were stopped too late
	pending    bool   // a run is scheduled
	running    bool
	rerun      bool // a request arrived during the current run
	closed     bool
	burstStart time.Time

	inflight sync.WaitGroup
	drained  chan struct{} // closed once the first Close has flushed
}

// New creates a Scheduler. Runs are detached from ctx cancellation so that
// a shutdown flush still completes; ctx only carries values.
func New(ctx context.Context, cfg Config, task Task, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, semerr.New(semerr.CodeSchedulerConfigInvalid, "scheduler task is required")
	}

	s := &Scheduler{
		ctx:     context.WithoutCancel(ctx),
		cfg:     cfg,
		task:    task,
		drained: make(chan struct{}),
		onError: func(err error) {
			slog.Error("scheduled run failed", "error", err)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RequestRun signals that the task should run. It never blocks and never
// reports task failures.
func (s *Scheduler) RequestRun() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.running {
		s.rerun = true
		return
	}
	s.armLocked(time.Now())
}

// armLocked (re)starts the timer. Caller holds s.mu.
func (s *Scheduler) armLocked(now time.Time) {
	if !s.pending {
		s.pending = true
		s.burstStart = now
	}

	delay := s.cfg.Debounce
	if deadline := s.burstStart.Add(s.cfg.MaxDebounce); now.Add(delay).After(deadline) {
		delay = max(deadline.Sub(now), 0)
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.pending || s.running || s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.running = true
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	s.execute()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.rerun && !s.closed {
		s.rerun = false
		s.armLocked(time.Now())
	}
}

// Close flushes a scheduled or queued run after any in-flight run finishes,
// then disables the scheduler. It is safe to call more than once, and every
// call returns only after the flush has finished.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.drained
		return
	}
	defer close(s.drained)
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	flush := s.pending || s.rerun
	s.pending, s.rerun = false, false
	s.mu.Unlock()

	s.inflight.Wait()
	if flush {
		s.execute()
	}
}

// execute runs the task with retries and reports a final failure.
func (s *Scheduler) execute() {
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxRetries), retry.NewConstant(max(s.cfg.RetryDelay, time.Millisecond)))

	err := retry.Do(s.ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := s.runOnce(ctx); err != nil {
			slog.Debug("scheduled run attempt failed", "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.onError(semerr.Wrap(err, semerr.CodeSchedulerTaskFailure, "run failed after retries",
			semerr.Field("attempts", attempts)))
	}
}

func (s *Scheduler) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduled task panic recovered", "panic", r, "stack", string(debug.Stack()))
			err = semerr.Errorf(semerr.CodeSchedulerTaskFailure, "task panic: %v", r)
		}
	}()
	return s.task(ctx)
}
