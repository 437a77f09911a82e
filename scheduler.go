package testkit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// TestScheduler is responsible for scheduling periodic test runs.
type TestScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func(ctx context.Context) error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// ErrSchedulerStopped is the cancellation cause of the run context once the
// scheduler was stopped.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// DefaultTestScheduler runs the callback once on Start and then, unless in
// run-once mode, every interval until stopped. Runs never overlap; a run
// that outlasts the interval swallows the ticks it missed. Stopping cancels
// the context of the run in progress, so no further tests start while the
// ones in flight finish and report.
type DefaultTestScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	callback func(ctx context.Context) error

	running atomic.Bool
	runs    atomic.Int64
	done    chan struct{}
	cancel  context.CancelCauseFunc
	wg      sync.WaitGroup
}

var _ TestScheduler = (*DefaultTestScheduler)(nil)

// NewDefaultTestScheduler creates a new DefaultTestScheduler.
func NewDefaultTestScheduler(interval time.Duration, runOnce bool, logger log.Logger) *DefaultTestScheduler {
	return &DefaultTestScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// RegisterCallback registers the callback to be called when tests should run.
func (s *DefaultTestScheduler) RegisterCallback(callback func(ctx context.Context) error) {
	s.callback = callback
}

// Start runs the first run synchronously and returns its error. In
// continuous mode later runs happen in the background and their errors are
// logged.
func (s *DefaultTestScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}
	if !s.runOnce && s.interval <= 0 {
		return errors.New("interval must be positive in continuous mode")
	}

	ctx, s.cancel = context.WithCancelCause(ctx)
	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Starting scheduler in run-once mode")
		return s.run(ctx)
	}

	s.logger.Info("Starting scheduler in continuous mode", "interval", s.interval)

	if err := s.run(ctx); err != nil {
		s.cancel(err)
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Debug("Starting periodic test runner goroutine", "interval", s.interval)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.running.Load() {
					s.logger.Debug("Scheduler stopped, exiting periodic test runner")
					return
				}
				s.logger.Info("Running periodic tests", "run", s.runs.Load()+1)
				err := s.run(ctx)
				switch {
				case err == nil:
				case IsTestFailureError(err):
					s.logger.Warn("Periodic run has failing tests", "error", err)
				default:
					s.logger.Error("Error running periodic tests", "error", err)
				}
				// Drain a tick that fired while the run was in progress.
				select {
				case <-ticker.C:
				default:
				}

			case <-s.done:
				s.logger.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				s.logger.Debug("Context canceled, stopping periodic test runner")
				s.running.Store(false)
				return
			}
		}
	}()

	return nil
}

// Stop stops the scheduler. It is safe to call more than once.
func (s *DefaultTestScheduler) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}
	s.logger.Debug("Sending done signal to goroutines")
	close(s.done)
	if s.cancel != nil {
		s.cancel(ErrSchedulerStopped)
	}
	return nil
}

// Runs returns the number of runs started so far.
func (s *DefaultTestScheduler) Runs() int64 {
	return s.runs.Load()
}

func (s *DefaultTestScheduler) run(ctx context.Context) error {
	s.runs.Add(1)
	return s.callback(ctx)
}

// Stopped returns true if the scheduler is stopped.
func (s *DefaultTestScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (s *DefaultTestScheduler) WaitForShutdown(ctx context.Context) error {
	s.logger.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
