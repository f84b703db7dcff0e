package sqs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// A State is the lifecycle state of a worker
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "STOPPED"
	}
}

// A worker owns one long-running loop goroutine. The loop calls iterate until Stop
// flips the running flag; the flag is only checked between iterations.
type worker struct {
	name        string
	stopTimeout time.Duration
	logger      *zerolog.Logger

	running atomic.Bool

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	stopCh chan struct{}
	done   chan struct{}
}

func newWorker(name string, stopTimeout time.Duration, logger *zerolog.Logger) *worker {
	return &worker{name: name, stopTimeout: stopTimeout, logger: logger}
}

// State returns the current lifecycle state
func (w *worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.state
}

// start launches the loop. Cancelling ctx is a forced stop
func (w *worker) start(ctx context.Context, iterate func(ctx context.Context)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateStopped {
		return fmt.Errorf("%s: %w", w.name, ErrAlreadyRunning)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.stopCh = make(chan struct{})
	w.done = done
	w.state = StateRunning
	w.running.Store(true)

	go w.loop(runCtx, cancel, done, iterate)

	return nil
}

func (w *worker) loop(ctx context.Context, cancel context.CancelFunc, done chan struct{}, iterate func(context.Context)) {
	defer func() {
		cancel()
		w.mu.Lock()
		w.state = StateStopped
		w.running.Store(false)
		w.mu.Unlock()
		close(done)
	}()

	w.logger.Info().Str("worker", w.name).Msg("worker started")
	for w.running.Load() && ctx.Err() == nil {
		iterate(ctx)
	}
	w.logger.Info().Str("worker", w.name).Msg("worker stopped")
}

// stop asks the loop to finish its current iteration and waits for it.
// After stopTimeout, or once ctx is done, the loop context is cancelled and ErrStopTimeout is returned.
func (w *worker) stop(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateStopped:
		w.mu.Unlock()
		return nil
	case StateRunning:
		w.state = StateStopping
		w.running.Store(false)
		close(w.stopCh)
	}
	done, cancel := w.done, w.cancel
	w.mu.Unlock()

	timer := time.NewTimer(w.stopTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	cancel()
	w.logger.Warn().
		Str("worker", w.name).
		Dur("stop_timeout", w.stopTimeout).
		Msg("worker did not stop in time, cancelling it")

	return fmt.Errorf("%s: %w", w.name, ErrStopTimeout)
}

// sleep waits for d unless the worker is being stopped or ctx is done.
// It reports whether the full duration elapsed.
func (w *worker) sleep(ctx context.Context, d time.Duration) bool {
	w.mu.Lock()
	stopCh := w.stopCh
	w.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
