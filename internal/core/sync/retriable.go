package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"
)

// DefaultMaxRetries bounds how often an operation is re-run after a Retry.
const DefaultMaxRetries = 2

type State int

const (
	StatePending State = iota
	StateRunning
	// StateRetrying means the operation is waiting for the retry signal.
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RetriableOperation runs an Operation and re-runs it each time the retry
// signal fires after a Retry result, up to MaxRetries times.
type RetriableOperation struct {
	Name       string
	Op         Operation
	Signal     RetrySignal
	MaxRetries int
	Events     *Events
	Logger     *slog.Logger

	mu      gosync.Mutex
	state   State
	retries int
}

func (r *RetriableOperation) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *RetriableOperation) Retries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retries
}

func (r *RetriableOperation) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run blocks until the operation reaches a terminal state. A Retry result
// with no retries left, or a cancelled context while waiting, ends in
// Failure.
func (r *RetriableOperation) Run(ctx context.Context) Result {
	logger := loggerOrDefault(r.Logger).With("category", "sync", "operation", r.Name)

	for {
		r.setState(StateRunning)
		start := time.Now()
		res := r.Op.Execute(ctx)
		RecordOperation(r.Name, res.Status, time.Since(start).Seconds())

		switch res.Status {
		case StatusSuccess:
			r.setState(StateSucceeded)
			return res
		case StatusRetry:
		default:
			r.setState(StateFailed)
			return res
		}

		if r.Signal == nil || r.Retries() >= r.MaxRetries {
			err := fmt.Errorf("%s: giving up after %d retries: %w", r.Name, r.Retries(), res.Err)
			logger.Error("retries exhausted", "retries", r.Retries(), "error", res.Err)
			r.Events.Send(ErrorEvent{Operation: r.Name, Err: err})
			r.setState(StateFailed)
			return Failure(err)
		}

		ch, cancel := r.Signal.Subscribe()
		r.setState(StateRetrying)
		logger.Info("waiting for retry signal", "retries", r.Retries())
		select {
		case <-ch:
			cancel()
			r.mu.Lock()
			r.retries++
			r.mu.Unlock()
			RecordRetry(r.Name)
		case <-ctx.Done():
			cancel()
			r.setState(StateFailed)
			logger.Warn("stopped waiting for retry", "error", ctx.Err())
			return Failure(ctx.Err())
		}
	}
}
