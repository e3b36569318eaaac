package sync

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Queue runs operations with retry handling, allowing one in-flight run
// per key. Concurrent callers with the same key share the first caller's
// run and result.
type Queue struct {
	signal     RetrySignal
	maxRetries int
	events     *Events
	logger     *slog.Logger

	group singleflight.Group
}

// NewQueue builds a queue. A negative maxRetries uses DefaultMaxRetries.
func NewQueue(signal RetrySignal, maxRetries int, events *Events, logger *slog.Logger) *Queue {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Queue{
		signal:     signal,
		maxRetries: maxRetries,
		events:     events,
		logger:     loggerOrDefault(logger),
	}
}

// Run runs op under key, which also names it in logs and metrics.
func (q *Queue) Run(ctx context.Context, key string, op Operation) Result {
	return q.RunNamed(ctx, key, key, op)
}

// RunNamed is Run with a separate name for logs and metrics. Keys that are
// unbounded, such as task IDs, must not be used as names.
func (q *Queue) RunNamed(ctx context.Context, key, name string, op Operation) Result {
	v, _, shared := q.group.Do(key, func() (any, error) {
		r := &RetriableOperation{
			Name:       name,
			Op:         op,
			Signal:     q.signal,
			MaxRetries: q.maxRetries,
			Events:     q.events,
			Logger:     q.logger,
		}
		return r.Run(ctx), nil
	})
	if shared {
		q.logger.Debug("joined in-flight operation", "operation", name, "key", key)
	}
	return v.(Result)
}
