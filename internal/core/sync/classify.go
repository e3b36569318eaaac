package sync

import (
	"log/slog"
)

// classified logs err, publishes terminal failures and returns the Result
// the error maps to.
func classified(logger *slog.Logger, events *Events, operation string, err error) Result {
	res := ResultFromError(err)
	switch res.Status {
	case StatusRetry:
		logger.Warn("operation failed, will retry", "error", err)
	case StatusFailure:
		logger.Error("operation failed", "error", err)
		events.Send(ErrorEvent{Operation: operation, Err: err})
	}
	return res
}
