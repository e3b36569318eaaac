// Package sync reconciles the Pocket GraphQL API with the local store.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/seckatie/pocketsync/internal/core/graph"
)

// Status is the outcome class of one operation run.
type Status int

const (
	StatusSuccess Status = iota
	// StatusRetry means the operation failed transiently and may be re-run
	// when the retry signal fires.
	StatusRetry
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRetry:
		return "retry"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

type Result struct {
	Status Status
	Err    error
}

func Success() Result            { return Result{Status: StatusSuccess} }
func Retry(err error) Result     { return Result{Status: StatusRetry, Err: err} }
func Failure(err error) Result   { return Result{Status: StatusFailure, Err: err} }
func (r Result) Succeeded() bool { return r.Status == StatusSuccess }

// Operation is one unit of sync work.
type Operation interface {
	Execute(ctx context.Context) Result
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context) Result

func (f OperationFunc) Execute(ctx context.Context) Result { return f(ctx) }

// Classify maps an error to Retry or Failure. Transport failures and 5xx
// responses are retriable; everything else is not.
func Classify(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusFailure
	}
	var te *graph.TransportError
	if errors.As(err, &te) {
		return StatusRetry
	}
	var rc *graph.ResponseCodeError
	if errors.As(err, &rc) && rc.Temporary() {
		return StatusRetry
	}
	return StatusFailure
}

// ResultFromError builds the Result for err using Classify.
func ResultFromError(err error) Result {
	switch Classify(err) {
	case StatusSuccess:
		return Success()
	case StatusRetry:
		return Retry(err)
	default:
		return Failure(err)
	}
}

// ResultError converts a terminal result back into an error.
func ResultError(r Result) error {
	if r.Succeeded() {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	return fmt.Errorf("operation ended with status %s", r.Status)
}
