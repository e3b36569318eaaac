package graph

import (
	"fmt"
	"strings"
)

// TransportError wraps a failure to reach the server or read its response.
// Callers treat it as retriable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("graphql transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseCodeError is returned for any non-2xx HTTP response.
type ResponseCodeError struct {
	StatusCode int
	Body       string
}

func (e *ResponseCodeError) Error() string {
	return fmt.Sprintf("graphql response code %d", e.StatusCode)
}

// Temporary reports whether the server signalled a transient failure.
func (e *ResponseCodeError) Temporary() bool {
	return e.StatusCode >= 500
}

// DecodeError is returned when a response body is not the expected JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("graphql decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// GraphQLError carries the errors array of a 200 response.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}
