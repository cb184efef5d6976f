package stream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoProgressCallback is returned by Open when Callbacks.OnProgress is nil.
	ErrNoProgressCallback = errors.New("stream: OnProgress callback is required")
	// ErrStreamEnded means the server closed the response before sending a
	// terminal frame. It is retried like any other transport failure.
	ErrStreamEnded = errors.New("stream: connection ended before job finished")
	// ErrFrameTooLarge means a frame grew past MaxFrameSize without a
	// delimiter. The connection is dropped and retried.
	ErrFrameTooLarge = errors.New("stream: frame exceeds maximum size")
)

// StatusError is a non-2xx response to the stream request.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream: unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// ServerError is an explicit error frame sent by the server. It is never retried.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "stream: server error: " + e.Message
}

// RetriesExhaustedError is reported when the retry budget is used up.
// Err aggregates the failure of every attempt since the last successful
// progress frame.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("stream: giving up after %d failed attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }
