package chat

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ent0n29/mindstream/internal/inference"
	"github.com/ent0n29/mindstream/internal/reliability"
)

// StreamError is an inference failure during a turn. Reply text already
// delivered to the sink stays there; nothing from the turn is persisted.
type StreamError struct {
	Backend string
	Err     error
	// Partial is set when some reply text reached the reply sink.
	Partial bool
	// Retryable tells the client whether sending the message again may work.
	Retryable bool
}

func newStreamError(backend string, err error, partial bool) *StreamError {
	return &StreamError{
		Backend:   backend,
		Err:       err,
		Partial:   partial,
		Retryable: reliability.IsRetryableError(err),
	}
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("inference stream (%s): %v", e.Backend, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user in place of, or after, the
// reply.
func (e *StreamError) UserMessage() string {
	return "Error while processing the stream: " + e.Err.Error()
}

// Code is a short machine-readable label for the failure.
func (e *StreamError) Code() string {
	var se *inference.StatusError
	if errors.As(e.Err, &se) {
		return "upstream_" + strconv.Itoa(se.StatusCode)
	}
	if e.Retryable {
		return "upstream_unavailable"
	}
	return "stream_failed"
}
