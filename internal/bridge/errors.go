package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrQueueClosed is returned by queue operations after shutdown began.
var ErrQueueClosed = errors.New("queue closed")

// ErrClientDisconnected marks a stream abandoned by its client. It is not a
// server fault.
var ErrClientDisconnected = errors.New("client disconnected")

// TooBusyError signals an admission timeout for 429 mapping.
type TooBusyError struct{ Waited time.Duration }

func (e TooBusyError) Error() string {
	return "too busy: inbound queue full for " + e.Waited.String()
}

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb TooBusyError
	return errors.As(err, &tb)
}

// IsQueueClosed reports whether err stems from shutdown.
func IsQueueClosed(err error) bool { return errors.Is(err, ErrQueueClosed) }

// IsClientDisconnected reports whether err means the client went away.
func IsClientDisconnected(err error) bool {
	return errors.Is(err, ErrClientDisconnected) || errors.Is(err, context.Canceled)
}

// GenerationError wraps an engine failure for one prompt. The worker
// survives it; the client sees its stream end early.
type GenerationError struct {
	Seq uint64
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation %d failed: %v", e.Seq, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is (or wraps) a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// disconnected wraps a write failure so callers can classify it.
func disconnected(err error) error {
	return fmt.Errorf("%w: %v", ErrClientDisconnected, err)
}
