package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for ids that are unknown or were evicted.
	ErrNotFound = errors.New("stream not found")

	// ErrCompleted is returned by Add once the stream no longer accepts input.
	ErrCompleted = errors.New("stream already completed")
)

// ValidationError reports input that was rejected before encoding. Channel is
// the offending channel index, or -1 when the error is not tied to one.
type ValidationError struct {
	Channel int
	Msg     string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid returns a ValidationError not tied to a channel.
func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Channel: -1, Msg: fmt.Sprintf(format, args...)}
}

// InvalidChannel returns a ValidationError citing channel ch.
func InvalidChannel(ch int, format string, args ...any) *ValidationError {
	return &ValidationError{Channel: ch, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
