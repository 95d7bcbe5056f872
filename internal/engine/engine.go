// Package engine defines the contract with the external media-rendering
// engine. The lifecycle engine treats it as opaque: a stage goes in, an
// artifact path or a classified error comes out.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/videoweave/api/internal/model"
)

// Engine executes a single render stage and returns the absolute path of the
// produced artifact. workDir is the job's private artifact directory; stage
// inputs naming prior outputs are relative to it.
type Engine interface {
	Execute(ctx context.Context, workDir string, stage *model.RenderStage) (string, error)
}

// Error is a classified engine failure. Transient errors (timeouts, flaky
// I/O) are retried by the worker; permanent ones (malformed input, encode
// rejection) fail the job immediately.
type Error struct {
	Transient bool
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("engine (%s): %s", kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Transientf builds a transient engine error.
func Transientf(cause error, format string, args ...interface{}) *Error {
	return &Error{Transient: true, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Permanentf builds a permanent engine error.
func Permanentf(cause error, format string, args ...interface{}) *Error {
	return &Error{Transient: false, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsTransient reports whether err is a transient engine failure. Unclassified
// errors count as transient so infrastructure hiccups get retried.
func IsTransient(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Transient
	}
	return true
}
