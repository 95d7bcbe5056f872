package compose

import (
	"errors"
	"fmt"
)

// Spec error kinds. These are validation-time user errors: submission fails
// synchronously and no job is created.
const (
	KindDuplicateSceneID          = "DuplicateSceneId"
	KindUnknownSceneReference     = "UnknownSceneReference"
	KindInvalidTransitionTopology = "InvalidTransitionTopology"
	KindOverlayOutOfBounds        = "OverlayOutOfBounds"
	KindNegativeTimelineDuration  = "NegativeTimelineDuration"
)

// SpecError reports a structural problem in a composition spec.
type SpecError struct {
	Kind    string
	Message string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func specErrorf(kind, format string, args ...interface{}) *SpecError {
	return &SpecError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsSpecError unwraps err into a *SpecError if it is one.
func AsSpecError(err error) (*SpecError, bool) {
	var se *SpecError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
