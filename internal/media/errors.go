package media

import (
	"errors"
	"fmt"
)

// Resolution error kinds. Resolution runs eagerly at submission, so these
// surface synchronously and no job is created.
const (
	KindNotFound          = "NotFound"
	KindUnreachableSource = "UnreachableSource"
	KindSizeLimitExceeded = "SizeLimitExceeded"
	KindDomainNotAllowed  = "DomainNotAllowed"
)

// ResolutionError reports a media reference that could not be resolved.
type ResolutionError struct {
	Kind    string
	Source  string
	Message string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Source, e.Message)
}

func resolutionErrorf(kind, source, format string, args ...interface{}) *ResolutionError {
	return &ResolutionError{Kind: kind, Source: source, Message: fmt.Sprintf(format, args...)}
}

// AsResolutionError unwraps err into a *ResolutionError if it is one.
func AsResolutionError(err error) (*ResolutionError, bool) {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
