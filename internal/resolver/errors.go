package resolver

import (
	"errors"
	"fmt"
)

// ErrNoResults is returned when a search yields nothing playable.
var ErrNoResults = errors.New("no results found")

// ResolutionError wraps an extraction or fetch failure for one source.
// It is never cached; the next resolve of the same source starts over.
type ResolutionError struct {
	Source string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %s: %v", e.Source, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func resolutionErr(source string, err error) error {
	return &ResolutionError{Source: source, Err: err}
}
