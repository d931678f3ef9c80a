package adapters

import (
	"errors"
	"fmt"
)

// ErrDataLoad matches every *LoadError through errors.Is.
var ErrDataLoad = errors.New("data load error")

// LoadError reports a missing or malformed input table.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrDataLoad }

// NewLoadError builds a *LoadError for the given source.
func NewLoadError(path, reason string, err error) *LoadError {
	return &LoadError{Path: path, Reason: reason, Err: err}
}
