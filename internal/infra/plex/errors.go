package plex

import (
	"context"
	"errors"
	"fmt"
)

// ResolutionKind classifies why a stream resolution failed.
type ResolutionKind string

const (
	ResolutionNetwork  ResolutionKind = "network"
	ResolutionAuth     ResolutionKind = "auth"
	ResolutionNotFound ResolutionKind = "not-found"
	ResolutionTimeout  ResolutionKind = "timeout"
)

// ResolutionError reports a failed stream resolution with a kind the UI
// can render without parsing the cause.
type ResolutionError struct {
	Kind  ResolutionKind
	Track string
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve track %s: %s: %v", e.Track, e.Kind, e.Cause)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// classify maps client errors onto resolution kinds.
func classify(err error) ResolutionKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ResolutionTimeout
	case errors.Is(err, ErrUnauthorized):
		return ResolutionAuth
	case errors.Is(err, ErrNotFound):
		return ResolutionNotFound
	default:
		return ResolutionNetwork
	}
}
