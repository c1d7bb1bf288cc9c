package engine

import (
	"fmt"
	"strings"
)

// ConstructionError indicates New could not produce an engine: the factory
// failed, or no schema was available.
type ConstructionError struct {
	Reason string
	Err    error // factory error, if any
}

func (e *ConstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s: %v", e.Reason, e.Err)
	}
	return "engine: " + e.Reason
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// ValidationError carries the issues of a failed Outcome for hosts that
// prefer error returns.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		if is.Path == "" {
			msgs[i] = is.Message
			continue
		}
		msgs[i] = is.Path + ": " + is.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
