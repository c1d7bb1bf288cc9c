package engine

import (
	"strconv"
	"strings"

	"github.com/ggoodman/confengine-go/schema"
)

// Outcome is the result of Validate. When Success is true Value holds the
// validated value, with defaults applied and coercions performed; otherwise
// Errors lists every issue in the order the schema reported them.
type Outcome[T any] struct {
	Success bool
	Value   T
	Errors  []Issue
}

// Err returns nil for a successful outcome and a *ValidationError carrying
// the issues otherwise.
func (o Outcome[T]) Err() error {
	if o.Success {
		return nil
	}
	return &ValidationError{Issues: o.Errors}
}

// Issue is one validation failure in the shape hosts consume.
type Issue struct {
	// Path is the location of the offending value with segments joined by
	// ".", array indices in decimal. It is empty for failures of the root
	// value.
	Path string
	// Input is the offending value when the schema exposes it.
	Input any
	// Details is the machine-readable failure kind, e.g. "invalid_type".
	Details string
	Message string
	// Raw is the issue exactly as the schema reported it.
	Raw schema.Issue
}

func newIssue(is schema.Issue) Issue {
	return Issue{
		Path:    joinPath(is.Path),
		Input:   is.Input,
		Details: string(is.Code),
		Message: is.Message,
		Raw:     is,
	}
}

func joinPath(segs []any) string {
	parts := make([]string, 0, len(segs))
	for _, seg := range segs {
		switch s := seg.(type) {
		case string:
			parts = append(parts, s)
		case int:
			parts = append(parts, strconv.Itoa(s))
		}
	}
	return strings.Join(parts, ".")
}
