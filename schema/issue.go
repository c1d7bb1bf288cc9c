package schema

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Code is a short machine-readable failure kind attached to every Issue.
type Code string

const (
	CodeInvalidType      Code = "invalid_type"
	CodeRequired         Code = "required"
	CodeTooSmall         Code = "too_small"
	CodeTooBig           Code = "too_big"
	CodeInvalidEnumValue Code = "invalid_enum_value"
	CodeInvalidString    Code = "invalid_string"
	CodeNotMultipleOf    Code = "not_multiple_of"
	CodeUnrecognizedKeys Code = "unrecognized_keys"
	CodeCustom           Code = "custom"
)

// Issue is one constraint violation reported by SafeParse.
//
// Path holds the location of the offending value as a sequence of segments:
// string segments name object keys and int segments index arrays. An empty
// Path denotes the root value.
type Issue struct {
	Code    Code
	Path    []any
	Message string
	// Input is the offending value when it is known. For issues raised while
	// walking the input document it is the decoded JSON value (numbers are
	// json.Number); for constraint issues it is the typed Go value.
	Input any
	// Expected and Received are set for invalid_type issues.
	Expected string
	Received string
	// Keys lists the offending keys of an unrecognized_keys issue.
	Keys []string
	// Param is the constraint parameter, e.g. "1" for min=1.
	Param string
	// FieldError is the underlying validator error for issues raised by
	// struct tag constraints. It is nil for every other issue.
	FieldError validator.FieldError
}

// Error aggregates the issues of a failed Parse.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return "schema: validation failed"
	}
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if p := renderPath(is.Path); p != "" {
			msgs = append(msgs, p+": "+is.Message)
			continue
		}
		msgs = append(msgs, is.Message)
	}
	return "schema: " + strings.Join(msgs, "; ")
}

// renderPath is used for error strings only; callers that need a stable path
// representation should format Issue.Path themselves.
func renderPath(path []any) string {
	var b strings.Builder
	for i, seg := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		switch s := seg.(type) {
		case string:
			b.WriteString(s)
		case int:
			b.WriteString(strconv.Itoa(s))
		}
	}
	return b.String()
}

// appendPath returns a fresh slice so that sibling paths never share a
// backing array.
func appendPath(path []any, seg any) []any {
	out := make([]any, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

// pathKey renders a path into a map key that cannot collide between string
// and int segments.
func pathKey(path []any) string {
	var b strings.Builder
	for _, seg := range path {
		switch s := seg.(type) {
		case string:
			b.WriteString("\x00s")
			b.WriteString(s)
		case int:
			b.WriteString("\x00i")
			b.WriteString(strconv.Itoa(s))
		}
	}
	return b.String()
}
