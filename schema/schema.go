package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"
)

// Schema is an immutable, compiled description of the values a T may hold.
// It is safe for concurrent use.
type Schema[T any] struct {
	ns     *Namespace
	root   *jsonschema.Schema
	strict bool
	coerce bool
	native bool
	base   any
	// kinds maps numeric nodes of a reflected schema to the Go type of the
	// field they describe.
	kinds map[*jsonschema.Schema]reflect.Type

	decode   func(tree any) (T, []Issue)
	document func() (*jsonschema.Schema, error)
}

// Result is the outcome of SafeParse. Exactly one of Data (when Success) or
// Error (otherwise) is meaningful.
type Result[T any] struct {
	Success bool
	Data    T
	Error   *Error
}

// Option tunes how a reflected schema treats its input.
type Option func(*options)

type options struct {
	strict bool
	coerce bool
	base   any
}

// Strict rejects object keys the schema does not declare with an
// unrecognized_keys issue. By default unknown keys are stripped silently.
func Strict() Option { return func(o *options) { o.strict = true } }

// Coerce converts string scalars into the number, integer or boolean the
// schema expects, and comma separated strings into arrays. This suits
// configuration sourced from environment variables.
func Coerce() Option { return func(o *options) { o.coerce = true } }

// Defaults installs v as the base document: input is overlaid onto the JSON
// form of v before validation, so any key the input omits takes its value
// from v.
func Defaults(v any) Option { return func(o *options) { o.base = v } }

// Reflect compiles a schema from the struct type T. Field names follow the
// `json` tag, constraints come from `validate` tags (evaluated by
// go-playground/validator) and `jsonschema` tags (descriptions, defaults,
// enums and other JSON Schema keywords).
func Reflect[T any](ns *Namespace, opts ...Option) (*Schema[T], error) {
	if ns == nil {
		ns = DefaultNamespace()
	}
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: Reflect expects a struct type, got %s", t)
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	bad, unsupported := ns.findUnsupported(t)
	root := ns.reflector(bad).ReflectFromType(t)
	s := &Schema[T]{
		ns:     ns,
		root:   root,
		strict: o.strict,
		coerce: o.coerce,
		kinds:  numericKinds(root, t),
	}
	if o.base != nil {
		base, err := toTree(o.base)
		if err != nil {
			return nil, fmt.Errorf("schema: encode defaults: %w", err)
		}
		if _, ok := base.(map[string]any); !ok {
			return nil, fmt.Errorf("schema: defaults must encode to a JSON object, got %s", jsonType(base))
		}
		s.base = base
	}
	s.decode = s.decodeStruct
	s.document = func() (*jsonschema.Schema, error) {
		if unsupported != nil {
			return nil, unsupported
		}
		doc := ns.reflector(nil).ReflectFromType(t)
		enrich(doc, t)
		return doc, nil
	}
	return s, nil
}

// MustReflect is like Reflect but panics on error.
func MustReflect[T any](ns *Namespace, opts ...Option) *Schema[T] {
	s, err := Reflect[T](ns, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Namespace returns the namespace the schema was built from.
func (s *Schema[T]) Namespace() *Namespace { return s.ns }

// SafeParse validates input and returns the parsed value or every issue
// found. It never panics on malformed input.
//
// input may be a T or *T, a generic JSON-like tree (map[string]any as
// produced by configuration loaders), or JSON text as []byte or
// json.RawMessage.
func (s *Schema[T]) SafeParse(input any) Result[T] {
	tree, err := toTree(input)
	if err != nil {
		return failure[T]([]Issue{{
			Code:     CodeInvalidType,
			Message:  "input is not representable as JSON: " + err.Error(),
			Input:    input,
			Expected: "object",
			Received: fmt.Sprintf("%T", input),
		}})
	}
	if s.base != nil {
		tree = mergeTree(cloneJSON(s.base), tree)
	}
	if tree == nil {
		return failure[T]([]Issue{{
			Code:     CodeInvalidType,
			Message:  "expected " + typeName(s.root) + ", received null",
			Expected: typeName(s.root),
			Received: "null",
		}})
	}

	w := &walker{
		ns:      s.ns,
		root:    s.root,
		coerce:  s.coerce,
		strict:  s.strict,
		native:  s.native,
		kinds:   s.kinds,
		dropped: make(map[string]struct{}),
		regexps: make(map[string]*regexp.Regexp),
	}
	tree, keep := w.visit(s.root, tree, nil)
	issues := w.issues
	if !keep {
		return failure[T](issues)
	}

	// A constraint that both the document and a validate tag express is
	// reported once, by the walk.
	reported := make(map[string]struct{}, len(issues))
	for _, is := range issues {
		reported[issueKey(is)] = struct{}{}
	}
	value, more := s.decode(tree)
	for _, is := range more {
		if suppressed(w.dropped, is.Path) {
			continue
		}
		if _, dup := reported[issueKey(is)]; dup {
			continue
		}
		issues = append(issues, is)
	}
	if len(issues) > 0 {
		return failure[T](issues)
	}
	return Result[T]{Success: true, Data: value}
}

// Parse is the error-returning form of SafeParse. The error is an *Error.
func (s *Schema[T]) Parse(input any) (T, error) {
	r := s.SafeParse(input)
	if !r.Success {
		var zero T
		return zero, r.Error
	}
	return r.Data, nil
}

// JSONSchema renders the schema as a JSON Schema (draft 2020-12) document.
// Each call returns a fresh document the caller may modify. Struct schemas
// with fields that have no JSON representation (channels, functions,
// complex numbers) fail with *UnsupportedError.
func (s *Schema[T]) JSONSchema() (*jsonschema.Schema, error) {
	return s.document()
}

func (s *Schema[T]) decodeStruct(tree any) (T, []Issue) {
	var out T
	b, err := json.Marshal(tree)
	if err != nil {
		return out, []Issue{{Code: CodeCustom, Message: err.Error()}}
	}

	var issues []Issue
	if err := json.Unmarshal(b, &out); err != nil {
		var te *json.UnmarshalTypeError
		if !errors.As(err, &te) {
			return out, []Issue{{Code: CodeCustom, Message: err.Error()}}
		}
		issues = append(issues, Issue{
			Code:     CodeInvalidType,
			Path:     fieldPath(te.Field),
			Message:  fmt.Sprintf("cannot decode %s into %s", te.Value, te.Type),
			Expected: te.Type.String(),
			Received: te.Value,
		})
	}
	if err := s.ns.validate.Struct(&out); err != nil {
		for _, is := range s.ns.fieldIssues(err, tree, reflect.TypeFor[T]()) {
			if len(issues) > 0 && len(issues[0].Path) > 0 && hasPrefix(is.Path, issues[0].Path) {
				continue
			}
			issues = append(issues, is)
		}
	}
	return out, issues
}

func failure[T any](issues []Issue) Result[T] {
	return Result[T]{Error: &Error{Issues: issues}}
}

func suppressed(dropped map[string]struct{}, path []any) bool {
	for i := len(path); i > 0; i-- {
		if _, ok := dropped[pathKey(path[:i])]; ok {
			return true
		}
	}
	return false
}

func issueKey(is Issue) string { return pathKey(is.Path) + "\x00" + string(is.Code) }

func hasPrefix(path, prefix []any) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

func fieldPath(field string) []any {
	if field == "" {
		return nil
	}
	parts := strings.Split(field, ".")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}
