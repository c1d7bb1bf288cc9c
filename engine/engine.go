package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ggoodman/confengine-go/internal/logctx"
	"github.com/ggoodman/confengine-go/schema"
)

// Factory builds a schema from the namespace it is handed. It is invoked
// exactly once, while the engine is being constructed.
type Factory[T any] func(ns *schema.Namespace) (*schema.Schema[T], error)

// Source is what New accepts: a ready schema or a factory producing one.
type Source[T any] interface {
	*schema.Schema[T] | Factory[T] | func(*schema.Namespace) (*schema.Schema[T], error)
}

// Validator is the contract a configuration host relies on. *Engine
// satisfies it.
type Validator[T any] interface {
	Validate(candidate any) Outcome[T]
	ValidateContext(ctx context.Context, candidate any) Outcome[T]
	ToJSONSchema(pretty ...bool) (string, error)
}

var _ Validator[struct{}] = (*Engine[struct{}])(nil)

// Engine adapts a schema to the Validator contract. It holds no mutable
// state and is safe for concurrent use.
type Engine[T any] struct {
	schema *schema.Schema[T]
	log    *slog.Logger
}

// Option configures New.
type Option func(*config)

type config struct {
	ns     *schema.Namespace
	logger *slog.Logger
}

// WithNamespace sets the namespace handed to a factory. Defaults to
// schema.DefaultNamespace(). It has no effect when New is given a schema.
func WithNamespace(ns *schema.Namespace) Option {
	return func(c *config) { c.ns = ns }
}

// WithLogger sets the logger used to record construction and failed
// validations at debug level. Records made under a context carrying
// logctx snapshot data include it. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New resolves src into an engine. A factory is invoked synchronously,
// exactly once; a schema is retained as is. Failures are reported as
// *ConstructionError.
//
// The schema type cannot be inferred from a Source, so callers name it:
//
//	eng, err := engine.New[Config](schema.MustReflect[Config](nil))
func New[T any, S Source[T]](src S, opts ...Option) (*Engine[T], error) {
	cfg := &config{}
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	if cfg.ns == nil {
		cfg.ns = schema.DefaultNamespace()
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	var (
		s    *schema.Schema[T]
		kind string
	)
	switch v := any(src).(type) {
	case *schema.Schema[T]:
		s, kind = v, "schema"
	case Factory[T]:
		built, err := invoke[T](v, cfg.ns)
		if err != nil {
			return nil, err
		}
		s, kind = built, "factory"
	case func(*schema.Namespace) (*schema.Schema[T], error):
		built, err := invoke[T](v, cfg.ns)
		if err != nil {
			return nil, err
		}
		s, kind = built, "factory"
	}
	if s == nil {
		return nil, &ConstructionError{Reason: "schema is nil"}
	}

	cfg.logger.Debug("engine.new", slog.String("source", kind))
	return &Engine[T]{schema: s, log: slog.New(logctx.Wrap(cfg.logger.Handler()))}, nil
}

func invoke[T any](f func(*schema.Namespace) (*schema.Schema[T], error), ns *schema.Namespace) (*schema.Schema[T], error) {
	if f == nil {
		return nil, &ConstructionError{Reason: "factory is nil"}
	}
	s, err := f(ns)
	if err != nil {
		return nil, &ConstructionError{Reason: "factory failed", Err: err}
	}
	if s == nil {
		return nil, &ConstructionError{Reason: "factory returned a nil schema"}
	}
	return s, nil
}

// MustNew is like New but panics on error. Use it where a broken schema is
// a programming error, such as package-level variables.
func MustNew[T any, S Source[T]](src S, opts ...Option) *Engine[T] {
	e, err := New[T](src, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Schema returns the schema the engine validates against.
func (e *Engine[T]) Schema() *schema.Schema[T] { return e.schema }

// Validate checks candidate against the schema. It never fails with an
// error: a rejected candidate yields an Outcome with Success false and one
// Issue per problem the schema reported, in the order reported.
func (e *Engine[T]) Validate(candidate any) Outcome[T] {
	return e.ValidateContext(context.Background(), candidate)
}

// ValidateContext is Validate with a context for the log records it emits.
func (e *Engine[T]) ValidateContext(ctx context.Context, candidate any) Outcome[T] {
	res := e.schema.SafeParse(candidate)
	if res.Success {
		return Outcome[T]{Success: true, Value: res.Data}
	}

	issues := make([]Issue, len(res.Error.Issues))
	for i, is := range res.Error.Issues {
		issues[i] = newIssue(is)
	}
	if e.log.Enabled(ctx, slog.LevelDebug) && len(issues) > 0 {
		e.log.DebugContext(ctx, "engine.validate.fail",
			slog.Int("issues", len(issues)),
			slog.String("first_path", issues[0].Path),
			slog.String("first_details", issues[0].Details),
		)
	}
	return Outcome[T]{Errors: issues}
}

// ToJSONSchema renders the schema as a JSON Schema document. The output is
// compact unless pretty is true, in which case it is indented by two spaces.
// Schemas the library cannot express as JSON Schema fail with the library's
// error, unmodified.
func (e *Engine[T]) ToJSONSchema(pretty ...bool) (string, error) {
	doc, err := e.schema.JSONSchema()
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("engine: encode json schema: %w", err)
	}
	if len(pretty) > 0 && pretty[0] {
		var buf bytes.Buffer
		if err := json.Indent(&buf, b, "", "  "); err != nil {
			return "", fmt.Errorf("engine: indent json schema: %w", err)
		}
		return buf.String(), nil
	}
	return string(b), nil
}

// MustJSONSchema is like ToJSONSchema but panics on error.
func (e *Engine[T]) MustJSONSchema(pretty ...bool) string {
	s, err := e.ToJSONSchema(pretty...)
	if err != nil {
		panic(err)
	}
	return s
}
