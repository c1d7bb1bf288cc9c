// Package koanfhost connects koanf, which loads and merges configuration,
// to an engine.Validator, which decides whether the merged result is
// acceptable.
package koanfhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/confengine-go/engine"
	"github.com/ggoodman/confengine-go/internal/logctx"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Delim is the key path delimiter of the koanf instances this package
// creates.
const Delim = "."

// Validate checks the merged configuration held by k.
func Validate[T any](k *koanf.Koanf, v engine.Validator[T]) engine.Outcome[T] {
	return v.Validate(k.Raw())
}

// Load validates k and returns the resulting value, or a
// *engine.ValidationError listing every issue.
func Load[T any](k *koanf.Koanf, v engine.Validator[T]) (T, error) {
	out := Validate(k, v)
	if err := out.Err(); err != nil {
		var zero T
		return zero, err
	}
	return out.Value, nil
}

// LoadDefaults layers the JSON form of defaults into k. Call it before
// loading files and the environment so that they take precedence.
func LoadDefaults(k *koanf.Koanf, defaults any) error {
	if err := k.Load(structs.Provider(defaults, "json"), nil); err != nil {
		return fmt.Errorf("koanfhost: load defaults: %w", err)
	}
	return nil
}

// LoadFunc populates a fresh koanf instance from the host's sources.
type LoadFunc func(k *koanf.Koanf) error

// ErrNotLoaded is returned by Current before the first successful reload.
var ErrNotLoaded = errors.New("koanfhost: no configuration loaded")

// Reloader keeps the last configuration that passed validation. Each
// Reload builds a new koanf instance, so a failed load or validation
// leaves the current value untouched.
type Reloader[T any] struct {
	v      engine.Validator[T]
	load   LoadFunc
	source string
	log    *slog.Logger

	mu      sync.Mutex // serializes Reload
	gen     uint64
	current atomic.Pointer[T]
}

// Option configures a Reloader.
type Option func(*reloaderConfig)

type reloaderConfig struct {
	logger *slog.Logger
	source string
}

// WithLogger sets the logger used to report reloads. If not provided, logs
// are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *reloaderConfig) { c.logger = l }
}

// WithSource names the configuration source in log records, typically the
// file path.
func WithSource(source string) Option {
	return func(c *reloaderConfig) { c.source = source }
}

// NewReloader returns a Reloader that populates configuration with load and
// checks it with v. No load happens until Reload is called.
func NewReloader[T any](v engine.Validator[T], load LoadFunc, opts ...Option) *Reloader[T] {
	cfg := &reloaderConfig{}
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return &Reloader[T]{
		v:      v,
		load:   load,
		source: cfg.source,
		log:    slog.New(logctx.Wrap(cfg.logger.Handler())),
	}
}

// Reload loads and validates a new snapshot. On success the snapshot
// replaces the current value and is returned. On failure the error is
// either the load error or a *engine.ValidationError.
func (r *Reloader[T]) Reload(ctx context.Context) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	r.gen++
	ctx = logctx.WithSnapshotData(ctx, &logctx.SnapshotData{Generation: r.gen, Source: r.source})

	k := koanf.New(Delim)
	if err := r.load(k); err != nil {
		r.log.ErrorContext(ctx, "config.load.fail", slog.String("err", err.Error()))
		return zero, fmt.Errorf("koanfhost: load: %w", err)
	}

	out := r.v.ValidateContext(ctx, k.Raw())
	if !out.Success {
		for _, is := range out.Errors {
			r.log.WarnContext(ctx, "config.validate.issue",
				slog.String("path", is.Path),
				slog.String("details", is.Details),
				slog.String("message", is.Message),
			)
		}
		return zero, out.Err()
	}

	v := out.Value
	r.current.Store(&v)
	r.log.InfoContext(ctx, "config.reload.ok")
	return v, nil
}

// Current returns the last value that passed validation.
func (r *Reloader[T]) Current() (T, error) {
	p := r.current.Load()
	if p == nil {
		var zero T
		return zero, ErrNotLoaded
	}
	return *p, nil
}
