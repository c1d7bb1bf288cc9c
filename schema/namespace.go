package schema

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// Namespace is the schema-construction handle. It owns the validator used to
// evaluate `validate` struct tags and the reflector settings used to derive
// JSON Schema documents. Schemas built from the same Namespace share its
// registered custom validations.
//
// Registration methods must only be called while schemas are being
// constructed; once a schema is in use the Namespace is treated as read-only.
type Namespace struct {
	validate *validator.Validate
	messages map[string]string
	mappers  []func(reflect.Type) *jsonschema.Schema
	schemaID jsonschema.ID
	mu       sync.RWMutex
}

// NamespaceOption configures a Namespace.
type NamespaceOption func(*Namespace)

// WithTypeMapper installs a hook consulted before reflection for every Go
// type. Returning a non-nil schema replaces the reflected one; this is how
// types with custom JSON encodings (for example a duration parsed from "5s")
// describe their wire shape.
func WithTypeMapper(fn func(reflect.Type) *jsonschema.Schema) NamespaceOption {
	return func(ns *Namespace) { ns.mappers = append(ns.mappers, fn) }
}

// WithSchemaID sets the base $id stamped on documents rendered by schemas of
// this namespace.
func WithSchemaID(id string) NamespaceOption {
	return func(ns *Namespace) { ns.schemaID = jsonschema.ID(id) }
}

// NewNamespace returns an isolated Namespace.
func NewNamespace(opts ...NamespaceOption) *Namespace {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	ns := &Namespace{validate: v, messages: make(map[string]string)}
	for _, o := range opts {
		if o != nil {
			o(ns)
		}
	}
	return ns
}

var defaultNamespace = sync.OnceValue(func() *Namespace { return NewNamespace() })

// DefaultNamespace returns the process-wide Namespace. Prefer NewNamespace
// when registering custom validations so that unrelated schemas do not
// observe them.
func DefaultNamespace() *Namespace { return defaultNamespace() }

// Validator exposes the underlying validator for registrations not covered
// by the Namespace helpers (aliases, custom type funcs).
func (ns *Namespace) Validator() *validator.Validate { return ns.validate }

// RegisterValidation adds a custom `validate` tag. message, when non-empty,
// is used as the issue message; a single %s verb is replaced by the field
// name.
func (ns *Namespace) RegisterValidation(tag string, fn validator.Func, message string) error {
	if err := ns.validate.RegisterValidation(tag, fn); err != nil {
		return err
	}
	if message != "" {
		ns.mu.Lock()
		ns.messages[tag] = message
		ns.mu.Unlock()
	}
	return nil
}

// RegisterStructValidation adds a struct-level validation for the given
// types. Issues reported through validator.StructLevel.ReportError surface
// with the code "custom" unless the tag maps to a known code.
func (ns *Namespace) RegisterStructValidation(fn validator.StructLevelFunc, types ...any) {
	ns.validate.RegisterStructValidation(fn, types...)
}

func (ns *Namespace) message(tag string) (string, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	m, ok := ns.messages[tag]
	return m, ok
}

func (ns *Namespace) reflector(unsupported map[reflect.Type]struct{}) *jsonschema.Reflector {
	r := &jsonschema.Reflector{
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
		Anonymous:                  ns.schemaID == "",
		BaseSchemaID:               ns.schemaID,
	}
	mappers := ns.mappers
	r.Mapper = func(t reflect.Type) *jsonschema.Schema {
		for _, m := range mappers {
			if s := m(t); s != nil {
				return s
			}
		}
		if _, bad := unsupported[t]; bad {
			return &jsonschema.Schema{}
		}
		return nil
	}
	return r
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
