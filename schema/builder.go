package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Property is one key of a builder object, created by String, Number,
// Integer, Boolean, Enum, Array or Nested.
//
//	s, err := ns.Object(
//	    schema.String("name", schema.Required(), schema.MinLength(1)),
//	    schema.Integer("age", schema.Minimum(0)),
//	    schema.Nested("profile", []schema.Property{
//	        schema.Enum("theme", []string{"light", "dark"}, schema.Default("light")),
//	    }),
//	).Build()
type Property struct {
	name string
	p    *bProperty
}

// Name reports the key the property is stored under.
func (p Property) Name() string { return p.name }

type bProperty struct {
	ptype       string // string|number|integer|boolean|array|object
	required    bool
	title       string
	description string
	enumVals    []string
	isEnum      bool
	constraints propertyConstraints
	def         any
	hasDefault  bool
	elem        *Property
	props       []Property
}

type propertyConstraints struct {
	MinLength *uint64
	MaxLength *uint64
	Minimum   *float64
	Maximum   *float64
	MinItems  *uint64
	MaxItems  *uint64
	Pattern   string
	Format    string
}

func newProperty(name, ptype string, opts []PropOption) Property {
	bp := &bProperty{ptype: ptype}
	for _, o := range opts {
		if o != nil {
			o(bp)
		}
	}
	return Property{name: name, p: bp}
}

// String declares a string property.
func String(name string, opts ...PropOption) Property { return newProperty(name, "string", opts) }

// Number declares a floating point property.
func Number(name string, opts ...PropOption) Property { return newProperty(name, "number", opts) }

// Integer declares an integral property. Parsed values are int64.
func Integer(name string, opts ...PropOption) Property { return newProperty(name, "integer", opts) }

// Boolean declares a boolean property.
func Boolean(name string, opts ...PropOption) Property { return newProperty(name, "boolean", opts) }

// Enum declares a string property restricted to values.
func Enum(name string, values []string, opts ...PropOption) Property {
	p := newProperty(name, "string", opts)
	p.p.enumVals = append([]string(nil), values...)
	p.p.isEnum = true
	return p
}

// Array declares a list whose elements match elem. The element's name is
// ignored and may be empty.
func Array(name string, elem Property, opts ...PropOption) Property {
	p := newProperty(name, "array", opts)
	p.p.elem = &elem
	return p
}

// Nested declares an object-valued property.
func Nested(name string, props []Property, opts ...PropOption) Property {
	p := newProperty(name, "object", opts)
	p.p.props = append([]Property(nil), props...)
	return p
}

// PropOption mutates a property configuration.
type PropOption func(*bProperty)

// Required marks the property required.
func Required() PropOption { return func(p *bProperty) { p.required = true } }

// Optional marks the property optional, which is the default.
func Optional() PropOption { return func(p *bProperty) { p.required = false } }

// Title sets the JSON Schema title.
func Title(title string) PropOption { return func(p *bProperty) { p.title = title } }

// Description adds human-readable description.
func Description(desc string) PropOption { return func(p *bProperty) { p.description = desc } }

// MinLength sets the minimum string length in characters.
func MinLength(n uint64) PropOption { return func(p *bProperty) { p.constraints.MinLength = &n } }

// MaxLength sets the maximum string length in characters.
func MaxLength(n uint64) PropOption { return func(p *bProperty) { p.constraints.MaxLength = &n } }

// Minimum sets the inclusive numeric lower bound.
func Minimum(f float64) PropOption { return func(p *bProperty) { p.constraints.Minimum = &f } }

// Maximum sets the inclusive numeric upper bound.
func Maximum(f float64) PropOption { return func(p *bProperty) { p.constraints.Maximum = &f } }

// MinItems sets the minimum array length.
func MinItems(n uint64) PropOption { return func(p *bProperty) { p.constraints.MinItems = &n } }

// MaxItems sets the maximum array length.
func MaxItems(n uint64) PropOption { return func(p *bProperty) { p.constraints.MaxItems = &n } }

// Pattern restricts strings to those matching the RE2 expression expr.
func Pattern(expr string) PropOption { return func(p *bProperty) { p.constraints.Pattern = expr } }

// Format sets the JSON Schema format. email, uri, uuid, hostname, ipv4,
// ipv6, date-time and date are checked; other formats are annotations.
func Format(format string) PropOption { return func(p *bProperty) { p.constraints.Format = format } }

// Default supplies the value used when the key is absent. A property with a
// default is never reported as missing.
func Default(v any) PropOption {
	return func(p *bProperty) {
		p.def = v
		p.hasDefault = true
	}
}

// ObjectBuilder assembles a dynamic object schema whose parsed values are
// map[string]any.
type ObjectBuilder struct {
	ns     *Namespace
	props  []Property
	strict bool
	coerce bool
}

// Object starts a builder for an object with the given properties, kept in
// declaration order.
func (ns *Namespace) Object(props ...Property) *ObjectBuilder {
	return &ObjectBuilder{ns: ns, props: append([]Property(nil), props...)}
}

// Strict reports undeclared keys as unrecognized_keys issues instead of
// stripping them.
func (b *ObjectBuilder) Strict() *ObjectBuilder {
	b.strict = true
	return b
}

// Coerce enables string to scalar coercion; see the Coerce option.
func (b *ObjectBuilder) Coerce() *ObjectBuilder {
	b.coerce = true
	return b
}

// Build validates the declaration and compiles the schema. Declaration
// mistakes (duplicate or empty names, inverted bounds, bad patterns,
// defaults that violate their own property) are returned as errors.
func (b *ObjectBuilder) Build() (*Schema[map[string]any], error) {
	ns := b.ns
	if ns == nil {
		ns = DefaultNamespace()
	}
	props := append([]Property(nil), b.props...)
	root := &bProperty{ptype: "object", props: props}
	if err := checkProperty(ns, "", root); err != nil {
		return nil, err
	}
	render := func() *jsonschema.Schema {
		doc := renderProperty(root)
		doc.Version = jsonschema.Version
		doc.ID = ns.schemaID
		return doc
	}
	s := &Schema[map[string]any]{
		ns:     ns,
		root:   render(),
		strict: b.strict,
		coerce: b.coerce,
		native: true,
	}
	s.decode = func(tree any) (map[string]any, []Issue) {
		m, _ := tree.(map[string]any)
		return m, nil
	}
	s.document = func() (*jsonschema.Schema, error) { return render(), nil }
	return s, nil
}

// MustBuild is like Build but panics on error.
func (b *ObjectBuilder) MustBuild() *Schema[map[string]any] {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func checkProperty(ns *Namespace, path string, p *bProperty) error {
	if p == nil {
		return fmt.Errorf("schema: property %s is undefined", describe(path))
	}
	c := p.constraints
	if c.MinLength != nil && c.MaxLength != nil && *c.MinLength > *c.MaxLength {
		return fmt.Errorf("schema: property %s has minLength %d greater than maxLength %d", describe(path), *c.MinLength, *c.MaxLength)
	}
	if c.Minimum != nil && c.Maximum != nil && *c.Minimum > *c.Maximum {
		return fmt.Errorf("schema: property %s has minimum %g greater than maximum %g", describe(path), *c.Minimum, *c.Maximum)
	}
	if c.MinItems != nil && c.MaxItems != nil && *c.MinItems > *c.MaxItems {
		return fmt.Errorf("schema: property %s has minItems %d greater than maxItems %d", describe(path), *c.MinItems, *c.MaxItems)
	}
	if c.Pattern != "" {
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("schema: property %s: invalid pattern: %w", describe(path), err)
		}
	}
	if p.isEnum {
		if len(p.enumVals) == 0 {
			return fmt.Errorf("schema: property %s has an empty enum", describe(path))
		}
		seen := make(map[string]struct{}, len(p.enumVals))
		for _, v := range p.enumVals {
			if _, dup := seen[v]; dup {
				return fmt.Errorf("schema: property %s has duplicate enum value %q", describe(path), v)
			}
			seen[v] = struct{}{}
		}
	}

	switch p.ptype {
	case "array":
		if p.elem == nil {
			return fmt.Errorf("schema: array property %s has no element type", describe(path))
		}
		if err := checkProperty(ns, path+"[]", p.elem.p); err != nil {
			return err
		}
	case "object":
		seen := make(map[string]struct{}, len(p.props))
		for _, child := range p.props {
			if strings.TrimSpace(child.name) == "" {
				return fmt.Errorf("schema: empty property name in %s", describe(path))
			}
			if _, dup := seen[child.name]; dup {
				return fmt.Errorf("schema: duplicate property %s", describe(joinName(path, child.name)))
			}
			seen[child.name] = struct{}{}
			if err := checkProperty(ns, joinName(path, child.name), child.p); err != nil {
				return err
			}
		}
	}

	if p.hasDefault {
		def, err := toTree(p.def)
		if err != nil {
			return fmt.Errorf("schema: property %s: encode default: %w", describe(path), err)
		}
		p.def = def
		w := &walker{
			ns:      ns,
			native:  true,
			dropped: make(map[string]struct{}),
			regexps: make(map[string]*regexp.Regexp),
		}
		node := renderProperty(p)
		node.Default = nil
		if _, keep := w.visit(node, cloneJSON(def), nil); !keep || len(w.issues) > 0 {
			msg := "value rejected"
			if len(w.issues) > 0 {
				msg = w.issues[0].Message
			}
			return fmt.Errorf("schema: property %s: default does not satisfy its own constraints: %s", describe(path), msg)
		}
	}
	return nil
}

func renderProperty(p *bProperty) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:        p.ptype,
		Title:       p.title,
		Description: p.description,
		Pattern:     p.constraints.Pattern,
		Format:      p.constraints.Format,
		MinLength:   p.constraints.MinLength,
		MaxLength:   p.constraints.MaxLength,
		MinItems:    p.constraints.MinItems,
		MaxItems:    p.constraints.MaxItems,
	}
	if m := p.constraints.Minimum; m != nil {
		s.Minimum = formatNumber(*m)
	}
	if m := p.constraints.Maximum; m != nil {
		s.Maximum = formatNumber(*m)
	}
	if len(p.enumVals) > 0 {
		s.Enum = make([]any, len(p.enumVals))
		for i, v := range p.enumVals {
			s.Enum[i] = v
		}
	}
	if p.hasDefault {
		s.Default = cloneJSON(p.def)
	}
	switch p.ptype {
	case "array":
		if p.elem != nil {
			s.Items = renderProperty(p.elem.p)
		}
	case "object":
		s.Properties = orderedmap.New[string, *jsonschema.Schema]()
		for _, child := range p.props {
			s.Properties.Set(child.name, renderProperty(child.p))
			if child.p.required {
				s.Required = append(s.Required, child.name)
			}
		}
		s.AdditionalProperties = jsonschema.FalseSchema
	}
	return s
}

func formatNumber(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
}

func joinName(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func describe(path string) string {
	if path == "" {
		return "<root>"
	}
	return strconv.Quote(path)
}
