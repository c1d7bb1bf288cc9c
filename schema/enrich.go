package schema

import (
	"encoding/json"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// enrich copies the constraints expressed as `validate` tags onto the
// reflected document so that the published JSON Schema describes the same
// bounds the validator enforces. Rules that have no JSON Schema counterpart,
// cross-field rules and "|" alternatives are left out.
func enrich(root *jsonschema.Schema, t reflect.Type) {
	e := &enricher{root: root, install: true, done: make(map[*jsonschema.Schema]bool)}
	e.object(root, t)
}

// numericKinds maps every numeric node of root to the Go type of the field
// it was reflected from, leaving the document unchanged.
func numericKinds(root *jsonschema.Schema, t reflect.Type) map[*jsonschema.Schema]reflect.Type {
	e := &enricher{root: root, done: make(map[*jsonschema.Schema]bool), kinds: make(map[*jsonschema.Schema]reflect.Type)}
	e.object(root, t)
	return e.kinds
}

type enricher struct {
	root    *jsonschema.Schema
	install bool
	done    map[*jsonschema.Schema]bool
	kinds   map[*jsonschema.Schema]reflect.Type
}

func (e *enricher) resolve(s *jsonschema.Schema) *jsonschema.Schema {
	for i := 0; s != nil && s.Ref != "" && i < 64; i++ {
		name, ok := strings.CutPrefix(s.Ref, "#/$defs/")
		if !ok {
			return s
		}
		def, ok := e.root.Definitions[name]
		if !ok {
			return s
		}
		s = def
	}
	return s
}

func (e *enricher) object(node *jsonschema.Schema, t reflect.Type) {
	node = e.resolve(node)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if node == nil || node.Properties == nil || t.Kind() != reflect.Struct || e.done[node] {
		return
	}
	e.done[node] = true
	for _, f := range jsonFields(t) {
		prop, ok := node.Properties.Get(f.name)
		if !ok || prop == nil {
			continue
		}
		e.apply(node, f.name, prop, f.field.Type, splitRules(f.field.Tag.Get("validate")))
	}
}

// apply installs rules on prop and descends into the element and field
// schemas of t. Rules following "dive" apply to the elements.
func (e *enricher) apply(parent *jsonschema.Schema, name string, prop *jsonschema.Schema, t reflect.Type, rules []string) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if e.kinds != nil && (isNumeric(t.Kind()) || t.Kind() == reflect.Uintptr) {
		e.kinds[e.resolve(prop)] = t
	}
	var elemRules []string
	for i, r := range rules {
		if r == "dive" {
			elemRules = skipKeys(rules[i+1:])
			break
		}
		if !e.install || strings.Contains(r, "|") {
			continue
		}
		tag, param, _ := strings.Cut(r, "=")
		if tag == "required" {
			if parent != nil && !slices.Contains(parent.Required, name) {
				parent.Required = append(parent.Required, name)
			}
			continue
		}
		constrain(prop, t.Kind(), tag, param)
	}

	switch t.Kind() {
	case reflect.Struct:
		e.object(prop, t)
	case reflect.Slice, reflect.Array:
		if items := e.resolve(prop).Items; items != nil {
			e.apply(nil, "", items, t.Elem(), elemRules)
		}
	case reflect.Map:
		if ap := e.resolve(prop).AdditionalProperties; ap != nil && !isFalseSchema(ap) {
			e.apply(nil, "", ap, t.Elem(), elemRules)
		}
	}
}

func constrain(s *jsonschema.Schema, kind reflect.Kind, tag, param string) {
	switch tag {
	case "min", "gte":
		setLower(s, kind, param, 0)
	case "gt":
		if isNumeric(kind) {
			if validNumber(param) {
				s.ExclusiveMinimum = json.Number(param)
			}
			return
		}
		setLower(s, kind, param, 1)
	case "max", "lte":
		setUpper(s, kind, param, 0)
	case "lt":
		if isNumeric(kind) {
			if validNumber(param) {
				s.ExclusiveMaximum = json.Number(param)
			}
			return
		}
		setUpper(s, kind, param, 1)
	case "len":
		setLower(s, kind, param, 0)
		setUpper(s, kind, param, 0)
	case "oneof":
		if len(s.Enum) == 0 {
			s.Enum = enumValues(kind, param)
		}
	case "startswith":
		if s.Pattern == "" && param != "" {
			s.Pattern = "^" + regexp.QuoteMeta(param)
		}
	case "endswith":
		if s.Pattern == "" && param != "" {
			s.Pattern = regexp.QuoteMeta(param) + "$"
		}
	default:
		if f, ok := tagFormats[tag]; ok && s.Format == "" {
			s.Format = f
		}
		if tag == "datetime" && s.Format == "" {
			switch param {
			case "2006-01-02T15:04:05Z07:00":
				s.Format = "date-time"
			case "2006-01-02":
				s.Format = "date"
			}
		}
	}
}

var tagFormats = map[string]string{
	"email":            "email",
	"uri":              "uri",
	"url":              "uri",
	"http_url":         "uri",
	"uuid":             "uuid",
	"uuid4":            "uuid",
	"hostname":         "hostname",
	"hostname_rfc1123": "hostname",
	"ipv4":             "ipv4",
	"ipv6":             "ipv6",
	"ip4_addr":         "ipv4",
	"ip6_addr":         "ipv6",
}

func setLower(s *jsonschema.Schema, kind reflect.Kind, param string, bump uint64) {
	if isNumeric(kind) {
		if validNumber(param) {
			s.Minimum = json.Number(param)
		}
		return
	}
	n, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return
	}
	n += bump
	switch kind {
	case reflect.String:
		s.MinLength = &n
	case reflect.Slice, reflect.Array:
		s.MinItems = &n
	case reflect.Map:
		s.MinProperties = &n
	}
}

func setUpper(s *jsonschema.Schema, kind reflect.Kind, param string, drop uint64) {
	if isNumeric(kind) {
		if validNumber(param) {
			s.Maximum = json.Number(param)
		}
		return
	}
	n, err := strconv.ParseUint(param, 10, 64)
	if err != nil || n < drop {
		return
	}
	n -= drop
	switch kind {
	case reflect.String:
		s.MaxLength = &n
	case reflect.Slice, reflect.Array:
		s.MaxItems = &n
	case reflect.Map:
		s.MaxProperties = &n
	}
}

func enumValues(kind reflect.Kind, param string) []any {
	fields := strings.Fields(param)
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		switch {
		case kind == reflect.String:
			out = append(out, f)
		case isNumeric(kind):
			if !validNumber(f) {
				return nil
			}
			out = append(out, json.Number(f))
		default:
			return nil
		}
	}
	return out
}

func isNumeric(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func validNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func splitRules(tag string) []string {
	if tag == "" || tag == "-" {
		return nil
	}
	return strings.Split(tag, ",")
}

// skipKeys removes a keys...endkeys section, which constrains map keys.
func skipKeys(rules []string) []string {
	if len(rules) == 0 || rules[0] != "keys" {
		return rules
	}
	for i, r := range rules {
		if r == "endkeys" {
			return rules[i+1:]
		}
	}
	return nil
}

type jsonField struct {
	name  string
	field reflect.StructField
}

// jsonFields lists the exported fields of t under their JSON names, with
// untagged embedded structs flattened into their parent.
func jsonFields(t reflect.Type) []jsonField {
	var out []jsonField
	for i := 0; i < t.NumField(); i++ {
		fld := t.Field(i)
		if !fld.IsExported() && !fld.Anonymous {
			continue
		}
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if fld.Anonymous && name == "" {
			ft := fld.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				out = append(out, jsonFields(ft)...)
				continue
			}
			if !fld.IsExported() {
				continue
			}
		}
		if name == "" {
			name = fld.Name
		}
		out = append(out, jsonField{name: name, field: fld})
	}
	return out
}
