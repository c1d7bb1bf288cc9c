package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/invopop/jsonschema"
)

// walker checks a decoded JSON document against a JSON Schema fragment. It
// returns a rewritten copy of the document with defaults filled in and
// coercions applied, and records an Issue for every violation. Values that
// cannot be decoded into the target type are dropped from the copy and their
// path is remembered so that follow-up issues for the same location can be
// suppressed.
type walker struct {
	ns     *Namespace
	root   *jsonschema.Schema
	coerce bool
	strict bool
	// native materializes numbers as int64/float64 and rejects JSON null
	// unless the schema allows it. Builder schemas set it; reflected schemas
	// decode into Go values, where null means "leave unset".
	native bool
	// kinds holds the Go type behind numeric nodes of reflected schemas;
	// values the type cannot hold are rejected during the walk.
	kinds map[*jsonschema.Schema]reflect.Type

	issues  []Issue
	dropped map[string]struct{}
	regexps map[string]*regexp.Regexp
}

func (w *walker) fork() *walker {
	return &walker{
		ns:      w.ns,
		root:    w.root,
		coerce:  w.coerce,
		strict:  w.strict,
		native:  w.native,
		kinds:   w.kinds,
		dropped: make(map[string]struct{}),
		regexps: w.regexps,
	}
}

func (w *walker) report(is Issue) { w.issues = append(w.issues, is) }

func (w *walker) drop(path []any) { w.dropped[pathKey(path)] = struct{}{} }

func (w *walker) resolve(s *jsonschema.Schema) *jsonschema.Schema {
	for i := 0; s != nil && s.Ref != "" && i < 64; i++ {
		name, ok := strings.CutPrefix(s.Ref, "#/$defs/")
		if !ok || w.root == nil {
			return s
		}
		def, ok := w.root.Definitions[name]
		if !ok {
			return s
		}
		s = def
	}
	return s
}

func (w *walker) visit(s *jsonschema.Schema, v any, path []any) (any, bool) {
	s = w.resolve(s)
	if unconstrained(s) {
		return v, true
	}
	if v == nil {
		if !w.native || allowsNull(s) {
			return nil, true
		}
		w.typeIssue(typeName(s), v, path)
		return nil, false
	}
	if len(s.AnyOf) > 0 || len(s.OneOf) > 0 {
		return w.visitUnion(s, v, path)
	}

	var (
		out  any
		keep bool
	)
	switch s.Type {
	case "object":
		out, keep = w.visitObject(s, v, path)
	case "array":
		out, keep = w.visitArray(s, v, path)
	case "string":
		out, keep = w.visitString(s, v, path)
	case "integer":
		out, keep = w.visitNumber(s, v, path, true)
	case "number":
		out, keep = w.visitNumber(s, v, path, false)
	case "boolean":
		out, keep = w.visitBoolean(s, v, path)
	case "null":
		w.typeIssue("null", v, path)
		return nil, false
	default:
		out, keep = v, true
	}
	if !keep {
		return nil, false
	}
	w.checkEnum(s, out, path)
	return out, true
}

func (w *walker) visitUnion(s *jsonschema.Schema, v any, path []any) (any, bool) {
	branches := append(append([]*jsonschema.Schema(nil), s.AnyOf...), s.OneOf...)
	expected := make([]string, 0, len(branches))
	for _, b := range branches {
		sub := w.fork()
		out, keep := sub.visit(b, cloneJSON(v), path)
		if keep && len(sub.issues) == 0 {
			return out, true
		}
		expected = append(expected, typeName(w.resolve(b)))
	}
	w.typeIssue(strings.Join(expected, " | "), v, path)
	return nil, false
}

func (w *walker) visitObject(s *jsonschema.Schema, v any, path []any) (any, bool) {
	in, ok := v.(map[string]any)
	if !ok {
		w.typeIssue("object", v, path)
		return nil, false
	}
	out := make(map[string]any, len(in))
	known := make(map[string]struct{})
	required := make(map[string]struct{}, len(s.Required))
	for _, r := range s.Required {
		required[r] = struct{}{}
	}

	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			key, prop := el.Key, el.Value
			known[key] = struct{}{}
			raw, present := in[key]
			if !present {
				def := defaultOf(prop, w.resolve(prop))
				if def == nil {
					if _, req := required[key]; req {
						child := appendPath(path, key)
						w.report(Issue{
							Code:     CodeRequired,
							Path:     child,
							Message:  label(child) + " is required",
							Expected: typeName(w.resolve(prop)),
							Received: "undefined",
						})
						w.drop(child)
					}
					continue
				}
				raw = cloneJSON(def)
			}
			if nv, keep := w.visit(prop, raw, appendPath(path, key)); keep {
				out[key] = nv
			}
		}
	}
	for _, r := range s.Required {
		if _, declared := known[r]; declared {
			continue
		}
		if _, present := in[r]; !present {
			child := appendPath(path, r)
			w.report(Issue{Code: CodeRequired, Path: child, Message: label(child) + " is required", Received: "undefined"})
		}
	}

	var unknown []string
	for _, key := range sortedKeys(in) {
		if _, ok := known[key]; ok {
			continue
		}
		if ps := w.patternSchema(s, key); ps != nil {
			if nv, keep := w.visit(ps, in[key], appendPath(path, key)); keep {
				out[key] = nv
			}
			continue
		}
		ap := s.AdditionalProperties
		switch {
		case ap == nil && len(s.PatternProperties) == 0:
			out[key] = in[key]
		case ap != nil && !isFalseSchema(ap):
			if nv, keep := w.visit(ap, in[key], appendPath(path, key)); keep {
				out[key] = nv
			}
		default:
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 && w.strict {
		quoted := make([]string, len(unknown))
		for i, k := range unknown {
			quoted[i] = "'" + k + "'"
		}
		w.report(Issue{
			Code:    CodeUnrecognizedKeys,
			Path:    path,
			Message: "unrecognized key(s) in object: " + strings.Join(quoted, ", "),
			Input:   v,
			Keys:    unknown,
		})
	}

	if s.MinProperties != nil && uint64(len(out)) < *s.MinProperties {
		w.report(Issue{Code: CodeTooSmall, Path: path, Message: fmt.Sprintf("%s must contain at least %d properties", label(path), *s.MinProperties), Input: v, Param: strconv.FormatUint(*s.MinProperties, 10)})
	}
	if s.MaxProperties != nil && uint64(len(out)) > *s.MaxProperties {
		w.report(Issue{Code: CodeTooBig, Path: path, Message: fmt.Sprintf("%s must contain at most %d properties", label(path), *s.MaxProperties), Input: v, Param: strconv.FormatUint(*s.MaxProperties, 10)})
	}
	return out, true
}

func (w *walker) patternSchema(s *jsonschema.Schema, key string) *jsonschema.Schema {
	if len(s.PatternProperties) == 0 {
		return nil
	}
	patterns := make([]string, 0, len(s.PatternProperties))
	for p := range s.PatternProperties {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		if re := w.regexp(p); re != nil && re.MatchString(key) {
			return s.PatternProperties[p]
		}
	}
	return nil
}

func (w *walker) visitArray(s *jsonschema.Schema, v any, path []any) (any, bool) {
	in, ok := v.([]any)
	if !ok && w.coerce {
		if str, isStr := v.(string); isStr {
			in, ok = splitList(str), true
		}
	}
	if !ok {
		w.typeIssue("array", v, path)
		return nil, false
	}
	out := make([]any, len(in))
	for i, el := range in {
		// A rejected element stays as null so that later indices keep their
		// position.
		if nv, keep := w.visit(s.Items, el, appendPath(path, i)); keep {
			out[i] = nv
		}
	}
	n := uint64(len(out))
	if s.MinItems != nil && n < *s.MinItems {
		w.report(Issue{Code: CodeTooSmall, Path: path, Message: fmt.Sprintf("%s must contain at least %d item(s)", label(path), *s.MinItems), Input: v, Param: strconv.FormatUint(*s.MinItems, 10)})
	}
	if s.MaxItems != nil && n > *s.MaxItems {
		w.report(Issue{Code: CodeTooBig, Path: path, Message: fmt.Sprintf("%s must contain at most %d item(s)", label(path), *s.MaxItems), Input: v, Param: strconv.FormatUint(*s.MaxItems, 10)})
	}
	if s.UniqueItems {
		seen := make(map[string]struct{}, len(out))
		for _, el := range out {
			b, _ := json.Marshal(el)
			if _, dup := seen[string(b)]; dup {
				w.report(Issue{Code: CodeCustom, Path: path, Message: label(path) + " must contain unique items", Input: v})
				break
			}
			seen[string(b)] = struct{}{}
		}
	}
	return out, true
}

func (w *walker) visitString(s *jsonschema.Schema, v any, path []any) (any, bool) {
	str, ok := v.(string)
	if !ok && w.coerce {
		switch x := v.(type) {
		case json.Number:
			str, ok = x.String(), true
		case bool:
			str, ok = strconv.FormatBool(x), true
		}
	}
	if !ok {
		w.typeIssue("string", v, path)
		return nil, false
	}
	n := uint64(utf8.RuneCountInString(str))
	if s.MinLength != nil && n < *s.MinLength {
		w.report(Issue{Code: CodeTooSmall, Path: path, Message: fmt.Sprintf("%s must be at least %d characters", label(path), *s.MinLength), Input: str, Param: strconv.FormatUint(*s.MinLength, 10)})
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		w.report(Issue{Code: CodeTooBig, Path: path, Message: fmt.Sprintf("%s must be at most %d characters", label(path), *s.MaxLength), Input: str, Param: strconv.FormatUint(*s.MaxLength, 10)})
	}
	if s.Pattern != "" {
		if re := w.regexp(s.Pattern); re != nil && !re.MatchString(str) {
			w.report(Issue{Code: CodeInvalidString, Path: path, Message: fmt.Sprintf("%s must match pattern %s", label(path), s.Pattern), Input: str, Param: s.Pattern})
		}
	}
	if tag, ok := formatTags[s.Format]; ok && w.ns.validate.Var(str, tag) != nil {
		w.report(Issue{Code: CodeInvalidString, Path: path, Message: fmt.Sprintf("%s must be a valid %s", label(path), s.Format), Input: str, Param: s.Format})
		w.drop(path)
		return nil, false
	}
	return str, true
}

// formatTags maps JSON Schema formats onto the validator tags that check
// them.
var formatTags = map[string]string{
	"email":     "email",
	"uri":       "uri",
	"uuid":      "uuid",
	"hostname":  "hostname_rfc1123",
	"ipv4":      "ipv4",
	"ipv6":      "ipv6",
	"date-time": "datetime=2006-01-02T15:04:05Z07:00",
	"date":      "datetime=2006-01-02",
}

func (w *walker) visitNumber(s *jsonschema.Schema, v any, path []any, integer bool) (any, bool) {
	want := "number"
	if integer {
		want = "integer"
	}
	num, ok := asNumber(v)
	if !ok && w.coerce {
		if str, isStr := v.(string); isStr {
			if _, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
				num, ok = json.Number(strings.TrimSpace(str)), true
			}
		}
	}
	if !ok {
		w.typeIssue(want, v, path)
		return nil, false
	}
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		w.typeIssue(want, v, path)
		return nil, false
	}
	if integer {
		if math.Trunc(f) != f {
			w.report(Issue{Code: CodeInvalidType, Path: path, Message: "expected integer, received float", Input: v, Expected: "integer", Received: "float"})
			w.drop(path)
			return nil, false
		}
		if strings.ContainsAny(num.String(), ".eE") {
			num = json.Number(strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	if gt, ok := w.kinds[s]; ok && !w.fits(gt, num, f, path, v) {
		return nil, false
	}

	w.checkBound(s.Minimum, f, path, v, false, false)
	w.checkBound(s.ExclusiveMinimum, f, path, v, false, true)
	w.checkBound(s.Maximum, f, path, v, true, false)
	w.checkBound(s.ExclusiveMaximum, f, path, v, true, true)
	if m, err := strconv.ParseFloat(string(s.MultipleOf), 64); s.MultipleOf != "" && err == nil && m != 0 {
		if q := f / m; math.Abs(q-math.Round(q)) > 1e-9 {
			w.report(Issue{Code: CodeNotMultipleOf, Path: path, Message: fmt.Sprintf("%s must be a multiple of %s", label(path), s.MultipleOf), Input: v, Param: string(s.MultipleOf)})
		}
	}

	if !w.native {
		return num, true
	}
	if integer {
		if i, err := num.Int64(); err == nil {
			return i, true
		}
	}
	return f, true
}

// fits reports whether the Go type t can hold num, recording an issue and
// dropping path when it cannot.
func (w *walker) fits(t reflect.Type, num json.Number, f float64, path []any, input any) bool {
	var (
		lo, hi string
		err    error
	)
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits := t.Bits()
		lo = strconv.FormatInt(int64(-1)<<(bits-1), 10)
		hi = strconv.FormatInt(int64(1)<<(bits-1)-1, 10)
		_, err = strconv.ParseInt(num.String(), 10, bits)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		lo = "0"
		hi = strconv.FormatUint(uint64(math.MaxUint64)>>(64-t.Bits()), 10)
		_, err = strconv.ParseUint(num.String(), 10, t.Bits())
	case reflect.Float32:
		lo = strconv.FormatFloat(-math.MaxFloat32, 'g', -1, 32)
		hi = strconv.FormatFloat(math.MaxFloat32, 'g', -1, 32)
		if math.Abs(f) > math.MaxFloat32 {
			err = strconv.ErrRange
		}
	default:
		return true
	}
	if err == nil {
		return true
	}
	is := Issue{
		Code:    CodeTooBig,
		Path:    path,
		Message: fmt.Sprintf("%s must be between %s and %s to fit %s", label(path), lo, hi, t.Kind()),
		Input:   input,
		Param:   hi,
	}
	if f < 0 {
		is.Code, is.Param = CodeTooSmall, lo
	}
	w.report(is)
	w.drop(path)
	return false
}

func (w *walker) checkBound(bound json.Number, f float64, path []any, input any, upper, exclusive bool) {
	if bound == "" {
		return
	}
	b, err := strconv.ParseFloat(string(bound), 64)
	if err != nil {
		return
	}
	switch {
	case !upper && !exclusive && f < b:
		w.report(Issue{Code: CodeTooSmall, Path: path, Message: fmt.Sprintf("%s must be greater than or equal to %s", label(path), bound), Input: input, Param: string(bound)})
	case !upper && exclusive && f <= b:
		w.report(Issue{Code: CodeTooSmall, Path: path, Message: fmt.Sprintf("%s must be greater than %s", label(path), bound), Input: input, Param: string(bound)})
	case upper && !exclusive && f > b:
		w.report(Issue{Code: CodeTooBig, Path: path, Message: fmt.Sprintf("%s must be less than or equal to %s", label(path), bound), Input: input, Param: string(bound)})
	case upper && exclusive && f >= b:
		w.report(Issue{Code: CodeTooBig, Path: path, Message: fmt.Sprintf("%s must be less than %s", label(path), bound), Input: input, Param: string(bound)})
	}
}

func (w *walker) visitBoolean(s *jsonschema.Schema, v any, path []any) (any, bool) {
	b, ok := v.(bool)
	if !ok && w.coerce {
		if str, isStr := v.(string); isStr {
			if pb, err := strconv.ParseBool(strings.TrimSpace(str)); err == nil {
				b, ok = pb, true
			}
		}
	}
	if !ok {
		w.typeIssue("boolean", v, path)
		return nil, false
	}
	return b, true
}

func (w *walker) checkEnum(s *jsonschema.Schema, v any, path []any) {
	if len(s.Enum) == 0 {
		return
	}
	for _, ev := range s.Enum {
		if jsonEqual(ev, v) {
			return
		}
	}
	opts := make([]string, len(s.Enum))
	for i, ev := range s.Enum {
		b, _ := json.Marshal(ev)
		opts[i] = string(b)
	}
	b, _ := json.Marshal(v)
	w.report(Issue{
		Code:    CodeInvalidEnumValue,
		Path:    path,
		Message: fmt.Sprintf("%s must be one of %s, received %s", label(path), strings.Join(opts, " | "), b),
		Input:   v,
		Param:   strings.Join(opts, " "),
	})
}

func (w *walker) typeIssue(expected string, v any, path []any) {
	received := jsonType(v)
	w.report(Issue{
		Code:     CodeInvalidType,
		Path:     path,
		Message:  fmt.Sprintf("expected %s, received %s", expected, received),
		Input:    v,
		Expected: expected,
		Received: received,
	})
	w.drop(path)
}

func (w *walker) regexp(expr string) *regexp.Regexp {
	if re, ok := w.regexps[expr]; ok {
		return re
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	w.regexps[expr] = re
	return re
}

func unconstrained(s *jsonschema.Schema) bool {
	if s == nil {
		return true
	}
	return s.Type == "" && s.Ref == "" && s.Properties == nil && s.Items == nil &&
		len(s.Enum) == 0 && len(s.AnyOf) == 0 && len(s.OneOf) == 0 && len(s.AllOf) == 0 &&
		s.Not == nil && s.AdditionalProperties == nil && len(s.PatternProperties) == 0
}

func isFalseSchema(s *jsonschema.Schema) bool {
	if s == jsonschema.FalseSchema {
		return true
	}
	return s.Not != nil && unconstrained(s.Not) && s.Type == "" && s.Properties == nil
}

func allowsNull(s *jsonschema.Schema) bool {
	if s.Type == "null" {
		return true
	}
	for _, b := range append(append([]*jsonschema.Schema(nil), s.AnyOf...), s.OneOf...) {
		if b != nil && b.Type == "null" {
			return true
		}
	}
	return false
}

func defaultOf(prop, resolved *jsonschema.Schema) any {
	if prop != nil && prop.Default != nil {
		return prop.Default
	}
	if resolved != nil {
		return resolved.Default
	}
	return nil
}

func typeName(s *jsonschema.Schema) string {
	if s == nil || s.Type == "" {
		return "value"
	}
	return s.Type
}

func jsonType(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func asNumber(v any) (json.Number, bool) {
	switch x := v.(type) {
	case json.Number:
		return x, true
	case float64:
		return json.Number(strconv.FormatFloat(x, 'f', -1, 64)), true
	case int64:
		return json.Number(strconv.FormatInt(x, 10)), true
	case int:
		return json.Number(strconv.Itoa(x)), true
	default:
		return "", false
	}
}

// label names the value at path in messages: the last object key, or the
// full dotted path when the value is an array element.
func label(path []any) string {
	if len(path) == 0 {
		return "value"
	}
	if s, ok := path[len(path)-1].(string); ok {
		return s
	}
	return renderPath(path)
}

// splitList turns a comma separated string into a list, the way
// environment-sourced configuration encodes arrays.
func splitList(s string) []any {
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
