package schema

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// fieldIssues converts the error returned by validator.Struct into issues,
// preserving the order in which the validator reported them. tree is the
// document that was decoded into a value of type t; it disambiguates map keys
// in validator namespaces.
func (ns *Namespace) fieldIssues(err error, tree any, t reflect.Type) []Issue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Code: CodeCustom, Message: err.Error()}}
	}
	out := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		path := namespacePathIn(fe.Namespace(), tree)
		out = append(out, ns.fieldIssue(fe, path, fe.Field()))
		out = append(out, ns.remainingIssues(fe, path, rulesAt(t, path))...)
	}
	return out
}

func (ns *Namespace) fieldIssue(fe validator.FieldError, path []any, field string) Issue {
	return Issue{
		Code:       codeFor(fe),
		Path:       path,
		Message:    ns.translate(fe, field),
		Input:      fe.Value(),
		Param:      fe.Param(),
		FieldError: fe,
	}
}

// remainingIssues checks, one at a time, the rules following the one fe
// failed on. The validator stops at the first failing rule of a field, so
// without this a value breaking two rules would yield one issue.
func (ns *Namespace) remainingIssues(fe validator.FieldError, path []any, rules []string) []Issue {
	if strings.HasPrefix(fe.Tag(), "required") || fe.Value() == nil {
		return nil
	}
	i := slices.IndexFunc(rules, func(r string) bool {
		name, _, _ := strings.Cut(r, "=")
		return r == fe.Tag() || name == fe.Tag()
	})
	if i < 0 {
		return nil
	}
	var out []Issue
	for _, r := range rules[i+1:] {
		if !standalone(r) {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(ns.validate.Var(fe.Value(), r), &verrs) {
			continue
		}
		for _, next := range verrs {
			out = append(out, ns.fieldIssue(next, path, fe.Field()))
		}
	}
	return out
}

// standalone reports whether rule can be evaluated on a value alone, without
// its parent struct or siblings.
func standalone(rule string) bool {
	name, _, _ := strings.Cut(rule, "=")
	switch name {
	case "", "omitempty", "omitnil", "omitzero", "dive", "keys", "endkeys", "isdefault":
		return false
	}
	return !strings.HasPrefix(name, "required") && !strings.HasPrefix(name, "excluded") &&
		!strings.Contains(name, "field")
}

// rulesAt returns the `validate` rules governing the value at path within t.
// Elements of slices, arrays and maps take the rules following "dive".
func rulesAt(t reflect.Type, path []any) []string {
	var rules []string
	for _, seg := range path {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		switch t.Kind() {
		case reflect.Struct:
			name, ok := seg.(string)
			if !ok {
				return nil
			}
			fields := jsonFields(t)
			i := slices.IndexFunc(fields, func(f jsonField) bool { return f.name == name })
			if i < 0 {
				return nil
			}
			fld := fields[i].field
			t, rules = fld.Type, splitRules(fld.Tag.Get("validate"))
		case reflect.Slice, reflect.Array, reflect.Map:
			i := slices.Index(rules, "dive")
			if i < 0 {
				return nil
			}
			t, rules = t.Elem(), skipKeys(rules[i+1:])
		default:
			return nil
		}
	}
	if i := slices.Index(rules, "dive"); i >= 0 {
		rules = rules[:i]
	}
	return rules
}

func codeFor(fe validator.FieldError) Code {
	switch fe.Tag() {
	case "required", "required_if", "required_unless", "required_with", "required_with_all",
		"required_without", "required_without_all":
		return CodeRequired
	case "min", "gte", "gt":
		return CodeTooSmall
	case "max", "lte", "lt":
		return CodeTooBig
	case "len":
		if size, ok := sizeOf(fe.Value()); ok {
			if want, err := strconv.ParseFloat(fe.Param(), 64); err == nil && size < want {
				return CodeTooSmall
			}
		}
		return CodeTooBig
	case "oneof", "oneofci":
		return CodeInvalidEnumValue
	case "email", "url", "http_url", "uri", "uuid", "uuid4", "hostname", "hostname_rfc1123", "fqdn",
		"ip", "ipv4", "ipv6", "cidr", "datetime", "base64", "base64url", "alpha", "alphanum", "numeric",
		"hexadecimal", "lowercase", "uppercase", "contains", "excludes", "startswith", "endswith", "e164":
		return CodeInvalidString
	default:
		return CodeCustom
	}
}

func sizeOf(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return float64(utf8.RuneCountInString(rv.String())), true
	case reflect.Slice, reflect.Array, reflect.Map:
		return float64(rv.Len()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// namespacePath splits a validator namespace such as
// "Config.settings[1].value" into path segments, dropping the leading
// struct type name: ["settings", 1, "value"].
func namespacePath(ns string) []any { return namespacePathIn(ns, nil) }

// namespacePathIn is namespacePath guided by the document the namespace
// refers to. Map keys may contain ".", "[" or "]"; where the delimiters are
// ambiguous, the split naming a key present in tree wins.
func namespacePathIn(ns string, tree any) []any {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return nil
	}
	var path []any
	node := tree
	for rest != "" {
		var seg any
		if rest[0] == '[' {
			seg, rest = bracketSegment(rest[1:], node)
		} else {
			seg, rest = fieldSegment(rest, node)
		}
		path = append(path, seg)
		node = childOf(node, seg)
		rest = strings.TrimPrefix(rest, ".")
	}
	return path
}

func fieldSegment(s string, node any) (any, string) {
	m, _ := node.(map[string]any)
	first := -1
	for k := 0; k <= len(s); k++ {
		if k < len(s) && s[k] != '.' && s[k] != '[' {
			continue
		}
		if first < 0 {
			first = k
		}
		if _, ok := m[s[:k]]; ok {
			return s[:k], s[k:]
		}
	}
	return s[:first], s[first:]
}

func bracketSegment(s string, node any) (any, string) {
	m, isMap := node.(map[string]any)
	first := -1
	for k := 0; k < len(s); k++ {
		if s[k] != ']' || (k+1 < len(s) && s[k+1] != '.' && s[k+1] != '[') {
			continue
		}
		if first < 0 {
			first = k
		}
		if _, ok := m[s[:k]]; ok {
			return s[:k], s[k+1:]
		}
	}
	if first < 0 {
		return s, ""
	}
	inner := s[:first]
	if !isMap {
		if n, err := strconv.Atoi(inner); err == nil {
			return n, s[first+1:]
		}
	}
	return inner, s[first+1:]
}

func childOf(node, seg any) any {
	switch n := node.(type) {
	case map[string]any:
		if k, ok := seg.(string); ok {
			return n[k]
		}
	case []any:
		if i, ok := seg.(int); ok && i >= 0 && i < len(n) {
			return n[i]
		}
	}
	return nil
}

// errorMessageTemplates maps validation tags to message templates.
// Templates use %s for the field name.
var errorMessageTemplates = map[string]string{
	"required":  "%s is required",
	"email":     "%s must be a valid email address",
	"url":       "%s must be a valid URL",
	"uri":       "%s must be a valid URI",
	"uuid":      "%s must be a valid UUID",
	"hostname":  "%s must be a valid hostname",
	"ip":        "%s must be a valid IP address",
	"ipv4":      "%s must be a valid IPv4 address",
	"ipv6":      "%s must be a valid IPv6 address",
	"datetime":  "%s must be a valid date/time",
	"base64url": "%s must be valid base64url encoded",
	"base64":    "%s must be valid base64 encoded",
}

// errorMessageWithParam maps validation tags to templates that include param.
var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func (ns *Namespace) translate(fe validator.FieldError, field string) string {
	tag := fe.Tag()
	param := fe.Param()

	if custom, ok := ns.message(tag); ok {
		if strings.Contains(custom, "%s") {
			return fmt.Sprintf(custom, field)
		}
		return custom
	}
	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind() == reflect.String
	isCollection := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array || fe.Kind() == reflect.Map
	switch tag {
	case "min":
		switch {
		case isString:
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		case isCollection:
			return fmt.Sprintf("%s must contain at least %s item(s)", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		switch {
		case isString:
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		case isCollection:
			return fmt.Sprintf("%s must contain at most %s item(s)", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "len":
		if isString {
			return fmt.Sprintf("%s must be exactly %s characters", field, param)
		}
		return fmt.Sprintf("%s must have length %s", field, param)
	default:
		if param != "" {
			return fmt.Sprintf("%s failed %s=%s validation", field, tag, param)
		}
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
