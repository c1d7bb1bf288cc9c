package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// UnsupportedError reports a struct field whose Go type has no JSON Schema
// representation.
type UnsupportedError struct {
	// Path is the dotted JSON path of the offending field.
	Path string
	Type reflect.Type
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("schema: field %s of type %s has no JSON Schema representation", e.Path, e.Type)
}

// findUnsupported walks t and collects every type the reflector cannot
// describe. The first offending field is returned as an *UnsupportedError;
// the set is handed to the reflector so validation can still proceed with an
// unconstrained schema in their place.
func (ns *Namespace) findUnsupported(t reflect.Type) (map[reflect.Type]struct{}, error) {
	f := &unsupportedFinder{ns: ns, seen: make(map[reflect.Type]bool), bad: make(map[reflect.Type]struct{})}
	f.walk(t, nil)
	if len(f.bad) == 0 {
		return nil, nil
	}
	return f.bad, f.first
}

type unsupportedFinder struct {
	ns    *Namespace
	seen  map[reflect.Type]bool
	bad   map[reflect.Type]struct{}
	first error
}

func (f *unsupportedFinder) mapped(t reflect.Type) bool {
	for _, m := range f.ns.mappers {
		if m(t) != nil {
			return true
		}
	}
	return false
}

func (f *unsupportedFinder) walk(t reflect.Type, path []string) {
	if f.mapped(t) {
		return
	}
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		f.bad[t] = struct{}{}
		if f.first == nil {
			f.first = &UnsupportedError{Path: strings.Join(path, "."), Type: t}
		}
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
		f.walk(t.Elem(), path)
	case reflect.Struct:
		if f.seen[t] {
			return
		}
		f.seen[t] = true
		f.fields(t, path)
	}
}

func (f *unsupportedFinder) fields(t reflect.Type, path []string) {
	for _, fld := range jsonFields(t) {
		f.walk(fld.field.Type, append(append([]string(nil), path...), fld.name))
	}
}
