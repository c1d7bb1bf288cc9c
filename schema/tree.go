package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// toTree converts an arbitrary input into the generic JSON representation
// the walker operates on: map[string]any, []any, string, bool, json.Number
// and nil. Byte slices are treated as JSON text.
func toTree(input any) (any, error) {
	var raw []byte
	switch v := input.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return out, nil
}

func cloneJSON(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = cloneJSON(el)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = cloneJSON(el)
		}
		return out
	default:
		return v
	}
}

// mergeTree overlays src onto dst; objects merge key by key and everything
// else in src replaces what dst holds.
func mergeTree(dst, src any) any {
	dm, dok := dst.(map[string]any)
	sm, sok := src.(map[string]any)
	if !dok || !sok {
		if src == nil {
			return dst
		}
		return src
	}
	for k, v := range sm {
		if cur, ok := dm[k]; ok {
			dm[k] = mergeTree(cur, v)
			continue
		}
		dm[k] = v
	}
	return dm
}

func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
