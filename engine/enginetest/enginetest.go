// Package enginetest provides a reusable conformance suite for
// engine.Validator implementations.
package enginetest

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ggoodman/confengine-go/engine"
)

// EngineFactory creates the validator under test.
type EngineFactory[T any] func(t *testing.T) engine.Validator[T]

// Case is one candidate and the outcome the validator must produce for it.
type Case struct {
	Name  string
	Input any
	Valid bool
	// Paths, when non-nil, lists the issue paths a rejected candidate must
	// produce, in order.
	Paths []string
}

// RunEngineTests runs the complete Validator test suite against the provided
// factory and cases. The validator's schema must be expressible as JSON
// Schema.
func RunEngineTests[T any](t *testing.T, factory EngineFactory[T], cases []Case) {
	t.Run("Validate_Cases", func(t *testing.T) { testCases(t, factory, cases) })
	t.Run("Validate_Idempotent", func(t *testing.T) { testIdempotent(t, factory, cases) })
	t.Run("Validate_Concurrent", func(t *testing.T) { testConcurrent(t, factory, cases) })
	t.Run("JSONSchema_CompactPrettyEquivalent", func(t *testing.T) { testCompactPrettyEquivalent(t, factory) })
	t.Run("JSONSchema_DefaultIsCompact", func(t *testing.T) { testDefaultIsCompact(t, factory) })
	t.Run("JSONSchema_Deterministic", func(t *testing.T) { testDeterministic(t, factory) })
}

func testCases[T any](t *testing.T, factory EngineFactory[T], cases []Case) {
	v := factory(t)
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			out := v.Validate(tc.Input)
			if out.Success != tc.Valid {
				t.Fatalf("expected success=%v, got %v (issues: %v)", tc.Valid, out.Success, out.Err())
			}
			if out.Success {
				if len(out.Errors) != 0 {
					t.Fatalf("successful outcome must not carry issues: %v", out.Errors)
				}
				return
			}
			if len(out.Errors) == 0 {
				t.Fatalf("failed outcome must carry at least one issue")
			}
			for _, is := range out.Errors {
				if is.Details == "" || is.Message == "" {
					t.Fatalf("issue missing details or message: %+v", is)
				}
				if is.Details != string(is.Raw.Code) {
					t.Fatalf("details %q does not match raw code %q", is.Details, is.Raw.Code)
				}
			}
			if tc.Paths != nil {
				got := make([]string, len(out.Errors))
				for i, is := range out.Errors {
					got[i] = is.Path
				}
				if !reflect.DeepEqual(got, tc.Paths) {
					t.Fatalf("expected paths %q, got %q", tc.Paths, got)
				}
			}
		})
	}
}

type summary struct {
	success bool
	value   any
	issues  []string
}

func summarize[T any](out engine.Outcome[T]) summary {
	s := summary{success: out.Success, value: out.Value}
	for _, is := range out.Errors {
		s.issues = append(s.issues, is.Path+"|"+is.Details+"|"+is.Message)
	}
	return s
}

func testIdempotent[T any](t *testing.T, factory EngineFactory[T], cases []Case) {
	v := factory(t)
	for _, tc := range cases {
		a, b := summarize(v.Validate(tc.Input)), summarize(v.Validate(tc.Input))
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s: repeated validation disagrees: %+v vs %+v", tc.Name, a, b)
		}
	}
}

func testConcurrent[T any](t *testing.T, factory EngineFactory[T], cases []Case) {
	v := factory(t)
	want := make([]summary, len(cases))
	for i, tc := range cases {
		want[i] = summarize(v.Validate(tc.Input))
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan string, workers*len(cases))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, tc := range cases {
				if got := summarize(v.Validate(tc.Input)); !reflect.DeepEqual(got, want[i]) {
					errs <- tc.Name
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for name := range errs {
		t.Fatalf("%s: concurrent validation disagrees with sequential result", name)
	}
}

func testCompactPrettyEquivalent[T any](t *testing.T, factory EngineFactory[T]) {
	v := factory(t)
	compact, err := v.ToJSONSchema()
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	pretty, err := v.ToJSONSchema(true)
	if err != nil {
		t.Fatalf("pretty: %v", err)
	}
	if strings.Contains(compact, "\n") {
		t.Fatalf("compact output must be a single line")
	}
	if len(compact) > 2 && !strings.Contains(pretty, "\n  ") {
		t.Fatalf("pretty output must be indented by two spaces:\n%s", pretty)
	}
	var a, b any
	if err := json.Unmarshal([]byte(compact), &a); err != nil {
		t.Fatalf("compact output is not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(pretty), &b); err != nil {
		t.Fatalf("pretty output is not JSON: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("compact and pretty outputs differ structurally")
	}
}

func testDefaultIsCompact[T any](t *testing.T, factory EngineFactory[T]) {
	v := factory(t)
	def, err := v.ToJSONSchema()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	explicit, err := v.ToJSONSchema(false)
	if err != nil {
		t.Fatalf("explicit: %v", err)
	}
	if def != explicit {
		t.Fatalf("ToJSONSchema() and ToJSONSchema(false) differ")
	}
}

func testDeterministic[T any](t *testing.T, factory EngineFactory[T]) {
	v := factory(t)
	for _, pretty := range []bool{false, true} {
		a, err := v.ToJSONSchema(pretty)
		if err != nil {
			t.Fatalf("first: %v", err)
		}
		b, err := v.ToJSONSchema(pretty)
		if err != nil {
			t.Fatalf("second: %v", err)
		}
		if a != b {
			t.Fatalf("pretty=%v: output is not deterministic", pretty)
		}
	}
}
