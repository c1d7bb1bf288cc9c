package engine_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/ggoodman/confengine-go/engine"
	"github.com/ggoodman/confengine-go/engine/enginetest"
	"github.com/ggoodman/confengine-go/internal/logctx"
	"github.com/ggoodman/confengine-go/schema"
)

type person struct {
	Name string `json:"name" validate:"required,min=1"`
	Age  int    `json:"age" validate:"gte=0"`
}

type settings struct {
	User struct {
		Profile struct {
			Preferences struct {
				Theme string `json:"theme" validate:"oneof=light dark"`
			} `json:"preferences"`
		} `json:"profile"`
	} `json:"user"`
}

type streams struct {
	Name   string   `json:"name"`
	Events chan int `json:"events"`
}

func personFactory(ns *schema.Namespace) (*schema.Schema[person], error) {
	return schema.Reflect[person](ns)
}

func TestNew_FromSchemaAndFactoryAgree(t *testing.T) {
	direct, err := engine.New[person](schema.MustReflect[person](schema.NewNamespace()))
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	viaFactory, err := engine.New[person](personFactory, engine.WithNamespace(schema.NewNamespace()))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	inputs := []any{
		map[string]any{"name": "John", "age": 30},
		map[string]any{"name": "", "age": -5},
		[]byte(`{"name":"x"}`),
		nil,
	}
	for _, in := range inputs {
		a, b := direct.Validate(in), viaFactory.Validate(in)
		if a.Success != b.Success || !reflect.DeepEqual(a.Value, b.Value) || len(a.Errors) != len(b.Errors) {
			t.Fatalf("outcomes differ for %v: %+v vs %+v", in, a, b)
		}
		for i := range a.Errors {
			if a.Errors[i].Path != b.Errors[i].Path || a.Errors[i].Details != b.Errors[i].Details {
				t.Fatalf("issue %d differs: %+v vs %+v", i, a.Errors[i], b.Errors[i])
			}
		}
	}

	sa, _ := direct.ToJSONSchema()
	sb, _ := viaFactory.ToJSONSchema()
	if sa != sb {
		t.Fatalf("JSON Schema differs:\n%s\n%s", sa, sb)
	}
}

func TestNew_FactoryReceivesNamespaceOnce(t *testing.T) {
	ns := schema.NewNamespace()
	calls := 0
	var got *schema.Namespace
	factory := engine.Factory[person](func(n *schema.Namespace) (*schema.Schema[person], error) {
		calls++
		got = n
		return schema.Reflect[person](n)
	})
	eng, err := engine.New[person](factory, engine.WithNamespace(ns))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 3; i++ {
		eng.Validate(map[string]any{"name": "a"})
	}
	if calls != 1 {
		t.Fatalf("expected factory to run once, ran %d times", calls)
	}
	if got != ns {
		t.Fatalf("factory did not receive the configured namespace")
	}
	if eng.Schema().Namespace() != ns {
		t.Fatalf("schema was not built from the configured namespace")
	}
}

func TestNew_DefaultNamespace(t *testing.T) {
	var got *schema.Namespace
	_, err := engine.New[person](func(n *schema.Namespace) (*schema.Schema[person], error) {
		got = n
		return schema.Reflect[person](n)
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got != schema.DefaultNamespace() {
		t.Fatalf("factory must receive the default namespace")
	}
}

func TestNew_ConstructionErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := engine.New[person](func(*schema.Namespace) (*schema.Schema[person], error) { return nil, boom })
	var ce *engine.ConstructionError
	if !errors.As(err, &ce) || !errors.Is(err, boom) {
		t.Fatalf("expected ConstructionError wrapping factory error, got %v", err)
	}

	_, err = engine.New[person](func(*schema.Namespace) (*schema.Schema[person], error) { return nil, nil })
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConstructionError for nil schema, got %v", err)
	}

	var nilSchema *schema.Schema[person]
	if _, err := engine.New[person](nilSchema); !errors.As(err, &ce) {
		t.Fatalf("expected ConstructionError for nil schema, got %v", err)
	}

	var nilFactory engine.Factory[person]
	if _, err := engine.New[person](nilFactory); !errors.As(err, &ce) {
		t.Fatalf("expected ConstructionError for nil factory, got %v", err)
	}
}

func TestMustNew_Panics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !strings.Contains(err.Error(), "boom") {
			t.Fatalf("expected panic carrying factory error, got %v", r)
		}
	}()
	engine.MustNew[person](func(*schema.Namespace) (*schema.Schema[person], error) {
		return nil, errors.New("boom")
	})
}

func TestValidate_Success(t *testing.T) {
	eng := engine.MustNew[person](personFactory)
	out := eng.Validate(map[string]any{"name": "John", "age": 30})
	if !out.Success {
		t.Fatalf("expected success, got %v", out.Err())
	}
	if out.Value != (person{Name: "John", Age: 30}) {
		t.Fatalf("unexpected value %+v", out.Value)
	}
	if out.Err() != nil {
		t.Fatalf("Err must be nil on success")
	}
}

func TestValidate_Failure(t *testing.T) {
	eng := engine.MustNew[person](personFactory)
	out := eng.Validate(map[string]any{"name": "", "age": -5})
	if out.Success {
		t.Fatalf("expected failure")
	}
	if len(out.Errors) != 2 {
		t.Fatalf("expected 2 issues, got %+v", out.Errors)
	}
	name, age := out.Errors[0], out.Errors[1]
	if name.Path != "name" || name.Details != "required" || name.Input != "" {
		t.Fatalf("unexpected name issue %+v", name)
	}
	if age.Path != "age" || age.Details != "too_small" || age.Input != -5 {
		t.Fatalf("unexpected age issue %+v", age)
	}
	if age.Raw.FieldError == nil || age.Raw.FieldError.Tag() != "gte" {
		t.Fatalf("raw issue must carry the validator error")
	}

	var ve *engine.ValidationError
	if err := out.Err(); !errors.As(err, &ve) || len(ve.Issues) != 2 {
		t.Fatalf("expected ValidationError with 2 issues, got %v", err)
	}
	if got := out.Err().Error(); !strings.HasPrefix(got, "validation failed: name: ") {
		t.Fatalf("unexpected error text %q", got)
	}
}

func TestValidate_NestedPath(t *testing.T) {
	eng := engine.MustNew[settings](func(ns *schema.Namespace) (*schema.Schema[settings], error) {
		return schema.Reflect[settings](ns)
	})
	out := eng.Validate([]byte(`{"user":{"profile":{"preferences":{"theme":"blue"}}}}`))
	if out.Success {
		t.Fatalf("expected failure")
	}
	if len(out.Errors) != 1 || out.Errors[0].Path != "user.profile.preferences.theme" {
		t.Fatalf("unexpected issues %+v", out.Errors)
	}
	if out.Errors[0].Details != "invalid_enum_value" {
		t.Fatalf("unexpected details %q", out.Errors[0].Details)
	}
}

func TestValidate_RootFailureHasEmptyPath(t *testing.T) {
	eng := engine.MustNew[person](personFactory)
	out := eng.Validate("not an object")
	if out.Success || len(out.Errors) != 1 {
		t.Fatalf("expected one issue, got %+v", out)
	}
	if out.Errors[0].Path != "" || out.Errors[0].Details != "invalid_type" {
		t.Fatalf("unexpected issue %+v", out.Errors[0])
	}
}

func TestValidate_ArrayIndexInPath(t *testing.T) {
	s := schema.NewNamespace().Object(
		schema.Array("servers", schema.Nested("", []schema.Property{
			schema.Integer("port", schema.Required(), schema.Minimum(1)),
		})),
	).MustBuild()
	eng := engine.MustNew[map[string]any](s)
	out := eng.Validate(map[string]any{"servers": []any{
		map[string]any{"port": 80},
		map[string]any{"port": 0},
	}})
	if out.Success || len(out.Errors) != 1 || out.Errors[0].Path != "servers.1.port" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestValidate_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	eng := engine.MustNew[person](personFactory, engine.WithLogger(logger))
	eng.Validate(map[string]any{"name": ""})
	if !strings.Contains(buf.String(), `"msg":"engine.validate.fail"`) || !strings.Contains(buf.String(), `"first_path":"name"`) {
		t.Fatalf("expected failure record, got %s", buf.String())
	}
}

func TestValidate_LogsSnapshotFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	eng := engine.MustNew[person](personFactory, engine.WithLogger(logger))

	ctx := logctx.WithSnapshotData(context.Background(), &logctx.SnapshotData{Generation: 7, Source: "app.yaml"})
	eng.ValidateContext(ctx, map[string]any{"name": ""})
	if !strings.Contains(buf.String(), `"snap":{"gen":7,"source":"app.yaml"}`) {
		t.Fatalf("expected snapshot group, got %s", buf.String())
	}
}

func TestToJSONSchema(t *testing.T) {
	eng := engine.MustNew[person](personFactory)
	compact, err := eng.ToJSONSchema()
	if err != nil {
		t.Fatalf("ToJSONSchema: %v", err)
	}
	want := `{"$schema":"https://json-schema.org/draft/2020-12/schema","properties":{"name":{"type":"string","minLength":1},"age":{"type":"integer","minimum":0}},"additionalProperties":false,"type":"object","required":["name"]}`
	if compact != want {
		t.Fatalf("unexpected schema:\n got %s\nwant %s", compact, want)
	}
	pretty := eng.MustJSONSchema(true)
	if !strings.HasPrefix(pretty, "{\n  \"$schema\"") {
		t.Fatalf("unexpected pretty output:\n%s", pretty)
	}
}

func TestToJSONSchema_UnsupportedPassesThrough(t *testing.T) {
	eng := engine.MustNew[streams](func(ns *schema.Namespace) (*schema.Schema[streams], error) {
		return schema.Reflect[streams](ns)
	})
	_, err := eng.ToJSONSchema()
	var ue *schema.UnsupportedError
	if !errors.As(err, &ue) || ue.Path != "events" {
		t.Fatalf("expected the library's UnsupportedError, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("MustJSONSchema must panic")
		}
	}()
	eng.MustJSONSchema()
}

func TestEngineSuite_Reflected(t *testing.T) {
	enginetest.RunEngineTests(t, func(t *testing.T) engine.Validator[person] {
		return engine.MustNew[person](personFactory, engine.WithNamespace(schema.NewNamespace()))
	}, []enginetest.Case{
		{Name: "valid", Input: map[string]any{"name": "John", "age": 30}, Valid: true},
		{Name: "invalid", Input: map[string]any{"name": "", "age": -5}, Paths: []string{"name", "age"}},
		{Name: "wrong type", Input: map[string]any{"name": "a", "age": "old"}, Paths: []string{"age"}},
		{Name: "null", Input: nil, Paths: []string{""}},
	})
}

func TestEngineSuite_Builder(t *testing.T) {
	enginetest.RunEngineTests(t, func(t *testing.T) engine.Validator[map[string]any] {
		return engine.MustNew[map[string]any](func(ns *schema.Namespace) (*schema.Schema[map[string]any], error) {
			return ns.Object(
				schema.String("name", schema.Required(), schema.MinLength(1)),
				schema.Nested("profile", []schema.Property{
					schema.Enum("theme", []string{"light", "dark"}, schema.Default("light")),
				}),
			).Build()
		})
	}, []enginetest.Case{
		{Name: "valid", Input: map[string]any{"name": "a", "profile": map[string]any{}}, Valid: true},
		{Name: "missing", Input: map[string]any{}, Paths: []string{"name"}},
		{Name: "enum", Input: map[string]any{"name": "a", "profile": map[string]any{"theme": "blue"}}, Paths: []string{"profile.theme"}},
	})
}
