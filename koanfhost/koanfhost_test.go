package koanfhost

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ggoodman/confengine-go/engine"
	"github.com/ggoodman/confengine-go/schema"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type service struct {
	Name  string `json:"name" validate:"required"`
	Port  int    `json:"port" validate:"gte=1,lte=65535"`
	Debug bool   `json:"debug"`
}

func newEngine(t *testing.T) *engine.Engine[service] {
	t.Helper()
	eng, err := engine.New[service](func(ns *schema.Namespace) (*schema.Schema[service], error) {
		return schema.Reflect[service](ns, schema.Coerce())
	}, engine.WithNamespace(schema.NewNamespace()))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "KHTEST_"))
}

func TestLoad_FileDefaultsAndEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "name: svc\nport: 80\n")
	t.Setenv("KHTEST_PORT", "8081")

	k := koanf.New(Delim)
	if err := LoadDefaults(k, &service{Port: 8000, Debug: true}); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		t.Fatalf("file: %v", err)
	}
	if err := k.Load(env.Provider("KHTEST_", ".", envKey), nil); err != nil {
		t.Fatalf("env: %v", err)
	}

	got, err := Load[service](k, newEngine(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := service{Name: "svc", Port: 8081, Debug: true}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	k := koanf.New(Delim)
	if err := k.Set("port", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	_, err := Load[service](k, newEngine(t))
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	paths := make([]string, len(ve.Issues))
	for i, is := range ve.Issues {
		paths[i] = is.Path
	}
	if strings.Join(paths, ",") != "name,port" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestValidate_EmptyKoanf(t *testing.T) {
	out := Validate[service](koanf.New(Delim), newEngine(t))
	if out.Success || out.Errors[0].Path != "name" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestReloader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "name: svc\nport: 80\n")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewReloader[service](newEngine(t), func(k *koanf.Koanf) error {
		return k.Load(file.Provider(path), yaml.Parser())
	}, WithLogger(logger), WithSource(path))

	if _, err := r.Current(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}

	first, err := r.Reload(context.Background())
	if err != nil {
		t.Fatalf("first reload: %v", err)
	}
	if first.Port != 80 {
		t.Fatalf("unexpected first value %+v", first)
	}

	writeFile(t, dir, "name: svc\nport: 70000\n")
	if _, err := r.Reload(context.Background()); err == nil {
		t.Fatalf("expected validation failure")
	}
	cur, err := r.Current()
	if err != nil || cur != first {
		t.Fatalf("failed reload must keep the previous value, got %+v (%v)", cur, err)
	}
	if !strings.Contains(buf.String(), `"msg":"config.validate.issue"`) || !strings.Contains(buf.String(), `"path":"port"`) {
		t.Fatalf("expected issue log, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"snap":{"gen":2`) {
		t.Fatalf("expected snapshot attributes, got %s", buf.String())
	}

	writeFile(t, dir, "name: svc\nport: 81\n")
	next, err := r.Reload(context.Background())
	if err != nil || next.Port != 81 {
		t.Fatalf("third reload: %+v (%v)", next, err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := r.Reload(context.Background()); err == nil {
		t.Fatalf("expected load failure")
	}
	if cur, _ := r.Current(); cur.Port != 81 {
		t.Fatalf("load failure must keep the previous value, got %+v", cur)
	}
}

func TestReloader_CanceledContext(t *testing.T) {
	r := NewReloader[service](newEngine(t), func(k *koanf.Koanf) error {
		t.Fatalf("load must not run")
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Reload(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
