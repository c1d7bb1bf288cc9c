package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandler_AddsSnapshotGroup(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).With(slog.String("component", "test"))

	ctx := WithSnapshotData(context.Background(), &SnapshotData{Generation: 3, Source: "config.yaml"})
	log.InfoContext(ctx, "reload.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	snap, ok := rec["snap"].(map[string]any)
	if !ok {
		t.Fatalf("expected snap group, got %s", buf.String())
	}
	if snap["gen"] != float64(3) || snap["source"] != "config.yaml" {
		t.Fatalf("unexpected snap group: %v", snap)
	}
	if rec["component"] != "test" {
		t.Fatalf("With attributes lost: %s", buf.String())
	}
}

func TestHandler_NoSnapshot(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})
	log.InfoContext(context.Background(), "plain")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if _, ok := rec["snap"]; ok {
		t.Fatalf("unexpected snap group: %s", buf.String())
	}
}

func TestWrap_DoesNotNest(t *testing.T) {
	var buf bytes.Buffer
	h := Wrap(Wrap(slog.NewJSONHandler(&buf, nil)))
	if _, ok := h.(Handler).Handler.(Handler); ok {
		t.Fatalf("Wrap nested a Handler inside another")
	}

	ctx := WithSnapshotData(context.Background(), &SnapshotData{Generation: 1})
	slog.New(h).InfoContext(ctx, "once")
	if n := bytes.Count(buf.Bytes(), []byte(`"snap"`)); n != 1 {
		t.Fatalf("expected one snap group, got %d: %s", n, buf.String())
	}
}
