package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestComponentContext(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelInfo, true)
	t.Cleanup(func() { Init(slog.LevelInfo, false) })

	ctx := ContextWithLayer(ContextWithRunID(context.Background(), "run-1"), "silver")
	ComponentContext(ctx, "engine").Info("stage done", "rows", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Unmarshal: %v (%s)", err, buf.String())
	}
	want := map[string]any{"run_id": "run-1", "layer": "silver", "component": "engine", "msg": "stage done"}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
}

func TestInitWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelWarn, false)
	t.Cleanup(func() { Init(slog.LevelInfo, false) })

	Component("bronze").Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %s", buf.String())
	}
	Component("bronze").Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte("component=bronze")) {
		t.Errorf("missing component attribute: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
