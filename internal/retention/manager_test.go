package retention

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func makeRuns(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(p, "manifest.json"), []byte("{}"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestRunCleanup(t *testing.T) {
	dir := t.TempDir()
	makeRuns(t, dir, "0190-c", "0190-a", "0190-b", ".tmp-0190-d")

	m := New(dir, 2)

	res := m.RunCleanup()
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if !reflect.DeepEqual(res.RunsDeleted, []string{"0190-a"}) || res.RunsKept != 2 || res.BytesFreed != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	runs, err := m.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if !reflect.DeepEqual(runs, []string{"0190-b", "0190-c"}) {
		t.Errorf("remaining runs %v", runs)
	}
	if _, err := os.Stat(filepath.Join(dir, ".tmp-0190-d")); err != nil {
		t.Errorf("in-progress snapshot must be ignored: %v", err)
	}
}

func TestRunCleanup_Disabled(t *testing.T) {
	dir := t.TempDir()
	makeRuns(t, dir, "a", "b", "c")

	res := New(dir, 0).RunCleanup()
	if len(res.RunsDeleted) != 0 || res.RunsKept != 3 {
		t.Errorf("keep=0 must not delete, got %+v", res)
	}
}

func TestRunCleanup_MissingDir(t *testing.T) {
	res := New(filepath.Join(t.TempDir(), "nope"), 1).RunCleanup()
	if len(res.Errors) != 0 || len(res.RunsDeleted) != 0 {
		t.Errorf("missing dir should be a no-op, got %+v", res)
	}
	runs, err := New(filepath.Join(t.TempDir(), "nope"), 1).Runs()
	if err != nil || runs != nil {
		t.Errorf("Runs on missing dir = %v, %v", runs, err)
	}
}
