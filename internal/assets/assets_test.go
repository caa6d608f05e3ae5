package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadFileFromDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "anim/walk.tea", "walk")

	m := NewManager()
	defer m.Close()
	if err := m.AddDir(dir); err != nil {
		t.Fatalf("AddDir failed: %v", err)
	}

	data, err := m.ReadFile("anim/walk.tea")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "walk" {
		t.Errorf("ReadFile = %q, want %q", data, "walk")
	}

	// Backslash paths resolve to the same file and hit the cache
	if _, err := m.ReadFile(`anim\walk.tea`); err != nil {
		t.Fatalf("ReadFile with backslashes failed: %v", err)
	}
	if hits, _ := m.CacheStats(); hits != 1 {
		t.Errorf("cache hits = %d, want 1", hits)
	}
}

func TestReadFilePriority(t *testing.T) {
	base := t.TempDir()
	override := t.TempDir()
	writeFile(t, base, "a.tea", "base")
	writeFile(t, base, "b.tea", "base")
	writeFile(t, override, "a.tea", "override")

	m := NewManager()
	m.AddDir(base)
	m.AddDir(override)

	if data, _ := m.ReadFile("a.tea"); string(data) != "override" {
		t.Errorf("a.tea = %q, want override", data)
	}
	if data, _ := m.ReadFile("b.tea"); string(data) != "base" {
		t.Errorf("b.tea = %q, want base", data)
	}
}

func TestReadFileNotFound(t *testing.T) {
	m := NewManager()
	m.AddDir(t.TempDir())

	_, err := m.ReadFile("missing.tea")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestForget(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "idle.tea", "v1")

	m := NewManager()
	m.AddDir(dir)
	m.ReadFile("idle.tea")

	writeFile(t, dir, "idle.tea", "v2")
	if data, _ := m.ReadFile("idle.tea"); string(data) != "v1" {
		t.Errorf("cached read = %q, want v1", data)
	}

	m.Forget("IDLE.TEA")
	if data, _ := m.ReadFile("idle.tea"); string(data) != "v2" {
		t.Errorf("read after Forget = %q, want v2", data)
	}
}

func TestAddDirErrors(t *testing.T) {
	m := NewManager()

	if err := m.AddDir(filepath.Join(t.TempDir(), "none")); err == nil {
		t.Error("expected error for missing dir")
	}

	dir := t.TempDir()
	writeFile(t, dir, "file.txt", "x")
	if err := m.AddDir(filepath.Join(dir, "file.txt")); err == nil {
		t.Error("expected error for a file")
	}

	if err := m.AddArchive(filepath.Join(dir, "none.grf")); err == nil {
		t.Error("expected error for missing archive")
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "anim/walk.tea", "")
	writeFile(t, dir, "anim/Run.TEA", "")
	writeFile(t, dir, "sfx/step.wav", "")

	m := NewManager()
	m.AddDir(dir)

	paths, err := m.List(".tea")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"anim/Run.TEA", "anim/walk.tea"}
	if len(paths) != len(want) || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("List = %v, want %v", paths, want)
	}

	all, _ := m.List("")
	if len(all) != 3 {
		t.Errorf("List(\"\") = %v, want 3 entries", all)
	}
}

func TestCache(t *testing.T) {
	c := NewCache()

	if _, ok := c.Get("a"); ok {
		t.Error("empty cache returned a value")
	}
	c.Set("a", []byte("x"))
	if data, ok := c.Get("a"); !ok || string(data) != "x" {
		t.Errorf("Get = %q, %v", data, ok)
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Delete did not remove the entry")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("Stats = %d/%d, want 1/2", hits, misses)
	}

	c.Clear()
	if hits, misses := c.Stats(); hits != 0 || misses != 0 {
		t.Error("Clear did not reset stats")
	}
}
