package knowledge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_LoadAndCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "techsolutions.json")
	if err := os.WriteFile(path, []byte(`{"company":"TechSolutions","script":{"greeting":"Hi, this is Sam from TechSolutions."}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := NewStore(dir)

	p, err := s.Load("techsolutions.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Greeting != "Hi, this is Sam from TechSolutions." || p.Ref != "techsolutions" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	// Cached: the file can disappear without affecting readers.
	_ = os.Remove(path)
	if _, err := s.Load("techsolutions"); err != nil {
		t.Fatalf("expected cached profile, got %v", err)
	}
	s.Invalidate("techsolutions")
	if _, err := s.Load("techsolutions"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after invalidate, got %v", err)
	}
}

func TestStore_DefaultsAndTraversal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bare.json"), []byte(`{"faq":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := NewStore(dir)

	if p := s.LoadOrDefault("bare"); p.Greeting != DefaultGreeting {
		t.Fatalf("expected default greeting for profile without script, got %q", p.Greeting)
	}
	if p := s.LoadOrDefault("missing"); p.Greeting != DefaultGreeting || string(p.Raw) != "{}" {
		t.Fatalf("expected default profile, got %+v", p)
	}
	if _, err := s.Load("../../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected traversal to resolve inside dir, got %v", err)
	}
	if _, err := s.Load(""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty ref")
	}
}
