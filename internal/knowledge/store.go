// Package knowledge loads the per-campaign knowledge profiles the agent is
// allowed to speak from.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const DefaultGreeting = "Hello, this is an AI agent. How can I help you?"

var ErrNotFound = errors.New("knowledge: profile not found")

// Profile is one knowledge file. Raw is handed to the reasoning engine as-is.
type Profile struct {
	Ref      string
	Greeting string
	Raw      json.RawMessage
}

type document struct {
	Script struct {
		Greeting string `json:"greeting"`
	} `json:"script"`
}

// Store reads profiles from dir, keyed by file name, and caches them.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]Profile
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, cache: map[string]Profile{}}
}

// Default is the profile used when a campaign has none or it cannot be read.
func Default() Profile {
	return Profile{Greeting: DefaultGreeting, Raw: json.RawMessage(`{}`)}
}

// Load returns the profile for ref ("acme" or "acme.json").
func (s *Store) Load(ref string) (Profile, error) {
	key := normalizeRef(ref)
	if key == "" {
		return Profile{}, ErrNotFound
	}

	s.mu.RLock()
	p, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	b, err := os.ReadFile(filepath.Join(s.dir, key+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("knowledge: read %s: %w", key, err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Profile{}, fmt.Errorf("knowledge: parse %s: %w", key, err)
	}

	p = Profile{Ref: key, Greeting: strings.TrimSpace(doc.Script.Greeting), Raw: json.RawMessage(b)}
	if p.Greeting == "" {
		p.Greeting = DefaultGreeting
	}

	s.mu.Lock()
	s.cache[key] = p
	s.mu.Unlock()
	return p, nil
}

// LoadOrDefault never fails; unreadable profiles fall back to Default.
func (s *Store) LoadOrDefault(ref string) Profile {
	p, err := s.Load(ref)
	if err != nil {
		return Default()
	}
	return p
}

// Invalidate drops a cached profile so the next Load rereads it.
func (s *Store) Invalidate(ref string) {
	s.mu.Lock()
	delete(s.cache, normalizeRef(ref))
	s.mu.Unlock()
}

func normalizeRef(ref string) string {
	ref = filepath.Base(strings.TrimSpace(ref))
	ref = strings.TrimSuffix(ref, ".json")
	if ref == "." || ref == string(filepath.Separator) {
		return ""
	}
	return ref
}
