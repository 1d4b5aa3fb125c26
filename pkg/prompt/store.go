// Package prompt keeps the versioned templates agents render into model
// prompts.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Prompt represents a versioned prompt template.
type Prompt struct {
	Name    string
	Version int
	Body    string
	Meta    map[string]string
}

// Store keeps every version of every template in memory. Versions of a
// name are numbered from 1 without gaps.
type Store struct {
	mu       sync.RWMutex
	versions map[string][]Prompt
}

func NewStore() *Store { return &Store{versions: map[string][]Prompt{}} }

var (
	ErrLintFailed = errors.New("prompt failed lint checks")
	ErrNotFound   = errors.New("prompt not found")
)

// Save lints p and stores it as the next version of its name. The issues
// are returned alongside ErrLintFailed.
func (s *Store) Save(p Prompt) (Prompt, []Issue, error) {
	if issues := Lint(p); len(issues) > 0 {
		return Prompt{}, issues, ErrLintFailed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Version = len(s.versions[p.Name]) + 1
	s.versions[p.Name] = append(s.versions[p.Name], p)
	return p, nil, nil
}

// Get returns one version; version <= 0 means the latest.
func (s *Store) Get(name string, version int) (Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs := s.versions[name]
	if version <= 0 {
		version = len(vs)
	}
	if version == 0 || version > len(vs) {
		return Prompt{}, false
	}
	return vs[version-1], true
}

// List returns every version of name, oldest first.
func (s *Store) List(name string) []Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.versions[name])
}

// Render executes the latest version of name with data.
func (s *Store) Render(name string, data any) (string, error) {
	p, ok := s.Get(name, 0)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return RenderPrompt(p, data)
}

// RenderPrompt executes a single prompt version with data.
func RenderPrompt(p Prompt, data any) (string, error) {
	t, err := parseBody(p.Name, p.Body)
	if err != nil {
		return "", fmt.Errorf("prompt %s v%d: %w", p.Name, p.Version, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt %s v%d: %w", p.Name, p.Version, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
