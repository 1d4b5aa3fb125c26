// Package registry maps provider names to constructors. The llm, embedding
// and vectorstore packages each keep one registry that provider packages
// fill from init.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Factory builds a provider from its configuration map.
type Factory[T any] func(ctx context.Context, cfg map[string]any) (T, error)

// Registry is safe for concurrent use.
type Registry[T any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// New returns an empty registry. kind prefixes error messages.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, factories: map[string]Factory[T]{}}
}

// Register adds f under name. Names are unique.
func (r *Registry[T]) Register(name string, f Factory[T]) error {
	if name == "" {
		return fmt.Errorf("%s: empty provider name", r.kind)
	}
	if f == nil {
		return fmt.Errorf("%s: nil factory for %q", r.kind, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("%s: provider %q already registered", r.kind, name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry[T]) Resolve(name string) (Factory[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named provider.
func (r *Registry[T]) New(ctx context.Context, name string, cfg map[string]any) (T, error) {
	f, ok := r.Resolve(name)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unknown provider %q (have %v)", r.kind, name, r.Names())
	}
	return f(ctx, cfg)
}

// Names lists registered providers in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// APIKey returns cfg["api_key"], falling back to the env variable.
func APIKey(provider string, cfg map[string]any, env string) (string, error) {
	if v := String(cfg, "api_key", ""); v != "" {
		return v, nil
	}
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s: missing API key; set %s or cfg.api_key", provider, env)
}

// String reads a non-empty string option.
func String(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}
