// Package embedding turns text into dense vectors for retrieval. Providers
// register under a name the same way language models do.
package embedding

import (
	"context"
	"fmt"

	"github.com/wilhg/sherpa/pkg/adapters/registry"
)

type Vector []float32

// Embedder returns one vector per input, in input order. Recognised opts
// depend on the provider; "task_type" distinguishes documents from queries
// where the provider supports it.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, inputs []string, opts map[string]any) ([]Vector, error)
}

type Factory = registry.Factory[Embedder]

var providers = registry.New[Embedder]("embedding")

// Register makes a provider available to New. Provider packages call it
// from init.
func Register(name string, f Factory) error { return providers.Register(name, f) }

// New builds the named provider.
func New(ctx context.Context, name string, cfg map[string]any) (Embedder, error) {
	return providers.New(ctx, name, cfg)
}

// Providers lists the registered provider names.
func Providers() []string { return providers.Names() }

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string, opts map[string]any) (Vector, error) {
	vecs, err := e.Embed(ctx, []string{text}, opts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding: %s returned %d vectors for one input", e.Name(), len(vecs))
	}
	return vecs[0], nil
}
