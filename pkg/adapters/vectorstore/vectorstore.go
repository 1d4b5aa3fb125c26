// Package vectorstore stores embedded document chunks and answers nearest
// neighbour queries. Retriever combines a store with an embedder to give
// the search action text in, documents out.
package vectorstore

import (
	"context"

	"github.com/wilhg/sherpa/pkg/adapters/registry"
)

type Vector []float32

// Item is one stored chunk. Metadata carries the content and source the
// retriever needs to rebuild a Document.
type Item struct {
	ID        string
	Namespace string
	Vector    Vector
	Metadata  map[string]any
}

// Match pairs an item with its similarity to the query; higher is closer.
type Match struct {
	Item  Item
	Score float32
}

// Filter restricts a query to one namespace and to items whose metadata
// holds every Equals pair.
type Filter struct {
	Namespace string
	Equals    map[string]any
}

type VectorStore interface {
	// Upsert replaces items with the same namespace and ID.
	Upsert(ctx context.Context, items []Item) error
	// Query returns at most k matches, best first.
	Query(ctx context.Context, query Vector, k int, filter Filter) ([]Match, error)
}

type Factory = registry.Factory[VectorStore]

var providers = registry.New[VectorStore]("vectorstore")

// Register makes a store available to New.
func Register(name string, f Factory) error { return providers.Register(name, f) }

// New builds the named store.
func New(ctx context.Context, name string, cfg map[string]any) (VectorStore, error) {
	return providers.New(ctx, name, cfg)
}

func Providers() []string { return providers.Names() }
