package vectorstore

import (
	"context"
	"fmt"

	"github.com/wilhg/sherpa/pkg/adapters/embedding"
)

// Document is a retrievable piece of text and the link it came from. Agents
// cite Documents by their Source.
type Document struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Retriever couples an embedder with a store to index and search text.
type Retriever struct {
	embedder  embedding.Embedder
	store     VectorStore
	namespace string
}

// NewRetriever returns a Retriever writing to and reading from namespace.
func NewRetriever(e embedding.Embedder, s VectorStore, namespace string) *Retriever {
	return &Retriever{embedder: e, store: s, namespace: namespace}
}

// AddDocuments embeds and upserts docs. Documents without an ID get their
// position-derived one.
func (r *Retriever) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := r.embedder.Embed(ctx, texts, map[string]any{"task_type": "RETRIEVAL_DOCUMENT"})
	if err != nil {
		return fmt.Errorf("vectorstore: embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("vectorstore: embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}
	items := make([]Item, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("doc-%d", i)
		}
		items[i] = Item{
			ID:        id,
			Namespace: r.namespace,
			Vector:    Vector(vecs[i]),
			Metadata:  map[string]any{"content": d.Content, "source": d.Source},
		}
	}
	return r.store.Upsert(ctx, items)
}

// SimilaritySearch returns up to k documents closest to query, best first.
func (r *Retriever) SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error) {
	vec, err := embedding.EmbedOne(ctx, r.embedder, query, map[string]any{"task_type": "RETRIEVAL_QUERY"})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	matches, err := r.store.Query(ctx, Vector(vec), k, Filter{Namespace: r.namespace})
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(matches))
	for _, m := range matches {
		content, _ := m.Item.Metadata["content"].(string)
		source, _ := m.Item.Metadata["source"].(string)
		out = append(out, Document{ID: m.Item.ID, Content: content, Source: source})
	}
	return out, nil
}
