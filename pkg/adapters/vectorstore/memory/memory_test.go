package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fakeembed "github.com/wilhg/sherpa/pkg/adapters/embedding/fake"
	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
)

func ids(ms []vectorstore.Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Item.ID
	}
	return out
}

func TestQuery_RanksFiltersAndIsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []vectorstore.Item{
		{ID: "north", Namespace: "maps", Vector: vectorstore.Vector{0, 1}, Metadata: map[string]any{"kind": "axis"}},
		{ID: "east", Namespace: "maps", Vector: vectorstore.Vector{1, 0}, Metadata: map[string]any{"kind": "axis"}},
		{ID: "northeast", Namespace: "maps", Vector: vectorstore.Vector{1, 1}, Metadata: map[string]any{"kind": "diagonal"}},
		{ID: "wide", Namespace: "maps", Vector: vectorstore.Vector{1, 0, 0}},
		{ID: "other", Vector: vectorstore.Vector{1, 0}},
	}))

	got, err := s.Query(ctx, vectorstore.Vector{2, 0.1}, 0, vectorstore.Filter{Namespace: "maps"})
	require.NoError(t, err)
	assert.Equal(t, []string{"east", "northeast", "north"}, ids(got))
	assert.InDelta(t, 0.9988, got[0].Score, 0.001)

	got, err = s.Query(ctx, vectorstore.Vector{0, 1}, 1, vectorstore.Filter{Namespace: "maps", Equals: map[string]any{"kind": "axis"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"north"}, ids(got))

	got, err = s.Query(ctx, vectorstore.Vector{0, 1}, 5, vectorstore.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, ids(got))
}

func TestUpsert_RejectsBatchAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.Upsert(ctx, []vectorstore.Item{
		{ID: "ok", Vector: vectorstore.Vector{1}},
		{ID: "zero", Vector: vectorstore.Vector{0, 0}},
	})
	require.Error(t, err)
	assert.Equal(t, 0, s.Len(""))

	require.NoError(t, s.Upsert(ctx, []vectorstore.Item{{ID: "ok", Vector: vectorstore.Vector{1}}}))
	require.NoError(t, s.Upsert(ctx, []vectorstore.Item{{ID: "ok", Vector: vectorstore.Vector{3}, Metadata: map[string]any{"v": 2}}}))
	assert.Equal(t, 1, s.Len(""))
	got, err := s.Query(ctx, vectorstore.Vector{1}, 1, vectorstore.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, got[0].Item.Metadata["v"])

	s.Delete(ctx, "", "ok", "missing")
	assert.Equal(t, 0, s.Len(""))
	_, err = s.Query(ctx, vectorstore.Vector{0}, 1, vectorstore.Filter{})
	assert.Error(t, err)
}

func TestRetrieverSimilaritySearch(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.New(ctx, "memory", nil)
	if err != nil {
		t.Fatal(err)
	}
	r := vectorstore.NewRetriever(fakeembed.New(64), store, "docs")
	docs := []vectorstore.Document{
		{Content: "Go channels coordinate goroutines", Source: "https://go.dev/doc/channels"},
		{Content: "Bread needs flour water and yeast", Source: "https://example.com/bread"},
	}
	if err := r.AddDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}
	got, err := r.SimilaritySearch(ctx, "how do goroutines use channels", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Source != "https://go.dev/doc/channels" {
		t.Fatalf("got %+v", got)
	}
}
