// Package memory is the in-process vector store behind the CLI's --docs
// index and the tests.
package memory

import (
	"cmp"
	"context"
	"errors"
	"math"
	"slices"
	"sync"

	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
)

const defaultNamespace = "default"

type entry struct {
	item vectorstore.Item
	norm float64
}

// Store answers queries by exact cosine similarity over every item in the
// namespace.
type Store struct {
	mu     sync.RWMutex
	spaces map[string]map[string]entry
}

func New() *Store {
	return &Store{spaces: map[string]map[string]entry{}}
}

func namespace(ns string) string {
	if ns == "" {
		return defaultNamespace
	}
	return ns
}

// Upsert validates the whole batch before storing any of it.
func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	for _, it := range items {
		if it.ID == "" {
			return errors.New("memory vectorstore: empty id")
		}
		if norm(it.Vector) == 0 {
			return errors.New("memory vectorstore: empty or zero vector for " + it.ID)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		ns := namespace(it.Namespace)
		space := s.spaces[ns]
		if space == nil {
			space = map[string]entry{}
			s.spaces[ns] = space
		}
		space[it.ID] = entry{item: it, norm: norm(it.Vector)}
	}
	return nil
}

// Delete removes ids from a namespace. Unknown ids are ignored.
func (s *Store) Delete(_ context.Context, ns string, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	space := s.spaces[namespace(ns)]
	for _, id := range ids {
		delete(space, id)
	}
}

// Len counts the items in a namespace.
func (s *Store) Len(ns string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spaces[namespace(ns)])
}

// Query skips items whose dimension differs from the query. Ties are broken
// by ID so results are stable.
func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	qn := norm(query)
	if qn == 0 {
		return nil, errors.New("memory vectorstore: zero-norm query vector")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	space := s.spaces[namespace(filter.Namespace)]
	matches := make([]vectorstore.Match, 0, len(space))
	for _, e := range space {
		if len(e.item.Vector) != len(query) || !matchesMeta(e.item.Metadata, filter.Equals) {
			continue
		}
		score := dot(query, e.item.Vector) / (qn * e.norm)
		matches = append(matches, vectorstore.Match{Item: e.item, Score: float32(score)})
	}
	s.mu.RUnlock()

	slices.SortFunc(matches, func(a, b vectorstore.Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func matchesMeta(have, want map[string]any) bool {
	for k, v := range want {
		if hv, ok := have[k]; !ok || hv != v {
			return false
		}
	}
	return true
}

func dot(a, b vectorstore.Vector) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v vectorstore.Vector) float64 { return math.Sqrt(dot(v, v)) }

func init() {
	_ = vectorstore.Register("memory", func(context.Context, map[string]any) (vectorstore.VectorStore, error) {
		return New(), nil
	})
}
