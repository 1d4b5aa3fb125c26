package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
)

// DefaultTopK is the number of documents a search returns when not set.
const DefaultTopK = 5

// Retriever finds documents similar to a query. *vectorstore.Retriever
// implements it.
type Retriever interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]vectorstore.Document, error)
}

// ResourceSink collects the documents an agent may cite. *belief.Belief
// implements it.
type ResourceSink interface {
	Resources() []vectorstore.Document
	AddResources(docs ...vectorstore.Document)
}

// Search queries a Retriever and records what it found as citable resources.
type Search struct {
	action.Base
	retriever Retriever
	topK      int
	sink      ResourceSink
	beliefKey string
	baseOpts  []action.Option
}

// SearchOption configures a Search.
type SearchOption func(*Search)

// WithTopK bounds the number of documents returned.
func WithTopK(k int) SearchOption {
	return func(s *Search) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithResourceSink sets where found documents are recorded. Without it the
// bound memory is used when it can hold resources.
func WithResourceSink(sink ResourceSink) SearchOption {
	return func(s *Search) { s.sink = sink }
}

// WithQueryFromBelief reads the query from the belief under key instead of
// taking it from the caller.
func WithQueryFromBelief(key string) SearchOption {
	return func(s *Search) { s.beliefKey = key }
}

// WithActionOptions passes opts to the underlying action.Base.
func WithActionOptions(opts ...action.Option) SearchOption {
	return func(s *Search) { s.baseOpts = append(s.baseOpts, opts...) }
}

// NewSearch returns the search action over r.
func NewSearch(r Retriever, opts ...SearchOption) *Search {
	s := &Search{retriever: r, topK: DefaultTopK}
	for _, o := range opts {
		o(s)
	}
	query := action.ArgumentSpec{Name: "query", Type: "string", Description: "what to look for"}
	if s.beliefKey != "" {
		query.Source = action.SourceBelief
		query.BeliefKey = s.beliefKey
	}
	baseOpts := append([]action.Option{action.WithKind(action.KindSearch)}, s.baseOpts...)
	s.Base = action.NewBase("search", "Searches the knowledge base for documents relevant to a query",
		[]action.ArgumentSpec{query}, baseOpts...)
	return s
}

func (s *Search) Execute(ctx context.Context, args map[string]any) (any, error) {
	if s.retriever == nil {
		return nil, errors.New("no retriever configured")
	}
	q, _ := args["query"].(string)
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, errors.New("query required")
	}
	docs, err := s.retriever.SimilaritySearch(ctx, q, s.topK)
	if err != nil {
		return nil, err
	}
	if sink := s.resourceSink(); sink != nil {
		sink.AddResources(newDocuments(sink.Resources(), docs)...)
	}
	if len(docs) == 0 {
		return "No documents found.", nil
	}
	var sb strings.Builder
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Document: %s\nSource: %s\n", strings.TrimSpace(d.Content), d.Source)
	}
	return sb.String(), nil
}

func (s *Search) resourceSink() ResourceSink {
	if s.sink != nil {
		return s.sink
	}
	if sink, ok := s.Memory().(ResourceSink); ok {
		return sink
	}
	return nil
}

// newDocuments drops docs already present in have so each resource keeps a
// single stable index.
func newDocuments(have, docs []vectorstore.Document) []vectorstore.Document {
	seen := make(map[string]struct{}, len(have))
	for _, d := range have {
		seen[d.Source+"\x00"+d.Content] = struct{}{}
	}
	var out []vectorstore.Document
	for _, d := range docs {
		k := d.Source + "\x00" + d.Content
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
