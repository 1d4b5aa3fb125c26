// Package gemini embeds text with the Gemini embedding models.
package gemini

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"

	"github.com/wilhg/sherpa/pkg/adapters/embedding"
	"github.com/wilhg/sherpa/pkg/adapters/registry"
)

const (
	defaultModel = "gemini-embedding-001"
	// EmbedContent accepts at most 100 contents per request.
	maxBatch = 100
)

type Embedder struct {
	client *genai.Client
	model  string
	batch  int
}

func (e *Embedder) Name() string { return "gemini" }

// Embed honours opts "model" and "task_type" (RETRIEVAL_DOCUMENT,
// RETRIEVAL_QUERY and the other Gemini task types).
func (e *Embedder) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	model := e.model
	if v, ok := opts["model"].(string); ok && v != "" {
		model = v
	}
	var conf *genai.EmbedContentConfig
	if v, ok := opts["task_type"].(string); ok && v != "" {
		conf = &genai.EmbedContentConfig{TaskType: v}
	}
	return embedding.Batched(ctx, inputs, e.batch, func(ctx context.Context, chunk []string) ([]embedding.Vector, error) {
		contents := make([]*genai.Content, len(chunk))
		for i, s := range chunk {
			contents[i] = &genai.Content{Parts: []*genai.Part{{Text: s}}}
		}
		res, err := e.client.Models.EmbedContent(ctx, model, contents, conf)
		if err != nil {
			return nil, fmt.Errorf("gemini: embed: %w", err)
		}
		vecs := make([]embedding.Vector, len(res.Embeddings))
		for i, emb := range res.Embeddings {
			v := make(embedding.Vector, len(emb.Values))
			for j, x := range emb.Values {
				v[j] = float32(x)
			}
			vecs[i] = v
		}
		return vecs, nil
	})
}

// Factory reads cfg keys api_key (default $GOOGLE_API_KEY), model and
// batch_size.
func Factory(ctx context.Context, cfg map[string]any) (embedding.Embedder, error) {
	key, err := registry.APIKey("gemini", cfg, "GOOGLE_API_KEY")
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	model, batch := embedding.Settings(cfg, defaultModel, maxBatch)
	return &Embedder{client: client, model: model, batch: min(batch, maxBatch)}, nil
}

func init() {
	_ = embedding.Register("gemini", Factory)
}
