// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/wilhg/sherpa/pkg/adapters/embedding"
	"github.com/wilhg/sherpa/pkg/adapters/registry"
)

const (
	defaultModel = "text-embedding-3-small"
	defaultBatch = 512
)

type Embedder struct {
	client oa.Client
	model  string
	batch  int
}

func (e *Embedder) Name() string { return "openai" }

// Embed honours opts "model". Results are placed by the index the API
// reports, not by response order.
func (e *Embedder) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	model := e.model
	if v, ok := opts["model"].(string); ok && v != "" {
		model = v
	}
	return embedding.Batched(ctx, inputs, e.batch, func(ctx context.Context, chunk []string) ([]embedding.Vector, error) {
		resp, err := e.client.Embeddings.New(ctx, oa.EmbeddingNewParams{
			Model: oa.EmbeddingModel(model),
			Input: oa.EmbeddingNewParamsInputUnion{OfArrayOfStrings: chunk},
		})
		if err != nil {
			return nil, fmt.Errorf("openai: embed: %w", err)
		}
		vecs := make([]embedding.Vector, len(chunk))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(vecs) {
				return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
			}
			v := make(embedding.Vector, len(d.Embedding))
			for i, x := range d.Embedding {
				v[i] = float32(x)
			}
			vecs[d.Index] = v
		}
		return vecs, nil
	})
}

// Factory reads cfg keys api_key (default $OPENAI_API_KEY), model and
// batch_size.
func Factory(_ context.Context, cfg map[string]any) (embedding.Embedder, error) {
	key, err := registry.APIKey("openai", cfg, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	model, batch := embedding.Settings(cfg, defaultModel, defaultBatch)
	return &Embedder{client: oa.NewClient(option.WithAPIKey(key)), model: model, batch: batch}, nil
}

func init() {
	_ = embedding.Register("openai", Factory)
}
