package embedding

import (
	"context"
	"fmt"

	"github.com/wilhg/sherpa/pkg/adapters/registry"
)

// Batched splits inputs into chunks of at most size and concatenates the
// vectors call returns for each chunk.
func Batched(ctx context.Context, inputs []string, size int, call func(context.Context, []string) ([]Vector, error)) ([]Vector, error) {
	if size <= 0 {
		size = len(inputs)
	}
	out := make([]Vector, 0, len(inputs))
	for start := 0; start < len(inputs); start += size {
		end := min(start+size, len(inputs))
		vecs, err := call(ctx, inputs[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Settings reads the model and batch size shared by remote providers.
func Settings(cfg map[string]any, defaultModel string, defaultBatch int) (model string, batch int) {
	model, batch = registry.String(cfg, "model", defaultModel), defaultBatch
	if v, ok := cfg["batch_size"].(int); ok && v > 0 {
		batch = v
	}
	return model, batch
}
