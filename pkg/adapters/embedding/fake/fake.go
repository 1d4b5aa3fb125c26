// Package fake provides a deterministic embedder for tests and offline runs.
package fake

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/wilhg/sherpa/pkg/adapters/embedding"
)

// Embedder hashes lower-cased words into a fixed number of buckets and
// L2-normalises the counts. Texts sharing words end up close under cosine
// similarity, which is enough to exercise retrieval without a provider.
type Embedder struct {
	dim int
}

// New returns a fake embedder with the given dimension (>= 4).
func New(dim int) *Embedder {
	if dim < 4 {
		dim = 4
	}
	return &Embedder{dim: dim}
}

func (e *Embedder) Name() string { return "fake" }

func (e *Embedder) Embed(ctx context.Context, inputs []string, _ map[string]any) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(inputs))
	for i, s := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make(embedding.Vector, e.dim)
		for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%uint32(e.dim)]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
		} else {
			n := float32(math.Sqrt(norm))
			for j := range vec {
				vec[j] /= n
			}
		}
		out[i] = vec
	}
	return out, nil
}

func init() {
	_ = embedding.Register("fake", func(_ context.Context, cfg map[string]any) (embedding.Embedder, error) {
		dim := 64
		if v, ok := cfg["dim"].(int); ok && v > 0 {
			dim = v
		}
		return New(dim), nil
	})
}
