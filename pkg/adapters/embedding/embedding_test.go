package embedding_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/wilhg/sherpa/pkg/adapters/embedding"
	fakeembed "github.com/wilhg/sherpa/pkg/adapters/embedding/fake"
)

type broken struct{}

func (broken) Name() string { return "broken" }

func (broken) Embed(context.Context, []string, map[string]any) ([]embedding.Vector, error) {
	return nil, nil
}

func TestNewFake(t *testing.T) {
	ctx := context.Background()
	if !slices.Contains(embedding.Providers(), "fake") {
		t.Fatalf("providers=%v", embedding.Providers())
	}
	e, err := embedding.New(ctx, "fake", map[string]any{"dim": 16})
	if err != nil {
		t.Fatal(err)
	}
	v, err := embedding.EmbedOne(ctx, e, "rivers and lakes", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 16 {
		t.Fatalf("dim=%d", len(v))
	}
	if _, err := embedding.New(ctx, "missing", nil); err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("err=%v", err)
	}
}

func TestEmbedOne_CountMismatch(t *testing.T) {
	_, err := embedding.EmbedOne(context.Background(), broken{}, "x", nil)
	if err == nil || !strings.Contains(err.Error(), "returned 0 vectors") {
		t.Fatalf("err=%v", err)
	}
}

func TestFakeSharedWordsAreCloser(t *testing.T) {
	e := fakeembed.New(64)
	vecs, err := e.Embed(context.Background(), []string{"go channels", "channels in go", "bread recipe"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	dot := func(a, b embedding.Vector) (s float32) {
		for i := range a {
			s += a[i] * b[i]
		}
		return s
	}
	if dot(vecs[0], vecs[1]) <= dot(vecs[0], vecs[2]) {
		t.Fatal("related texts should score higher")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Embed(ctx, []string{"x"}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestBatched(t *testing.T) {
	var sizes []int
	call := func(_ context.Context, chunk []string) ([]embedding.Vector, error) {
		sizes = append(sizes, len(chunk))
		out := make([]embedding.Vector, len(chunk))
		for i, s := range chunk {
			out[i] = embedding.Vector{float32(len(s))}
		}
		return out, nil
	}
	got, err := embedding.Batched(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, 2, call)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sizes, []int{2, 2, 1}) || len(got) != 5 || got[4][0] != 5 {
		t.Fatalf("sizes=%v got=%v", sizes, got)
	}

	short := func(context.Context, []string) ([]embedding.Vector, error) { return nil, nil }
	if _, err := embedding.Batched(context.Background(), []string{"a"}, 0, short); err == nil {
		t.Fatal("expected count mismatch")
	}
}
