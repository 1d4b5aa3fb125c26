//go:build integration

package llm_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/wilhg/sherpa/pkg/adapters/llm"
)

// Calls each provider whose key is present in the environment.
func TestProviders_Live(t *testing.T) {
	for name, env := range remote {
		t.Run(name, func(t *testing.T) {
			if os.Getenv(env) == "" {
				t.Skipf("%s not set", env)
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			m, err := llm.New(ctx, name, map[string]any{})
			if err != nil {
				t.Fatal(err)
			}
			res, err := m.Generate(ctx, []llm.Message{
				{Role: llm.RoleSystem, Content: "Reply with one word."},
				{Role: llm.RoleUser, Content: "Say pong"},
			}, map[string]any{"temperature": 0.0})
			if err != nil {
				t.Fatal(err)
			}
			if res.Text == "" {
				t.Fatal("empty response")
			}
			t.Logf("%s: %q tokens=%d", res.Model, res.Text, res.TotalTokens)
		})
	}
}
