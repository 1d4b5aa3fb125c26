// Package fake provides a scripted LLM for tests and offline runs.
package fake

import (
	"context"
	"sync"

	"github.com/wilhg/sherpa/pkg/adapters/llm"
)

// Reply is one scripted answer. A non-nil Err is returned instead of Text.
type Reply struct {
	Text string
	Err  error
}

// LLM answers from a script in order. Once the script runs out the last reply
// repeats. Every call is recorded.
type LLM struct {
	mu      sync.Mutex
	replies []Reply
	calls   [][]llm.Message
}

// New returns a fake answering with texts in order.
func New(texts ...string) *LLM {
	f := &LLM{}
	for _, t := range texts {
		f.replies = append(f.replies, Reply{Text: t})
	}
	return f
}

// Then appends a reply to the script.
func (f *LLM) Then(text string) *LLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, Reply{Text: text})
	return f
}

// ThenFail appends a failing reply to the script.
func (f *LLM) ThenFail(err error) *LLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, Reply{Err: err})
	return f
}

func (f *LLM) Name() string { return "fake" }

func (f *LLM) Generate(ctx context.Context, messages []llm.Message, _ map[string]any) (llm.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return llm.GenerateResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, append([]llm.Message(nil), messages...))
	if len(f.replies) == 0 {
		return llm.GenerateResult{Model: "fake"}, nil
	}
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	r := f.replies[i]
	if r.Err != nil {
		return llm.GenerateResult{}, r.Err
	}
	return llm.GenerateResult{Text: r.Text, Model: "fake"}, nil
}

// Calls returns how many times Generate ran.
func (f *LLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Prompt returns the concatenated message contents of call i.
func (f *LLM) Prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.calls) {
		return ""
	}
	var s string
	for _, m := range f.calls[i] {
		s += m.Content
	}
	return s
}

// Messages returns the messages of call i.
func (f *LLM) Messages(i int) []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.calls) {
		return nil
	}
	return append([]llm.Message(nil), f.calls[i]...)
}

func init() {
	_ = llm.Register("fake", func(_ context.Context, cfg map[string]any) (llm.LLM, error) {
		var texts []string
		if v, ok := cfg["replies"].([]string); ok {
			texts = v
		}
		return New(texts...), nil
	})
}
