// Package tokenizer counts tokens for budget-aware context truncation.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter returns the number of tokens in text.
type Counter func(text string) int

// Runes is a fallback Counter that approximates one token per four runes,
// rounding up so non-empty text always costs at least one token.
func Runes(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// NewTikToken returns a Counter backed by tiktoken-go for the given model.
// Common models: "gpt-4", "gpt-3.5-turbo", "gpt-4o".
// If the model is unknown, EncodingForModel returns an error.
func NewTikToken(model string) (Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	return func(text string) int {
		if text == "" {
			return 0
		}
		mu.Lock()
		defer mu.Unlock()
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// ForModel returns a tiktoken Counter when the model is known to tiktoken and
// falls back to Runes otherwise.
func ForModel(model string) Counter {
	if c, err := NewTikToken(model); err == nil {
		return c
	}
	return Runes
}
