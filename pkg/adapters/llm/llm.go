// Package llm is the provider-neutral boundary to language models. Providers
// register a Factory under a name; agents and policies only see the LLM
// interface.
package llm

import (
	"context"

	"github.com/wilhg/sherpa/pkg/adapters/registry"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message with a role and content.
type Message struct {
	Role    string
	Content string
}

// GenerateResult contains the model's text output and token usage if available.
type GenerateResult struct {
	Text         string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// LLM defines a minimal chat/text generation interface.
type LLM interface {
	// Name returns provider name (e.g., "openai").
	Name() string
	// Generate creates a completion from a list of messages. Recognised opts:
	// "model" (string) and "temperature" (float64).
	Generate(ctx context.Context, messages []Message, opts map[string]any) (GenerateResult, error)
}

// Prompt sends a single user message and returns the text.
func Prompt(ctx context.Context, m LLM, prompt string, opts map[string]any) (string, error) {
	res, err := m.Generate(ctx, []Message{{Role: RoleUser, Content: prompt}}, opts)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Factory constructs an LLM from provider-specific config.
type Factory = registry.Factory[LLM]

var providers = registry.New[LLM]("llm")

// Register makes a provider available to New. Provider packages call it
// from init.
func Register(name string, f Factory) error { return providers.Register(name, f) }

// New builds the named provider.
func New(ctx context.Context, name string, cfg map[string]any) (LLM, error) {
	return providers.New(ctx, name, cfg)
}

// Providers lists the registered provider names.
func Providers() []string { return providers.Names() }

// Defaults hold a provider's configured model and temperature. Per-call
// opts override them.
type Defaults struct {
	Model       string
	Temperature *float64
}

// DefaultsFrom reads "model" and "temperature" from provider config.
func DefaultsFrom(cfg map[string]any, model string) Defaults {
	d := Defaults{Model: registry.String(cfg, "model", model)}
	if t, ok := Float(cfg, "temperature"); ok {
		d.Temperature = &t
	}
	return d
}

// For resolves the model and temperature of one call.
func (d Defaults) For(opts map[string]any) (model string, temperature *float64) {
	model = registry.String(opts, "model", d.Model)
	temperature = d.Temperature
	if t, ok := Float(opts, "temperature"); ok {
		temperature = &t
	}
	return model, temperature
}

// Float reads a numeric option, accepting the float and int forms YAML and
// JSON decoding produce.
func Float(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
