// Package anthropic adapts the Anthropic Messages API to llm.LLM.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/adapters/registry"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
)

type Client struct {
	api       anthropic.Client
	defaults  llm.Defaults
	maxTokens int64
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model, temperature := c.defaults.For(opts)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: c.maxTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if temperature != nil {
		params.Temperature = anthropic.Float(*temperature)
	}
	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return llm.GenerateResult{}, llm.Classify("anthropic", status, err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return llm.GenerateResult{
		Text:         sb.String(),
		PromptTokens: int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		Model:        model,
	}, nil
}

// Factory reads cfg keys api_key (default $ANTHROPIC_API_KEY), model,
// max_tokens and temperature.
func Factory(_ context.Context, cfg map[string]any) (llm.LLM, error) {
	key, err := registry.APIKey("anthropic", cfg, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	c := &Client{
		api:       anthropic.NewClient(option.WithAPIKey(key)),
		defaults:  llm.DefaultsFrom(cfg, defaultModel),
		maxTokens: defaultMaxTokens,
	}
	if v, ok := llm.Float(cfg, "max_tokens"); ok && v > 0 {
		c.maxTokens = int64(v)
	}
	return c, nil
}

func init() {
	_ = llm.Register("anthropic", Factory)
}
