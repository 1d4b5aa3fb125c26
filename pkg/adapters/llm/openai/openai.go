// Package openai adapts the OpenAI chat completions API to llm.LLM.
package openai

import (
	"context"
	"errors"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/adapters/registry"
)

const defaultModel = "gpt-4o-mini"

type Client struct {
	api      oa.Client
	defaults llm.Defaults
}

func (c *Client) Name() string { return "openai" }

func messageParams(messages []llm.Message) []oa.ChatCompletionMessageParamUnion {
	out := make([]oa.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			out[i] = oa.SystemMessage(m.Content)
		case llm.RoleAssistant:
			out[i] = oa.AssistantMessage(m.Content)
		default:
			out[i] = oa.UserMessage(m.Content)
		}
	}
	return out
}

func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model, temperature := c.defaults.For(opts)
	params := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messageParams(messages),
	}
	if temperature != nil {
		params.Temperature = oa.Float(*temperature)
	}
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oa.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return llm.GenerateResult{}, llm.Classify("openai", status, err)
	}
	res := llm.GenerateResult{
		Model:        model,
		PromptTokens: int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	if len(resp.Choices) > 0 {
		res.Text = resp.Choices[0].Message.Content
	}
	return res, nil
}

// Factory reads cfg keys api_key (default $OPENAI_API_KEY), model and
// temperature.
func Factory(_ context.Context, cfg map[string]any) (llm.LLM, error) {
	key, err := registry.APIKey("openai", cfg, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	return &Client{
		api:      oa.NewClient(option.WithAPIKey(key)),
		defaults: llm.DefaultsFrom(cfg, defaultModel),
	}, nil
}

func init() {
	_ = llm.Register("openai", Factory)
}
