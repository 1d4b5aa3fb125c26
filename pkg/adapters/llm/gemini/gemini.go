// Package gemini adapts the Gemini API to llm.LLM.
package gemini

import (
	"context"
	"errors"

	genai "google.golang.org/genai"

	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/adapters/registry"
)

const defaultModel = "gemini-2.5-flash-lite"

type Client struct {
	api      *genai.Client
	defaults llm.Defaults
}

func (c *Client) Name() string { return "gemini" }

func text(role, s string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: s}}}
}

// Generate sends system messages as the system instruction; the last one
// wins. Empty messages are dropped since the API rejects empty parts.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model, temperature := c.defaults.For(opts)
	conf := &genai.GenerateContentConfig{}
	if temperature != nil {
		t := float32(*temperature)
		conf.Temperature = &t
	}
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Content == "":
		case m.Role == llm.RoleSystem:
			conf.SystemInstruction = text("", m.Content)
		case m.Role == llm.RoleAssistant:
			contents = append(contents, text("model", m.Content))
		default:
			contents = append(contents, text("user", m.Content))
		}
	}
	resp, err := c.api.Models.GenerateContent(ctx, model, contents, conf)
	if err != nil {
		var apiErr genai.APIError
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return llm.GenerateResult{}, llm.Classify("gemini", status, err)
	}
	res := llm.GenerateResult{Text: resp.Text(), Model: model}
	if u := resp.UsageMetadata; u != nil {
		res.PromptTokens = int(u.PromptTokenCount)
		res.OutputTokens = int(u.CandidatesTokenCount)
		res.TotalTokens = int(u.TotalTokenCount)
	}
	return res, nil
}

// Factory reads cfg keys api_key (default $GOOGLE_API_KEY), model and
// temperature.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) {
	key, err := registry.APIKey("gemini", cfg, "GOOGLE_API_KEY")
	if err != nil {
		return nil, err
	}
	api, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Client{api: api, defaults: llm.DefaultsFrom(cfg, defaultModel)}, nil
}

func init() {
	_ = llm.Register("gemini", Factory)
}
