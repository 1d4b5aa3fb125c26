// Package config holds the process-wide settings for sherpa. A Config is
// built once at start-up and passed by reference into agents, policies and the pool.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LLM selects the language model provider.
type LLM struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}

// Agent bounds the run-loop.
type Agent struct {
	MaxIterations      int    `yaml:"max_iterations"`
	MaxValidationSteps int    `yaml:"max_validation_steps"`
	ContextTokenBudget int    `yaml:"context_token_budget"`
	HistoryTokenBudget int    `yaml:"history_token_budget"`
	TokenizerModel     string `yaml:"tokenizer_model"`
	// RepeatedActions lists action names the reformulation hook watches.
	// Empty means every action.
	RepeatedActions []string `yaml:"repeated_actions"`
}

// Validation holds citation matching thresholds.
type Validation struct {
	SequenceThreshold    float64 `yaml:"sequence_threshold"`
	ContainmentThreshold float64 `yaml:"containment_threshold"`
	JaccardThreshold     float64 `yaml:"jaccard_threshold"`
}

// Pool configures the persistent agent pool.
type Pool struct {
	DatabaseURL      string `yaml:"database_url"`
	DefaultMaxAgents int    `yaml:"default_max_agents"`
	SoftDelete       bool   `yaml:"soft_delete"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Otel configures tracing.
type Otel struct {
	ServiceName string  `yaml:"service_name"`
	Stdout      bool    `yaml:"stdout"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Config is the root configuration document.
type Config struct {
	LLM        LLM        `yaml:"llm"`
	Agent      Agent      `yaml:"agent"`
	Validation Validation `yaml:"validation"`
	Pool       Pool       `yaml:"pool"`
	Log        Log        `yaml:"log"`
	Otel       Otel       `yaml:"otel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLM{Provider: "openai", Model: "gpt-4o-mini"},
		Agent: Agent{
			MaxIterations:      5,
			MaxValidationSteps: 1,
			ContextTokenBudget: 3000,
			HistoryTokenBudget: 1500,
			TokenizerModel:     "gpt-4",
			RepeatedActions:    []string{"search", "context_search"},
		},
		Validation: Validation{SequenceThreshold: 0.7, ContainmentThreshold: 0.7, JaccardThreshold: 0.7},
		Pool: Pool{
			DatabaseURL:      "sqlite:file:sherpa.sqlite?_pragma=busy_timeout(5000)",
			DefaultMaxAgents: 10,
			SoftDelete:       true,
		},
		Log:  Log{Level: "info", Format: "json"},
		Otel: Otel{ServiceName: "sherpa", SampleRatio: 1},
	}
}

// Load reads a YAML file over the defaults and then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SHERPA_DATABASE_URL"); v != "" {
		c.Pool.DatabaseURL = v
	}
	if v := os.Getenv("SHERPA_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("SHERPA_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SHERPA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SHERPA_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Agent.MaxIterations = n
		}
	}
}

// Validate rejects settings the core cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("config: agent.max_iterations must be > 0, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxValidationSteps < 0 {
		return fmt.Errorf("config: agent.max_validation_steps must be >= 0")
	}
	for name, v := range map[string]float64{
		"sequence_threshold":    c.Validation.SequenceThreshold,
		"containment_threshold": c.Validation.ContainmentThreshold,
		"jaccard_threshold":     c.Validation.JaccardThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: validation.%s must be within [0,1], got %v", name, v)
		}
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		return fmt.Errorf("config: otel.sample_ratio must be within [0,1], got %v", c.Otel.SampleRatio)
	}
	if c.Pool.DefaultMaxAgents < 0 {
		return fmt.Errorf("config: pool.default_max_agents must be >= 0")
	}
	return nil
}

// ProviderConfig returns the map handed to an llm.Factory.
func (c *Config) ProviderConfig() map[string]any {
	m := map[string]any{"model": c.LLM.Model, "temperature": c.LLM.Temperature}
	if c.LLM.APIKey != "" {
		m["api_key"] = c.LLM.APIKey
	}
	return m
}
