// Package config loads the application configuration from YAML files. A
// user-level file is read first and a project-level file layered on top, so
// per-repository settings override personal defaults.
package config

import (
	"os"
	"path/filepath"

	"github.com/ducks/llm-tui/errors"
	"gopkg.in/yaml.v3"
)

// OllamaConfig configures the local Ollama server backend.
type OllamaConfig struct {
	URL           string `yaml:"url"`
	Model         string `yaml:"model"`
	ContextWindow int    `yaml:"context_window"`
	AutoStart     bool   `yaml:"auto_start"`
}

// AnthropicConfig configures the Anthropic messages API backend.
type AnthropicConfig struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	ContextWindow int    `yaml:"context_window"`
}

// BedrockConfig configures the AWS Bedrock backend. Credentials come from the
// standard AWS environment, not from this file.
type BedrockConfig struct {
	Model         string `yaml:"model"`
	ContextWindow int    `yaml:"context_window"`
}

// OpenAIConfig configures the OpenAI chat completions backend.
type OpenAIConfig struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	ContextWindow int    `yaml:"context_window"`
}

// GeminiConfig configures the Google Gemini backend.
type GeminiConfig struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	ContextWindow int    `yaml:"context_window"`
}

// AutocompactConfig tunes the context-compaction engine.
type AutocompactConfig struct {
	// Threshold is the fraction of the context window at which older
	// messages are summarized, e.g. 0.75.
	Threshold float64 `yaml:"threshold"`
	// KeepRecent is the number of most recent messages never compacted.
	KeepRecent int `yaml:"keep_recent"`
}

// Config is the full application configuration.
type Config struct {
	DefaultProvider string            `yaml:"default_provider"`
	SystemPrompt    string            `yaml:"system_prompt"`
	MaxTokens       int               `yaml:"max_tokens"`
	Ollama          OllamaConfig      `yaml:"ollama"`
	Anthropic       AnthropicConfig   `yaml:"anthropic"`
	Bedrock         BedrockConfig     `yaml:"bedrock"`
	OpenAI          OpenAIConfig      `yaml:"openai"`
	Gemini          GeminiConfig      `yaml:"gemini"`
	Autocompact     AutocompactConfig `yaml:"autocompact"`
}

// Default returns the built-in configuration. API keys fall back to the
// conventional environment variables.
func Default() *Config {
	return &Config{
		DefaultProvider: "ollama",
		MaxTokens:       4096,
		Ollama: OllamaConfig{
			URL:           "http://localhost:11434",
			Model:         "llama2",
			ContextWindow: 4096,
			AutoStart:     true,
		},
		Anthropic: AnthropicConfig{
			APIKey:        os.Getenv("ANTHROPIC_API_KEY"),
			Model:         "claude-3-5-sonnet-20241022",
			ContextWindow: 200000,
		},
		Bedrock: BedrockConfig{
			Model:         "us.anthropic.claude-sonnet-4-20250514-v1:0",
			ContextWindow: 200000,
		},
		OpenAI: OpenAIConfig{
			APIKey:        os.Getenv("OPENAI_API_KEY"),
			Model:         "gpt-4o",
			ContextWindow: 128000,
		},
		Gemini: GeminiConfig{
			APIKey:        os.Getenv("GEMINI_API_KEY"),
			Model:         "gemini-1.5-pro",
			ContextWindow: 128000,
		},
		Autocompact: AutocompactConfig{
			Threshold:  0.75,
			KeepRecent: 10,
		},
	}
}

// Load builds the configuration from defaults, then the user-level file, then
// the project-level file, with the latter taking precedence.
func Load() (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".config", "llm-tui", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectPath := filepath.Join(wd, ".llm-tui", "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites only the fields present in the YAML, which gives a
	// simple merge where later files replace earlier ones.
	return yaml.Unmarshal(data, cfg)
}

// ContextWindow returns the configured context window for a provider name,
// or 0 when the provider is unknown.
func (c *Config) ContextWindow(provider string) int {
	switch provider {
	case "ollama":
		return c.Ollama.ContextWindow
	case "anthropic":
		return c.Anthropic.ContextWindow
	case "bedrock":
		return c.Bedrock.ContextWindow
	case "openai":
		return c.OpenAI.ContextWindow
	case "gemini":
		return c.Gemini.ContextWindow
	}
	return 0
}

// Model returns the configured default model for a provider name.
func (c *Config) Model(provider string) string {
	switch provider {
	case "ollama":
		return c.Ollama.Model
	case "anthropic":
		return c.Anthropic.Model
	case "bedrock":
		return c.Bedrock.Model
	case "openai":
		return c.OpenAI.Model
	case "gemini":
		return c.Gemini.Model
	}
	return ""
}
