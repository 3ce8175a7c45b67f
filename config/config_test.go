package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	cfg := Default()
	assert.Equal(t, "ollama", cfg.DefaultProvider)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
	assert.Equal(t, "from-env", cfg.Anthropic.APIKey)
	assert.Equal(t, 0.75, cfg.Autocompact.Threshold)
	assert.Equal(t, 10, cfg.Autocompact.KeepRecent)
}

func TestProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".llm-tui"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".llm-tui", "config.yaml"), []byte(`
default_provider: anthropic
max_tokens: 2048
anthropic:
  model: claude-3-5-haiku-20241022
autocompact:
  threshold: 0.5
`), 0644))

	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })

	// Keep the user-level file out of the picture.
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, "claude-3-5-haiku-20241022", cfg.Anthropic.Model)
	assert.Equal(t, 0.5, cfg.Autocompact.Threshold)
	// Untouched fields keep their defaults.
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
	assert.Equal(t, 10, cfg.Autocompact.KeepRecent)
}

func TestContextWindowAndModelLookup(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.Ollama.ContextWindow, cfg.ContextWindow("ollama"))
	assert.Equal(t, cfg.Anthropic.ContextWindow, cfg.ContextWindow("anthropic"))
	assert.Equal(t, cfg.Bedrock.ContextWindow, cfg.ContextWindow("bedrock"))
	assert.Equal(t, 0, cfg.ContextWindow("unknown"))

	assert.Equal(t, cfg.OpenAI.Model, cfg.Model("openai"))
	assert.Equal(t, cfg.Gemini.Model, cfg.Model("gemini"))
	assert.Equal(t, "", cfg.Model("unknown"))
}
