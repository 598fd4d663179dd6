package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "chromedp", cfg.Browser.Engine)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 800, cfg.Browser.ViewportHeight)
	assert.Equal(t, 10*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, time.Second, cfg.LLM.BaseDelay)
	assert.Equal(t, 0.7, cfg.Executor.ScrollFraction)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "ollama", name)
	assert.Equal(t, DefaultOllamaModel, p.Model)
	assert.Equal(t, 2000, p.MaxTokens)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wayfarer.yaml")
	content := `
browser:
  engine: playwright
  headless: false
providers:
  ollama:
    kind: langchain
    provider: ollama
    model: llama3
    base_url: http://models:11434
    enabled: true
gateways:
  telegram:
    token: abc
    target: "42"
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("OLLAMA_MODEL", "qwen2")
	t.Setenv("WAYFARER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "playwright", cfg.Browser.Engine)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "qwen2", cfg.Providers["ollama"].Model)
	assert.Equal(t, "http://models:11434", cfg.Providers["ollama"].BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)

	tg, ok := cfg.GetGateway("telegram")
	require.True(t, ok)
	assert.Equal(t, "42", tg.Target)

	_, ok = cfg.GetGateway("discord")
	assert.False(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
