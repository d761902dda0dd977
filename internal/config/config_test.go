package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "genai", cfg.Embedding.Provider)
	assert.Equal(t, "gemini-embedding-001", cfg.Embedding.GenAIModel)
	assert.Equal(t, "gemini-2.5-flash", cfg.Reasoning.Model)
	assert.Equal(t, 5, cfg.Cluster.KMin)
	assert.Equal(t, 40, cfg.Cluster.KMax)
	assert.Equal(t, 12, cfg.Cluster.SampleCap)
	assert.Equal(t, 12, cfg.Guardrail.MinClusterSize)
	assert.Equal(t, 0.6, cfg.Guardrail.MinConfidence)
	assert.Equal(t, "confidence", cfg.Pipeline.SortBy)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Cluster, cfg.Cluster)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Cluster.KMax = 25
	cfg.Guardrail.MinConfidence = 0.75
	cfg.Pipeline.SortBy = "group"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.Cluster.KMax)
	assert.Equal(t, 0.75, loaded.Guardrail.MinConfidence)
	assert.Equal(t, "group", loaded.Pipeline.SortBy)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GEMINI_API_KEY fills both key slots", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("GOOGLE_API_KEY", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Reasoning.APIKey)
		assert.Equal(t, "gem-key", cfg.Embedding.GenAIAPIKey)
	})

	t.Run("GOOGLE_API_KEY used when GEMINI_API_KEY unset", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "goog-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "goog-key", cfg.Reasoning.APIKey)
	})

	t.Run("env does not clobber an explicit key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.Reasoning.APIKey = "explicit"
		cfg.applyEnvOverrides()

		assert.Equal(t, "explicit", cfg.Reasoning.APIKey)
	})

	t.Run("provider and db path overrides", func(t *testing.T) {
		t.Setenv("INTENTMINER_EMBEDDING_PROVIDER", "ollama")
		t.Setenv("OLLAMA_HOST", "http://remote:11434")
		t.Setenv("INTENTMINER_DB_PATH", "/tmp/alt.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "ollama", cfg.Embedding.Provider)
		assert.Equal(t, "http://remote:11434", cfg.Embedding.OllamaEndpoint)
		assert.Equal(t, "/tmp/alt.db", cfg.Store.DatabasePath)
	})
}

func TestDurationParsing(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Second, cfg.ReasoningTimeout())
	assert.Equal(t, 400*time.Millisecond, cfg.ReasoningCallPause())
	assert.Equal(t, 10*time.Minute, cfg.RunTimeout())

	cfg.Reasoning.Timeout = "garbage"
	assert.Equal(t, 120*time.Second, cfg.ReasoningTimeout(), "bad duration falls back")

	cfg.Pipeline.RunTimeout = ""
	assert.Equal(t, time.Duration(0), cfg.RunTimeout(), "empty run timeout means none")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"k_min below 2", func(c *Config) { c.Cluster.KMin = 1 }},
		{"k_max below k_min", func(c *Config) { c.Cluster.KMax = 3 }},
		{"zero sample cap", func(c *Config) { c.Cluster.SampleCap = 0 }},
		{"zero min cluster size", func(c *Config) { c.Guardrail.MinClusterSize = 0 }},
		{"confidence above 1", func(c *Config) { c.Guardrail.MinConfidence = 1.5 }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"bad sort", func(c *Config) { c.Pipeline.SortBy = "alphabetical" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
