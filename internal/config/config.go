// Package config holds the run-level configuration for intentminer.
// Configuration is immutable once loaded: the orchestrator threads a single
// Config value through every component instead of ambient globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all intentminer configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Reasoning service (LLM) configuration
	Reasoning ReasoningConfig `yaml:"reasoning"`

	// Clustering sweep configuration
	Cluster ClusterConfig `yaml:"cluster"`

	// Guardrail admission policy
	Guardrail GuardrailConfig `yaml:"guardrail"`

	// Run orchestration
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Suggestion store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "genai" or "ollama"

	// GenAI
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// Ollama
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
}

// ReasoningConfig configures the reasoning service used to name clusters.
type ReasoningConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`

	// CallPause is the pause between reasoning calls within one worker,
	// respecting provider rate limits.
	CallPause string `yaml:"call_pause"`
}

// ClusterConfig configures the group-count sweep.
type ClusterConfig struct {
	KMin int `yaml:"k_min"`
	KMax int `yaml:"k_max"`

	// SampleCap bounds how many representative messages are sent per group.
	SampleCap int `yaml:"sample_cap"`
}

// GuardrailConfig configures the admission policy.
type GuardrailConfig struct {
	MinClusterSize int     `yaml:"min_cluster_size"`
	MinConfidence  float64 `yaml:"min_confidence"`

	// PrimaryLevelSize is the group size at or above which an accepted
	// proposal is reported as a primary intent rather than secondary.
	PrimaryLevelSize int `yaml:"primary_level_size"`
}

// PipelineConfig configures run orchestration.
type PipelineConfig struct {
	// Workers bounds the per-group reasoning concurrency.
	Workers int `yaml:"workers"`

	// RunTimeout aborts still-pending reasoning calls and finalizes the
	// run as partial. Empty means no timeout.
	RunTimeout string `yaml:"run_timeout"`

	// SortBy orders the accepted output: "group" or "confidence".
	SortBy string `yaml:"sort_by"`

	// OutputDir receives the JSON artifacts (raw clusters, suggestions).
	OutputDir string `yaml:"output_dir"`
}

// StoreConfig configures the suggestion store.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "intentminer",
		Version: "0.3.0",

		Embedding: EmbeddingConfig{
			Provider:       "genai",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
		},

		Reasoning: ReasoningConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
			Timeout:     "120s",
			CallPause:   "400ms",
		},

		Cluster: ClusterConfig{
			KMin:      5,
			KMax:      40,
			SampleCap: 12,
		},

		Guardrail: GuardrailConfig{
			MinClusterSize:   12,
			MinConfidence:    0.6,
			PrimaryLevelSize: 50,
		},

		Pipeline: PipelineConfig{
			Workers:    4,
			RunTimeout: "10m",
			SortBy:     "confidence",
			OutputDir:  "output",
		},

		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: "data/intentminer.db",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// GEMINI_API_KEY takes priority, GOOGLE_API_KEY matches the upstream SDK.
	for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			if c.Reasoning.APIKey == "" {
				c.Reasoning.APIKey = key
			}
			if c.Embedding.GenAIAPIKey == "" {
				c.Embedding.GenAIAPIKey = key
			}
			break
		}
	}

	if endpoint := os.Getenv("OLLAMA_HOST"); endpoint != "" {
		c.Embedding.OllamaEndpoint = endpoint
	}
	if provider := os.Getenv("INTENTMINER_EMBEDDING_PROVIDER"); provider != "" {
		c.Embedding.Provider = provider
	}
	if dbPath := os.Getenv("INTENTMINER_DB_PATH"); dbPath != "" {
		c.Store.DatabasePath = dbPath
	}
}

// ReasoningTimeout parses the reasoning timeout, defaulting to 120s.
func (c *Config) ReasoningTimeout() time.Duration {
	return parseDuration(c.Reasoning.Timeout, 120*time.Second)
}

// ReasoningCallPause parses the inter-call pause, defaulting to 400ms.
func (c *Config) ReasoningCallPause() time.Duration {
	return parseDuration(c.Reasoning.CallPause, 400*time.Millisecond)
}

// RunTimeout parses the run-level timeout. Zero means no timeout.
func (c *Config) RunTimeout() time.Duration {
	return parseDuration(c.Pipeline.RunTimeout, 0)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks configuration invariants that would otherwise surface as
// confusing mid-run failures.
func (c *Config) Validate() error {
	if c.Cluster.KMin < 2 {
		return fmt.Errorf("cluster.k_min must be >= 2, got %d", c.Cluster.KMin)
	}
	if c.Cluster.KMax < c.Cluster.KMin {
		return fmt.Errorf("cluster.k_max (%d) must be >= cluster.k_min (%d)", c.Cluster.KMax, c.Cluster.KMin)
	}
	if c.Cluster.SampleCap < 1 {
		return fmt.Errorf("cluster.sample_cap must be >= 1, got %d", c.Cluster.SampleCap)
	}
	if c.Guardrail.MinClusterSize < 1 {
		return fmt.Errorf("guardrail.min_cluster_size must be >= 1, got %d", c.Guardrail.MinClusterSize)
	}
	if c.Guardrail.MinConfidence < 0 || c.Guardrail.MinConfidence > 1 {
		return fmt.Errorf("guardrail.min_confidence must be in [0,1], got %g", c.Guardrail.MinConfidence)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	}
	switch c.Pipeline.SortBy {
	case "group", "confidence":
	default:
		return fmt.Errorf("pipeline.sort_by must be \"group\" or \"confidence\", got %q", c.Pipeline.SortBy)
	}
	return nil
}
