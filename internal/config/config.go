// Package config loads and persists orchestrator-wide settings: which LLM
// provider and model to use, translation memory storage location, and the
// concurrency/threshold knobs the core components read their defaults from.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration for the translation
// orchestration core and its default adapter wiring.
type Config struct {
	// AI Provider Settings
	AIProvider    string  `json:"ai_provider" mapstructure:"ai_provider"`       // openrouter, gemini, openai, local
	APIKey        string  `json:"api_key" mapstructure:"api_key"`               // API key or empty for local
	LocalEndpoint string  `json:"local_endpoint" mapstructure:"local_endpoint"` // For local LLM
	Model         string  `json:"model" mapstructure:"model"`                  // Selected model ID
	Temperature   float64 `json:"temperature" mapstructure:"temperature"`      // AI temperature (0.0-1.0)

	// Translation Memory
	TmDatabasePath        string  `json:"tm_database_path" mapstructure:"tm_database_path"`
	MinTmSimilarity       float64 `json:"min_tm_similarity" mapstructure:"min_tm_similarity"`
	AutoAcceptTmThreshold float64 `json:"auto_accept_tm_threshold" mapstructure:"auto_accept_tm_threshold"`

	// Batch / concurrency defaults (overridable per TranslationContext)
	UnitsPerBatch      int `json:"units_per_batch" mapstructure:"units_per_batch"`
	ParallelBatches    int `json:"parallel_batches" mapstructure:"parallel_batches"`
	MaxConcurrentBatch int `json:"max_concurrent_batches" mapstructure:"max_concurrent_batches"`

	// Retry
	MaxRetries    int `json:"max_retries" mapstructure:"max_retries"`
	MaxSplitDepth int `json:"max_split_depth" mapstructure:"max_split_depth"`

	// Advanced
	LogLevel string `json:"log_level" mapstructure:"log_level"` // info, debug
}

var (
	configPath = "modtranslate.json"
	instance   *Config
)

// Default returns the factory configuration.
func Default() *Config {
	return &Config{
		AIProvider:            "openrouter",
		APIKey:                "",
		LocalEndpoint:         "http://localhost:11434",
		Model:                 "google/gemini-flash-1.5",
		Temperature:           0.3,
		TmDatabasePath:        "modtranslate-tm.db",
		MinTmSimilarity:       0.85,
		AutoAcceptTmThreshold: 0.95,
		UnitsPerBatch:         0, // 0 = auto
		ParallelBatches:       1,
		MaxConcurrentBatch:    3,
		MaxRetries:            3,
		MaxSplitDepth:         25,
		LogLevel:              "info",
	}
}

// Exists checks if a config file is present at the default path.
func Exists() bool {
	_, err := os.Stat(configPath)
	return err == nil
}

// Load reads the configuration from modtranslate.json, falling back to
// Default() when no file is present.
func Load() (*Config, error) {
	if instance != nil {
		return instance, nil
	}

	viper.SetConfigName("modtranslate")
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/modtranslate")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			instance = Default()
			return instance, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	instance = cfg
	return instance, nil
}

// Save writes the configuration to modtranslate.json.
func (c *Config) Save() error {
	configDir := filepath.Dir(configPath)
	if configDir != "." && configDir != "" {
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	viper.Set("ai_provider", c.AIProvider)
	viper.Set("api_key", c.APIKey)
	viper.Set("local_endpoint", c.LocalEndpoint)
	viper.Set("model", c.Model)
	viper.Set("temperature", c.Temperature)
	viper.Set("tm_database_path", c.TmDatabasePath)
	viper.Set("min_tm_similarity", c.MinTmSimilarity)
	viper.Set("auto_accept_tm_threshold", c.AutoAcceptTmThreshold)
	viper.Set("units_per_batch", c.UnitsPerBatch)
	viper.Set("parallel_batches", c.ParallelBatches)
	viper.Set("max_concurrent_batches", c.MaxConcurrentBatch)
	viper.Set("max_retries", c.MaxRetries)
	viper.Set("max_split_depth", c.MaxSplitDepth)
	viper.Set("log_level", c.LogLevel)

	return viper.WriteConfigAs(configPath)
}

// resetForTest clears the process-wide cached instance. Test-only.
func resetForTest() {
	instance = nil
}
