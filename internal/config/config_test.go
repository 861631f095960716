package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.AIProvider != "openrouter" {
		t.Errorf("expected AIProvider 'openrouter', got %q", cfg.AIProvider)
	}

	if cfg.Temperature != 0.3 {
		t.Errorf("expected Temperature 0.3, got %f", cfg.Temperature)
	}

	if cfg.MinTmSimilarity != 0.85 {
		t.Errorf("expected MinTmSimilarity 0.85, got %f", cfg.MinTmSimilarity)
	}

	if cfg.AutoAcceptTmThreshold != 0.95 {
		t.Errorf("expected AutoAcceptTmThreshold 0.95, got %f", cfg.AutoAcceptTmThreshold)
	}

	if cfg.ParallelBatches != 1 {
		t.Errorf("expected ParallelBatches 1, got %d", cfg.ParallelBatches)
	}

	if cfg.MaxConcurrentBatch != 3 {
		t.Errorf("expected MaxConcurrentBatch 3, got %d", cfg.MaxConcurrentBatch)
	}

	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", cfg.MaxRetries)
	}

	if cfg.MaxSplitDepth != 25 {
		t.Errorf("expected MaxSplitDepth 25, got %d", cfg.MaxSplitDepth)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel 'info', got %q", cfg.LogLevel)
	}
}

func TestExists(t *testing.T) {
	originalPath := configPath
	configPath = "nonexistent_config_test.json"
	defer func() { configPath = originalPath }()

	if Exists() {
		t.Error("Exists() should return false for non-existent file")
	}

	tmpDir := t.TempDir()
	tmpConfig := filepath.Join(tmpDir, "config.json")
	configPath = tmpConfig
	if err := os.WriteFile(tmpConfig, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	if !Exists() {
		t.Error("Exists() should return true for existing file")
	}
}

func TestConfigSave(t *testing.T) {
	tmpDir := t.TempDir()
	tmpConfig := filepath.Join(tmpDir, "config.json")
	originalPath := configPath
	configPath = tmpConfig
	defer func() { configPath = originalPath }()

	cfg := Default()
	cfg.AIProvider = "gemini"
	cfg.Model = "gemini-1.5-pro"
	err := cfg.Save()

	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(tmpConfig); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	content, err := os.ReadFile(tmpConfig)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	if len(content) == 0 {
		t.Error("config file should not be empty")
	}
}

func TestConfigStruct(t *testing.T) {
	cfg := &Config{
		AIProvider:     "openai",
		APIKey:         "sk-test-key",
		LocalEndpoint:  "http://localhost:8080",
		Model:          "gpt-4o",
		Temperature:    0.5,
		TmDatabasePath: "tm.db",
		MaxRetries:     5,
		LogLevel:       "debug",
	}

	if cfg.AIProvider != "openai" {
		t.Errorf("unexpected AIProvider: %q", cfg.AIProvider)
	}

	if cfg.MaxRetries != 5 {
		t.Errorf("unexpected MaxRetries: %d", cfg.MaxRetries)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("unexpected LogLevel: %q", cfg.LogLevel)
	}
}

func TestLoadUsesDefaultWhenNoFile(t *testing.T) {
	resetForTest()
	originalPath := configPath
	configPath = "definitely-not-present.json"
	defer func() { configPath = originalPath; resetForTest() }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AIProvider != "openrouter" {
		t.Errorf("expected default provider, got %q", cfg.AIProvider)
	}
}
