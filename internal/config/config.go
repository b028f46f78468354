package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.tgvault/config.toml.
type Config struct {
	DefaultVault string `toml:"default_vault"`

	Sync      SyncConfig      `toml:"sync"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Remote    RemoteConfig    `toml:"remote"`
}

// SyncConfig controls the periodic sync scheduler and the backoff policy.
type SyncConfig struct {
	// Conversations lists the conversation ids the scheduler tails.
	Conversations []int64 `toml:"conversations"`
	// IntervalSeconds is the pause between scheduler rounds. Zero means 300.
	IntervalSeconds int `toml:"interval_seconds"`
	// BackoffBaseMillis is the base wait applied on a rate-limit signal,
	// doubled per retry. Zero means 2000.
	BackoffBaseMillis int `toml:"backoff_base_millis"`
	// MaxRetries caps rate-limit retries per pass. Zero means 5.
	MaxRetries int `toml:"max_retries"`
}

// EmbeddingConfig configures the embedding provider and indexer batch pass.
type EmbeddingConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	BatchSize int    `toml:"batch_size"`
}

// RemoteConfig selects the bundled remote source implementation.
type RemoteConfig struct {
	// DumpDir points at a directory of JSONL conversation dumps served by
	// the replay source. Empty disables the bundled source.
	DumpDir string `toml:"dump_dir"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
