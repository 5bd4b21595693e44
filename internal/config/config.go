// Package config manages the global ~/.config/docsage/config.toml
// settings for docsage.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// GlobalConfig holds user-wide settings.
type GlobalConfig struct {
	DefaultProvider string          `toml:"default_provider"`
	DefaultEmbedder string          `toml:"default_embedder"`
	DefaultSession  string          `toml:"default_session"`
	Keys            KeysConfig      `toml:"keys"`
	Ollama          OllamaConfig    `toml:"ollama"`
	Chunking        ChunkingConfig  `toml:"chunking"`
	Retrieval       RetrievalConfig `toml:"retrieval"`
	Memory          MemoryConfig    `toml:"memory"`
}

type KeysConfig struct {
	Anthropic string `toml:"anthropic"`
	OpenAI    string `toml:"openai"`
}

type OllamaConfig struct {
	Host            string `toml:"host"`
	EmbedModel      string `toml:"embed_model"`
	CompletionModel string `toml:"completion_model"`
}

// ChunkingConfig controls the parent/child span sizes used at ingestion.
type ChunkingConfig struct {
	ParentSize    int `toml:"parent_size"`
	ParentOverlap int `toml:"parent_overlap"`
	ChildSize     int `toml:"child_size"`
	ChildOverlap  int `toml:"child_overlap"`
}

// RetrievalConfig controls search behaviour at query time.
type RetrievalConfig struct {
	TopK               int `toml:"top_k"`
	EmbeddingDimension int `toml:"embedding_dimension"`
}

// MemoryConfig controls the conversational-memory window.
type MemoryConfig struct {
	RecentWindow int `toml:"recent_window"`
}

// DefaultGlobal returns sensible defaults.
func DefaultGlobal() GlobalConfig {
	return GlobalConfig{
		DefaultProvider: "claude",
		DefaultEmbedder: "ollama",
		DefaultSession:  "default",
		Ollama: OllamaConfig{
			Host:            "http://localhost:11434",
			EmbedModel:      "nomic-embed-text",
			CompletionModel: "llama3.2",
		},
		Chunking: ChunkingConfig{
			ParentSize:    2000,
			ParentOverlap: 200,
			ChildSize:     400,
			ChildOverlap:  50,
		},
		Retrieval: RetrievalConfig{
			TopK:               10,
			EmbeddingDimension: 768,
		},
		Memory: MemoryConfig{
			RecentWindow: 6,
		},
	}
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docsage", "config.toml"), nil
}

// DataDir returns the directory holding the docsage database.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "docsage"), nil
}

// DBPath returns the path to the docsage SQLite database.
func DBPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "docsage.db"), nil
}

// LoadGlobal loads the global config, applying defaults for any missing values.
func LoadGlobal() (GlobalConfig, error) {
	cfg := DefaultGlobal()

	path, err := GlobalConfigPath()
	if err != nil {
		return cfg, nil // Return defaults if we can't determine home dir.
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnvKeys(&cfg)
		return cfg, nil // File doesn't exist yet — use defaults.
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: load global: %w", err)
	}

	applyEnvKeys(&cfg)
	return cfg, nil
}

// applyEnvKeys lets env vars override config file API keys.
func applyEnvKeys(cfg *GlobalConfig) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Keys.Anthropic = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Keys.OpenAI = v
	}
}

// SaveGlobal writes the global config to disk.
func SaveGlobal(cfg GlobalConfig) error {
	path, err := GlobalConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create global config: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// KeyFor returns the configured API key for a provider name.
func (c GlobalConfig) KeyFor(provider string) string {
	switch provider {
	case "claude":
		return c.Keys.Anthropic
	case "openai":
		return c.Keys.OpenAI
	default:
		return ""
	}
}
