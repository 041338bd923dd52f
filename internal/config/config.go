// Package config loads rangecraft configuration from an optional YAML file
// with environment-variable overrides. Missing file means defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"rangecraft/internal/author"
	"rangecraft/internal/embedding"
	"rangecraft/internal/guide"
	"rangecraft/internal/llm"
)

// DefaultFile is the config file name looked up in the workspace root.
const DefaultFile = "rangecraft.yaml"

// IndexConfig locates the vector index and the knowledge base it is seeded
// from.
type IndexConfig struct {
	Path         string `yaml:"path"`          // default ".rangecraft/index.db"
	KnowledgeDir string `yaml:"knowledge_dir"` // default "knowledge"
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"` // default "info"
}

// Config is the full configuration tree.
type Config struct {
	LLM       llm.Config       `yaml:"llm"`
	Embedding embedding.Config `yaml:"embedding"`
	Index     IndexConfig      `yaml:"index"`
	Author    author.Config    `yaml:"author"`
	Guide     guide.Config     `yaml:"guide"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM:       llm.DefaultConfig(),
		Embedding: embedding.DefaultConfig(),
		Index: IndexConfig{
			Path:         filepath.Join(".rangecraft", "index.db"),
			KnowledgeDir: "knowledge",
		},
		Author: author.DefaultConfig(),
		Guide:  guide.DefaultConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (or DefaultFile in workspace when path
// is empty), layering file values over defaults and environment overrides
// over both. A missing file is not an error.
func Load(workspace, path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(workspace, DefaultFile)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers RANGECRAFT_* environment variables over the loaded
// values. Only the knobs that are useful to flip per-invocation are
// exposed this way.
func (c *Config) applyEnv() {
	if v := os.Getenv("RANGECRAFT_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("RANGECRAFT_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("RANGECRAFT_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LLM.Timeout = d
		}
	}
	if v := os.Getenv("RANGECRAFT_EMBEDDING_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("RANGECRAFT_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("RANGECRAFT_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("RANGECRAFT_KNOWLEDGE_DIR"); v != "" {
		c.Index.KnowledgeDir = v
	}
	if v := os.Getenv("RANGECRAFT_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Author.MaxAttempts = n
		}
	}
	if v := os.Getenv("RANGECRAFT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}
