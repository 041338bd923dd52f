// Package embedding provides vector embedding generation for semantic search
// over the document index. The backend is a local Ollama server; dimensionality
// is fixed at deployment time and must match between index and query time.
package embedding

import (
	"context"
	"fmt"
	"math"

	"rangecraft/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for engines that support a
// reachability probe before first use.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds embedding engine configuration.
type Config struct {
	Provider   string `yaml:"provider" json:"provider"`     // currently "ollama"
	Endpoint   string `yaml:"endpoint" json:"endpoint"`     // default "http://localhost:11434"
	Model      string `yaml:"model" json:"model"`           // default "all-minilm"
	Dimensions int    `yaml:"dimensions" json:"dimensions"` // default 384
}

// DefaultConfig returns sensible defaults for a local deployment.
func DefaultConfig() Config {
	return Config{
		Provider:   "ollama",
		Endpoint:   "http://localhost:11434",
		Model:      "all-minilm",
		Dimensions: 384,
	}
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	logging.Embedding("Creating embedding engine: provider=%s model=%s dims=%d",
		cfg.Provider, cfg.Model, cfg.Dimensions)

	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaEngine(cfg.Endpoint, cfg.Model, cfg.Dimensions)
	default:
		err := fmt.Errorf("unsupported embedding provider: %s (use 'ollama')", cfg.Provider)
		logging.Get(logging.CategoryEmbedding).Error("%v", err)
		return nil, err
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
// A dimensionality mismatch is a configuration error, never coerced.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}

	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
