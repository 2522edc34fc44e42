// Package config loads the service configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the knowledge base service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chat      ChatConfig      `yaml:"chat"`
	Parser    ParserConfig    `yaml:"parser"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig holds local data paths and the public URL base for blobs.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`       // SQLite, bbolt and bleve live under here
	PublicBaseURL string `yaml:"public_base_url"` // Prefix for object public URLs
}

// QdrantConfig holds the vector engine connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// OpenAIConfig holds model settings. The API key is read from the
// OPENAI_API_KEY environment variable, never from the file.
type OpenAIConfig struct {
	EmbeddingModel string `yaml:"embedding_model"`
	Dimension      int    `yaml:"dimension"`
	ChatModel      string `yaml:"chat_model"`
	BatchSize      int    `yaml:"batch_size"`
}

// ChunkingConfig holds the splitter bounds.
type ChunkingConfig struct {
	Size    int `yaml:"size"`    // Target chunk size in characters
	Overlap int `yaml:"overlap"` // Carried from piece tail into the next head
}

// RetrievalConfig holds the hybrid query tuning.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// MinScore is the floor on the fused hit score. Its scale follows the
	// lexical engine's relevance values: the default of 6 assumes a
	// high-IDF scorer, while bleve tf-idf relevance rarely exceeds 3, so
	// weighted fused scores top out near 0.4*3 + 0.6*1. Deployments on
	// the bundled engines should lower it accordingly.
	MinScore      float64 `yaml:"min_score"`
	LexicalWeight float64 `yaml:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight"`
}

// ChatConfig bounds how much conversation history is replayed per prompt.
type ChatConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

// ParserConfig points at the external document-structuring (OCR) service.
type ParserConfig struct {
	URL string `yaml:"url"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: "0.0.0.0:8080"},
		Storage: StorageConfig{DataDir: "data", PublicBaseURL: "http://localhost:8080/objects"},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "kiro_chunks",
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			Dimension:      512,
			ChatModel:      "gpt-4o",
			BatchSize:      500,
		},
		Chunking:  ChunkingConfig{Size: 512, Overlap: 10},
		Retrieval: RetrievalConfig{TopK: 20, MinScore: 6, LexicalWeight: 0.4, VectorWeight: 0.6},
		Chat:      ChatConfig{HistoryLimit: 20},
		Parser:    ParserConfig{URL: "http://localhost:8501/parse"},
	}
}

// Load reads the config file at path, merged over defaults. A missing file
// is not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate fails fast on configurations that would corrupt the pipeline.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must not be negative, got %d", c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.OpenAI.Dimension <= 0 {
		return fmt.Errorf("openai.dimension must be positive, got %d", c.OpenAI.Dimension)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.LexicalWeight < 0 || c.Retrieval.VectorWeight < 0 {
		return fmt.Errorf("retrieval weights must not be negative")
	}
	if c.Retrieval.LexicalWeight == 0 && c.Retrieval.VectorWeight == 0 {
		return fmt.Errorf("at least one retrieval weight must be positive")
	}
	return nil
}

// SQLitePath returns the relational store location under the data dir.
func (c *Config) SQLitePath() string { return filepath.Join(c.Storage.DataDir, "metadata.db") }

// BlobPath returns the blob store location under the data dir.
func (c *Config) BlobPath() string { return filepath.Join(c.Storage.DataDir, "blobs.db") }

// HistoryPath returns the conversation history store location.
func (c *Config) HistoryPath() string { return filepath.Join(c.Storage.DataDir, "history.db") }

// BlevePath returns the lexical index directory.
func (c *Config) BlevePath() string { return filepath.Join(c.Storage.DataDir, "lexical.bleve") }
