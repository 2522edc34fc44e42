package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Chunking.Size != 512 || cfg.Chunking.Overlap != 10 {
		t.Errorf("unexpected chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Retrieval.TopK != 20 || cfg.Retrieval.MinScore != 6 {
		t.Errorf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
chunking:
  size: 1024
  overlap: 64
retrieval:
  top_k: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Chunking.Size != 1024 || cfg.Chunking.Overlap != 64 {
		t.Errorf("overrides not applied: %+v", cfg.Chunking)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("top_k override not applied: %d", cfg.Retrieval.TopK)
	}
	// Untouched sections keep defaults.
	if cfg.Qdrant.Port != 6334 {
		t.Errorf("default qdrant port lost: %d", cfg.Qdrant.Port)
	}
}

func TestValidate_OverlapMustBeSmallerThanSize(t *testing.T) {
	cfg := Default()
	cfg.Chunking.Size = 100
	cfg.Chunking.Overlap = 100
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for overlap >= size")
	}

	cfg.Chunking.Overlap = 150
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for overlap > size")
	}
}
