// Package main provides the kiro CLI for loading documents into the
// knowledge base and querying it from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kiro-rag/kiro/internal/blobstore"
	"github.com/kiro-rag/kiro/internal/chunker"
	"github.com/kiro-rag/kiro/internal/config"
	"github.com/kiro-rag/kiro/internal/docparse"
	"github.com/kiro-rag/kiro/internal/docstore"
	"github.com/kiro-rag/kiro/internal/domain"
	"github.com/kiro-rag/kiro/internal/embedding"
	"github.com/kiro-rag/kiro/internal/githubsrc"
	"github.com/kiro-rag/kiro/internal/indexer"
	"github.com/kiro-rag/kiro/internal/ingest"
	"github.com/kiro-rag/kiro/internal/questions"
	"github.com/kiro-rag/kiro/internal/retriever"
	"github.com/kiro-rag/kiro/internal/search"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "kiro-sync",
	Short: "Knowledge base loading and query tool",
	Long:  "CLI tool for ingesting documents into the knowledge base and querying the hybrid index",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <glob>",
	Short: "Upload and chunk all files matching a glob pattern",
	Long: `Uploads every matching file and runs the chunking pipeline on each.

Supports ** patterns, e.g. "docs/**/*.md". Files whose content is
already in the knowledge base are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var importGithubCmd = &cobra.Command{
	Use:   "import-github <owner> <repo> [path]",
	Short: "Import all markdown files from a GitHub repository",
	Long: `Recursively fetches .md files from the repository and ingests each.

Environment variables:
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)
  OPENAI_API_KEY OpenAI API key for embeddings (required)`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runImportGithub,
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <document-id>",
	Short: "Run the chunking pipeline for one stored document",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Query the hybrid index and print matching chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(importGithubCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// pipeline bundles everything the subcommands wire up.
type pipeline struct {
	cfg       *config.Config
	docs      *docstore.Store
	blobs     *blobstore.Store
	engine    *search.Hybrid
	retriever *retriever.Retriever
	ingest    *ingest.Service
	logger    *slog.Logger
}

func (p *pipeline) Close() {
	p.engine.Close()
	p.blobs.Close()
	p.docs.Close()
}

func buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	docs, err := docstore.Open(cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	blobs, err := blobstore.Open(cfg.BlobPath(), cfg.Storage.PublicBaseURL)
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	vectors, err := search.NewVectorStore(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection, cfg.OpenAI.Dimension)
	if err != nil {
		blobs.Close()
		docs.Close()
		return nil, fmt.Errorf("connecting to vector engine: %w", err)
	}
	lexical, err := search.OpenLexicalIndex(cfg.BlevePath())
	if err != nil {
		blobs.Close()
		docs.Close()
		return nil, err
	}
	weights := search.Weights{Lexical: cfg.Retrieval.LexicalWeight, Vector: cfg.Retrieval.VectorWeight}
	engine := search.NewHybrid(lexical, vectors, weights, logger)

	if err := engine.Ensure(ctx); err != nil {
		engine.Close()
		blobs.Close()
		docs.Close()
		return nil, fmt.Errorf("preparing search engines: %w", err)
	}

	client, err := embedding.NewClient()
	if err != nil {
		engine.Close()
		blobs.Close()
		docs.Close()
		return nil, err
	}
	embedder := embedding.NewEmbedder(client, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.Dimension, cfg.OpenAI.BatchSize)
	synthesizer := questions.NewSynthesizer(client, cfg.OpenAI.ChatModel, logger)

	splitter, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		engine.Close()
		blobs.Close()
		docs.Close()
		return nil, err
	}

	ix := indexer.New(embedder, synthesizer, engine, docs, logger)
	return &pipeline{
		cfg:       cfg,
		docs:      docs,
		blobs:     blobs,
		engine:    engine,
		retriever: retriever.New(embedder, engine, cfg.Retrieval.TopK, cfg.Retrieval.MinScore, logger),
		ingest:    ingest.NewService(docs, blobs, docparse.NewHTTPParser(cfg.Parser.URL), splitter, ix, logger),
		logger:    logger,
	}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	paths, err := doublestar.FilepathGlob(args[0])
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(paths) == 0 {
		fmt.Println("No files matched.")
		return nil
	}

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	bar := progressbar.Default(int64(len(paths)), "ingesting")
	var ingested, skipped, failed int
	for _, path := range paths {
		bar.Add(1)

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", path, err)
			failed++
			continue
		}
		doc, err := p.ingest.Upload(ctx, filepath.Base(path), data, "cli")
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateContent) {
				skipped++
				continue
			}
			fmt.Fprintf(os.Stderr, "  %s: %v\n", path, err)
			failed++
			continue
		}
		if err := p.ingest.Chunk(ctx, doc.ID); err != nil {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", path, err)
			failed++
			continue
		}
		ingested++
	}

	fmt.Println()
	fmt.Println("Ingest complete!")
	fmt.Printf("  Ingested: %d\n", ingested)
	fmt.Printf("  Skipped:  %d (duplicate content)\n", skipped)
	fmt.Printf("  Failed:   %d\n", failed)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Second))
	return nil
}

func runImportGithub(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	owner, repo := args[0], args[1]
	basePath := ""
	if len(args) == 3 {
		basePath = args[2]
	}

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	ghClient, err := githubsrc.NewClient()
	if err != nil {
		return fmt.Errorf("creating GitHub client: %w", err)
	}
	importer := githubsrc.NewImporter(ghClient, p.ingest, owner, repo, basePath, p.logger)

	fmt.Printf("Importing markdown from %s/%s...\n", owner, repo)
	stats, err := importer.Import(ctx, "github")
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Import complete!")
	fmt.Printf("  Imported: %d\n", stats.Imported)
	fmt.Printf("  Skipped:  %d (duplicate content)\n", stats.Skipped)
	fmt.Printf("  Failed:   %d\n", stats.Failed)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Second))
	return nil
}

func runChunk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.ingest.Chunk(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Document %s chunked.\n", args[0])
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	hits, err := p.retriever.Retrieve(ctx, args[0])
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No matching chunks.")
		return nil
	}

	for i, h := range hits {
		fmt.Printf("%d. [%.2f] document=%s chunk=%d\n", i+1, h.Score, h.DocumentID, h.ChunkIndex)
		fmt.Println(h.Content)
		fmt.Println()
	}
	return nil
}
