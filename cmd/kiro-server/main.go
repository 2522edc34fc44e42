// Package main runs the knowledge base HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kiro-rag/kiro/internal/api"
	"github.com/kiro-rag/kiro/internal/blobstore"
	"github.com/kiro-rag/kiro/internal/chat"
	"github.com/kiro-rag/kiro/internal/chunker"
	"github.com/kiro-rag/kiro/internal/config"
	"github.com/kiro-rag/kiro/internal/docparse"
	"github.com/kiro-rag/kiro/internal/docstore"
	"github.com/kiro-rag/kiro/internal/embedding"
	"github.com/kiro-rag/kiro/internal/history"
	"github.com/kiro-rag/kiro/internal/indexer"
	"github.com/kiro-rag/kiro/internal/ingest"
	"github.com/kiro-rag/kiro/internal/questions"
	"github.com/kiro-rag/kiro/internal/retriever"
	"github.com/kiro-rag/kiro/internal/search"
)

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	docs, err := docstore.Open(cfg.SQLitePath())
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	defer docs.Close()

	blobs, err := blobstore.Open(cfg.BlobPath(), cfg.Storage.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	defer blobs.Close()

	hist, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer hist.Close()

	vectors, err := search.NewVectorStore(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection, cfg.OpenAI.Dimension)
	if err != nil {
		return fmt.Errorf("connecting to vector engine: %w", err)
	}
	lexical, err := search.OpenLexicalIndex(cfg.BlevePath())
	if err != nil {
		return err
	}
	weights := search.Weights{Lexical: cfg.Retrieval.LexicalWeight, Vector: cfg.Retrieval.VectorWeight}
	engine := search.NewHybrid(lexical, vectors, weights, logger)
	defer engine.Close()

	if err := engine.Ensure(ctx); err != nil {
		return fmt.Errorf("preparing search engines: %w", err)
	}

	client, err := embedding.NewClient()
	if err != nil {
		return err
	}
	embedder := embedding.NewEmbedder(client, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.Dimension, cfg.OpenAI.BatchSize)
	synthesizer := questions.NewSynthesizer(client, cfg.OpenAI.ChatModel, logger)

	splitter, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}

	ix := indexer.New(embedder, synthesizer, engine, docs, logger)
	ingestSvc := ingest.NewService(docs, blobs, docparse.NewHTTPParser(cfg.Parser.URL), splitter, ix, logger)
	retr := retriever.New(embedder, engine, cfg.Retrieval.TopK, cfg.Retrieval.MinScore, logger)
	chatSvc := chat.NewService(client, cfg.OpenAI.ChatModel, retr, hist, cfg.Chat.HistoryLimit, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(ingestSvc, docs, chatSvc, blobs, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
