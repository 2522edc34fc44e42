// Package ingest drives the document pipeline: upload, parse, split and
// hand off to the indexer. A document that fails anywhere in the
// pipeline is marked failed with its retry count bumped, never left
// stuck in chunking.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/kiro-rag/kiro/internal/chunker"
	"github.com/kiro-rag/kiro/internal/docparse"
	"github.com/kiro-rag/kiro/internal/domain"
)

type documentStore interface {
	InsertDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	FindByHash(ctx context.Context, hash string) (*domain.Document, error)
	ClaimForChunking(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	DeleteChunks(ctx context.Context, documentID string) error
}

type blobStore interface {
	Upload(data []byte, prefix, name, contentType string) (string, error)
	Download(objectName string) ([]byte, error)
	UploadDir(files map[string][]byte, prefix string) (map[string]string, error)
}

type indexer interface {
	Index(ctx context.Context, documentID string, chunks []*domain.Chunk) error
}

// Service owns the ingestion pipeline for one knowledge base.
type Service struct {
	docs     documentStore
	blobs    blobStore
	parser   docparse.Parser
	splitter *chunker.Splitter
	indexer  indexer
	logger   *slog.Logger
}

func NewService(docs documentStore, blobs blobStore, parser docparse.Parser, splitter *chunker.Splitter, indexer indexer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		docs:     docs,
		blobs:    blobs,
		parser:   parser,
		splitter: splitter,
		indexer:  indexer,
		logger:   logger,
	}
}

// Upload stores a new document and its raw bytes. Content identical to
// an existing document is rejected with ErrDuplicateContent before
// anything is written.
func (s *Service) Upload(ctx context.Context, name string, data []byte, ownerID string) (*domain.Document, error) {
	mediaType, err := domain.MediaTypeForName(name)
	if err != nil {
		return nil, err
	}

	// Reject known duplicates before writing the blob; the insert check
	// still catches concurrent uploads of the same content.
	contentHash := domain.HashBytes(data)
	if _, err := s.docs.FindByHash(ctx, contentHash); err == nil {
		return nil, fmt.Errorf("%w: hash %s", domain.ErrDuplicateContent, contentHash)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	doc := &domain.Document{
		ID:          uuid.NewString(),
		Name:        name,
		Size:        int64(len(data)),
		ContentHash: contentHash,
		MediaType:   mediaType,
		OwnerID:     ownerID,
		ChunkStatus: domain.StatusUnchunked,
	}

	objectName, err := s.blobs.Upload(data, doc.ID, name, mediaType)
	if err != nil {
		return nil, fmt.Errorf("storing upload %s: %w", name, err)
	}
	doc.StoragePath = objectName

	if err := s.docs.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document uploaded",
		"document_id", doc.ID, "name", name, "size", doc.Size, "media_type", mediaType)
	return doc, nil
}

// Chunk runs the full pipeline for one stored document. The status claim
// is atomic: a second concurrent call for the same document gets
// ErrChunkingInProgress and does no work. On any pipeline failure the
// document is marked failed and the original error is returned.
func (s *Service) Chunk(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.docs.ClaimForChunking(ctx, documentID); err != nil {
		return err
	}

	start := time.Now()
	if err := s.process(ctx, doc); err != nil {
		s.logger.Error("chunking pipeline failed",
			"document_id", documentID, "name", doc.Name, "error", err)
		if markErr := s.docs.MarkFailed(ctx, documentID); markErr != nil {
			s.logger.Error("marking document failed",
				"document_id", documentID, "error", markErr)
		}
		return fmt.Errorf("chunking document %s: %w", documentID, err)
	}

	s.logger.Info("document chunked",
		"document_id", documentID, "name", doc.Name, "elapsed", time.Since(start))
	return nil
}

func (s *Service) process(ctx context.Context, doc *domain.Document) error {
	data, err := s.blobs.Download(doc.StoragePath)
	if err != nil {
		return fmt.Errorf("fetching stored file: %w", err)
	}

	markdown, err := s.toMarkdown(ctx, doc, data)
	if err != nil {
		return err
	}

	pieces, err := s.splitter.Split([]byte(markdown))
	if err != nil {
		return fmt.Errorf("splitting document: %w", err)
	}
	chunks := BuildChunkRecords(doc.ID, pieces)

	// Drop rows from any previous attempt so a re-chunk does not
	// accumulate stale chunks alongside the new set.
	if err := s.docs.DeleteChunks(ctx, doc.ID); err != nil {
		return fmt.Errorf("clearing previous chunks: %w", err)
	}
	return s.indexer.Index(ctx, doc.ID, chunks)
}

// toMarkdown dispatches on media type. PDFs go through the structuring
// service; extracted figures are uploaded and their links rewritten to
// public URLs, and the markdown rendition is stored as a derived
// artifact next to the original.
func (s *Service) toMarkdown(ctx context.Context, doc *domain.Document, data []byte) (string, error) {
	switch doc.MediaType {
	case domain.MediaTypeMarkdown, domain.MediaTypePlain:
		res, err := docparse.Passthrough{}.Parse(ctx, doc.Name, data)
		if err != nil {
			return "", err
		}
		return res.Markdown, nil
	case domain.MediaTypePDF:
		res, err := s.parser.Parse(ctx, doc.Name, data)
		if err != nil {
			return "", fmt.Errorf("parsing pdf: %w", err)
		}
		markdown := res.Markdown
		if len(res.Images) > 0 {
			urls, err := s.blobs.UploadDir(res.Images, path.Join(doc.ID, "images"))
			if err != nil {
				return "", fmt.Errorf("storing extracted images: %w", err)
			}
			markdown = docparse.RewriteImageLinks(markdown, urls)
		}
		artifactName := doc.Name + ".md"
		if _, err := s.blobs.Upload([]byte(markdown), doc.ID, artifactName, domain.MediaTypeMarkdown); err != nil {
			return "", fmt.Errorf("storing markdown artifact: %w", err)
		}
		return markdown, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, doc.MediaType)
	}
}
