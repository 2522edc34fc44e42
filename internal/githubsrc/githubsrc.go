// Package githubsrc imports markdown documentation from a GitHub
// repository into the knowledge base.
package githubsrc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"

	"github.com/kiro-rag/kiro/internal/domain"
)

// Client wraps the GitHub API client with rate limiting. Both primary
// and secondary (abuse detection) limits are retried with backoff. A
// GITHUB_TOKEN in the environment raises the hourly quota.
type Client struct {
	*github.Client
}

func NewClient() (*Client, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}
	ghClient := github.NewClient(rateLimiter)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}
	return &Client{Client: ghClient}, nil
}

type uploader interface {
	Upload(ctx context.Context, name string, data []byte, ownerID string) (*domain.Document, error)
	Chunk(ctx context.Context, documentID string) error
}

// ImportStats summarizes one repository import run.
type ImportStats struct {
	Imported int
	Skipped  int
	Failed   int
}

// Importer pulls .md files from one repository path and feeds each
// through the ingestion pipeline.
type Importer struct {
	client   *Client
	ingest   uploader
	owner    string
	repo     string
	basePath string
	logger   *slog.Logger
}

func NewImporter(client *Client, ingest uploader, owner, repo, basePath string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		client:   client,
		ingest:   ingest,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
		logger:   logger,
	}
}

// ListDocs recursively lists all markdown files under the base path.
func (im *Importer) ListDocs(ctx context.Context) ([]string, error) {
	return im.listRecursive(ctx, im.basePath, "")
}

func (im *Importer) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := im.client.Repositories.GetContents(ctx, im.owner, im.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}
		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if strings.HasSuffix(*item.Name, ".md") {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := im.listRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}
	return docs, nil
}

// FetchDoc fetches and decodes one markdown file.
func (im *Importer) FetchDoc(ctx context.Context, relativePath string) ([]byte, error) {
	fullPath := path.Join(im.basePath, relativePath)

	fileContent, _, _, err := im.client.Repositories.GetContents(ctx, im.owner, im.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}
	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", fullPath, err)
	}
	return content, nil
}

// Import runs the whole pipeline for every markdown file in the
// repository path. Files whose content is already in the knowledge base
// are skipped; individual failures are counted and logged but do not
// stop the run.
func (im *Importer) Import(ctx context.Context, ownerID string) (*ImportStats, error) {
	paths, err := im.ListDocs(ctx)
	if err != nil {
		return nil, err
	}

	stats := &ImportStats{}
	for _, relPath := range paths {
		if err := im.importOne(ctx, relPath, ownerID); err != nil {
			if errors.Is(err, domain.ErrDuplicateContent) {
				stats.Skipped++
				continue
			}
			im.logger.Error("import failed", "path", relPath, "error", err)
			stats.Failed++
			continue
		}
		stats.Imported++
	}

	im.logger.Info("repository import finished",
		"owner", im.owner, "repo", im.repo,
		"imported", stats.Imported, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

func (im *Importer) importOne(ctx context.Context, relPath, ownerID string) error {
	content, err := im.FetchDoc(ctx, relPath)
	if err != nil {
		return err
	}

	// Flatten the repo path into a display name; the upload only needs
	// the .md extension to route it.
	name := strings.ReplaceAll(relPath, "/", "__")
	doc, err := im.ingest.Upload(ctx, name, content, ownerID)
	if err != nil {
		return err
	}
	return im.ingest.Chunk(ctx, doc.ID)
}
