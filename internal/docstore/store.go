// Package docstore is the relational metadata store for documents and
// chunks, backed by SQLite.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kiro-rag/kiro/internal/docstore/migrations"
	"github.com/kiro-rag/kiro/internal/domain"
)

// Store wraps the SQLite connection pool. The pool is safe for concurrent
// use and shared process-wide.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (or opens) the store at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL keeps readers unblocked while the ingestion pipeline writes.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies all .up.sql files newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	type migration struct {
		version int
		name    string
	}
	var pending []migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		version, err := strconv.Atoi(strings.SplitN(name, "_", 2)[0])
		if err != nil {
			return fmt.Errorf("malformed migration name %s: %w", name, err)
		}
		if version > current {
			pending = append(pending, migration{version: version, name: name})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	for _, m := range pending {
		script, err := fs.ReadFile(fsys, m.name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", m.name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(string(script)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", m.name, err)
		}
	}
	return nil
}

// InsertDocument stores a new document row. An existing row with the same
// content hash causes ErrDuplicateContent and no insert.
func (s *Store) InsertDocument(ctx context.Context, doc *domain.Document) error {
	if _, err := s.FindByHash(ctx, doc.ContentHash); err == nil {
		return fmt.Errorf("%w: hash %s", domain.ErrDuplicateContent, doc.ContentHash)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document (id, name, size, storage_path, content_hash, media_type,
			owner_id, chunk_count, chunk_status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, 0, ?, ?)`,
		doc.ID, doc.Name, doc.Size, doc.StoragePath, doc.ContentHash, doc.MediaType,
		doc.OwnerID, string(domain.StatusUnchunked), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	doc.ChunkStatus = domain.StatusUnchunked
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

const documentColumns = `id, name, size, storage_path, content_hash, media_type,
	owner_id, chunk_count, chunk_status, retry_count, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*domain.Document, error) {
	var d domain.Document
	var status string
	err := row.Scan(&d.ID, &d.Name, &d.Size, &d.StoragePath, &d.ContentHash, &d.MediaType,
		&d.OwnerID, &d.ChunkCount, &status, &d.RetryCount, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	d.ChunkStatus = domain.ChunkStatus(status)
	return &d, nil
}

// GetDocument fetches one document by id, ErrNotFound when absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM document WHERE id = ?", id)
	return scanDocument(row)
}

// FindByHash fetches one document by content hash, ErrNotFound when absent.
func (s *Store) FindByHash(ctx context.Context, hash string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM document WHERE content_hash = ?", hash)
	return scanDocument(row)
}

// ListDocuments returns one page of documents, newest first, plus the
// total row count.
func (s *Store) ListDocuments(ctx context.Context, page, pageSize int) ([]*domain.Document, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM document").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM document ORDER BY created_at DESC LIMIT ? OFFSET ?",
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

// ClaimForChunking atomically transitions a document from unchunked or
// failed to chunking. It returns ErrChunkingInProgress if another request
// holds the claim, ErrNotFound if the id does not exist.
func (s *Store) ClaimForChunking(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE document SET chunk_status = ?, updated_at = ?
		WHERE id = ? AND chunk_status IN (?, ?)`,
		string(domain.StatusChunking), time.Now().UTC(),
		id, string(domain.StatusUnchunked), string(domain.StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("claiming document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claiming document %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetDocument(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: document %s", domain.ErrChunkingInProgress, id)
}

// MarkChunked flips a document to chunked with its final chunk count.
// This is the sole commit point of the ingestion pipeline.
func (s *Store) MarkChunked(ctx context.Context, id string, chunkCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document SET chunk_status = ?, chunk_count = ?, updated_at = ?
		WHERE id = ?`,
		string(domain.StatusChunked), chunkCount, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking document %s chunked: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed pipeline run and bumps the retry counter.
// A later chunk request may re-claim the document.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document SET chunk_status = ?, retry_count = retry_count + 1, updated_at = ?
		WHERE id = ?`,
		string(domain.StatusFailed), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking document %s failed: %w", id, err)
	}
	return nil
}

// InsertChunks persists chunk metadata rows, one insert per chunk, in
// sequence order.
func (s *Store) InsertChunks(ctx context.Context, chunks []*domain.Chunk) error {
	for _, c := range chunks {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO chunk (id, document_id, chunk_index, content, content_hash, size, vector_key)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.DocumentID, c.Index, c.Content, c.ContentHash, c.Size, c.VectorKey,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %d of document %s: %w", c.Index, c.DocumentID, err)
		}
	}
	return nil
}

// DeleteChunks removes all chunk rows of a document. Re-chunking calls this
// before inserting the fresh sequence so indices stay contiguous from 1.
func (s *Store) DeleteChunks(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunk WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks of document %s: %w", documentID, err)
	}
	return nil
}

// ListChunks returns one page of a document's chunks ordered by sequence
// index, plus the total count.
func (s *Store) ListChunks(ctx context.Context, documentID string, page, pageSize int) ([]*domain.Chunk, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunk WHERE document_id = ?", documentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting chunks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, content_hash, size, vector_key
		FROM chunk WHERE document_id = ?
		ORDER BY chunk_index ASC LIMIT ? OFFSET ?`,
		documentID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content,
			&c.ContentHash, &c.Size, &c.VectorKey); err != nil {
			return nil, 0, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, total, rows.Err()
}
