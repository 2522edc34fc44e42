// Package domain holds the core types shared by the ingestion pipeline,
// the stores and the retrieval path.
package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChunkStatus tracks where a document is in the ingestion pipeline.
type ChunkStatus string

const (
	StatusUnchunked ChunkStatus = "unchunked"
	StatusChunking  ChunkStatus = "chunking"
	StatusChunked   ChunkStatus = "chunked"
	StatusFailed    ChunkStatus = "failed"
)

// Document represents one uploaded source file.
type Document struct {
	ID          string      // UUID
	Name        string      // Original display name
	Size        int64       // Upload size in bytes
	StoragePath string      // Object name in the blob store
	ContentHash string      // MD5 of the raw upload, used for dedup
	MediaType   string      // MIME type
	OwnerID     string      // Opaque uploading-user reference
	ChunkCount  int         // Number of chunks once chunked
	ChunkStatus ChunkStatus
	RetryCount  int       // Failed pipeline attempts
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk represents one retrievable unit of a document.
// Index is 1-based and contiguous within a document.
type Chunk struct {
	ID          string // UUID, fresh on every chunking run
	DocumentID  string
	Index       int
	Content     string
	ContentHash string // MD5 of Content
	Size        int    // Character count of Content
	VectorKey   string // Deterministic search-index id, see VectorKey
}

// VectorKey derives the idempotent search-index identity of a chunk from
// (document id, chunk id, content). The digest is MD5-based and rendered
// as a UUID so it is usable directly as an engine point id. Re-chunking
// identical content under the same ids always yields the same key.
func VectorKey(docID, chunkID, content string) string {
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(docID+"_"+chunkID+"_"+content)).String()
}

// ContentHash returns the hex MD5 digest of s.
func ContentHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the hex MD5 digest of raw bytes, used for upload dedup.
func HashBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// MediaTypePDF is the only type routed through the OCR structuring step.
const (
	MediaTypePDF      = "application/pdf"
	MediaTypeMarkdown = "text/markdown"
	MediaTypePlain    = "text/plain"
)

// supportedExtensions maps upload file extensions to MIME types.
var supportedExtensions = map[string]string{
	".md":   MediaTypeMarkdown,
	".txt":  MediaTypePlain,
	".pdf":  MediaTypePDF,
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// MediaTypeForName returns the MIME type for a file name based on its
// extension, or an error wrapping ErrUnsupportedMediaType.
func MediaTypeForName(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mt, ok := supportedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedMediaType, ext)
	}
	return mt, nil
}
