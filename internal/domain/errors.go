package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced document or chunk id
	// does not exist in the relational store.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateContent signals an upload whose content hash is
	// already present. It is a rejection, not a server fault.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrUnsupportedMediaType signals a document type with no
	// structuring pipeline.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrChunkingInProgress is returned when a chunk request loses the
	// status claim because another request already holds the document.
	ErrChunkingInProgress = errors.New("chunking already in progress")

	// ErrMalformedModelOutput signals generation output that was
	// expected to be structured but failed to parse.
	ErrMalformedModelOutput = errors.New("malformed model output")
)
