package search

import "errors"

var (
	ErrEngineUnreachable = errors.New("vector engine unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
