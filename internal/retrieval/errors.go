package retrieval

import "errors"

var (
	// ErrInvalidConfig indicates a rejected index configuration.
	ErrInvalidConfig = errors.New("invalid retrieval config")

	// ErrDimensionMismatch indicates a vector of the wrong dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidK indicates a non-positive result count.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmbeddingRequired is returned when a document reaches the index
	// without a precomputed embedding. The index never embeds text itself.
	ErrEmbeddingRequired = errors.New("memory embedding is required")
)
