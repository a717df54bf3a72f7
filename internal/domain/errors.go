package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest signals a malformed search or chat request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidImage signals an unsupported or oversized query image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidProduct signals a product record that cannot be indexed.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrVectorDimMismatch signals a vector that does not fit the index.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrProviderError signals an embedding, captioning, chat or index provider failure.
	ErrProviderError = errors.New("provider error")
)
