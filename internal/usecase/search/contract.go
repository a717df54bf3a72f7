package search

import (
	"context"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/modality"
	"github.com/kailas-cloud/partsearch/internal/domain/search/match"
)

// Index queries one modality's vector index for nearest neighbours.
type Index interface {
	Query(ctx context.Context, m modality.Modality, vector []float32, k int) ([]match.Match, error)
}

// Embedder vectorizes text into the text embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ImageEmbedder vectorizes a query image into the image embedding space.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, img domain.Image) (domain.EmbeddingResult, error)
}

// Captioner describes a query image in text.
type Captioner interface {
	Caption(ctx context.Context, img domain.Image) (domain.CaptionResult, error)
}

// ImageLocator maps a stored diagram filename to a displayable path.
// It returns "" when the file is missing.
type ImageLocator interface {
	Resolve(name string) string
}
