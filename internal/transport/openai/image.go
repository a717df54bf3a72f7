package openai

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/partsearch/internal/domain"
)

// ImageEmbedder vectorizes images through an OpenAI-compatible /embeddings
// endpoint served by a CLIP model. The image travels as a data: URL input.
type ImageEmbedder struct {
	inner      *Embedder
	dimensions int
}

// NewImageEmbedder creates an image embedding provider.
// The CLIP vector size is fixed by the model, so dimensions only validates responses.
func NewImageEmbedder(cfg *Config, model string, dimensions int) *ImageEmbedder {
	return &ImageEmbedder{
		inner:      NewEmbedder(cfg, model, 0),
		dimensions: dimensions,
	}
}

// EmbedImage implements domain.ImageEmbedder.
func (e *ImageEmbedder) EmbedImage(ctx context.Context, img domain.Image) (domain.EmbeddingResult, error) {
	if img.IsEmpty() {
		return domain.EmbeddingResult{}, fmt.Errorf("embed image: %w", domain.ErrInvalidImage)
	}

	res, err := e.inner.create(ctx, opEmbedImage, []string{img.DataURL()})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	vec := res.Embeddings[0]
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return domain.EmbeddingResult{}, fmt.Errorf(
			"%w: image model returned %d dims, expected %d",
			domain.ErrVectorDimMismatch, len(vec), e.dimensions,
		)
	}
	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// HealthCheck verifies the image model server responds.
func (e *ImageEmbedder) HealthCheck(ctx context.Context) error {
	return e.inner.HealthCheck(ctx)
}
