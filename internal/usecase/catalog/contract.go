package catalog

import (
	"context"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/modality"
	"github.com/kailas-cloud/partsearch/internal/domain/product"
)

// Repository writes product vectors into a modality index.
type Repository interface {
	Upsert(ctx context.Context, m modality.Modality, entries []product.Entry) (int, error)
}

// TextEmbedder vectorizes product texts in one call.
type TextEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// ImageEmbedder vectorizes a product diagram.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, img domain.Image) (domain.EmbeddingResult, error)
}

// ImageReader loads a diagram by catalog filename. Missing files wrap fs.ErrNotExist.
type ImageReader interface {
	Read(name string) (domain.Image, error)
}
