package result

import "github.com/kailas-cloud/partsearch/internal/domain/modality"

// Result is a fused, display-ready search hit.
type Result struct {
	product     string
	description string
	category    string
	application string
	imagePath   string
	score       float64
	matchedBy   modality.Modality
}

// New creates a search result. imagePath is "" when the product has no displayable diagram.
func New(
	product, description, category, application, imagePath string,
	score float64, matchedBy modality.Modality,
) Result {
	return Result{
		product: product, description: description, category: category,
		application: application, imagePath: imagePath,
		score: score, matchedBy: matchedBy,
	}
}

// Product returns the product name.
func (r *Result) Product() string { return r.product }

// Description returns the product description.
func (r *Result) Description() string { return r.description }

// Category returns the product category.
func (r *Result) Category() string { return r.category }

// Application returns the application area.
func (r *Result) Application() string { return r.application }

// ImagePath returns the resolved diagram path, or "".
func (r *Result) ImagePath() string { return r.imagePath }

// HasImage reports whether a diagram path was resolved.
func (r *Result) HasImage() bool { return r.imagePath != "" }

// Score returns the fused (weighted) score.
func (r *Result) Score() float64 { return r.score }

// MatchedBy returns the modality of the winning match.
func (r *Result) MatchedBy() modality.Modality { return r.matchedBy }
