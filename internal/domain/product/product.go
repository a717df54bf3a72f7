package product

import (
	"fmt"
	"path"
	"strings"

	"github.com/kailas-cloud/partsearch/internal/domain"
)

// Field limits.
const (
	MaxNameLength        = 256
	MaxDescriptionLength = 32768
)

// Product is a catalog entry scraped from the vendor site (immutable value object).
// Name is the deduplication key during fusion; it is not guaranteed unique in the source.
type Product struct {
	name         string
	subCategory  string
	category     string
	application  string
	description  string
	applications []string
	image        string
}

// New validates and creates a Product.
// The diagram filename is normalised to its rasterised .png form.
func New(
	name, subCategory, category, application, description string,
	applications []string, image string,
) (Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", domain.ErrInvalidProduct)
	}
	if len(name) > MaxNameLength {
		return Product{}, fmt.Errorf("%w: name too long (max %d)", domain.ErrInvalidProduct, MaxNameLength)
	}
	if len(description) > MaxDescriptionLength {
		return Product{}, fmt.Errorf("%w: description too long (max %d bytes)", domain.ErrInvalidProduct, MaxDescriptionLength)
	}

	return Product{
		name:         name,
		subCategory:  strings.TrimSpace(subCategory),
		category:     strings.TrimSpace(category),
		application:  strings.TrimSpace(application),
		description:  strings.TrimSpace(description),
		applications: cleanList(applications),
		image:        RasterName(image),
	}, nil
}

// Reconstruct creates a Product without validation (storage hydration).
func Reconstruct(
	name, subCategory, category, application, description string,
	applications []string, image string,
) Product {
	return Product{
		name: name, subCategory: subCategory, category: category,
		application: application, description: description,
		applications: applications, image: image,
	}
}

// Name returns the product name.
func (p *Product) Name() string { return p.name }

// SubCategory returns the sub-application grouping.
func (p *Product) SubCategory() string { return p.subCategory }

// Category returns the product category.
func (p *Product) Category() string { return p.category }

// Application returns the top-level application area.
func (p *Product) Application() string { return p.application }

// Description returns the free-text description.
func (p *Product) Description() string { return p.description }

// Applications returns the listed end applications.
func (p *Product) Applications() []string { return p.applications }

// Image returns the diagram filename relative to the images root, or "".
func (p *Product) Image() string { return p.image }

// HasImage reports whether the product references a diagram.
func (p *Product) HasImage() bool { return p.image != "" }

// EmbeddingText renders the text that represents this product in the text index.
func (p *Product) EmbeddingText() string {
	return fmt.Sprintf(
		"Product: %s. Subcategory: %s. Category: %s. Description: %s. Applications: %s.",
		p.name, p.category, p.subCategory, p.description, strings.Join(p.applications, ", "),
	)
}

// RasterName maps a scraped diagram filename to the converted PNG name.
// Empty input stays empty.
func RasterName(image string) string {
	image = strings.TrimSpace(image)
	if image == "" {
		return ""
	}
	ext := path.Ext(image)
	return strings.TrimSuffix(image, ext) + ".png"
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
