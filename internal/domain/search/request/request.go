package request

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kailas-cloud/partsearch/internal/domain"
)

// Search input limits.
const (
	// MaxQueryLength is the maximum allowed text query length.
	MaxQueryLength = 4096
	// MaxImageSize is the maximum accepted query image size in bytes.
	MaxImageSize = 10 << 20
)

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// Request is a validated search query: optional text, optional image.
// Both may be absent; such a request yields an empty result without provider calls.
type Request struct {
	text  string
	image domain.Image
}

// New validates and normalizes search input.
// A missing image content type is sniffed from the bytes.
func New(text string, img domain.Image) (Request, error) {
	text = strings.TrimSpace(text)
	if len(text) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}

	if !img.IsEmpty() {
		if len(img.Data) > MaxImageSize {
			return Request{}, fmt.Errorf("%w: image too large (max %d bytes)", domain.ErrInvalidImage, MaxImageSize)
		}
		ct := normalizeContentType(img.ContentType)
		if ct == "" || ct == "application/octet-stream" {
			ct = normalizeContentType(http.DetectContentType(img.Data))
		}
		if !allowedImageTypes[ct] {
			return Request{}, fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidImage, ct)
		}
		img.ContentType = ct
	}

	return Request{text: text, image: img}, nil
}

// Text returns the trimmed text query, or "".
func (r *Request) Text() string { return r.text }

// Image returns the query image; check HasImage first.
func (r *Request) Image() domain.Image { return r.image }

// HasText reports whether a text query is present.
func (r *Request) HasText() bool { return r.text != "" }

// HasImage reports whether a query image is present.
func (r *Request) HasImage() bool { return !r.image.IsEmpty() }

// IsEmpty reports whether neither text nor image is present.
func (r *Request) IsEmpty() bool { return !r.HasText() && !r.HasImage() }

func normalizeContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}
