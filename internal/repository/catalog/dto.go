package catalog

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/kailas-cloud/partsearch/internal/db"
	"github.com/kailas-cloud/partsearch/internal/domain/modality"
	"github.com/kailas-cloud/partsearch/internal/domain/product"
)

// Hash fields of a catalog vector entry.
const (
	fieldProduct      = "product"
	fieldSubCategory  = "sub_category"
	fieldCategory     = "category"
	fieldApplication  = "application"
	fieldDescription  = "description"
	fieldApplications = "applications"
	fieldImage        = "image"
)

var returnFields = []string{
	fieldProduct, fieldSubCategory, fieldCategory, fieldApplication,
	fieldDescription, fieldApplications, fieldImage,
}

// idNamespace seeds the UUIDv5 vector ids.
var idNamespace = uuid.MustParse("3f9a6c1e-7b2d-5e40-8c91-d4a2b6e0f713")

// VectorID returns the deterministic id of a product's vector in the given index.
// Names repeat across source rows, so the id covers every embedded field:
// re-indexing an identical row overwrites its entry, distinct rows coexist.
func VectorID(m modality.Modality, p *product.Product) string {
	name := string(m) + "\x00" + p.EmbeddingText() + "\x00" + p.Image()
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

func toHash(p *product.Product, vector []float32) map[string]string {
	fields := map[string]string{
		fieldProduct:     p.Name(),
		fieldDescription: p.Description(),
		db.VectorField:   string(db.EncodeVector(vector)),
	}
	setIfNotEmpty(fields, fieldSubCategory, p.SubCategory())
	setIfNotEmpty(fields, fieldCategory, p.Category())
	setIfNotEmpty(fields, fieldApplication, p.Application())
	setIfNotEmpty(fields, fieldImage, p.Image())
	if apps := p.Applications(); len(apps) > 0 {
		if data, err := json.Marshal(apps); err == nil {
			fields[fieldApplications] = string(data)
		}
	}
	return fields
}

func fromHash(fields map[string]string) product.Product {
	var apps []string
	if raw := fields[fieldApplications]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &apps) // unreadable lists hydrate as empty
	}
	return product.Reconstruct(
		fields[fieldProduct],
		fields[fieldSubCategory],
		fields[fieldCategory],
		fields[fieldApplication],
		fields[fieldDescription],
		apps,
		fields[fieldImage],
	)
}

func setIfNotEmpty(m map[string]string, key, val string) {
	if val != "" {
		m[key] = val
	}
}
