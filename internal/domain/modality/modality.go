package modality

// Modality is an embedding input type. Each modality has its own vector index.
type Modality string

// Supported modalities.
const (
	Text  Modality = "text"
	Image Modality = "image"
)

// All lists modalities in index order.
var All = []Modality{Text, Image}

// IsValid checks if the modality is one of the supported values.
func (m Modality) IsValid() bool {
	return m == Text || m == Image
}

// String implements fmt.Stringer.
func (m Modality) String() string { return string(m) }
