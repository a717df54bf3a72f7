package match

import (
	"github.com/kailas-cloud/partsearch/internal/domain/modality"
	"github.com/kailas-cloud/partsearch/internal/domain/product"
)

// Match is a single nearest-neighbour hit from one modality index.
// Score is the raw similarity until Weighted is applied.
type Match struct {
	id       string
	product  product.Product
	score    float64
	modality modality.Modality
}

// New creates a match.
func New(id string, p product.Product, score float64, m modality.Modality) Match {
	return Match{id: id, product: p, score: score, modality: m}
}

// ID returns the vector id in the index.
func (m *Match) ID() string { return m.id }

// Product returns the matched catalog entry.
func (m *Match) Product() product.Product { return m.product }

// Score returns the (possibly weighted) similarity.
func (m *Match) Score() float64 { return m.score }

// Modality returns the index the match came from.
func (m *Match) Modality() modality.Modality { return m.modality }

// Weighted returns a copy with the score multiplied by w.
func (m Match) Weighted(w float64) Match {
	m.score *= w
	return m
}
