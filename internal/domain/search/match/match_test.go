package match

import (
	"testing"

	"github.com/kailas-cloud/partsearch/internal/domain/modality"
	"github.com/kailas-cloud/partsearch/internal/domain/product"
)

func TestWeighted_DoesNotMutate(t *testing.T) {
	p := product.Reconstruct("MCU-X", "", "", "", "", nil, "")
	m := New("id-1", p, 0.9, modality.Text)

	w := m.Weighted(0.6)
	if got := w.Score(); got < 0.5399 || got > 0.5401 {
		t.Errorf("expected weighted 0.54, got %f", got)
	}
	if m.Score() != 0.9 {
		t.Errorf("original score changed to %f", m.Score())
	}
	if w.Modality() != modality.Text || w.ID() != "id-1" {
		t.Error("weighted copy lost identity")
	}
	wp := w.Product()
	if wp.Name() != "MCU-X" {
		t.Errorf("unexpected product %q", wp.Name())
	}
}
