// Package catalog stores product vectors in one FT index per modality.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/partsearch/internal/db"
	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/modality"
	"github.com/kailas-cloud/partsearch/internal/domain/product"
	"github.com/kailas-cloud/partsearch/internal/domain/search/match"
)

// maxBatch is the largest upsert the index accepts in one round-trip.
const maxBatch = 100

// store is the consumer interface for catalog operations (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config describes the index layout.
type Config struct {
	KeyPrefix       string
	TextDim         int
	ImageDim        int
	HNSWM           int
	HNSWEFConstruct int
	BatchSize       int
}

// Repo implements the vector index contract of the search and indexing use cases.
type Repo struct {
	store store
	cfg   Config
}

// New creates a catalog repository. BatchSize is clamped to 1..100.
func New(s store, cfg Config) *Repo {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = domain.KeyPrefix
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatch {
		cfg.BatchSize = maxBatch
	}
	return &Repo{store: s, cfg: cfg}
}

// IndexName returns the FT index name for a modality, e.g. partsearch:text:idx.
func (r *Repo) IndexName(m modality.Modality) string {
	return r.keyPrefix(m) + "idx"
}

func (r *Repo) keyPrefix(m modality.Modality) string {
	return r.cfg.KeyPrefix + string(m) + ":"
}

func (r *Repo) dim(m modality.Modality) int {
	if m == modality.Image {
		return r.cfg.ImageDim
	}
	return r.cfg.TextDim
}

func (r *Repo) definition(m modality.Modality) (*db.IndexDefinition, error) {
	return db.NewIndex(r.IndexName(m)).
		Prefix(r.keyPrefix(m)).
		Tag(fieldProduct, fieldCategory, fieldApplication).
		Text(fieldDescription).
		VectorHNSW(db.VectorField, r.dim(m), db.DistanceCosine, r.cfg.HNSWM, r.cfg.HNSWEFConstruct).
		Build()
}

// EnsureIndexes creates the text and image indexes when missing.
// Returns the names of the indexes it created.
func (r *Repo) EnsureIndexes(ctx context.Context) ([]string, error) {
	var created []string
	for _, m := range modality.All {
		name := r.IndexName(m)
		exists, err := r.store.IndexExists(ctx, name)
		if err != nil {
			return created, fmt.Errorf("check index %s: %w", name, err)
		}
		if exists {
			continue
		}

		def, err := r.definition(m)
		if err != nil {
			return created, fmt.Errorf("define index %s: %w", name, err)
		}
		if err := r.store.CreateIndex(ctx, def); err != nil {
			if errors.Is(err, db.ErrIndexExists) {
				continue // created concurrently
			}
			return created, fmt.Errorf("create index %s: %w", name, err)
		}
		created = append(created, name)
	}
	return created, nil
}

// DropIndexes removes both indexes; deleteDocs also removes stored vectors.
// Missing indexes are not an error.
func (r *Repo) DropIndexes(ctx context.Context, deleteDocs bool) error {
	for _, m := range modality.All {
		name := r.IndexName(m)
		if err := r.store.DropIndex(ctx, name, deleteDocs); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	return nil
}

// HealthCheck reports an error when either index is missing.
func (r *Repo) HealthCheck(ctx context.Context) error {
	for _, m := range modality.All {
		name := r.IndexName(m)
		exists, err := r.store.IndexExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check index %s: %w", name, err)
		}
		if !exists {
			return fmt.Errorf("index %s: %w", name, db.ErrIndexNotFound)
		}
	}
	return nil
}

// Upsert writes entries into the modality's index in batches.
// Returns the number of entries written before the first failing batch.
func (r *Repo) Upsert(ctx context.Context, m modality.Modality, entries []product.Entry) (int, error) {
	if !m.IsValid() {
		return 0, fmt.Errorf("upsert: unknown modality %q", m)
	}
	dim := r.dim(m)

	written := 0
	for start := 0; start < len(entries); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(entries))

		items := make([]db.HashSetItem, 0, end-start)
		for i := start; i < end; i++ {
			e := &entries[i]
			if dim > 0 && len(e.Vector) != dim {
				return written, fmt.Errorf(
					"%w: %s vector for %q has %d dims, index expects %d",
					domain.ErrVectorDimMismatch, m, e.Product.Name(), len(e.Vector), dim,
				)
			}
			items = append(items, db.HashSetItem{
				Key:    r.keyPrefix(m) + VectorID(m, &e.Product),
				Fields: toHash(&e.Product, e.Vector),
			})
		}

		if err := r.store.HSetMulti(ctx, items); err != nil {
			return written, fmt.Errorf("upsert %s batch at %d: %w", m, start, err)
		}
		written += len(items)
	}
	return written, nil
}

// Query returns the k nearest products to vector in the modality's index,
// ordered by descending similarity.
func (r *Repo) Query(ctx context.Context, m modality.Modality, vector []float32, k int) ([]match.Match, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.IndexName(m),
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s index: %w", m, err)
	}
	if sr == nil {
		return nil, nil
	}

	prefix := r.keyPrefix(m)
	matches := make([]match.Match, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		p := fromHash(entry.Fields)
		if p.Name() == "" {
			continue
		}
		id := strings.TrimPrefix(entry.Key, prefix)
		matches = append(matches, match.New(id, p, entry.Score, m))
	}
	return matches, nil
}
