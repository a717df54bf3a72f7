// Package catalog embeds scraped products and loads them into the vector indexes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/modality"
	"github.com/kailas-cloud/partsearch/internal/domain/product"
	"github.com/kailas-cloud/partsearch/internal/metrics"
)

// Indexer defaults.
const (
	DefaultBatchSize = 100
	DefaultWorkers   = 4
)

// Skip reasons reported in metrics.
const (
	reasonInvalid = "invalid"
	reasonMissing = "missing_image"
	reasonEmbed   = "embed_failed"
)

// Config tunes the indexing run.
type Config struct {
	// BatchSize is the number of products embedded and upserted together (max 100).
	BatchSize int
	// Workers bounds concurrent image embedding calls.
	Workers int
}

// Report summarises an indexing run.
type Report struct {
	Products     int
	Invalid      int
	TextIndexed  int
	TextFailed   int
	ImageIndexed int
	ImageMissing int
	ImageFailed  int
	TokensUsed   int
}

// Indexer embeds products and writes text and image vectors.
type Indexer struct {
	repo   Repository
	text   TextEmbedder
	image  ImageEmbedder
	images ImageReader
	pool   *ants.Pool
	cfg    Config
	logger *zap.Logger
}

// NewIndexer creates an indexer with its own image worker pool. Call Release when done.
// image and images may be nil to index text only.
func NewIndexer(
	repo Repository, text TextEmbedder, image ImageEmbedder, images ImageReader,
	cfg Config, logger *zap.Logger,
) (*Indexer, error) {
	if cfg.BatchSize <= 0 || cfg.BatchSize > DefaultBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("image pool: %w", err)
	}

	return &Indexer{
		repo: repo, text: text, image: image, images: images,
		pool: pool, cfg: cfg, logger: logger,
	}, nil
}

// Release stops the worker pool.
func (ix *Indexer) Release() {
	ix.pool.Release()
}

// Index consumes rows and upserts both modalities in batches.
// Rows whose error wraps domain.ErrInvalidProduct are counted and skipped;
// any other row error, a cancelled context or a repository failure stops the run.
// The report reflects everything written before the stop.
func (ix *Indexer) Index(ctx context.Context, rows iter.Seq2[product.Product, error]) (Report, error) {
	var (
		report Report
		batch  = make([]product.Product, 0, ix.cfg.BatchSize)
	)

	for p, err := range rows {
		if err != nil {
			if errors.Is(err, domain.ErrInvalidProduct) {
				report.Invalid++
				metrics.IndexerSkippedTotal.WithLabelValues(string(modality.Text), reasonInvalid).Inc()
				ix.logger.Warn("Skipping invalid product row", zap.Error(err))
				continue
			}
			return report, fmt.Errorf("read products: %w", err)
		}

		report.Products++
		batch = append(batch, p)
		if len(batch) < ix.cfg.BatchSize {
			continue
		}
		if err := ix.flush(ctx, batch, &report); err != nil {
			return report, err
		}
		batch = batch[:0]
	}

	if len(batch) > 0 {
		if err := ix.flush(ctx, batch, &report); err != nil {
			return report, err
		}
	}

	ix.logger.Info("Indexing finished",
		zap.Int("products", report.Products),
		zap.Int("invalid", report.Invalid),
		zap.Int("text_indexed", report.TextIndexed),
		zap.Int("image_indexed", report.ImageIndexed),
		zap.Int("image_missing", report.ImageMissing),
		zap.Int("tokens", report.TokensUsed),
	)
	return report, nil
}

func (ix *Indexer) flush(ctx context.Context, batch []product.Product, report *Report) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("index: %w", err)
	}

	imageEntries := ix.embedImages(ctx, batch, report)

	textEntries, err := ix.embedTexts(ctx, batch, report)
	if err != nil {
		return err
	}

	if err := ix.upsert(ctx, modality.Text, textEntries, &report.TextIndexed); err != nil {
		return err
	}
	return ix.upsert(ctx, modality.Image, imageEntries, &report.ImageIndexed)
}

// embedTexts embeds the batch in one call. A provider failure skips the batch's text vectors.
func (ix *Indexer) embedTexts(ctx context.Context, batch []product.Product, report *Report) ([]product.Entry, error) {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].EmbeddingText()
	}

	res, err := ix.text.BatchEmbed(ctx, texts)
	if err == nil && len(res.Embeddings) != len(batch) {
		err = fmt.Errorf("got %d vectors for %d texts: %w", len(res.Embeddings), len(batch), domain.ErrProviderError)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed texts: %w", ctx.Err())
		}
		report.TextFailed += len(batch)
		metrics.IndexerSkippedTotal.WithLabelValues(string(modality.Text), reasonEmbed).Add(float64(len(batch)))
		ix.logger.Error("Text embedding failed, skipping batch",
			zap.Int("batch_size", len(batch)), zap.Error(err))
		return nil, nil
	}

	report.TokensUsed += res.TotalTokens
	entries := make([]product.Entry, len(batch))
	for i := range batch {
		entries[i] = product.Entry{Product: batch[i], Vector: res.Embeddings[i]}
	}
	return entries, nil
}

// embedImages embeds diagrams concurrently on the pool. Output keeps batch order.
func (ix *Indexer) embedImages(ctx context.Context, batch []product.Product, report *Report) []product.Entry {
	if ix.image == nil || ix.images == nil {
		return nil
	}

	type outcome struct {
		entry   product.Entry
		ok      bool
		missing bool
		tokens  int
	}
	results := make([]outcome, len(batch))

	var wg sync.WaitGroup
	for i := range batch {
		if !batch[i].HasImage() {
			continue
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			p := batch[i]

			img, err := ix.images.Read(p.Image())
			if err != nil {
				results[i].missing = errors.Is(err, fs.ErrNotExist)
				if !results[i].missing {
					ix.logger.Warn("Reading diagram failed",
						zap.String("product", p.Name()), zap.String("image", p.Image()), zap.Error(err))
				}
				return
			}

			res, err := ix.image.EmbedImage(ctx, img)
			if err != nil {
				ix.logger.Warn("Image embedding failed",
					zap.String("product", p.Name()), zap.String("image", p.Image()), zap.Error(err))
				return
			}
			results[i] = outcome{entry: product.Entry{Product: p, Vector: res.Embedding}, ok: true, tokens: res.TotalTokens}
		}
		if err := ix.pool.Submit(task); err != nil {
			wg.Done()
			ix.logger.Error("Submitting image task failed", zap.Error(err))
		}
	}
	wg.Wait()

	var entries []product.Entry
	for i := range results {
		r := &results[i]
		switch {
		case r.ok:
			entries = append(entries, r.entry)
			report.TokensUsed += r.tokens
		case r.missing:
			report.ImageMissing++
			metrics.IndexerSkippedTotal.WithLabelValues(string(modality.Image), reasonMissing).Inc()
		case batch[i].HasImage():
			report.ImageFailed++
			metrics.IndexerSkippedTotal.WithLabelValues(string(modality.Image), reasonEmbed).Inc()
		}
	}
	return entries
}

func (ix *Indexer) upsert(ctx context.Context, m modality.Modality, entries []product.Entry, counter *int) error {
	if len(entries) == 0 {
		return nil
	}
	n, err := ix.repo.Upsert(ctx, m, entries)
	*counter += n
	metrics.IndexerUpsertsTotal.WithLabelValues(string(m)).Add(float64(n))
	if err != nil {
		return fmt.Errorf("upsert %s vectors: %w", m, err)
	}
	ix.logger.Debug("Batch upserted", zap.String("modality", string(m)), zap.Int("count", n))
	return nil
}
