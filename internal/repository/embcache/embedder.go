// Package embcache caches embedding vectors in the key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/db"
	"github.com/kailas-cloud/partsearch/internal/domain"
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// cache holds the key scheme and metric plumbing shared by both decorators.
// Keys are {keyPrefix}emb_cache:{namespace}:{sha256(input)}; the namespace is
// the model name, so switching models never serves stale vectors.
type cache struct {
	store      store
	keyPrefix  string
	kind       string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

func (c *cache) key(input []byte) string {
	h := sha256.Sum256(input)
	return c.keyPrefix + hex.EncodeToString(h[:])
}

func (c *cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(c.kind, result).Inc()
	}
}

func (c *cache) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		c.inc("miss")
		return nil, false
	}

	vec, err := db.DecodeVector(data)
	if err != nil || len(vec) == 0 {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		c.inc("miss")
		return nil, false
	}

	c.inc("hit")
	return vec, true
}

func (c *cache) put(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, db.EncodeVector(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func newCache(
	s store, keyPrefix, kind, namespace string,
	cacheTotal *prometheus.CounterVec, logger *zap.Logger,
) cache {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return cache{
		store:      s,
		keyPrefix:  fmt.Sprintf("%semb_cache:%s:", keyPrefix, namespace),
		kind:       kind,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// CachedEmbedder caches text embeddings.
// Cache hits report zero tokens: nothing was consumed.
type CachedEmbedder struct {
	inner domain.Embedder
	cache cache
}

// New creates a text caching decorator.
// cacheTotal is a counter vec with labels "kind" and "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder, s store, keyPrefix, model string,
	cacheTotal *prometheus.CounterVec, logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: newCache(s, keyPrefix, "text", model, cacheTotal, logger),
	}
}

// Embed returns a cached embedding or calls the inner embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cache.key([]byte(text))
	if vec, ok := c.cache.get(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.cache.put(ctx, key, result.Embedding)
	return result, nil
}

// BatchEmbed serves hits from the cache and embeds only the misses, in one inner call.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		keys[i] = c.cache.key([]byte(text))
		if vec, ok := c.cache.get(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	var res domain.BatchEmbeddingResult
	var err error
	if be, ok := c.inner.(domain.BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, missTexts)
	} else {
		res, err = domain.BatchFallback(ctx, c.inner, missTexts)
	}
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed %d misses: %w", len(missTexts), err)
	}
	if len(res.Embeddings) != len(missTexts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"batch embed returned %d vectors for %d texts: %w",
			len(res.Embeddings), len(missTexts), domain.ErrProviderError,
		)
	}

	for j, i := range missIdx {
		out[i] = res.Embeddings[j]
		c.cache.put(ctx, keys[i], res.Embeddings[j])
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// CachedImageEmbedder caches image embeddings keyed by the image bytes.
type CachedImageEmbedder struct {
	inner domain.ImageEmbedder
	cache cache
}

// NewImage creates an image caching decorator.
func NewImage(
	inner domain.ImageEmbedder, s store, keyPrefix, model string,
	cacheTotal *prometheus.CounterVec, logger *zap.Logger,
) *CachedImageEmbedder {
	return &CachedImageEmbedder{
		inner: inner,
		cache: newCache(s, keyPrefix, "image", model, cacheTotal, logger),
	}
}

// EmbedImage returns a cached embedding or calls the inner embedder.
func (c *CachedImageEmbedder) EmbedImage(ctx context.Context, img domain.Image) (domain.EmbeddingResult, error) {
	key := c.cache.key(img.Data)
	if vec, ok := c.cache.get(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	result, err := c.inner.EmbedImage(ctx, img)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed image: %w", err)
	}

	c.cache.put(ctx, key, result.Embedding)
	return result, nil
}
