package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/domain"
)

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"kind", "result"})
}

func TestEmbed_MissThenHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 7}}
	ms := newMemStore()
	counter := newCounter()
	ce := New(inner, ms, "partsearch:", "text-embedding-3-small", counter, zap.NewNop())

	first, err := ce.Embed(context.Background(), "motor driver")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.TotalTokens != 7 {
		t.Errorf("miss should report provider tokens, got %d", first.TotalTokens)
	}

	second, err := ce.Embed(context.Background(), "motor driver")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if second.TotalTokens != 0 || len(second.Embedding) != 2 || second.Embedding[1] != 0.2 {
		t.Errorf("unexpected cached result %+v", second)
	}

	if got := testutil.ToFloat64(counter.WithLabelValues("text", "hit")); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("text", "miss")); got != 1 {
		t.Errorf("expected 1 miss, got %v", got)
	}

	for k := range ms.data {
		if !strings.HasPrefix(k, "partsearch:emb_cache:text-embedding-3-small:") {
			t.Errorf("unexpected cache key %q", k)
		}
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrProviderError}
	ms := newMemStore()
	ce := New(inner, ms, "", "m", nil, nil)

	if _, err := ce.Embed(context.Background(), "x"); !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
	if len(ms.data) != 0 {
		t.Error("failures must not be cached")
	}
}

func TestEmbed_StoreErrorFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ms := newMemStore()
	ms.getErr = errors.New("connection refused")
	ce := New(inner, ms, "", "m", nil, zap.NewNop())

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("cache failures must not fail the request: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner call, got %d", inner.calls)
	}
}

func TestBatchEmbed_MixedHitsMisses(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{9}, TotalTokens: 3}}
	ms := newMemStore()
	ce := New(inner, ms, "", "m", nil, nil)

	if _, err := ce.Embed(context.Background(), "b"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	res, err := ce.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.batchCalls) != 1 || strings.Join(inner.batchCalls[0], ",") != "a,c" {
		t.Errorf("expected one inner batch for misses a,c, got %v", inner.batchCalls)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(res.Embeddings))
	}
	if res.TotalTokens != 6 {
		t.Errorf("expected tokens for 2 misses (6), got %d", res.TotalTokens)
	}
}

func TestBatchEmbed_AllHits(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce := New(inner, newMemStore(), "", "m", nil, nil)

	_, _ = ce.BatchEmbed(context.Background(), []string{"a", "b"})
	res, err := ce.BatchEmbed(context.Background(), []string{"b", "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.batchCalls) != 1 {
		t.Errorf("expected no second inner batch, got %d calls", len(inner.batchCalls))
	}
	if res.TotalTokens != 0 || len(res.Embeddings) != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	inner := &mockEmbedder{}
	res, err := New(inner, newMemStore(), "", "m", nil, nil).BatchEmbed(context.Background(), nil)
	if err != nil || len(res.Embeddings) != 0 || len(inner.batchCalls) != 0 {
		t.Fatalf("expected no-op, got %+v %v", res, err)
	}
}

func TestEmbedImage_KeyedByBytes(t *testing.T) {
	inner := &mockImageEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.5}}}
	counter := newCounter()
	ce := NewImage(inner, newMemStore(), "", "clip", counter, nil)

	img := domain.Image{Data: []byte{1, 2, 3}, ContentType: "image/png"}
	for range 3 {
		if _, err := ce.EmbedImage(context.Background(), img); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := ce.EmbedImage(context.Background(), domain.Image{Data: []byte{4}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.calls != 2 {
		t.Errorf("expected 2 inner calls (two distinct images), got %d", inner.calls)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("image", "hit")); got != 2 {
		t.Errorf("expected 2 image hits, got %v", got)
	}
}
