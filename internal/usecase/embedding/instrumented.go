package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/metrics"
)

// DefaultMaxAPIBatchSize is the largest batch sent to the provider in one request.
const DefaultMaxAPIBatchSize = 256

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// guard applies the budget before a provider call and records usage after it.
// Transport metrics live in transport/openai; this layer owns budget gauges and logs.
type guard struct {
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

func (g *guard) check(ctx context.Context, op string) error {
	if g.budget == nil {
		return nil
	}
	if err := g.budget.Check(ctx); err != nil {
		g.logger.Error("Budget exceeded",
			zap.String("provider", g.provider),
			zap.String("model", g.model),
			zap.String("operation", op),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func (g *guard) record(tokens int) {
	if g.budget == nil || tokens <= 0 {
		return
	}
	g.budget.Record(int64(tokens))
	gauge := metrics.EmbeddingBudgetTokensRemaining
	gauge.WithLabelValues(g.provider, "daily").Set(float64(g.budget.RemainingDaily()))
	gauge.WithLabelValues(g.provider, "monthly").Set(float64(g.budget.RemainingMonthly()))
}

func (g *guard) failed(op string, start time.Time, err error) {
	g.logger.Error("Provider request failed",
		zap.String("provider", g.provider),
		zap.String("model", g.model),
		zap.String("operation", op),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
}

func newGuard(provider, model string, budget BudgetChecker, logger *zap.Logger) guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return guard{provider: provider, model: model, budget: budget, logger: logger}
}

// InstrumentedEmbedder wraps a text embedder with budget enforcement and logging.
type InstrumentedEmbedder struct {
	inner domain.Embedder
	guard guard
}

// NewInstrumentedEmbedder wraps an embedder with budget and observability. budget may be nil.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, guard: newGuard(provider, model, budget, logger)}
}

// Embed checks budget, delegates to the inner embedder, and records usage.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.guard.check(ctx, "embed_text"); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	if err != nil {
		p.guard.failed("embed_text", start, err)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.guard.record(result.TotalTokens)
	p.guard.logger.Debug("Embedding request completed",
		zap.String("provider", p.guard.provider),
		zap.Duration("duration", time.Since(start)),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed checks the budget per chunk of DefaultMaxAPIBatchSize and delegates.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	var out domain.BatchEmbeddingResult

	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		if err := p.guard.check(ctx, "embed_text_batch"); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}

		chunk := texts[offset:min(offset+DefaultMaxAPIBatchSize, len(texts))]
		res, err := p.embedInner(ctx, chunk)
		if err != nil {
			p.guard.failed("embed_text_batch", start, err)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed at %d: %w", offset, err)
		}
		if len(res.Embeddings) != len(chunk) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf(
				"batch embed at %d: got %d vectors for %d texts: %w",
				offset, len(res.Embeddings), len(chunk), domain.ErrProviderError,
			)
		}

		p.guard.record(res.TotalTokens)
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	p.guard.logger.Debug("Batch embedding completed",
		zap.String("provider", p.guard.provider),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

func (p *InstrumentedEmbedder) embedInner(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := p.inner.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts) //nolint:wrapcheck // wrapped by caller
	}
	return domain.BatchFallback(ctx, p.inner, texts)
}

// InstrumentedImageEmbedder wraps an image embedder with budget enforcement and logging.
type InstrumentedImageEmbedder struct {
	inner domain.ImageEmbedder
	guard guard
}

// NewInstrumentedImageEmbedder wraps an image embedder. budget may be nil.
func NewInstrumentedImageEmbedder(
	inner domain.ImageEmbedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedImageEmbedder {
	return &InstrumentedImageEmbedder{inner: inner, guard: newGuard(provider, model, budget, logger)}
}

// EmbedImage checks budget, delegates, and records usage.
func (p *InstrumentedImageEmbedder) EmbedImage(ctx context.Context, img domain.Image) (domain.EmbeddingResult, error) {
	if err := p.guard.check(ctx, "embed_image"); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.EmbedImage(ctx, img)
	if err != nil {
		p.guard.failed("embed_image", start, err)
		return domain.EmbeddingResult{}, fmt.Errorf("embed image: %w", err)
	}

	p.guard.record(result.TotalTokens)
	return result, nil
}

// InstrumentedCaptioner wraps a captioner with budget enforcement and logging.
type InstrumentedCaptioner struct {
	inner domain.Captioner
	guard guard
}

// NewInstrumentedCaptioner wraps a captioner. budget may be nil.
func NewInstrumentedCaptioner(
	inner domain.Captioner, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedCaptioner {
	return &InstrumentedCaptioner{inner: inner, guard: newGuard(provider, model, budget, logger)}
}

// Caption checks budget, delegates, and records usage.
func (p *InstrumentedCaptioner) Caption(ctx context.Context, img domain.Image) (domain.CaptionResult, error) {
	if err := p.guard.check(ctx, "caption"); err != nil {
		return domain.CaptionResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Caption(ctx, img)
	if err != nil {
		p.guard.failed("caption", start, err)
		return domain.CaptionResult{}, fmt.Errorf("caption: %w", err)
	}

	p.guard.record(result.TotalTokens)
	p.guard.logger.Debug("Caption generated",
		zap.Duration("duration", time.Since(start)),
		zap.Int("caption_len", len(result.Text)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// InstrumentedChat wraps a chat model with budget enforcement and logging.
type InstrumentedChat struct {
	inner domain.ChatCompleter
	guard guard
}

// NewInstrumentedChat wraps a chat model. budget may be nil.
func NewInstrumentedChat(
	inner domain.ChatCompleter, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedChat {
	return &InstrumentedChat{inner: inner, guard: newGuard(provider, model, budget, logger)}
}

// Complete checks budget, delegates, and records usage.
func (p *InstrumentedChat) Complete(ctx context.Context, msgs []domain.ChatMessage) (domain.ChatResult, error) {
	if err := p.guard.check(ctx, "chat"); err != nil {
		return domain.ChatResult{}, err
	}

	start := time.Now()
	res, err := p.inner.Complete(ctx, msgs)
	if err != nil {
		p.guard.failed("chat", start, err)
		return domain.ChatResult{}, fmt.Errorf("complete: %w", err)
	}
	p.guard.record(res.TotalTokens)
	return res, nil
}

// Stream checks budget, delegates, and records usage of whatever was streamed.
func (p *InstrumentedChat) Stream(
	ctx context.Context, msgs []domain.ChatMessage, onChunk func(string) error,
) (domain.ChatResult, error) {
	if err := p.guard.check(ctx, "chat_stream"); err != nil {
		return domain.ChatResult{}, err
	}

	start := time.Now()
	res, err := p.inner.Stream(ctx, msgs, onChunk)
	p.guard.record(res.TotalTokens)
	if err != nil {
		p.guard.failed("chat_stream", start, err)
		return res, fmt.Errorf("stream: %w", err)
	}
	return res, nil
}
