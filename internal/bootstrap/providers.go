// Package bootstrap assembles the provider decorator chains shared by the API
// server and the indexer.
package bootstrap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/config"
	dbRedis "github.com/kailas-cloud/partsearch/internal/db/redis"
	"github.com/kailas-cloud/partsearch/internal/metrics"
	budgetrepo "github.com/kailas-cloud/partsearch/internal/repository/budget"
	"github.com/kailas-cloud/partsearch/internal/repository/embcache"
	openaiEmb "github.com/kailas-cloud/partsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/partsearch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/partsearch/internal/usecase/health"
	usageuc "github.com/kailas-cloud/partsearch/internal/usecase/usage"
)

const defaultProvider = "openai"

// Providers holds the fully decorated model clients.
type Providers struct {
	Text      *embeddinguc.InstrumentedEmbedder
	Image     *embeddinguc.InstrumentedImageEmbedder
	Captioner *embeddinguc.InstrumentedCaptioner
	Summary   *embeddinguc.InstrumentedChat
	Chat      *embeddinguc.InstrumentedChat
	// Probes check the embedding endpoints for /health.
	Probes []healthuc.Probe
	// Meters report budgeted providers for /usage.
	Meters []usageuc.Meter
}

// NewProviders builds every chain as OpenAI-compatible transport -> Redis cache
// (embeddings only) -> instrumented wrapper with the provider's token budget.
// Uses that share a provider share its budget.
func NewProviders(ctx context.Context, cfg *config.Config, store *dbRedis.Store, logger *zap.Logger) *Providers {
	b := &builder{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		budgets: make(map[string]embeddinguc.BudgetChecker),
	}
	emb := &cfg.Embedding

	textName := providerName(emb.Text.Provider)
	textBase := openaiEmb.NewEmbedder(b.endpoint(textName), emb.Text.Model, emb.Text.Dimensions)
	text := embeddinguc.NewInstrumentedEmbedder(
		embcache.New(textBase, store, cfg.Storage.KeyPrefix, emb.Text.Model, metrics.EmbeddingCacheTotal, logger),
		textName, emb.Text.Model, b.budget(ctx, textName), logger,
	)

	imageName := providerName(emb.Image.Provider)
	imageBase := openaiEmb.NewImageEmbedder(b.endpoint(imageName), emb.Image.Model, emb.Image.Dimensions)
	image := embeddinguc.NewInstrumentedImageEmbedder(
		embcache.NewImage(imageBase, store, cfg.Storage.KeyPrefix, emb.Image.Model, metrics.EmbeddingCacheTotal, logger),
		imageName, emb.Image.Model, b.budget(ctx, imageName), logger,
	)

	captionName := providerName(emb.Caption.Provider)
	captioner := embeddinguc.NewInstrumentedCaptioner(
		openaiEmb.NewCaptioner(b.endpoint(captionName), emb.Caption.Model, emb.Caption.MaxTokens),
		captionName, emb.Caption.Model, b.budget(ctx, captionName), logger,
	)

	summaryName := providerName(emb.Summary.Provider)
	summary := embeddinguc.NewInstrumentedChat(
		openaiEmb.NewSummaryModel(b.endpoint(summaryName), emb.Summary.Model, emb.Summary.MaxTokens),
		summaryName, emb.Summary.Model, b.budget(ctx, summaryName), logger,
	)

	chatName := providerName(emb.Chat.Provider)
	chat := embeddinguc.NewInstrumentedChat(
		openaiEmb.NewChatModel(b.endpoint(chatName), emb.Chat.Model, emb.Chat.MaxTokens, ""),
		chatName, emb.Chat.Model, b.budget(ctx, chatName), logger,
	)

	logger.Info("Providers created",
		zap.String("text", textName+"/"+emb.Text.Model),
		zap.String("image", imageName+"/"+emb.Image.Model),
		zap.String("caption", captionName+"/"+emb.Caption.Model),
		zap.String("summary", summaryName+"/"+emb.Summary.Model),
		zap.String("chat", chatName+"/"+emb.Chat.Model),
	)

	return &Providers{
		Text:      text,
		Image:     image,
		Captioner: captioner,
		Summary:   summary,
		Chat:      chat,
		Probes: []healthuc.Probe{
			{Name: "text_embedder", Checker: textBase},
			{Name: "image_embedder", Checker: imageBase},
		},
		Meters: b.meters(),
	}
}

type builder struct {
	cfg     *config.Config
	store   *dbRedis.Store
	logger  *zap.Logger
	budgets map[string]embeddinguc.BudgetChecker
	// trackers holds only the providers with limits, in creation order.
	trackers []*embeddinguc.BudgetTracker
}

func (b *builder) endpoint(name string) *openaiEmb.Config {
	p := b.cfg.Embedding.Providers[name]
	return &openaiEmb.Config{
		APIKey:   p.APIKey,
		BaseURL:  p.BaseURL,
		Provider: name,
		User:     "partsearch",
		Timeout:  time.Duration(b.cfg.Embedding.TimeoutMs) * time.Millisecond,
		Logger:   b.logger,
	}
}

// budget returns the shared tracker for a provider, or a nil interface when
// the provider has no limits. A typed nil *BudgetTracker would not compare
// equal to nil inside the instrumented wrappers.
func (b *builder) budget(ctx context.Context, name string) embeddinguc.BudgetChecker {
	if checker, ok := b.budgets[name]; ok {
		return checker
	}

	var checker embeddinguc.BudgetChecker
	bc := b.cfg.Embedding.Providers[name].Budget
	if bc.DailyTokenLimit > 0 || bc.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if bc.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		tracker := embeddinguc.NewBudgetTracker(name, bc.DailyTokenLimit, bc.MonthlyTokenLimit, action, b.logger).
			WithKeyPrefix(b.cfg.Storage.KeyPrefix).
			WithStore(ctx, budgetrepo.New(b.store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		b.trackers = append(b.trackers, tracker)
		checker = tracker
	}
	b.budgets[name] = checker
	return checker
}

func (b *builder) meters() []usageuc.Meter {
	meters := make([]usageuc.Meter, 0, len(b.trackers))
	for _, t := range b.trackers {
		meters = append(meters, usageuc.Meter{
			Provider:       t.Provider(),
			Budget:         t,
			CostPerMillion: b.cfg.Embedding.Providers[t.Provider()].Budget.CostPerMillionTokens,
		})
	}
	return meters
}

func providerName(name string) string {
	if name == "" {
		return defaultProvider
	}
	return name
}
