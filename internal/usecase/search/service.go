package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/modality"
	"github.com/kailas-cloud/partsearch/internal/domain/search/match"
	"github.com/kailas-cloud/partsearch/internal/domain/search/request"
	"github.com/kailas-cloud/partsearch/internal/domain/search/result"
	"github.com/kailas-cloud/partsearch/internal/logger"
	"github.com/kailas-cloud/partsearch/internal/metrics"
)

// Defaults for Config fields left at zero.
const (
	DefaultTextWeight      = 0.6
	DefaultImageWeight     = 0.4
	DefaultTopK            = 5
	DefaultMaxResults      = 5
	DefaultSubqueryTimeout = 10 * time.Second
)

// Branch identifies one retrieval sub-query.
type Branch string

// Retrieval branches in fusion join order.
const (
	BranchText    Branch = "text"
	BranchImage   Branch = "image"
	BranchCaption Branch = "caption"
)

// Failure stages inside a branch.
const (
	StageEmbed   = "embed"
	StageQuery   = "query"
	StageCaption = "caption"
)

// Warning is a branch failure that degraded the result without failing the search.
type Warning struct {
	Branch Branch
	Stage  string
	Err    error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s branch %s: %v", w.Branch, w.Stage, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

// Outcome is the result of a hybrid search.
type Outcome struct {
	Results  []result.Result
	Warnings []Warning
	// Caption is the generated description of the query image, if any.
	Caption string
}

// Config tunes fusion weights and limits.
type Config struct {
	TextWeight      float64
	ImageWeight     float64
	TopK            int
	MaxResults      int
	SubqueryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TextWeight <= 0 {
		c.TextWeight = DefaultTextWeight
	}
	if c.ImageWeight <= 0 {
		c.ImageWeight = DefaultImageWeight
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.SubqueryTimeout <= 0 {
		c.SubqueryTimeout = DefaultSubqueryTimeout
	}
	return c
}

// Service runs hybrid text/image retrieval and fuses the branches.
type Service struct {
	index     Index
	text      Embedder
	image     ImageEmbedder
	captioner Captioner
	images    ImageLocator
	cfg       Config
}

// New creates a search service. images may be nil, in which case no image paths are resolved.
func New(
	index Index, text Embedder, image ImageEmbedder, captioner Captioner,
	images ImageLocator, cfg Config,
) *Service {
	return &Service{
		index: index, text: text, image: image, captioner: captioner,
		images: images, cfg: cfg.withDefaults(),
	}
}

// branchOutcome is what one branch hands to the join step.
type branchOutcome struct {
	matches  []match.Match
	warnings []Warning
	caption  string
}

// Search fans out to the text, image and caption branches and fuses their matches.
// Branch failures become warnings; only an invalid request is an error.
func (s *Service) Search(ctx context.Context, req *request.Request) (Outcome, error) {
	if req == nil || req.IsEmpty() {
		return Outcome{}, nil
	}

	var (
		g        errgroup.Group
		branches [3]branchOutcome
	)

	if req.HasText() {
		g.Go(func() error {
			defer observe(BranchText, time.Now())
			branches[0] = s.runText(ctx, BranchText, req.Text())
			return nil
		})
	}
	if req.HasImage() {
		g.Go(func() error {
			defer observe(BranchImage, time.Now())
			branches[1] = s.runImage(ctx, req.Image())
			return nil
		})
		g.Go(func() error {
			defer observe(BranchCaption, time.Now())
			branches[2] = s.runCaption(ctx, req.Image())
			return nil
		})
	}
	_ = g.Wait() // branches never return errors

	var (
		all []match.Match
		out Outcome
	)
	for _, b := range branches {
		all = append(all, b.matches...)
		out.Warnings = append(out.Warnings, b.warnings...)
	}
	out.Caption = branches[2].caption
	out.Results = fuse(all, s.cfg.MaxResults, s.images)

	metrics.SearchResults.Observe(float64(len(out.Results)))
	logger.FromContext(ctx).Debug("Search fused",
		zap.Int("candidates", len(all)),
		zap.Int("results", len(out.Results)),
		zap.Int("warnings", len(out.Warnings)),
	)
	return out, nil
}

// runText embeds text and queries the text index. The caption branch reuses it.
func (s *Service) runText(ctx context.Context, branch Branch, text string) branchOutcome {
	emb, err := withTimeout(ctx, s.cfg.SubqueryTimeout, func(ctx context.Context) (domain.EmbeddingResult, error) {
		return s.text.Embed(ctx, text)
	})
	if err != nil {
		return branchOutcome{warnings: []Warning{s.warn(ctx, branch, StageEmbed, len(text), err)}}
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	matches, err := s.query(ctx, modality.Text, emb.Embedding)
	if err != nil {
		return branchOutcome{warnings: []Warning{s.warn(ctx, branch, StageQuery, len(text), err)}}
	}
	return branchOutcome{matches: weigh(matches, s.cfg.TextWeight)}
}

func (s *Service) runImage(ctx context.Context, img domain.Image) branchOutcome {
	emb, err := withTimeout(ctx, s.cfg.SubqueryTimeout, func(ctx context.Context) (domain.EmbeddingResult, error) {
		return s.image.EmbedImage(ctx, img)
	})
	if err != nil {
		return branchOutcome{warnings: []Warning{s.warn(ctx, BranchImage, StageEmbed, len(img.Data), err)}}
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	matches, err := s.query(ctx, modality.Image, emb.Embedding)
	if err != nil {
		return branchOutcome{warnings: []Warning{s.warn(ctx, BranchImage, StageQuery, len(img.Data), err)}}
	}
	return branchOutcome{matches: weigh(matches, s.cfg.ImageWeight)}
}

// runCaption describes the image and searches the text index with the caption.
// A failed or empty caption skips the text sub-query.
func (s *Service) runCaption(ctx context.Context, img domain.Image) branchOutcome {
	capRes, err := withTimeout(ctx, s.cfg.SubqueryTimeout, func(ctx context.Context) (domain.CaptionResult, error) {
		return s.captioner.Caption(ctx, img)
	})
	if err != nil {
		return branchOutcome{warnings: []Warning{s.warn(ctx, BranchCaption, StageCaption, len(img.Data), err)}}
	}
	domain.UsageFromContext(ctx).AddTokens(capRes.TotalTokens)

	caption := strings.TrimSpace(capRes.Text)
	if caption == "" {
		return branchOutcome{}
	}

	out := s.runText(ctx, BranchCaption, caption)
	out.caption = caption
	return out
}

func (s *Service) query(ctx context.Context, m modality.Modality, vector []float32) ([]match.Match, error) {
	return withTimeout(ctx, s.cfg.SubqueryTimeout, func(ctx context.Context) ([]match.Match, error) {
		return s.index.Query(ctx, m, vector, s.cfg.TopK)
	})
}

func (s *Service) warn(ctx context.Context, branch Branch, stage string, inputLen int, err error) Warning {
	metrics.SearchBranchFailuresTotal.WithLabelValues(string(branch), stage).Inc()
	logger.FromContext(ctx).Warn("Search branch failed",
		zap.String("branch", string(branch)),
		zap.String("stage", stage),
		zap.Int("input_len", inputLen),
		zap.Error(err),
	)
	return Warning{Branch: branch, Stage: stage, Err: err}
}

func weigh(matches []match.Match, w float64) []match.Match {
	out := make([]match.Match, len(matches))
	for i, m := range matches {
		out[i] = m.Weighted(w)
	}
	return out
}

func observe(branch Branch, start time.Time) {
	metrics.SearchBranchDuration.WithLabelValues(string(branch)).Observe(time.Since(start).Seconds())
}

// withTimeout runs fn under a per-sub-query deadline.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
