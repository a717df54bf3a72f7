package chi

import (
	"context"
	"io/fs"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/search/request"
	"github.com/kailas-cloud/partsearch/internal/domain/search/result"
	domusage "github.com/kailas-cloud/partsearch/internal/domain/usage"
	healthuc "github.com/kailas-cloud/partsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/partsearch/internal/usecase/search"
)

// Searcher runs hybrid product search.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (searchuc.Outcome, error)
}

// Assistant summarises results and answers questions about them.
type Assistant interface {
	Summarize(ctx context.Context, r *result.Result) (string, error)
	Answer(
		ctx context.Context, results []result.Result, question string,
		history []domain.ChatMessage, sink func(string) error,
	) (string, error)
}

// HealthReporter aggregates dependency checks.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}

// UsageReporter reports token usage per provider.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) []domusage.Report
}

// ImageServer exposes the diagram directory.
type ImageServer interface {
	Root() string
	Open(name string) (fs.File, error)
}
