package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/bootstrap"
	"github.com/kailas-cloud/partsearch/internal/config"
	dbRedis "github.com/kailas-cloud/partsearch/internal/db/redis"
	logpkg "github.com/kailas-cloud/partsearch/internal/logger"
	"github.com/kailas-cloud/partsearch/internal/metrics"
	"github.com/kailas-cloud/partsearch/internal/repository/catalog"
	"github.com/kailas-cloud/partsearch/internal/repository/images"
	"github.com/kailas-cloud/partsearch/internal/source"
	catalogs "github.com/kailas-cloud/partsearch/internal/usecase/catalog"
	"github.com/kailas-cloud/partsearch/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "partsearch-indexer",
		Usage:   "Load scraped products into the partsearch vector indexes",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Config environment (config/<env>.yaml)",
				EnvVars: []string{"ENV"},
				Value:   "local",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override logging level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Embed products from a scraper output file and upsert both indexes",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "Path to raw_data.json or complete_data.csv",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "images",
						Usage: "Directory of PNG diagrams (defaults to search.images_root)",
					},
					&cli.BoolFlag{
						Name:  "text-only",
						Usage: "Skip image embeddings",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Products per embed/upsert batch, at most 100 (defaults to indexer.batch_size)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent image embedding calls (defaults to indexer.workers)",
					},
				},
			},
			{
				Name:   "ensure-indexes",
				Usage:  "Create the text and image indexes when missing",
				Action: ensureIndexesCommand,
			},
			{
				Name:   "drop-indexes",
				Usage:  "Drop the text and image indexes",
				Action: dropIndexesCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "delete-docs",
						Usage: "Also delete the stored vectors",
					},
				},
			},
		},
	}
}

// env is what every command needs: config, logger and an open store.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	store  *dbRedis.Store
}

func (e *env) close() {
	e.store.Close()
	_ = e.logger.Sync()
}

func setup(ctx context.Context, c *cli.Context) (*env, error) {
	name := c.String("env")
	cfg, err := config.Load(name)
	if err != nil {
		return nil, err
	}
	logger, err := logpkg.NewLogger(name, firstNonEmpty(c.String("log-level"), cfg.Logging.Level))
	if err != nil {
		return nil, err
	}
	store, err := bootstrap.OpenStore(ctx, &cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, store: store}, nil
}

func indexCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer e.close()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	repo := bootstrap.NewCatalog(&e.cfg, e.store)
	if err := ensureIndexes(ctx, repo, e.logger); err != nil {
		return err
	}

	rows, closer, err := source.Open(c.String("source"))
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	providers := bootstrap.NewProviders(ctx, &e.cfg, e.store, e.logger)

	var (
		imageEmb catalogs.ImageEmbedder
		reader   catalogs.ImageReader
	)
	if !c.Bool("text-only") {
		imageEmb = providers.Image
		reader = images.NewDir(firstNonEmpty(c.String("images"), e.cfg.Search.ImagesRoot))
	}

	indexer, err := catalogs.NewIndexer(repo, providers.Text, imageEmb, reader, catalogs.Config{
		BatchSize: firstPositive(c.Int("batch-size"), e.cfg.Indexer.BatchSize),
		Workers:   firstPositive(c.Int("workers"), e.cfg.Indexer.Workers),
	}, e.logger)
	if err != nil {
		return err
	}
	defer indexer.Release()

	start := time.Now()
	report, err := indexer.Index(ctx, rows)
	e.logger.Info("Indexing finished",
		zap.String("source", c.String("source")),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("products", report.Products),
		zap.Int("invalid", report.Invalid),
		zap.Int("text_indexed", report.TextIndexed),
		zap.Int("text_failed", report.TextFailed),
		zap.Int("image_indexed", report.ImageIndexed),
		zap.Int("image_missing", report.ImageMissing),
		zap.Int("image_failed", report.ImageFailed),
		zap.Int("tokens_used", report.TokensUsed),
	)
	if err != nil {
		return fmt.Errorf("index %s: %w", c.String("source"), err)
	}
	return nil
}

func ensureIndexesCommand(c *cli.Context) error {
	e, err := setup(c.Context, c)
	if err != nil {
		return err
	}
	defer e.close()

	return ensureIndexes(c.Context, bootstrap.NewCatalog(&e.cfg, e.store), e.logger)
}

func dropIndexesCommand(c *cli.Context) error {
	e, err := setup(c.Context, c)
	if err != nil {
		return err
	}
	defer e.close()

	if err := bootstrap.NewCatalog(&e.cfg, e.store).DropIndexes(c.Context, c.Bool("delete-docs")); err != nil {
		return err
	}
	e.logger.Info("Indexes dropped", zap.Bool("delete_docs", c.Bool("delete-docs")))
	return nil
}

func ensureIndexes(ctx context.Context, repo *catalog.Repo, logger *zap.Logger) error {
	created, err := repo.EnsureIndexes(ctx)
	if err != nil {
		return err
	}
	logger.Info("Indexes ready", zap.Strings("created", created))
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
