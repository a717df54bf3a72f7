package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/partsearch/internal/config"
	dbRedis "github.com/kailas-cloud/partsearch/internal/db/redis"
	"github.com/kailas-cloud/partsearch/internal/repository/catalog"
)

// OpenStore connects to the vector store and waits until it answers PING.
// The caller owns Close.
func OpenStore(ctx context.Context, cfg *config.Config) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create database store: %w", err)
	}

	timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	return store, nil
}

// NewCatalog creates the product vector repository from config.
func NewCatalog(cfg *config.Config, store *dbRedis.Store) *catalog.Repo {
	return catalog.New(store, catalog.Config{
		KeyPrefix:       cfg.Storage.KeyPrefix,
		TextDim:         cfg.Embedding.Text.Dimensions,
		ImageDim:        cfg.Embedding.Image.Dimensions,
		HNSWM:           cfg.Database.HNSWM,
		HNSWEFConstruct: cfg.Database.HNSWEFConstruct,
		BatchSize:       cfg.Indexer.BatchSize,
	})
}
