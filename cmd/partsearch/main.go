package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/bootstrap"
	"github.com/kailas-cloud/partsearch/internal/config"
	logpkg "github.com/kailas-cloud/partsearch/internal/logger"
	"github.com/kailas-cloud/partsearch/internal/metrics"
	"github.com/kailas-cloud/partsearch/internal/repository/images"
	chiTransport "github.com/kailas-cloud/partsearch/internal/transport/chi"
	"github.com/kailas-cloud/partsearch/internal/usecase/assistant"
	healthuc "github.com/kailas-cloud/partsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/partsearch/internal/usecase/search"
	usageuc "github.com/kailas-cloud/partsearch/internal/usecase/usage"
	"github.com/kailas-cloud/partsearch/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting partsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("images_root", cfg.Search.ImagesRoot),
	)

	ctx := context.Background()
	store, err := bootstrap.OpenStore(ctx, &cfg)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer store.Close()
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	providers := bootstrap.NewProviders(ctx, &cfg, store, logger)

	catalogRepo := bootstrap.NewCatalog(&cfg, store)
	created, err := catalogRepo.EnsureIndexes(ctx)
	if err != nil {
		logger.Error("Failed to ensure vector indexes", zap.Error(err))
	} else if len(created) > 0 {
		logger.Warn("Created empty vector indexes; run partsearch-indexer to load the catalog",
			zap.Strings("indexes", created))
	}

	imageStore := images.NewDir(cfg.Search.ImagesRoot)

	searchSvc := searchuc.New(
		catalogRepo, providers.Text, providers.Image, providers.Captioner, imageStore,
		searchuc.Config{
			TextWeight:      cfg.Search.TextWeight,
			ImageWeight:     cfg.Search.ImageWeight,
			TopK:            cfg.Search.TopK,
			MaxResults:      cfg.Search.MaxResults,
			SubqueryTimeout: cfg.Search.SubqueryTimeout(),
		},
	)
	assistantSvc := assistant.New(providers.Summary, providers.Chat)
	healthSvc := healthuc.New(store,
		append(providers.Probes, healthuc.Probe{Name: "indexes", Checker: catalogRepo})...,
	)

	usageSvc := usageuc.New(providers.Meters...)

	server := chiTransport.NewServer(searchSvc, assistantSvc, healthSvc, usageSvc, imageStore, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
				zap.String("embedding_tokens", ww.Header().Get("X-Embedding-Tokens")),
			)
		})
	}
}
