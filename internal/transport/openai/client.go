// Package openai adapts OpenAI-compatible endpoints (embeddings, vision
// captioning, chat) to the domain provider interfaces.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/metrics"
)

// Provider operations, used as the metrics operation label.
const (
	opEmbedText  = "embed_text"
	opEmbedImage = "embed_image"
	opCaption    = "caption"
	opComplete   = "summary"
	opChat       = "chat"
)

// Config holds an OpenAI-compatible endpoint.
type Config struct {
	APIKey   string
	BaseURL  string
	Provider string
	User     string
	Timeout  time.Duration // HTTP client timeout, 0 = none
	Logger   *zap.Logger
}

func newClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return openai.NewClientWithConfig(clientCfg)
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// call tracks one provider round-trip in Prometheus.
type call struct {
	provider, model, op string
	start               time.Time
}

func startCall(provider, model, op string) call {
	return call{provider: provider, model: model, op: op, start: time.Now()}
}

func (c call) fail(errType string) {
	metrics.ProviderRequestsTotal.WithLabelValues(c.provider, c.model, c.op, "error").Inc()
	metrics.ProviderErrorsTotal.WithLabelValues(c.provider, c.model, errType).Inc()
}

func (c call) succeed(promptTokens, totalTokens int) {
	metrics.ProviderRequestsTotal.WithLabelValues(c.provider, c.model, c.op, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(c.provider, c.model, c.op).Observe(time.Since(c.start).Seconds())
	if totalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(c.provider, c.model, "prompt").Add(float64(promptTokens))
		metrics.ProviderTokensTotal.WithLabelValues(c.provider, c.model, "total").Add(float64(totalTokens))
	}
}

// parseAPIError extracts a readable message and wraps domain.ErrProviderError for 502 mapping.
// Context cancellation and deadlines keep their identity.
func parseAPIError(op string, err error) error {
	wrap := domain.ErrProviderError

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, wrap, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w", op, reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", op, apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("%s request failed: %w", op, wrap)
}

// extractDetail reads the "detail" field some OpenAI-compatible servers use for errors.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

// errType maps an error to the provider_errors_total label.
func errType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "api_error"
	}
}
