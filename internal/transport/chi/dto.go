package chi

import (
	"time"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/modality"
	"github.com/kailas-cloud/partsearch/internal/domain/search/result"
	domusage "github.com/kailas-cloud/partsearch/internal/domain/usage"
	searchuc "github.com/kailas-cloud/partsearch/internal/usecase/search"
)

// ErrorCode is a machine-readable error code in API responses.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeInvalidImage     ErrorCode = "invalid_image"
	CodeNotFound         ErrorCode = "not_found"
	CodeQuotaExceeded    ErrorCode = "embedding_quota_exceeded"
	CodeProviderError    ErrorCode = "provider_error"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the JSON form of POST /search.
type SearchRequest struct {
	Query string `json:"query"`
}

// ResultItem is one ranked product.
type ResultItem struct {
	Product     string  `json:"product"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Application string  `json:"application"`
	Image       string  `json:"image,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	Score       float64 `json:"score"`
	MatchedBy   string  `json:"matched_by"`
}

// WarningItem reports a retrieval branch that failed during the search.
type WarningItem struct {
	Branch  string `json:"branch"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// SearchResponse is the body of POST /search.
type SearchResponse struct {
	Items    []ResultItem  `json:"items"`
	Caption  string        `json:"caption,omitempty"`
	Warnings []WarningItem `json:"warnings,omitempty"`
}

// SummaryResponse is the body of POST /summaries.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// ChatTurn is a prior message supplied by the client.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Question string       `json:"question"`
	Results  []ResultItem `json:"results"`
	History  []ChatTurn   `json:"history"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// UsageItem is one provider's token usage.
type UsageItem struct {
	Provider        string  `json:"provider"`
	PeriodStart     string  `json:"period_start"`
	PeriodEnd       string  `json:"period_end"`
	TokensUsed      int64   `json:"tokens_used"`
	TokensLimit     int64   `json:"tokens_limit"`
	TokensRemaining int64   `json:"tokens_remaining"`
	IsExhausted     bool    `json:"is_exhausted"`
	EstimatedCost   float64 `json:"estimated_cost"`
}

// UsageResponse is the body of GET /usage.
type UsageResponse struct {
	Period    string      `json:"period"`
	Providers []UsageItem `json:"providers"`
}

func usageToItem(r *domusage.Report) UsageItem {
	return UsageItem{
		Provider:        r.Provider(),
		PeriodStart:     r.Start().Format(time.RFC3339),
		PeriodEnd:       r.End().Format(time.RFC3339),
		TokensUsed:      r.TokensUsed(),
		TokensLimit:     r.TokensLimit(),
		TokensRemaining: r.TokensRemaining(),
		IsExhausted:     r.IsExhausted(),
		EstimatedCost:   r.EstimatedCost(),
	}
}

func resultToItem(r *result.Result, imageURL string) ResultItem {
	return ResultItem{
		Product:     r.Product(),
		Description: r.Description(),
		Category:    r.Category(),
		Application: r.Application(),
		Image:       r.ImagePath(),
		ImageURL:    imageURL,
		Score:       r.Score(),
		MatchedBy:   r.MatchedBy().String(),
	}
}

func resultFromItem(item ResultItem) result.Result {
	return result.New(
		item.Product, item.Description, item.Category, item.Application, item.Image,
		item.Score, modality.Modality(item.MatchedBy),
	)
}

func resultsFromItems(items []ResultItem) []result.Result {
	out := make([]result.Result, len(items))
	for i, item := range items {
		out[i] = resultFromItem(item)
	}
	return out
}

func warningToItem(w searchuc.Warning) WarningItem {
	return WarningItem{
		Branch:  string(w.Branch),
		Stage:   w.Stage,
		Message: safeWarningMessage(w.Err),
	}
}

func historyFromTurns(turns []ChatTurn) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(turns))
	for i, t := range turns {
		out[i] = domain.ChatMessage{Role: domain.ChatRole(t.Role), Content: t.Content}
	}
	return out
}
