// Package assistant summarises search results and answers questions about them.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/search/result"
)

// Limits on caller-supplied chat input.
const (
	MaxQuestionLength = 4096
	MaxHistoryTurns   = 20
	MaxContextResults = 5
)

const (
	summarySystemPrompt = "You are a helpful assistant that summarizes product information concisely."
	expertSystemPrompt  = "You are a Renesas product expert. Use the provided product information to answer " +
		"questions accurately and technically. Focus on helping users understand how these products " +
		"can solve their specific needs."
)

// Service wraps two chat models: a cheap one for summaries, a stronger one for answers.
type Service struct {
	summary domain.ChatCompleter
	chat    domain.ChatCompleter
}

// New creates the assistant.
func New(summary, chat domain.ChatCompleter) *Service {
	return &Service{summary: summary, chat: chat}
}

// Summarize returns a 2-3 sentence summary of one result.
func (s *Service) Summarize(ctx context.Context, r *result.Result) (string, error) {
	if r.Product() == "" {
		return "", fmt.Errorf("%w: product is required", domain.ErrInvalidRequest)
	}

	prompt := fmt.Sprintf(
		"Summarize the following product information concisely:\n"+
			"Product: %s\nDescription: %s\nCategory: %s\nApplication: %s\n\n"+
			"Provide a brief, informative summary in 2-3 sentences.",
		r.Product(), r.Description(), r.Category(), r.Application(),
	)

	res, err := s.summary.Complete(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: summarySystemPrompt},
		{Role: domain.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("summarize %q: %w", r.Product(), err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
	return strings.TrimSpace(res.Text), nil
}

// Answer streams an expert answer about results to sink and returns the full text.
// history holds prior user/assistant turns, oldest first; only the last
// MaxHistoryTurns are sent.
func (s *Service) Answer(
	ctx context.Context, results []result.Result, question string,
	history []domain.ChatMessage, sink func(string) error,
) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", domain.ErrInvalidRequest)
	}
	if len(question) > MaxQuestionLength {
		return "", fmt.Errorf("%w: question too long (max %d chars)", domain.ErrInvalidRequest, MaxQuestionLength)
	}
	for i, m := range history {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			return "", fmt.Errorf("%w: history[%d] has role %q", domain.ErrInvalidRequest, i, m.Role)
		}
	}
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}

	msgs := make([]domain.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: expertSystemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: "Context:\n" + renderContext(results) + "\nQuestion: " + question,
	})

	res, err := s.chat.Stream(ctx, msgs, sink)
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
	if err != nil {
		return res.Text, fmt.Errorf("answer: %w", err)
	}
	return res.Text, nil
}

func renderContext(results []result.Result) string {
	if len(results) > MaxContextResults {
		results = results[:MaxContextResults]
	}

	var b strings.Builder
	b.WriteString("Based on the following Renesas products:\n\n")
	for i := range results {
		r := &results[i]
		fmt.Fprintf(&b, "Product: %s\nDescription: %s\nCategory: %s\nApplication: %s\n\n",
			r.Product(), r.Description(), r.Category(), r.Application())
	}
	return b.String()
}
