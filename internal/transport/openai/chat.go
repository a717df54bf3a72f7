package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/domain"
)

// Caption prompts.
const (
	captionSystemPrompt = "You are an AI specialized in analyzing engineering systems from images. " +
		"Provide a concise, technical description of the system's key components and functionality."
	captionUserPrompt = "Describe this technical system or block diagram."
)

// ChatModel generates chat completions through an OpenAI-compatible endpoint.
type ChatModel struct {
	client    *openai.Client
	model     string
	maxTokens int
	op        string
	provider  string
	logger    *zap.Logger
}

// NewChatModel creates a chat provider. op labels its metrics (summary, chat).
func NewChatModel(cfg *Config, model string, maxTokens int, op string) *ChatModel {
	if op == "" {
		op = opChat
	}
	return &ChatModel{
		client:    newClient(cfg),
		model:     model,
		maxTokens: maxTokens,
		op:        op,
		provider:  cfg.Provider,
		logger:    loggerOrNop(cfg.Logger),
	}
}

// NewSummaryModel creates a chat provider labelled for result summaries.
func NewSummaryModel(cfg *Config, model string, maxTokens int) *ChatModel {
	return NewChatModel(cfg, model, maxTokens, opComplete)
}

func toMessages(msgs []domain.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Complete implements domain.ChatCompleter.
func (m *ChatModel) Complete(ctx context.Context, msgs []domain.ChatMessage) (domain.ChatResult, error) {
	return m.complete(ctx, m.op, openai.ChatCompletionRequest{
		Model:     m.model,
		Messages:  toMessages(msgs),
		MaxTokens: m.maxTokens,
	})
}

func (m *ChatModel) complete(
	ctx context.Context, op string, req openai.ChatCompletionRequest,
) (domain.ChatResult, error) {
	c := startCall(m.provider, m.model, op)
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.fail(errType(err))
		return domain.ChatResult{}, parseAPIError(op, err)
	}
	if len(resp.Choices) == 0 {
		c.fail("empty_response")
		return domain.ChatResult{}, fmt.Errorf("%s: no choices returned: %w", op, domain.ErrProviderError)
	}

	c.succeed(resp.Usage.PromptTokens, resp.Usage.TotalTokens)
	return domain.ChatResult{
		Text:        strings.TrimSpace(resp.Choices[0].Message.Content),
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

// Stream implements domain.ChatCompleter.
func (m *ChatModel) Stream(
	ctx context.Context, msgs []domain.ChatMessage, onChunk func(string) error,
) (domain.ChatResult, error) {
	c := startCall(m.provider, m.model, m.op)
	stream, err := m.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:         m.model,
		Messages:      toMessages(msgs),
		MaxTokens:     m.maxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		c.fail(errType(err))
		return domain.ChatResult{}, parseAPIError(m.op, err)
	}
	defer stream.Close()

	var (
		sb          strings.Builder
		totalTokens int
		prompt      int
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.fail(errType(err))
			return domain.ChatResult{Text: sb.String()}, parseAPIError(m.op, err)
		}
		if resp.Usage != nil {
			prompt = resp.Usage.PromptTokens
			totalTokens = resp.Usage.TotalTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if err := onChunk(chunk); err != nil {
			c.fail("sink")
			return domain.ChatResult{Text: sb.String()}, fmt.Errorf("%s: deliver chunk: %w", m.op, err)
		}
	}

	c.succeed(prompt, totalTokens)
	return domain.ChatResult{Text: sb.String(), TotalTokens: totalTokens}, nil
}

// Captioner describes engineering diagrams with a vision-capable chat model.
type Captioner struct {
	chat *ChatModel
}

// NewCaptioner creates a captioning provider.
func NewCaptioner(cfg *Config, model string, maxTokens int) *Captioner {
	return &Captioner{chat: NewChatModel(cfg, model, maxTokens, opCaption)}
}

// Caption implements domain.Captioner. Returns the trimmed caption text.
func (c *Captioner) Caption(ctx context.Context, img domain.Image) (domain.CaptionResult, error) {
	if img.IsEmpty() {
		return domain.CaptionResult{}, fmt.Errorf("caption: %w", domain.ErrInvalidImage)
	}

	res, err := c.chat.complete(ctx, opCaption, openai.ChatCompletionRequest{
		Model:     c.chat.model,
		MaxTokens: c.chat.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: captionSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: captionUserPrompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: img.DataURL()},
					},
				},
			},
		},
	})
	if err != nil {
		return domain.CaptionResult{}, err
	}
	return domain.CaptionResult{Text: res.Text, TotalTokens: res.TotalTokens}, nil
}
