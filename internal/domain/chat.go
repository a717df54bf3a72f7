package domain

import "context"

// ChatRole is the author of a chat message.
type ChatRole string

// Chat roles understood by OpenAI-compatible chat endpoints.
const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// IsValid reports whether r is a known role.
func (r ChatRole) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// ChatResult is a completed chat response with its token cost.
type ChatResult struct {
	Text        string
	TotalTokens int
}

// ChatCompleter generates chat completions, whole or streamed.
type ChatCompleter interface {
	Complete(ctx context.Context, msgs []ChatMessage) (ChatResult, error)
	// Stream calls onChunk for each content delta in order and returns the
	// concatenated text. An onChunk error aborts the stream.
	Stream(ctx context.Context, msgs []ChatMessage, onChunk func(string) error) (ChatResult, error)
}
