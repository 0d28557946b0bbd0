package model

import "github.com/vgMonky/redbud/internal/conversation"

// CompletionResponse is the common response model for completion providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the completion backend abstraction used by the bot.
type Provider interface {
	ChatCompletion(messages []conversation.Message) (CompletionResponse, error)
}
