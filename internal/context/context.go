// Package context builds completion payloads and user-facing views of a
// chat's memory. Composition with the fixed system prompt happens here, never
// inside the conversation store.
package context

import (
	"fmt"
	"strings"

	"github.com/vgMonky/redbud/internal/conversation"
)

// Assemble builds the completion payload: the system prompt followed by the
// chat's stored history in chronological order.
func Assemble(system string, history []conversation.Message) []conversation.Message {
	messages := make([]conversation.Message, 0, 1+len(history))
	messages = append(messages, conversation.Message{Role: conversation.RoleSystem, Content: system})
	messages = append(messages, history...)
	return messages
}

// FormatTranscript renders the current memory window for display, with a
// capacity header and one ROLE: block per message.
func FormatTranscript(capacity int, messages []conversation.Message) string {
	parts := make([]string, 0, 1+len(messages))
	parts = append(parts, fmt.Sprintf("Current memory window: %d turns", capacity))
	for _, m := range messages {
		parts = append(parts, strings.ToUpper(string(m.Role))+":\n"+m.Content)
	}
	return strings.Join(parts, "\n\n")
}

// Chunks splits text into rune-safe pieces of at most maxChars characters,
// for replies longer than one Telegram message.
func Chunks(text string, maxChars int) []string {
	if maxChars <= 0 || text == "" {
		return []string{text}
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return []string{text}
	}
	chunks := make([]string, 0, (len(runes)+maxChars-1)/maxChars)
	for start := 0; start < len(runes); start += maxChars {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
