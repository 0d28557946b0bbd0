package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	cmdpkg "github.com/vgMonky/redbud/internal/commander"
	ctxpkg "github.com/vgMonky/redbud/internal/context"
	"github.com/vgMonky/redbud/internal/conversation"
	"github.com/vgMonky/redbud/internal/db"
)

// replyChunkChars matches the Telegram message size limit applied on send.
const replyChunkChars = 4000

const invalidRangeReply = "Invalid value. Use /chat_range 30 (between 1 and 1000)."

// Commands returns the menu registered with setMyCommands.
func Commands() []cmdpkg.Command {
	return []cmdpkg.Command{
		{Name: "chat", Description: "Ask the model anything: /chat <your question>"},
		{Name: "chatid", Description: "Show this chat's ID"},
		{Name: "chat_wipe", Description: "Forget the conversation so far"},
		{Name: "chat_context", Description: "Show the context sent to the model"},
		{Name: "chat_range", Description: "Show or set how many turns are remembered"},
		{Name: "help", Description: "List available commands"},
	}
}

func (b *Bot) handleMessage(chatID int64, text string) error {
	name, args := splitCommand(text)
	switch name {
	case "chat":
		return b.handleChat(chatID, args)
	case "chatid":
		return b.send(chatID, fmt.Sprintf("Chat ID is: %d", chatID))
	case "chat_wipe":
		return b.handleWipe(chatID)
	case "chat_context":
		return b.handleContext(chatID)
	case "chat_range":
		return b.handleRange(chatID, args)
	case "help":
		return b.handleHelp(chatID)
	default:
		b.logger.Debug().Int64("chat_id", chatID).Str("text", truncate(text, 80)).Msg("ignoring non-command message")
		return nil
	}
}

func (b *Bot) handleChat(chatID int64, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return b.send(chatID, "Usage: /chat <your question>")
	}

	b.store.AddMessage(chatID, conversation.RoleUser, prompt)
	messages := ctxpkg.Assemble(b.cfg.SystemPrompt, b.store.History(chatID))

	if err := b.commander.SendChatAction(chatID, "typing"); err != nil {
		b.logger.Debug().Err(err).Msg("send typing action failed")
	}

	b.logger.Info().Int64("chat_id", chatID).Str("prompt", truncate(prompt, 200)).Msg("prompt received")

	started := time.Now()
	resp, err := b.provider.ChatCompletion(messages)
	if err != nil {
		b.logEvent(db.EventCompletionFailed, map[string]any{
			"chat_id": chatID,
			"error":   truncate(err.Error(), 500),
		})
		if sendErr := b.send(chatID, "Error: "+truncate(err.Error(), 300)); sendErr != nil {
			b.logger.Debug().Err(sendErr).Msg("failed to report completion error")
		}
		return fmt.Errorf("chat completion: %w", err)
	}
	latency := time.Since(started)

	b.store.AddMessage(chatID, conversation.RoleAssistant, resp.Content)

	for _, chunk := range ctxpkg.Chunks(resp.Content, replyChunkChars) {
		if err := b.send(chatID, chunk); err != nil {
			return err
		}
	}

	if b.database != nil {
		if err := db.RecordUsage(b.database, chatID, b.cfg.Model, resp.InputTokens, resp.OutputTokens, latency); err != nil {
			b.logger.Warn().Err(err).Msg("failed to record usage")
		}
	}
	b.logEvent(db.EventReplySent, map[string]any{
		"chat_id":       chatID,
		"latency_ms":    latency.Milliseconds(),
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	})
	b.logger.Info().
		Int64("chat_id", chatID).
		Dur("latency", latency).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Msg("reply sent")
	return nil
}

func (b *Bot) handleWipe(chatID int64) error {
	b.store.Clear(chatID)
	b.logEvent(db.EventHistoryCleared, map[string]any{"chat_id": chatID})
	return b.send(chatID, "Memory wiped for this chat.")
}

func (b *Bot) handleContext(chatID int64) error {
	transcript := ctxpkg.FormatTranscript(
		b.store.Capacity(chatID),
		ctxpkg.Assemble(b.cfg.SystemPrompt, b.store.History(chatID)),
	)
	for _, chunk := range ctxpkg.Chunks(transcript, replyChunkChars) {
		if err := b.send(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleRange(chatID int64, args string) error {
	args = strings.TrimSpace(args)
	if args == "" {
		return b.send(chatID, fmt.Sprintf(
			"Current memory range: %d turns\nUse /chat_range <number> to set a new value.",
			b.store.Capacity(chatID),
		))
	}

	n, convErr := strconv.Atoi(args)
	if convErr != nil {
		return b.send(chatID, invalidRangeReply)
	}

	old := b.store.Capacity(chatID)
	if err := b.store.Resize(chatID, n); err != nil {
		if errors.Is(err, conversation.ErrInvalidCapacity) {
			return b.send(chatID, invalidRangeReply)
		}
		return err
	}

	b.logEvent(db.EventHistoryResized, map[string]any{
		"chat_id": chatID,
		"old":     old,
		"new":     n,
	})
	return b.send(chatID, fmt.Sprintf("Memory range updated:\nOld: %d turns\nNew: %d turns", old, n))
}

func (b *Bot) handleHelp(chatID int64) error {
	lines := make([]string, 0, len(Commands()))
	for _, c := range Commands() {
		lines = append(lines, fmt.Sprintf("/%s - %s", c.Name, c.Description))
	}
	return b.send(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) send(chatID int64, text string) error {
	return b.commander.SendMessage(chatID, text)
}

// splitCommand extracts the command name and its argument string. Group chats
// address commands as /chat@botname; the suffix is dropped.
func splitCommand(text string) (name, args string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", trimmed
	}
	rest := strings.TrimPrefix(trimmed, "/")
	name = rest
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		name = rest[:i]
		args = strings.TrimSpace(rest[i+1:])
	}
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	return name, args
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
