package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything the bot process reads from the environment.
type Config struct {
	BotTokens            []string
	TelegramAPIRoot      string
	Timeout              int
	SleepSeconds         int
	DropPending          bool
	PendingWindowSeconds int64
	PendingMaxMessages   int

	HistoryMaxTurns int
	SystemPrompt    string

	APIKey             string
	ChatCompletionsURL string
	Model              string

	Commander           string
	Provider            string
	DummyPollScript     string
	DummySendScript     string
	DummyProviderScript string

	DBPath   string
	LogLevel string
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	commanderKind := envOrDefault("REDBUD_COMMANDER", "telegram")
	providerKind := envOrDefault("REDBUD_PROVIDER", "openai")

	tokens := splitList(os.Getenv("TELEGRAM_BOT_TOKENS"))
	if commanderKind == "telegram" && len(tokens) == 0 {
		return Config{}, fmt.Errorf("TELEGRAM_BOT_TOKENS is required in environment when REDBUD_COMMANDER=telegram")
	}

	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	if providerKind == "openai" && apiKey == "" {
		return Config{}, fmt.Errorf("DEEPSEEK_API_KEY is required in environment when REDBUD_PROVIDER=openai")
	}

	historyMaxTurns := envIntOrDefault("REDBUD_HISTORY_MAX_TURNS", 30)
	if historyMaxTurns < 1 || historyMaxTurns > 1000 {
		return Config{}, fmt.Errorf("REDBUD_HISTORY_MAX_TURNS must be within [1, 1000], got %d", historyMaxTurns)
	}

	return Config{
		BotTokens:            tokens,
		TelegramAPIRoot:      envOrDefault("TELEGRAM_API_ROOT", "https://api.telegram.org"),
		Timeout:              envIntOrDefault("TG_TIMEOUT", 30),
		SleepSeconds:         envIntOrDefault("TG_SLEEP_SECONDS", 1),
		DropPending:          envBoolOrDefault("TG_DROP_PENDING", true),
		PendingWindowSeconds: int64(envIntOrDefault("TG_PENDING_WINDOW_SECONDS", 600)),
		PendingMaxMessages:   envIntOrDefault("TG_PENDING_MAX_MESSAGES", 50),
		HistoryMaxTurns:      historyMaxTurns,
		SystemPrompt:         envOrDefault("REDBUD_SYSTEM_PROMPT", "You are a helpful assistant that remembers the conversation."),
		APIKey:               apiKey,
		ChatCompletionsURL:   envOrDefault("DEEPSEEK_CHAT_COMPLETIONS_URL", "https://api.deepseek.com/v1/chat/completions"),
		Model:                envOrDefault("DEEPSEEK_MODEL", "deepseek-chat"),
		Commander:            commanderKind,
		Provider:             providerKind,
		DummyPollScript:      envOrDefault("REDBUD_DUMMY_POLL_SCRIPT", "ok"),
		DummySendScript:      envOrDefault("REDBUD_DUMMY_SEND_SCRIPT", "ok"),
		DummyProviderScript:  envOrDefault("REDBUD_DUMMY_PROVIDER_SCRIPT", "ok"),
		DBPath:               envOrDefault("REDBUD_DB_PATH", "redbud.db"),
		LogLevel:             envOrDefault("REDBUD_LOG_LEVEL", "info"),
	}, nil
}

// BotAPIBase returns the per-token Telegram API base URL.
func (c Config) BotAPIBase(token string) string {
	return fmt.Sprintf("%s/bot%s", c.TelegramAPIRoot, token)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
