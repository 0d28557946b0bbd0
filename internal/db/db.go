// Package db is the operational event log and usage ledger. It records
// metadata about what the bot did, never message content; conversation
// history stays in memory only.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Event type constants.
const (
	EventBotStarted       = "bot.started"
	EventUpdateReceived   = "update.received"
	EventReplySent        = "reply.sent"
	EventCompletionFailed = "completion.failed"
	EventHistoryCleared   = "history.cleared"
	EventHistoryResized   = "history.resized"
	EventCircuitOpened    = "circuit.opened"
	EventCircuitClosed    = "circuit.closed"
)

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return database, nil
}

// InitSchema creates the events and usage tables.
func InitSchema(database *sql.DB) error {
	_, err := database.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_type_id ON events(event_type, id);

		CREATE TABLE IF NOT EXISTS usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			model TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_usage_chat_id ON usage(chat_id);
	`)
	return err
}

// LogEvent inserts an event and returns its auto-generated id. The payload is
// serialized to JSON; nil stores NULL.
func LogEvent(database *sql.DB, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := database.Exec(
		`INSERT INTO events (event_type, payload) VALUES (?, ?)`,
		eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}

// RecordUsage stores one completion's token usage and latency.
func RecordUsage(database *sql.DB, chatID int64, model string, inputTokens, outputTokens int, latency time.Duration) error {
	_, err := database.Exec(
		`INSERT INTO usage (chat_id, model, input_tokens, output_tokens, latency_ms) VALUES (?, ?, ?, ?, ?)`,
		chatID, model, inputTokens, outputTokens, latency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert usage for chat %d: %w", chatID, err)
	}
	return nil
}

// UsageSummary aggregates completions for one chat.
type UsageSummary struct {
	ChatID       int64
	Requests     int64
	InputTokens  int64
	OutputTokens int64
}

// SummarizeUsage returns per-chat usage totals, heaviest chats first.
func SummarizeUsage(database *sql.DB) ([]UsageSummary, error) {
	rows, err := database.Query(`
		SELECT chat_id, COUNT(*), SUM(input_tokens), SUM(output_tokens)
		FROM usage
		GROUP BY chat_id
		ORDER BY SUM(input_tokens) + SUM(output_tokens) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	var summaries []UsageSummary
	for rows.Next() {
		var s UsageSummary
		if err := rows.Scan(&s.ChatID, &s.Requests, &s.InputTokens, &s.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
