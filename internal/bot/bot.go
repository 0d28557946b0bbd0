// Package bot runs the polling loop and command handling for one Telegram
// bot. Several bots may share one conversation store.
package bot

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	cmdpkg "github.com/vgMonky/redbud/internal/commander"
	"github.com/vgMonky/redbud/internal/config"
	"github.com/vgMonky/redbud/internal/control"
	"github.com/vgMonky/redbud/internal/conversation"
	"github.com/vgMonky/redbud/internal/db"
	"github.com/vgMonky/redbud/internal/model"
)

// Bot polls one commander for updates and answers with one provider.
type Bot struct {
	name      string
	cfg       config.Config
	commander cmdpkg.Commander
	provider  model.Provider
	store     *conversation.Store
	database  *sql.DB
	circuit   *control.CircuitBreaker
	logger    zerolog.Logger
}

// New wires a bot. database may be nil; event logging and usage accounting
// are then skipped.
func New(name string, cfg config.Config, commander cmdpkg.Commander, provider model.Provider, store *conversation.Store, database *sql.DB) *Bot {
	return &Bot{
		name:      name,
		cfg:       cfg,
		commander: commander,
		provider:  provider,
		store:     store,
		database:  database,
		circuit:   control.NewCircuitBreaker(5, 30*time.Second),
		logger:    log.With().Str("bot", name).Logger(),
	}
}

// Run polls for updates until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.commander.SetMyCommands(Commands()); err != nil {
		b.logger.Warn().Err(err).Msg("failed to register command menu")
	}

	var offset int64
	if b.cfg.DropPending {
		bootstrapped, err := b.bootstrapOffset()
		if err != nil {
			b.logger.Warn().Err(err).Msg("bootstrap offset failed")
		} else {
			offset = bootstrapped
		}
	}

	b.logEvent(db.EventBotStarted, map[string]any{
		"bot":      b.name,
		"model":    b.cfg.Model,
		"provider": b.cfg.Provider,
	})
	b.logger.Info().
		Str("model", b.cfg.Model).
		Str("provider", b.cfg.Provider).
		Int("history_max_turns", b.cfg.HistoryMaxTurns).
		Msg("bot running")

	idleSleep := time.Duration(b.cfg.SleepSeconds) * time.Second
	pollFailures := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !b.circuit.Allow(time.Now()) {
			if err := sleepCtx(ctx, idleSleep); err != nil {
				return err
			}
			continue
		}

		updates, err := b.commander.GetUpdates(offset, b.cfg.Timeout)
		if err != nil {
			pollFailures++
			b.logger.Warn().Err(err).Msg("getUpdates error")
			b.recordFailure(err)
			backoff := time.Duration(control.PollBackoffSeconds(pollFailures)) * time.Second
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			continue
		}
		pollFailures = 0
		if b.circuit.State() == control.CircuitHalfOpen && b.circuit.OpenedClass() == "command_source_api" {
			b.recordSuccess()
		}

		for _, update := range updates {
			offset = update.UpdateID + 1

			msg := update.Message
			if msg == nil || msg.Text == nil || *msg.Text == "" {
				continue
			}

			b.logEvent(db.EventUpdateReceived, map[string]any{
				"chat_id":   msg.Chat.ID,
				"update_id": update.UpdateID,
			})

			if err := b.handleMessage(msg.Chat.ID, *msg.Text); err != nil {
				b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to handle message")
				b.recordFailure(err)
				continue
			}
			b.recordSuccess()
		}

		if len(updates) == 0 {
			if err := sleepCtx(ctx, idleSleep); err != nil {
				return err
			}
		}
	}
}

// bootstrapOffset skips pending updates older than the configured window so a
// restart does not replay a backlog, keeping at most PendingMaxMessages.
func (b *Bot) bootstrapOffset() (int64, error) {
	updates, err := b.commander.GetUpdates(0, 0)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}

	cutoff := time.Now().Unix() - b.cfg.PendingWindowSeconds

	var inWindow []cmdpkg.Update
	for _, u := range updates {
		if u.Message != nil && u.Message.Date >= cutoff {
			inWindow = append(inWindow, u)
		}
	}

	if len(inWindow) == 0 {
		return updates[len(updates)-1].UpdateID + 1, nil
	}

	if b.cfg.PendingMaxMessages > 0 && len(inWindow) > b.cfg.PendingMaxMessages {
		inWindow = inWindow[len(inWindow)-b.cfg.PendingMaxMessages:]
	}

	return inWindow[0].UpdateID, nil
}

func (b *Bot) recordFailure(err error) {
	errClass := control.ClassifyError(err)
	prev := b.circuit.State()
	b.circuit.RecordFailure(errClass, time.Now())
	if prev != control.CircuitOpen && b.circuit.State() == control.CircuitOpen {
		b.logger.Warn().Str("error_class", errClass).Msg("circuit opened")
		b.logEvent(db.EventCircuitOpened, map[string]any{
			"error_class":      errClass,
			"threshold":        b.circuit.Threshold,
			"cooldown_seconds": int(b.circuit.Cooldown.Seconds()),
		})
	}
}

func (b *Bot) recordSuccess() {
	recovered := b.circuit.State() != control.CircuitClosed
	b.circuit.RecordSuccess()
	if recovered {
		b.logger.Info().Msg("circuit closed")
		b.logEvent(db.EventCircuitClosed, map[string]any{"recovered": true})
	}
}

func (b *Bot) logEvent(eventType string, payload map[string]any) {
	if b.database == nil {
		return
	}
	if _, err := db.LogEvent(b.database, eventType, payload); err != nil {
		b.logger.Debug().Err(err).Str("event", eventType).Msg("failed to log event")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
