// Command redbud runs one or more Telegram chat bots backed by an
// OpenAI-compatible completion endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vgMonky/redbud/internal/bot"
	cmdpkg "github.com/vgMonky/redbud/internal/commander"
	"github.com/vgMonky/redbud/internal/config"
	"github.com/vgMonky/redbud/internal/conversation"
	"github.com/vgMonky/redbud/internal/db"
	"github.com/vgMonky/redbud/internal/dummy"
	"github.com/vgMonky/redbud/internal/model"
	"github.com/vgMonky/redbud/internal/openai"
	"github.com/vgMonky/redbud/internal/telegram"
)

func main() {
	root := &cobra.Command{
		Use:          "redbud",
		Short:        "Telegram chat bot with a bounded per-chat memory",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newUsageCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot and poll for updates until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			database, err := db.OpenDB(cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.InitSchema(database); err != nil {
				return err
			}

			store := conversation.NewStore(cfg.HistoryMaxTurns)

			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup
			for _, token := range botTokens(cfg) {
				commander, name, err := newCommander(cfg, token)
				if err != nil {
					return err
				}
				b := bot.New(name, cfg, commander, provider, store, database)
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Error().Err(err).Str("bot", name).Msg("bot stopped")
					}
				}()
			}
			wg.Wait()

			log.Info().Msg("shutdown complete")
			return nil
		},
	}
}

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print per-chat token usage totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			database, err := db.OpenDB(cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.InitSchema(database); err != nil {
				return err
			}

			summaries, err := db.SummarizeUsage(database)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no usage recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHAT ID\tREQUESTS\tINPUT TOKENS\tOUTPUT TOKENS")
			for _, s := range summaries {
				fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", s.ChatID, s.Requests, s.InputTokens, s.OutputTokens)
			}
			return w.Flush()
		},
	}
}

func newProvider(cfg config.Config) (model.Provider, error) {
	switch cfg.Provider {
	case "openai":
		// Provider timeout outlasts the long-poll timeout so slow
		// completions are not cut off by the HTTP client.
		timeout := time.Duration(cfg.Timeout+60) * time.Second
		return openai.NewClient(cfg.APIKey, cfg.ChatCompletionsURL, cfg.Model, timeout), nil
	case "dummy":
		return dummy.NewProvider(cfg.Model, cfg.DummyProviderScript)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newCommander(cfg config.Config, token string) (cmdpkg.Commander, string, error) {
	switch cfg.Commander {
	case "telegram":
		timeout := time.Duration(cfg.Timeout+20) * time.Second
		return telegram.NewClient(cfg.BotAPIBase(token), timeout), botName(token), nil
	case "dummy":
		commander, err := dummy.NewCommander(cfg.DummyPollScript, cfg.DummySendScript)
		return commander, "dummy", err
	default:
		return nil, "", fmt.Errorf("unknown commander %q", cfg.Commander)
	}
}

// botTokens yields one entry per bot goroutine. Dummy mode runs a single bot
// and needs no token.
func botTokens(cfg config.Config) []string {
	if cfg.Commander == "dummy" {
		return []string{""}
	}
	return cfg.BotTokens
}

// botName is the token prefix before the colon, enough to tell bots apart in
// logs without leaking the secret.
func botName(token string) string {
	for i := 0; i < len(token); i++ {
		if token[i] == ':' {
			return token[:i]
		}
	}
	if len(token) > 8 {
		return token[:8]
	}
	return token
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
