package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/uflbot/uflbot/internal/access"
	"github.com/uflbot/uflbot/internal/agent"
	"github.com/uflbot/uflbot/internal/archive"
	"github.com/uflbot/uflbot/internal/bot"
	"github.com/uflbot/uflbot/internal/bus"
	"github.com/uflbot/uflbot/internal/channels"
	"github.com/uflbot/uflbot/internal/config"
	"github.com/uflbot/uflbot/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay()
	},
}

func runRelay() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	feed := archive.NewFeed(cfg.Archive.KafkaBrokers, cfg.Archive.KafkaTopic)
	defer feed.Close()

	messageBus := bus.NewMessageBus()
	gate := access.NewGate(cfg.Bot.AllowedIDs, cfg.Bot.AdminIDs)
	completer := agent.NewClient(cfg.Agent.APIURL, cfg.Agent.APIKey, cfg.Agent.Timeout)
	bridge := channels.NewBridgeChannel(cfg.Bridge, messageBus)
	relay := bot.New(messageBus, st, completer, gate, feed, cfg.Bot.HistoryContextSize)

	color.Green("uflbot %s listening on %s", version, cfg.Bridge.ListenAddr)
	slog.Info("Relay starting",
		"agent_url", cfg.Agent.APIURL,
		"allowed", len(cfg.Bot.AllowedIDs),
		"admins", len(cfg.Bot.AdminIDs),
		"archive_feed", feed != nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return messageBus.DispatchOutbound(ctx) })
	g.Go(func() error { return bridge.Start(ctx) })
	g.Go(func() error { return relay.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Relay stopped")
	return nil
}
