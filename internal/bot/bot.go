// Package bot implements the core application lifecycle and component
// orchestration for pubplan: the Telegram bot listener, the HTTP API server,
// and the background job scheduler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/pubplan/internal/api"
	"github.com/edgard/pubplan/internal/config"
	"github.com/edgard/pubplan/internal/database"
)

// Bot represents the main application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	db        *sqlx.DB
	store     database.Store
	tgBot     *tgbot.Bot
	scheduler *Scheduler
	apiServer *api.Server
}

// NewBot creates a new instance of the application with all required dependencies.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	db *sqlx.DB,
	store database.Store,
	tgBot *tgbot.Bot,
	scheduler *Scheduler,
	apiServer *api.Server,
) *Bot {
	return &Bot{
		logger:    logger.With("component", "orchestrator"),
		cfg:       cfg,
		db:        db,
		store:     store,
		tgBot:     tgBot,
		scheduler: scheduler,
		apiServer: apiServer,
	}
}

// Run starts all components and blocks until the context is cancelled or a
// component fails, then shuts everything down gracefully.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.tgBot.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting job scheduler...")
		if err := b.scheduler.Start(); err != nil {
			b.logger.Error("Failed to start job scheduler", "error", err)
			return fmt.Errorf("failed to start job scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping job scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping job scheduler", "error", err)
		}

		return nil
	})

	g.Go(func() error {
		return b.apiServer.Run(gCtx)
	})

	b.logger.Info("Orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Orchestrator stopped gracefully.")
	return nil
}
