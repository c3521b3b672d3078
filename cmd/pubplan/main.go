// Package main contains the entrypoint for the pubplan application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/pubplan/internal/api"
	"github.com/edgard/pubplan/internal/bot"
	"github.com/edgard/pubplan/internal/bot/handlers"
	"github.com/edgard/pubplan/internal/bot/tasks"
	"github.com/edgard/pubplan/internal/config"
	"github.com/edgard/pubplan/internal/database"
	"github.com/edgard/pubplan/internal/logger"
	"github.com/edgard/pubplan/internal/scheduler"
	"github.com/edgard/pubplan/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// publication scheduler, HTTP API, telegram bot, job scheduler), handles
// graceful shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	pubScheduler := scheduler.NewPublicationScheduler(store, log)

	hDeps := handlers.HandlerDeps{
		Logger:    log,
		Config:    cfg,
		Store:     store,
		Scheduler: pubScheduler,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewIngestHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
		Bot:    tg,
	}
	jobScheduler := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))

	apiHandlers := api.NewHandlers(store, pubScheduler, cfg.Server.UploadDir, log)
	apiServer := api.NewServer(cfg.Server.Addr, apiHandlers, log)

	app := bot.NewBot(log, cfg, db, store, tg, jobScheduler, apiServer)

	log.Info("Starting pubplan...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Stopped gracefully.")
	return 0
}
