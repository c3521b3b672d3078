// Package handlers implements the Telegram command and message handlers that
// form the bot ingestion channel of pubplan.
package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/pubplan/internal/config"
	"github.com/edgard/pubplan/internal/database"
)

// Scheduler is the publication scheduling operation handlers delegate to.
type Scheduler interface {
	SchedulePublication(ctx context.Context, taskID int64, removeFromKanban bool) (*database.Task, error)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Store     database.Store
	Scheduler Scheduler
}
