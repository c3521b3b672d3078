// Package tasks implements the background jobs of pubplan: the publish
// dispatcher that announces due content-plan items and routine database
// maintenance.
package tasks

import (
	"log/slog"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/pubplan/internal/config"
	"github.com/edgard/pubplan/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
	Bot    *tgbot.Bot
}
