package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/pubplan/internal/database"
	apperrors "github.com/edgard/pubplan/internal/errors"
)

// NewIngestHandler returns the default message handler: every plain text
// message becomes a content-plan task, scheduled either for an explicit
// date/time found in the text or for the next free grid slot.
func NewIngestHandler(deps HandlerDeps) bot.HandlerFunc {
	return ingestHandler{deps}.Handle
}

type ingestHandler struct {
	deps HandlerDeps
}

func (h ingestHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "ingest")

	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if text == "" || strings.HasPrefix(text, "/") {
		return
	}

	chatID := update.Message.Chat.ID
	from := update.Message.From

	task := &database.Task{
		Title:           taskTitle(text),
		Description:     text,
		Priority:        database.PriorityNormal,
		PublishTelegram: true,
		Source:          sql.NullString{String: "telegram", Valid: true},
		SourceUser:      sql.NullString{String: from.Username, Valid: from.Username != ""},
	}

	if when := parseWhen(text, time.Now()); when != nil {
		task.PublishAt = sql.NullTime{Time: when.UTC(), Valid: true}
		log.InfoContext(ctx, "Detected explicit publication time in message",
			"chat_id", chatID, "publish_at", *when)
	}

	if err := h.deps.Store.CreateTask(ctx, task); err != nil {
		log.ErrorContext(ctx, "Failed to create task from message", "chat_id", chatID, "error", err)
		h.reply(ctx, b, chatID, "Could not save the task. Please try again later.")
		return
	}

	scheduled, err := h.deps.Scheduler.SchedulePublication(ctx, task.ID, false)
	if err != nil {
		if apperrors.Code(err) == apperrors.CodeNoAvailableSlot {
			log.WarnContext(ctx, "No free slot for ingested task", "task_id", task.ID)
			h.reply(ctx, b, chatID,
				"Task saved, but every publication slot in the next 30 days is taken. Assign a time manually.")
			return
		}
		log.ErrorContext(ctx, "Failed to schedule ingested task", "task_id", task.ID, "error", err)
		h.reply(ctx, b, chatID, "Task saved, but scheduling failed. Assign a time manually.")
		return
	}

	h.reply(ctx, b, chatID, fmt.Sprintf("Planned for %s.",
		scheduled.PublishAt.Time.Local().Format("Mon, 02 Jan 15:04")))
}

func (h ingestHandler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send reply", "chat_id", chatID, "error", err)
	}
}

// taskTitle derives a short task title from the first line of the message.
func taskTitle(text string) string {
	title := text
	if idx := strings.IndexByte(title, '\n'); idx != -1 {
		title = title[:idx]
	}
	title = strings.TrimSpace(title)
	if len(title) > 80 {
		title = title[:77] + "..."
	}
	return title
}
