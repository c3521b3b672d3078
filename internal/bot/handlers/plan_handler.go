package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewPlanHandler returns a handler for the /plan command. It lists the
// scheduled publications for the next two weeks.
func NewPlanHandler(deps HandlerDeps) bot.HandlerFunc {
	return planHandler{deps}.Handle
}

type planHandler struct {
	deps HandlerDeps
}

func (h planHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "plan")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	now := time.Now()
	tasks, err := h.deps.Store.GetPlanTasksBetween(ctx, now, now.AddDate(0, 0, 14))
	if err != nil {
		log.ErrorContext(ctx, "Failed to load content plan", "error", err)
		h.send(ctx, b, chatID, "Could not load the content plan.")
		return
	}

	if len(tasks) == 0 {
		h.send(ctx, b, chatID, "Nothing scheduled for the next two weeks.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Upcoming publications:\n")
	for _, task := range tasks {
		sb.WriteString(fmt.Sprintf("\n%s - %s",
			task.PublishAt.Time.Local().Format("Mon, 02 Jan 15:04"), task.Title))
	}
	h.send(ctx, b, chatID, sb.String())
}

func (h planHandler) send(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send plan message", "chat_id", chatID, "error", err)
	}
}
