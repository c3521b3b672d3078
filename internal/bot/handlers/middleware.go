package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const notAuthorizedMessage = "You are not authorized to use this command."

// AdminOnly restricts a handler to the configured admin user. Other senders
// get a rejection message and the wrapped handler is never invoked.
func AdminOnly(deps HandlerDeps) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			log := deps.Logger.With("middleware", "admin_only")

			if update.Message == nil || update.Message.From == nil {
				log.WarnContext(ctx, "Update without message or sender, dropping", "update_id", update.ID)
				return
			}

			userID := update.Message.From.ID
			if userID != deps.Config.Telegram.AdminID {
				log.WarnContext(ctx, "Unauthorized command attempt",
					"user_id", userID, "chat_id", update.Message.Chat.ID)
				_, err := b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: update.Message.Chat.ID,
					Text:   notAuthorizedMessage,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send rejection message", "error", err)
				}
				return
			}

			next(ctx, b, update)
		}
	}
}
