package tasks

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
)

// newPublishDispatcherTask returns the job that announces due publications.
// It finds content-plan tasks whose publication time has passed and have not
// been announced yet, sends each to the configured Telegram channel, and
// marks it published. Per-task failures are logged and retried on the next
// run; a task is only marked published after a successful send.
func newPublishDispatcherTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "publish_dispatcher")

	return func(ctx context.Context) error {
		now := time.Now()

		due, err := deps.Store.GetDuePublications(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to load due publications: %w", err)
		}
		if len(due) == 0 {
			return nil
		}

		if deps.Config.Telegram.ChannelID == 0 {
			log.WarnContext(ctx, "Publications are due but no channel is configured", "count", len(due))
			return nil
		}

		log.InfoContext(ctx, "Dispatching due publications", "count", len(due))

		for _, task := range due {
			if !task.PublishTelegram {
				// Other targets (VK, site) are delivered by their own
				// integrations; this dispatcher only covers Telegram.
				if err := deps.Store.MarkTaskPublished(ctx, task.ID, now); err != nil {
					log.ErrorContext(ctx, "Failed to mark task published", "task_id", task.ID, "error", err)
				}
				continue
			}

			text := task.Title
			if task.Description != "" && task.Description != task.Title {
				text = task.Description
			}

			_, err := deps.Bot.SendMessage(ctx, &tgbot.SendMessageParams{
				ChatID: deps.Config.Telegram.ChannelID,
				Text:   text,
			})
			if err != nil {
				log.ErrorContext(ctx, "Failed to announce publication",
					"task_id", task.ID, "channel_id", deps.Config.Telegram.ChannelID, "error", err)
				continue
			}

			if err := deps.Store.MarkTaskPublished(ctx, task.ID, now); err != nil {
				log.ErrorContext(ctx, "Announced but failed to mark task published",
					"task_id", task.ID, "error", err)
				continue
			}

			log.InfoContext(ctx, "Publication announced", "task_id", task.ID, "title", task.Title)
		}

		return nil
	}
}
