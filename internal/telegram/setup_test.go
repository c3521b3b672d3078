package telegram_test

import (
	"log/slog"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pubplan/internal/telegram"
)

func TestNewTelegramBot(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.DiscardHandler)

	t.Run("empty token", func(t *testing.T) {
		t.Parallel()
		b, err := telegram.NewTelegramBot("", log)
		assert.Error(t, err)
		assert.Nil(t, b)
	})

	t.Run("short token", func(t *testing.T) {
		t.Parallel()
		// Shorter than the logged prefix; must not panic.
		b, err := telegram.NewTelegramBot("abc", log, bot.WithSkipGetMe())
		require.NoError(t, err)
		assert.NotNil(t, b)
	})
}
