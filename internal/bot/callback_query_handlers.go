package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, cq *models.CallbackQuery) error {
	var errs []error

	answer := &tgbot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID}

	chatID := callbackChatID(cq)
	presetName, isPreset := strings.CutPrefix(cq.Data, presetCallbackPrefix)

	switch {
	case chatID == 0:
		answer.Text = "Message is too old."
	case isPreset:
		p, err := b.assistant.SetOwnerPreset(ctx, ownerKey(chatID), presetName)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to set owner preset: %w", err))
			answer.Text = "Failed."

			break
		}

		answer.Text = "Preset: " + p.Title
		if err = b.sendPresetSelected(ctx, chatID, p); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown callback data: %q", cq.Data))
	}

	if _, err := b.api.AnswerCallbackQuery(ctx, answer); err != nil {
		errs = append(errs, fmt.Errorf("failed to answer callback query: %w", err))
	}

	return errors.Join(errs...)
}
