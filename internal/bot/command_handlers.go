package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"edumate/internal/assistant"
	"edumate/internal/markdown"
	"edumate/internal/preset"
)

const historyLimit = 10

const welcomeText = `🎓 *Welcome to Edumate\!*

I read long teaching documents for you, part by part, and produce one structured result\. I can help you:

– Summarize a document: send me a PDF, DOCX, TXT, Markdown, HTML or RSS file
– Summarize a web page: send me its https link
– Summarize long text: paste it as a message
– Ask a question: send a short message and I answer as your tutor, remembering our conversation until /reset
– Pick what to produce with /presets \(course design, grading, study guide, question bank\)
– Review past results with /history and delete them with /forget \<id\>
– Configure the language model with /settings \<base\_url\> \<api\_key\>`

const settingsUsageText = `*⚙️ Settings*

Send /settings \<base\_url\> \<api\_key\> to configure an OpenAI\-compatible API, for example:
` + "`/settings https://dashscope.aliyuncs.com/compatible-mode/v1 sk-...`" + `

The message with the key is deleted right after it is saved\.`

const settingsForbiddenText = `✖️ Only users listed in ALLOWED\_USERS can change the language model settings\.`

func (b *Bot) handleStartCommand(ctx context.Context, chatID int64) error {
	if _, err := b.sendMessage(ctx, chatID, welcomeText); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (b *Bot) handlePresetsCommand(ctx context.Context, chatID int64) error {
	current, err := b.assistant.OwnerPreset(ctx, ownerKey(chatID))
	if err != nil {
		return b.replyFailed(ctx, chatID, fmt.Errorf("failed to get owner preset: %w", err))
	}

	presets := b.assistant.Presets()

	if _, err = b.sendMessageWithKeyboard(
		ctx,
		chatID,
		presetsText(presets, current.Name),
		presetsKeyboard(presets),
	); err != nil {
		return fmt.Errorf("failed to send message with keyboard: %w", err)
	}

	return nil
}

func (b *Bot) handlePresetCommand(ctx context.Context, chatID int64, args string) error {
	if args == "" {
		return b.handlePresetsCommand(ctx, chatID)
	}

	p, err := b.assistant.SetOwnerPreset(ctx, ownerKey(chatID), args)
	if errors.Is(err, preset.ErrUnknownPreset) {
		if _, sendErr := b.sendMessage(ctx, chatID, errorText(err)); sendErr != nil {
			return fmt.Errorf("failed to send message: %w", sendErr)
		}

		return nil
	}
	if err != nil {
		return b.replyFailed(ctx, chatID, fmt.Errorf("failed to set owner preset: %w", err))
	}

	return b.sendPresetSelected(ctx, chatID, p)
}

func (b *Bot) sendPresetSelected(ctx context.Context, chatID int64, p *preset.Preset) error {
	text := fmt.Sprintf("✅ Preset is set to %s\\.", markdown.Bold(p.Title))

	if _, err := b.sendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (b *Bot) handleHistoryCommand(ctx context.Context, chatID int64) error {
	records, err := b.assistant.History(ctx, ownerKey(chatID), historyLimit)
	if err != nil {
		return b.replyFailed(ctx, chatID, fmt.Errorf("failed to list summaries: %w", err))
	}

	if _, err = b.sendMessage(ctx, chatID, historyText(records)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (b *Bot) handleForgetCommand(ctx context.Context, chatID int64, args string) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil || id <= 0 {
		if _, sendErr := b.sendMessage(ctx, chatID, "✖️ Send /forget \\<id\\> with an id from /history\\."); sendErr != nil {
			return fmt.Errorf("failed to send message: %w", sendErr)
		}

		return nil
	}

	deleted, err := b.assistant.Forget(ctx, ownerKey(chatID), id)
	if err != nil {
		return b.replyFailed(ctx, chatID, fmt.Errorf("failed to delete summary: %w", err))
	}

	text := "✅ Record is deleted\\."
	if !deleted {
		text = "✖️ Record is not found\\."
	}

	if _, err = b.sendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (b *Bot) handleResetCommand(ctx context.Context, chatID int64) error {
	if _, err := b.assistant.ResetChat(ctx, ownerKey(chatID)); err != nil {
		return b.replyFailed(ctx, chatID, fmt.Errorf("failed to reset chat: %w", err))
	}

	if _, err := b.sendMessage(ctx, chatID, "✅ Conversation is cleared\\."); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (b *Bot) handleSettingsCommand(
	ctx context.Context,
	chatID int64,
	userID int64,
	messageID int,
	args string,
) error {
	if !b.canChangeSettings(userID) {
		var errs []error

		if args != "" {
			if err := b.deleteMessage(ctx, chatID, messageID); err != nil {
				errs = append(errs, fmt.Errorf("failed to delete settings message: %w", err))
			}
		}

		b.log.WarnContext(ctx, "Settings change is refused",
			"userID", userID,
			"chatID", chatID)

		if _, err := b.sendMessage(ctx, chatID, settingsForbiddenText); err != nil {
			errs = append(errs, fmt.Errorf("failed to send message: %w", err))
		}

		return errors.Join(errs...)
	}

	fields := strings.Fields(args)
	if len(fields) != 2 {
		if _, err := b.sendMessage(ctx, chatID, settingsUsageText); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}

		return nil
	}

	var errs []error

	// The key must not stay in the chat history whether or not it is valid.
	if err := b.deleteMessage(ctx, chatID, messageID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete settings message: %w", err))
	}

	err := b.assistant.SetCredentials(ctx, assistant.CredentialsRequest{
		BaseURL: fields[0],
		APIKey:  fields[1],
	})
	if err != nil {
		if assistant.Classify(err) != assistant.KindInvalid {
			errs = append(errs, fmt.Errorf("failed to save credentials: %w", err))
		}

		if _, sendErr := b.sendMessage(ctx, chatID, errorText(err)); sendErr != nil {
			errs = append(errs, fmt.Errorf("failed to send message: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	if _, err = b.sendMessage(ctx, chatID, "✅ Language model settings are saved\\."); err != nil {
		errs = append(errs, fmt.Errorf("failed to send message: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) replyFailed(ctx context.Context, chatID int64, err error) error {
	errs := []error{err}

	if _, sendErr := b.sendMessage(ctx, chatID, "❌ Failed\\."); sendErr != nil {
		errs = append(errs, fmt.Errorf("failed to send message: %w", sendErr))
	}

	return errors.Join(errs...)
}
