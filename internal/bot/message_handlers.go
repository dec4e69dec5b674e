package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"edumate/internal/assistant"
	"edumate/internal/extract"
	"edumate/internal/markdown"
	"edumate/internal/summarizer"
)

// Shorter text is answered by the tutor instead of being summarized.
const minTextLength = 500

const emptyMessageHint = `✖️ Send me a document, an https link, a few paragraphs of text or a question\.

See /start for what I can do\.`

const stoppingText = "⏳ The bot is restarting\\. Please send it again in a minute\\."

type summarizeFunc func(ctx context.Context, onProgress summarizer.ProgressFunc) (*assistant.Outcome, error)

func (b *Bot) handleMessage(ctx context.Context, updateCtx context.Context, message *models.Message) error {
	chatID := message.Chat.ID

	if message.Document != nil {
		return b.handleDocument(ctx, updateCtx, message)
	}

	text := strings.TrimSpace(message.Text)

	if command, args, ok := parseCommand(text); ok {
		return b.withSpinner(updateCtx, chatID, func() error {
			switch command {
			case "/start", "/help":
				return b.handleStartCommand(updateCtx, chatID)
			case "/presets":
				return b.handlePresetsCommand(updateCtx, chatID)
			case "/preset":
				return b.handlePresetCommand(updateCtx, chatID, args)
			case "/history":
				return b.handleHistoryCommand(updateCtx, chatID)
			case "/forget":
				return b.handleForgetCommand(updateCtx, chatID, args)
			case "/reset":
				return b.handleResetCommand(updateCtx, chatID)
			case "/settings":
				return b.handleSettingsCommand(updateCtx, chatID, senderID(message), message.ID, args)
			default:
				return b.handleStartCommand(updateCtx, chatID)
			}
		})
	}

	urls, err := extract.FindURLs(text)
	if err != nil {
		return b.replyFailed(updateCtx, chatID, fmt.Errorf("failed to find URLs: %w", err))
	}

	if len(urls) > 0 {
		rawURL := urls[0]

		return b.startSummary(ctx, updateCtx, chatID, rawURL, func(ctx context.Context, onProgress summarizer.ProgressFunc) (*assistant.Outcome, error) {
			return b.assistant.SummarizeURL(ctx, assistant.URLRequest{
				Owner:      ownerKey(chatID),
				URL:        rawURL,
				OnProgress: onProgress,
			})
		})
	}

	if text == "" {
		if _, err = b.sendMessage(updateCtx, chatID, emptyMessageHint); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}

		return nil
	}

	if utf8.RuneCountInString(text) < minTextLength {
		return b.startChat(ctx, updateCtx, chatID, text)
	}

	return b.startSummary(ctx, updateCtx, chatID, "text", func(ctx context.Context, onProgress summarizer.ProgressFunc) (*assistant.Outcome, error) {
		return b.assistant.SummarizeText(ctx, assistant.TextRequest{
			Owner:      ownerKey(chatID),
			Source:     "message",
			Text:       text,
			OnProgress: onProgress,
		})
	})
}

func senderID(message *models.Message) int64 {
	if message.From == nil {
		return 0
	}

	return message.From.ID
}

func (b *Bot) handleDocument(ctx context.Context, updateCtx context.Context, message *models.Message) error {
	chatID := message.Chat.ID
	doc := message.Document

	if !extract.Supported(doc.FileName) {
		err := fmt.Errorf("%w: %s", extract.ErrUnsupportedType, doc.FileName)

		if _, sendErr := b.sendMessage(updateCtx, chatID, errorText(err)); sendErr != nil {
			return fmt.Errorf("failed to send message: %w", sendErr)
		}

		return nil
	}

	if doc.FileSize > extract.DefaultMaxBytes {
		if _, err := b.sendMessage(updateCtx, chatID, errorText(extract.ErrTooLarge)); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}

		return nil
	}

	// Captions select a preset for this document only.
	presetName := strings.TrimSpace(message.Caption)

	return b.startSummary(ctx, updateCtx, chatID, doc.FileName, func(ctx context.Context, onProgress summarizer.ProgressFunc) (*assistant.Outcome, error) {
		body, err := b.downloadFile(ctx, doc.FileID)
		if err != nil {
			return nil, fmt.Errorf("download file: %w", err)
		}
		defer func() {
			if err = body.Close(); err != nil {
				b.log.ErrorContext(ctx, "Failed to close file body",
					"error", err,
					"chatID", chatID,
					"fileID", doc.FileID)
			}
		}()

		return b.assistant.SummarizeDocument(ctx, assistant.DocumentRequest{
			Owner:      ownerKey(chatID),
			Preset:     presetName,
			Name:       doc.FileName,
			Body:       body,
			OnProgress: onProgress,
		})
	})
}

// startSummary runs fn in the background with a progress message that is
// edited after every analyzed part and removed when fn returns.
func (b *Bot) startSummary(
	ctx context.Context,
	updateCtx context.Context,
	chatID int64,
	source string,
	fn summarizeFunc,
) error {
	started := b.startJob(func() {
		jobCtx, cancel := context.WithTimeout(ctx, summaryTimeout)
		defer cancel()

		if err := b.runSummary(jobCtx, chatID, source, fn); err != nil {
			b.log.ErrorContext(jobCtx, "Failed to summarize",
				"error", err,
				"chatID", chatID,
				"source", source)
		}
	})
	if !started {
		return b.replyStopping(updateCtx, chatID)
	}

	return nil
}

// startChat answers text with the tutor in the background.
func (b *Bot) startChat(ctx context.Context, updateCtx context.Context, chatID int64, text string) error {
	started := b.startJob(func() {
		jobCtx, cancel := context.WithTimeout(ctx, chatTimeout)
		defer cancel()

		if err := b.runChat(jobCtx, chatID, text); err != nil {
			b.log.ErrorContext(jobCtx, "Failed to answer chat message",
				"error", err,
				"chatID", chatID)
		}
	})
	if !started {
		return b.replyStopping(updateCtx, chatID)
	}

	return nil
}

func (b *Bot) runChat(ctx context.Context, chatID int64, text string) error {
	var reply string
	err := b.withSpinner(ctx, chatID, func() error {
		var chatErr error
		reply, chatErr = b.assistant.Chat(ctx, assistant.ChatRequest{
			Owner:   ownerKey(chatID),
			Message: text,
		})

		return chatErr
	})
	if err != nil {
		var errs []error
		if assistant.Classify(err) == assistant.KindInternal {
			errs = append(errs, err)
		}

		if _, sendErr := b.sendMessage(ctx, chatID, errorText(err)); sendErr != nil {
			errs = append(errs, fmt.Errorf("failed to send message: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	for _, part := range chatMessages(reply) {
		if _, err = b.sendMessage(ctx, chatID, part); err != nil {
			return fmt.Errorf("failed to send reply message: %w", err)
		}
	}

	return nil
}

func (b *Bot) replyStopping(ctx context.Context, chatID int64) error {
	if _, err := b.sendMessage(ctx, chatID, stoppingText); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (b *Bot) runSummary(ctx context.Context, chatID int64, source string, fn summarizeFunc) error {
	progress, err := b.sendMessage(ctx, chatID, fmt.Sprintf("⏳ Reading %s\\.\\.\\.", markdown.Bold(source)))
	if err != nil {
		return fmt.Errorf("failed to send progress message: %w", err)
	}

	onProgress := func(completed, total int) {
		if editErr := b.editMessage(ctx, chatID, progress.ID, progressText(completed, total)); editErr != nil {
			b.log.WarnContext(ctx, "Failed to update progress message",
				"error", editErr,
				"chatID", chatID,
				"completed", completed,
				"total", total)
		}
	}

	var outcome *assistant.Outcome
	runErr := b.withSpinner(ctx, chatID, func() error {
		outcome, err = fn(ctx, onProgress)
		return err
	})

	var errs []error

	if err = b.deleteMessage(ctx, chatID, progress.ID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete progress message: %w", err))
	}

	if runErr != nil {
		if assistant.Classify(runErr) == assistant.KindInternal {
			errs = append(errs, runErr)
		}

		if _, err = b.sendMessage(ctx, chatID, errorText(runErr)); err != nil {
			errs = append(errs, fmt.Errorf("failed to send message: %w", err))
		}

		return errors.Join(errs...)
	}

	for _, text := range resultMessages(outcome) {
		if _, err = b.sendMessage(ctx, chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("failed to send result message: %w", err))

			break
		}
	}

	return errors.Join(errs...)
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := b.api.GetFile(ctx, &tgbot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(
			fmt.Errorf("do request: unexpected status: %d", resp.StatusCode),
			resp.Body.Close(),
		)
	}

	return resp.Body, nil
}
