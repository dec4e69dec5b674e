package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"edumate/internal/assistant"
	"edumate/internal/ratelimiter"
)

const (
	updateProcessingTimeout = 60 * time.Second
	summaryTimeout          = 30 * time.Minute
	chatTimeout             = 5 * time.Minute
	downloadTimeout         = 2 * time.Minute
)

type Bot struct {
	api          *tgbot.Bot
	rateLimiter  *ratelimiter.RateLimiter
	assistant    *assistant.Service
	httpClient   *http.Client
	allowedUsers []int64
	log          *slog.Logger

	jobsMu   sync.Mutex
	stopping bool
	jobs     sync.WaitGroup
}

// New creates the bot. opts are passed to the Telegram client after the
// bot's own options.
func New(
	token string,
	svc *assistant.Service,
	allowedUsers []int64,
	log *slog.Logger,
	opts ...tgbot.Option,
) (*Bot, error) {
	b := &Bot{
		rateLimiter:  ratelimiter.New(log),
		assistant:    svc,
		httpClient:   &http.Client{Timeout: downloadTimeout},
		allowedUsers: allowedUsers,
		log:          log,
	}

	options := append([]tgbot.Option{
		tgbot.WithDefaultHandler(b.handleUpdate),
		tgbot.WithMiddlewares(b.allowedUsersMiddleware),
		tgbot.WithErrorsHandler(func(err error) {
			log.Error("Telegram client error",
				"error", err)
		}),
	}, opts...)

	api, err := tgbot.New(strings.TrimSpace(token), options...)
	if err != nil {
		b.rateLimiter.Stop()

		return nil, fmt.Errorf("create bot API: %w", err)
	}
	b.api = api

	return b, nil
}

// Start polls updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	b.api.Start(ctx)

	b.log.InfoContext(ctx, "Bot context is done",
		"error", ctx.Err())
}

// Stop refuses new background jobs, waits for running ones and stops
// outgoing calls.
func (b *Bot) Stop() {
	b.jobsMu.Lock()
	b.stopping = true
	b.jobsMu.Unlock()

	b.jobs.Wait()

	if b.rateLimiter != nil {
		b.rateLimiter.Stop()
	}
}

func (b *Bot) allowedUsersMiddleware(next tgbot.HandlerFunc) tgbot.HandlerFunc {
	return func(ctx context.Context, api *tgbot.Bot, update *models.Update) {
		userID, chatID, ok := updateSender(update)
		if !ok {
			return
		}

		if !b.userAllowed(userID) {
			b.log.DebugContext(ctx, "User is not allowed",
				"userID", userID,
				"chatID", chatID)

			return
		}

		next(ctx, api, update)
	}
}

func (b *Bot) userAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || slices.Contains(b.allowedUsers, userID)
}

// canChangeSettings reports whether userID may replace the shared LLM
// settings. It requires an explicit allow list.
func (b *Bot) canChangeSettings(userID int64) bool {
	return len(b.allowedUsers) > 0 && slices.Contains(b.allowedUsers, userID)
}

// startJob runs fn in the background unless the bot is stopping.
func (b *Bot) startJob(fn func()) bool {
	b.jobsMu.Lock()
	defer b.jobsMu.Unlock()

	if b.stopping {
		return false
	}

	b.jobs.Add(1)

	go func() {
		defer b.jobs.Done()

		fn()
	}()

	return true
}

func (b *Bot) handleUpdate(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	updateCtx, cancel := context.WithTimeout(ctx, updateProcessingTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		message := update.Message

		if err := b.handleMessage(ctx, updateCtx, message); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle message",
				"error", err,
				"chatID", message.Chat.ID,
				"chatType", string(message.Chat.Type),
				"messageID", message.ID)
		}

	case update.CallbackQuery != nil:
		cq := update.CallbackQuery

		if err := b.handleCallbackQuery(updateCtx, cq); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle callback query",
				"error", err,
				"userID", cq.From.ID,
				"data", cq.Data)
		}
	}
}

func updateSender(update *models.Update) (int64, int64, bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID, update.Message.Chat.ID, true
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID, callbackChatID(update.CallbackQuery), true
	default:
		return 0, 0, false
	}
}

func callbackChatID(cq *models.CallbackQuery) int64 {
	if cq != nil && cq.Message.Message != nil {
		return cq.Message.Message.Chat.ID
	}

	return 0
}

// ownerKey identifies a chat as an owner of presets and history.
func ownerKey(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}
