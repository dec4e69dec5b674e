package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultModel = "qwen-turbo"

	baseMaxTokens  int64 = 2048
	limitMaxTokens int64 = 8192

	finishReasonLength = "length"

	NotConfiguredReason = "LLM API is not configured: set the base URL and API key first"
)

type OpenAIConfig struct {
	// Model is sent verbatim, so any model of an OpenAI-compatible provider works.
	Model string
	// MaxRetries is the transport-level retry count of the SDK.
	MaxRetries int
	// HTTPClient replaces the SDK's default client when set.
	HTTPClient *http.Client
}

// OpenAIClient calls the Chat Completions API of any OpenAI-compatible
// provider. Credentials are resolved on every call so that updated settings
// apply without a restart.
type OpenAIClient struct {
	creds CredentialsProvider
	cfg   OpenAIConfig
	log   *slog.Logger
}

func NewOpenAIClient(creds CredentialsProvider, cfg OpenAIConfig, log *slog.Logger) *OpenAIClient {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &OpenAIClient{
		creds: creds,
		cfg:   cfg,
		log:   log,
	}
}

// Complete sends messages and returns the first choice's content. A reply cut
// by the token limit is requested again with a doubled limit, up to a cap.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) Result {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "Failed to load LLM credentials",
			"error", err)

		return Fail(fmt.Sprintf("load LLM credentials: %v", err))
	}
	if !creds.Complete() {
		return Fail(NotConfiguredReason)
	}

	chatMessages, err := toChatMessages(messages)
	if err != nil {
		return Fail(err.Error())
	}

	client := openai.NewClient(c.requestOptions(creds)...)

	maxTokens := baseMaxTokens
	for {
		resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:     openai.ChatModel(c.cfg.Model),
			Messages:  chatMessages,
			MaxTokens: openai.Int(maxTokens),
		})
		if err != nil {
			c.log.WarnContext(ctx, "LLM request failed",
				"error", err,
				"model", c.cfg.Model,
				"messageCount", len(messages))

			return Fail(fmt.Sprintf("LLM request failed: %v", err))
		}

		if len(resp.Choices) == 0 {
			return Fail("LLM response has no choices")
		}

		choice := resp.Choices[0]
		if string(choice.FinishReason) == finishReasonLength {
			if maxTokens < limitMaxTokens {
				maxTokens = min(maxTokens*2, limitMaxTokens)
				c.log.DebugContext(ctx, "LLM reply was truncated, requesting again",
					"model", c.cfg.Model,
					"maxTokens", maxTokens)

				continue
			}

			return Fail(fmt.Sprintf("LLM reply is incomplete (maxTokens = %d)", maxTokens))
		}

		reply := strings.TrimSpace(choice.Message.Content)
		if reply == "" {
			return Fail("LLM response has no reply content")
		}

		return Ok(reply)
	}
}

func (c *OpenAIClient) requestOptions(creds Credentials) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(strings.TrimSpace(creds.BaseURL), "/") + "/"),
		option.WithAPIKey(strings.TrimSpace(creds.APIKey)),
		option.WithMaxRetries(c.cfg.MaxRetries),
	}
	if c.cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.cfg.HTTPClient))
	}

	return opts
}

func toChatMessages(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
	}

	return out, nil
}
