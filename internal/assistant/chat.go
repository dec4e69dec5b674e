package assistant

import (
	"context"
	"fmt"
	"strings"

	"edumate/internal/domain"
	"edumate/internal/llm"
)

const (
	// Earlier turns sent back to the model with every new message.
	chatContextMessages = 20
	// Memories beyond this many are left out of the tutor prompt.
	chatPromptMemories = 50

	chatSystemPrompt = "You are a helpful and knowledgeable teaching assistant. " +
		"Answer students' questions about the course content in a friendly, clear and concise way."

	chatMemoriesLeadIn = "Prefer these reference answers whenever a question matches one of them:"

	chatOwnerPrefix = "chat:"
)

type ChatRequest struct {
	Owner   string `validate:"required,max=128"`
	Message string `validate:"required,max=4000"`
}

// Chat answers one tutor message of owner. Earlier turns of the
// conversation are sent along and the new turn is stored only when the
// model replies.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (string, error) {
	req.Message = strings.TrimSpace(req.Message)

	if err := s.validate.StructCtx(ctx, req); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	release, err := s.acquire(chatOwnerPrefix + req.Owner)
	if err != nil {
		return "", err
	}
	defer release()

	history, err := s.store.RecentChatMessages(ctx, req.Owner, chatContextMessages)
	if err != nil {
		return "", fmt.Errorf("load chat history: %w", err)
	}

	memories, err := s.store.ListMemories(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to load memories so tutor replies without them",
			"error", err,
			"owner", req.Owner)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.SystemMessage(tutorPrompt(memories)))

	for _, m := range history {
		switch m.Role {
		case domain.ChatRoleAssistant:
			messages = append(messages, llm.AssistantMessage(m.Content))
		default:
			messages = append(messages, llm.UserMessage(m.Content))
		}
	}

	messages = append(messages, llm.UserMessage(req.Message))

	callCtx := ctx
	if s.chatTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.chatTimeout)
		defer cancel()
	}

	res := s.chat.Complete(callCtx, messages)
	if !res.OK() {
		if err = ctx.Err(); err != nil {
			return "", fmt.Errorf("chat reply: %w", err)
		}

		s.log.WarnContext(ctx, "Tutor reply failed",
			"reason", res.Reason(),
			"owner", req.Owner,
			"contextMessages", len(history))

		return "", fmt.Errorf("%w: %s", ErrChatFailed, res.Reason())
	}

	reply := res.Text()
	now := s.now()

	if err = s.store.SaveChatMessages(context.WithoutCancel(ctx),
		domain.ChatMessage{Owner: req.Owner, Role: domain.ChatRoleUser, Content: req.Message, CreatedAt: now},
		domain.ChatMessage{Owner: req.Owner, Role: domain.ChatRoleAssistant, Content: reply, CreatedAt: now},
	); err != nil {
		s.log.ErrorContext(ctx, "Failed to save chat turn",
			"error", err,
			"owner", req.Owner)
	}

	return reply, nil
}

// ChatHistory returns the last limit messages of owner, oldest first.
func (s *Service) ChatHistory(ctx context.Context, owner string, limit int) ([]domain.ChatMessage, error) {
	return s.store.RecentChatMessages(ctx, owner, limit)
}

// ResetChat forgets the conversation of owner.
func (s *Service) ResetChat(ctx context.Context, owner string) (int64, error) {
	return s.store.DeleteChatMessages(ctx, owner)
}

func tutorPrompt(memories []domain.Memory) string {
	if len(memories) == 0 {
		return chatSystemPrompt
	}

	var b strings.Builder

	b.WriteString(chatSystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(chatMemoriesLeadIn)

	for _, m := range memories[:min(len(memories), chatPromptMemories)] {
		b.WriteString("\n\nQ: ")
		b.WriteString(m.Question)
		b.WriteString("\nA: ")
		b.WriteString(m.Answer)
	}

	return b.String()
}
