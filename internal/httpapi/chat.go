package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"edumate/internal/assistant"
)

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

type chatReplyResponse struct {
	Reply string `json:"reply"`
}

type chatMessageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %w", assistant.ErrInvalidRequest, err))
		return
	}

	reply, err := s.assistant.Chat(c.Request.Context(), assistant.ChatRequest{
		Owner:   owner(c),
		Message: req.Message,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, chatReplyResponse{Reply: reply})
}

func (s *Server) handleChatHistory(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(c, fmt.Errorf("%w: limit must be a positive integer", assistant.ErrInvalidRequest))
			return
		}
		limit = n
	}

	messages, err := s.assistant.ChatHistory(c.Request.Context(), owner(c), limit)
	if err != nil {
		s.writeError(c, fmt.Errorf("list chat messages: %w", err))
		return
	}

	out := make([]chatMessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessageResponse{
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleResetChat(c *gin.Context) {
	if _, err := s.assistant.ResetChat(c.Request.Context(), owner(c)); err != nil {
		s.writeError(c, fmt.Errorf("reset chat: %w", err))
		return
	}

	c.Status(http.StatusNoContent)
}
