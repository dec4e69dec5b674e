package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"edumate/internal/assistant"
	"edumate/internal/domain"
)

type memoryRequest struct {
	Question string `json:"question" binding:"required"`
	Answer   string `json:"answer"   binding:"required"`
}

type memoryResponse struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Server) handleListMemories(c *gin.Context) {
	memories, err := s.assistant.Memories(c.Request.Context())
	if err != nil {
		s.writeError(c, fmt.Errorf("list memories: %w", err))
		return
	}

	out := make([]memoryResponse, 0, len(memories))
	for _, m := range memories {
		out = append(out, toMemoryResponse(m))
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateMemory(c *gin.Context) {
	var req memoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %w", assistant.ErrInvalidRequest, err))
		return
	}

	memory, err := s.assistant.AddMemory(c.Request.Context(), assistant.MemoryRequest{
		Question: req.Question,
		Answer:   req.Answer,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toMemoryResponse(*memory))
}

func (s *Server) handleUpdateMemory(c *gin.Context) {
	id, ok := s.memoryID(c)
	if !ok {
		return
	}

	var req memoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %w", assistant.ErrInvalidRequest, err))
		return
	}

	memory, err := s.assistant.UpdateMemory(c.Request.Context(), id, assistant.MemoryRequest{
		Question: req.Question,
		Answer:   req.Answer,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMemoryResponse(*memory))
}

func (s *Server) handleDeleteMemory(c *gin.Context) {
	id, ok := s.memoryID(c)
	if !ok {
		return
	}

	if err := s.assistant.DeleteMemory(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) memoryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(c, fmt.Errorf("%w: id must be a positive integer", assistant.ErrInvalidRequest))
		return 0, false
	}

	return id, true
}

func toMemoryResponse(m domain.Memory) memoryResponse {
	return memoryResponse{
		ID:        m.ID,
		Question:  m.Question,
		Answer:    m.Answer,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
