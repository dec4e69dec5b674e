package assistant

import (
	"context"
	"fmt"
	"strings"

	"edumate/internal/domain"
)

type MemoryRequest struct {
	Question string `validate:"required,max=2000"`
	Answer   string `validate:"required,max=8000"`
}

func (s *Service) Memories(ctx context.Context) ([]domain.Memory, error) {
	return s.store.ListMemories(ctx)
}

func (s *Service) AddMemory(ctx context.Context, req MemoryRequest) (*domain.Memory, error) {
	memory, err := s.memory(ctx, req)
	if err != nil {
		return nil, err
	}

	memory.CreatedAt = s.now()
	memory.UpdatedAt = memory.CreatedAt

	if memory.ID, err = s.store.CreateMemory(ctx, memory); err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}

	return memory, nil
}

func (s *Service) UpdateMemory(ctx context.Context, id int64, req MemoryRequest) (*domain.Memory, error) {
	memory, err := s.memory(ctx, req)
	if err != nil {
		return nil, err
	}

	memory.ID = id
	memory.UpdatedAt = s.now()

	updated, err := s.store.UpdateMemory(ctx, memory)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	if !updated {
		return nil, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}

	return memory, nil
}

func (s *Service) DeleteMemory(ctx context.Context, id int64) error {
	deleted, err := s.store.DeleteMemory(ctx, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if !deleted {
		return fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}

	return nil
}

func (s *Service) memory(ctx context.Context, req MemoryRequest) (*domain.Memory, error) {
	req.Question = strings.TrimSpace(req.Question)
	req.Answer = strings.TrimSpace(req.Answer)

	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return &domain.Memory{Question: req.Question, Answer: req.Answer}, nil
}
