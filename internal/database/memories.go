package database

import (
	"context"
	"fmt"
	"time"

	"edumate/internal/domain"
)

// ListMemories returns every memory, newest first.
func (d *Database) ListMemories(ctx context.Context) ([]domain.Memory, error) {
	query := `select id, question, answer, created_at, updated_at
	from memories
	order by created_at desc, id desc`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", "ListMemories")
		}
	}()

	var memories []domain.Memory
	for rows.Next() {
		var (
			m                    domain.Memory
			createdAt, updatedAt int64
		)
		if err = rows.Scan(&m.ID, &m.Question, &m.Answer, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		m.UpdatedAt = time.Unix(updatedAt, 0).UTC()

		memories = append(memories, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return memories, nil
}

func (d *Database) CreateMemory(ctx context.Context, memory *domain.Memory) (int64, error) {
	createdAt := memory.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := "insert into memories (question, answer, created_at, updated_at) values (?, ?, ?, ?)"

	res, err := d.db.ExecContext(ctx, query,
		memory.Question,
		memory.Answer,
		createdAt.UTC().Unix(),
		createdAt.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// UpdateMemory replaces the question and answer of memory.ID and reports
// whether it existed.
func (d *Database) UpdateMemory(ctx context.Context, memory *domain.Memory) (bool, error) {
	updatedAt := memory.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := "update memories set question = ?, answer = ?, updated_at = ? where id = ?"

	res, err := d.db.ExecContext(ctx, query,
		memory.Question,
		memory.Answer,
		updatedAt.UTC().Unix(),
		memory.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to execute query: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return n > 0, nil
}

func (d *Database) DeleteMemory(ctx context.Context, id int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, "delete from memories where id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to execute query: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return n > 0, nil
}
