package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edumate/internal/domain"
)

const maxChatMessagesLimit = 200

// SaveChatMessages stores the messages of one conversation turn atomically.
func (d *Database) SaveChatMessages(ctx context.Context, messages ...domain.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := "insert into chat_messages (owner, role, content, created_at) values (?, ?, ?, ?)"

	for _, m := range messages {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		if _, err = tx.ExecContext(ctx, query,
			m.Owner,
			string(m.Role),
			m.Content,
			createdAt.UTC().Unix(),
		); err != nil {
			return errors.Join(fmt.Errorf("failed to save chat message: %w", err), tx.Rollback())
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RecentChatMessages returns the last limit messages of owner, oldest first.
func (d *Database) RecentChatMessages(ctx context.Context, owner string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > maxChatMessagesLimit {
		limit = maxChatMessagesLimit
	}

	query := `select id, owner, role, content, created_at from (
		select id, owner, role, content, created_at
		from chat_messages
		where owner = ?
		order by id desc
		limit ?
	) order by id asc`

	rows, err := d.db.QueryContext(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"owner", owner,
				"operation", "RecentChatMessages")
		}
	}()

	var messages []domain.ChatMessage
	for rows.Next() {
		var (
			m         domain.ChatMessage
			role      string
			createdAt int64
		)
		if err = rows.Scan(&m.ID, &m.Owner, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.Role = domain.ChatRole(role)
		m.CreatedAt = time.Unix(createdAt, 0).UTC()

		messages = append(messages, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return messages, nil
}

func (d *Database) DeleteChatMessages(ctx context.Context, owner string) (int64, error) {
	res, err := d.db.ExecContext(ctx, "delete from chat_messages where owner = ?", owner)
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return n, nil
}

func (d *Database) DeleteChatMessagesBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, "delete from chat_messages where created_at < ?", before.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return n, nil
}
