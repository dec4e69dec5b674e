package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"edumate/internal/domain"
	"edumate/internal/llm"
)

const (
	settingLLMBaseURL = "llm_base_url"
	settingLLMAPIKey  = "llm_api_key"

	maxListSummariesLimit = 100
)

// Credentials returns the LLM credentials saved through the settings
// commands. Missing settings yield empty fields.
func (d *Database) Credentials(ctx context.Context) (llm.Credentials, error) {
	query := "select key, value from settings where key in (?, ?)"

	rows, err := d.db.QueryContext(ctx, query, settingLLMBaseURL, settingLLMAPIKey)
	if err != nil {
		return llm.Credentials{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", "Credentials")
		}
	}()

	var creds llm.Credentials
	for rows.Next() {
		var key, value string
		if err = rows.Scan(&key, &value); err != nil {
			return llm.Credentials{}, fmt.Errorf("failed to scan row: %w", err)
		}

		switch key {
		case settingLLMBaseURL:
			creds.BaseURL = strings.TrimSpace(value)
		case settingLLMAPIKey:
			creds.APIKey = strings.TrimSpace(value)
		}
	}

	if err = rows.Err(); err != nil {
		return llm.Credentials{}, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return creds, nil
}

func (d *Database) SaveCredentials(ctx context.Context, creds llm.Credentials) error {
	creds.BaseURL = strings.TrimSpace(creds.BaseURL)
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	if !creds.Complete() {
		return errors.New("base URL and API key are required")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `insert into settings (key, value)
	values (?, ?)
	on conflict (key) do update
	set value = excluded.value`

	for _, kv := range [][2]string{
		{settingLLMBaseURL, creds.BaseURL},
		{settingLLMAPIKey, creds.APIKey},
	} {
		if _, err = tx.ExecContext(ctx, query, kv[0], kv[1]); err != nil {
			return errors.Join(fmt.Errorf("failed to save setting %s: %w", kv[0], err), tx.Rollback())
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (d *Database) GetOwnerSettingsWithDefault(
	ctx context.Context,
	owner string,
	defaultPreset string,
) (*domain.OwnerSettings, error) {
	query := "select owner, preset from owner_settings where owner = ?"

	var os domain.OwnerSettings
	err := d.db.QueryRowContext(ctx, query, owner).Scan(&os.Owner, &os.Preset)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.OwnerSettings{
			Owner:  owner,
			Preset: defaultPreset,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &os, nil
}

func (d *Database) UpsertOwnerSettings(ctx context.Context, ownerSettings *domain.OwnerSettings) error {
	query := `insert into owner_settings (owner, preset)
	values (?, ?)
	on conflict (owner) do update
	set preset = excluded.preset`

	_, err := d.db.ExecContext(ctx, query, ownerSettings.Owner, ownerSettings.Preset)

	return err
}

func (d *Database) SaveSummary(ctx context.Context, record *domain.SummaryRecord) (int64, error) {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var result sql.NullString
	if len(record.Result) > 0 {
		result = sql.NullString{String: string(record.Result), Valid: true}
	}

	query := `insert into summaries
	(owner, source, preset, status, total_chunks, failed_chunks, result, error, created_at)
	values (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := d.db.ExecContext(ctx, query,
		record.Owner,
		record.Source,
		record.Preset,
		string(record.Status),
		record.TotalChunks,
		record.FailedChunks,
		result,
		record.Error,
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

// ListSummaries returns the newest records of owner first.
func (d *Database) ListSummaries(ctx context.Context, owner string, limit int) ([]domain.SummaryRecord, error) {
	if limit <= 0 || limit > maxListSummariesLimit {
		limit = maxListSummariesLimit
	}

	query := `select id, owner, source, preset, status, total_chunks, failed_chunks, result, error, created_at
	from summaries
	where owner = ?
	order by created_at desc, id desc
	limit ?`

	rows, err := d.db.QueryContext(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"owner", owner,
				"operation", "ListSummaries")
		}
	}()

	var records []domain.SummaryRecord
	for rows.Next() {
		var (
			r         domain.SummaryRecord
			status    string
			result    sql.NullString
			createdAt int64
		)
		if err = rows.Scan(
			&r.ID,
			&r.Owner,
			&r.Source,
			&r.Preset,
			&status,
			&r.TotalChunks,
			&r.FailedChunks,
			&result,
			&r.Error,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Status = domain.SummaryStatus(status)
		if result.Valid {
			r.Result = []byte(result.String)
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()

		records = append(records, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return records, nil
}

// DeleteSummary removes one record of owner and reports whether it existed.
func (d *Database) DeleteSummary(ctx context.Context, owner string, id int64) (bool, error) {
	query := "delete from summaries where id = ? and owner = ?"

	res, err := d.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return false, fmt.Errorf("failed to execute query: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return n > 0, nil
}

func (d *Database) DeleteSummariesBefore(ctx context.Context, before time.Time) (int64, error) {
	query := "delete from summaries where created_at < ?"

	res, err := d.db.ExecContext(ctx, query, before.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return n, nil
}
