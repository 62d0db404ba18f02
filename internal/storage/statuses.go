package storage

import (
	"context"
	"database/sql"
	"fmt"

	"contas/internal/core"
)

const statusCols = `id, account_id, year, month, state, changed_at, changed_by`

// GetStatus returns the status row of an account-month, core.ErrNotFound
// when none exists (a missing row means implicit Open).
func (r *Repository) GetStatus(ctx context.Context, accountID int64, year, month int) (*core.SheetStatus, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+statusCols+` FROM sheet_statuses
		WHERE account_id = ? AND year = ? AND month = ?`,
		accountID, year, month)
	return scanStatus(row)
}

// UpsertStatus writes a status row, creating it on first close.
func (r *Repository) UpsertStatus(ctx context.Context, s *core.SheetStatus) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sheet_statuses (account_id, year, month, state, changed_at, changed_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, year, month)
		DO UPDATE SET state = excluded.state, changed_at = excluded.changed_at,
			changed_by = excluded.changed_by`,
		s.AccountID, s.Year, s.Month, s.State, nullTime(s.ChangedAt), s.ChangedBy)
	if err != nil {
		return fmt.Errorf("upsert status: %w", mapErr(err))
	}
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM sheet_statuses WHERE account_id = ? AND year = ? AND month = ?`,
		s.AccountID, s.Year, s.Month).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("status id: %w", err)
	}
	return nil
}

func scanStatus(row rowScanner) (*core.SheetStatus, error) {
	var s core.SheetStatus
	var changedAt sql.NullTime
	var changedBy sql.NullInt64
	err := row.Scan(&s.ID, &s.AccountID, &s.Year, &s.Month, &s.State, &changedAt, &changedBy)
	if err != nil {
		return nil, fmt.Errorf("scan status: %w", mapErr(err))
	}
	if changedAt.Valid {
		s.ChangedAt = changedAt.Time.UTC()
	}
	s.ChangedBy = changedBy.Int64
	return &s, nil
}
