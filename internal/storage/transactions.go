package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"contas/internal/core"
)

const transactionCols = `id, kind, description, amount_cents, realized_amount_cents,
	start_date, end_date, direction, account_id, category_id, owner_id, active,
	due_day, parcel_count, parcel_amount_cents, periodicity, weekday, day_of_year,
	interval_days, last_processed_at`

// CreateTransaction persists a definition after structural validation.
// Installment end dates are derived here so the stored row always carries
// the computed value.
func (r *Repository) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}
	if t.Kind == core.Installment {
		t.EndDate = t.DerivedEndDate()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (kind, description, amount_cents, realized_amount_cents,
			start_date, end_date, direction, account_id, category_id, owner_id, active,
			due_day, parcel_count, parcel_amount_cents, periodicity, weekday, day_of_year,
			interval_days, last_processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Kind, t.Description, t.Amount.Cents, centsOrNull(t.RealizedAmount),
		t.StartDate.String(), dateOrNull(t.EndDate), t.Direction, t.AccountID,
		t.CategoryID, t.OwnerID, t.Active,
		intOrNull(t.DueDay), intOrNull(t.ParcelCount), centsOrNull(t.ParcelAmount),
		stringOrNull(string(t.Periodicity)), intOrNull(int(t.Weekday)),
		intOrNull(t.DayOfYear), intOrNull(t.IntervalDays),
		nullTime(t.LastProcessedAt))
	if err != nil {
		return fmt.Errorf("create transaction: %w", mapErr(err))
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	return nil
}

// UpdateTransaction rewrites an existing definition. Callers are expected
// to re-materialize affected sheets afterwards.
func (r *Repository) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}
	if t.Kind == core.Installment {
		t.EndDate = t.DerivedEndDate()
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET kind = ?, description = ?, amount_cents = ?,
			realized_amount_cents = ?, start_date = ?, end_date = ?, direction = ?,
			account_id = ?, category_id = ?, owner_id = ?, active = ?, due_day = ?,
			parcel_count = ?, parcel_amount_cents = ?, periodicity = ?, weekday = ?,
			day_of_year = ?, interval_days = ?, last_processed_at = ?
		WHERE id = ?`,
		t.Kind, t.Description, t.Amount.Cents, centsOrNull(t.RealizedAmount),
		t.StartDate.String(), dateOrNull(t.EndDate), t.Direction, t.AccountID,
		t.CategoryID, t.OwnerID, t.Active,
		intOrNull(t.DueDay), intOrNull(t.ParcelCount), centsOrNull(t.ParcelAmount),
		stringOrNull(string(t.Periodicity)), intOrNull(int(t.Weekday)),
		intOrNull(t.DayOfYear), intOrNull(t.IntervalDays),
		nullTime(t.LastProcessedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", mapErr(err))
	}
	return requireRow(res)
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// ListActiveTransactions returns the active definitions of one
// (owner, account) pair, the materializer's input set.
func (r *Repository) ListActiveTransactions(ctx context.Context, ownerID, accountID int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionCols+` FROM transactions
		WHERE owner_id = ? AND account_id = ? AND active = 1 ORDER BY id`,
		ownerID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// DeactivateTransaction soft-deletes a definition. Historical entries keep
// referencing it, so rows are never hard-deleted once materialized.
func (r *Repository) DeactivateTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate transaction: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) TouchTransactionProcessed(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET last_processed_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch transaction: %w", err)
	}
	return requireRow(res)
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var t core.Transaction
	var realized, parcelAmount sql.NullInt64
	var startDate string
	var endDate sql.NullString
	var categoryID sql.NullInt64
	var dueDay, parcelCount, weekday, dayOfYear, intervalDays sql.NullInt64
	var periodicity sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(&t.ID, &t.Kind, &t.Description, &t.Amount.Cents, &realized,
		&startDate, &endDate, &t.Direction, &t.AccountID, &categoryID, &t.OwnerID,
		&t.Active, &dueDay, &parcelCount, &parcelAmount, &periodicity, &weekday,
		&dayOfYear, &intervalDays, &processedAt)
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", mapErr(err))
	}

	t.RealizedAmount = scanCents(realized)
	t.ParcelAmount = scanCents(parcelAmount)
	start, err := scanDate(sql.NullString{String: startDate, Valid: true})
	if err != nil {
		return nil, err
	}
	t.StartDate = start
	if t.EndDate, err = scanDate(endDate); err != nil {
		return nil, err
	}
	if categoryID.Valid {
		t.CategoryID = &categoryID.Int64
	}
	t.DueDay = int(dueDay.Int64)
	t.ParcelCount = int(parcelCount.Int64)
	t.Periodicity = core.Periodicity(periodicity.String)
	t.Weekday = time.Weekday(weekday.Int64)
	t.DayOfYear = int(dayOfYear.Int64)
	t.IntervalDays = int(intervalDays.Int64)
	if processedAt.Valid {
		t.LastProcessedAt = processedAt.Time.UTC()
	}
	return &t, nil
}

func intOrNull(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func stringOrNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
