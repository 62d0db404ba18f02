package storage

import (
	"context"
	"database/sql"
	"fmt"

	"contas/internal/core"
)

const sheetCols = `id, owner_id, account_id, year, month,
	opening_real_cents, opening_provisioned_cents,
	income_real_cents, income_provisioned_cents,
	expense_real_cents, expense_provisioned_cents,
	closing_real_cents, closing_provisioned_cents, status_id`

// CreateSheet inserts a new sheet row. Two callers racing on the same
// (owner, account, year, month) are resolved by the schema's uniqueness
// constraint: the loser gets core.ErrConflict and should re-fetch.
func (r *Repository) CreateSheet(ctx context.Context, s *core.Sheet) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sheets (owner_id, account_id, year, month,
			opening_real_cents, opening_provisioned_cents,
			income_real_cents, income_provisioned_cents,
			expense_real_cents, expense_provisioned_cents,
			closing_real_cents, closing_provisioned_cents, status_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.OwnerID, s.AccountID, s.Year, s.Month,
		s.OpeningReal.Cents, s.OpeningProvisioned.Cents,
		s.IncomeReal.Cents, s.IncomeProvisioned.Cents,
		s.ExpenseReal.Cents, s.ExpenseProvisioned.Cents,
		s.ClosingReal.Cents, s.ClosingProvisioned.Cents, s.StatusID)
	if err != nil {
		return fmt.Errorf("create sheet: %w", mapErr(err))
	}
	s.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sheet id: %w", err)
	}
	return nil
}

func (r *Repository) GetSheet(ctx context.Context, ownerID, accountID int64, year, month int) (*core.Sheet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sheetCols+` FROM sheets
		WHERE owner_id = ? AND account_id = ? AND year = ? AND month = ?`,
		ownerID, accountID, year, month)
	return scanSheet(row)
}

func (r *Repository) GetSheetByID(ctx context.Context, id int64) (*core.Sheet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sheetCols+` FROM sheets WHERE id = ?`, id)
	return scanSheet(row)
}

// UpdateSheetTotals rewrites the computed columns of a sheet. Totals are
// always recomputed from the full entry set, never adjusted in place.
func (r *Repository) UpdateSheetTotals(ctx context.Context, s *core.Sheet) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sheets SET
			income_real_cents = ?, income_provisioned_cents = ?,
			expense_real_cents = ?, expense_provisioned_cents = ?,
			closing_real_cents = ?, closing_provisioned_cents = ?
		WHERE id = ?`,
		s.IncomeReal.Cents, s.IncomeProvisioned.Cents,
		s.ExpenseReal.Cents, s.ExpenseProvisioned.Cents,
		s.ClosingReal.Cents, s.ClosingProvisioned.Cents, s.ID)
	if err != nil {
		return fmt.Errorf("update sheet totals: %w", err)
	}
	return requireRow(res)
}

// LinkSheetsToStatus points every sheet of an account-month at its status
// row. Sheets are per owner while statuses are per account, so this may
// touch several rows (or none, when no sheet was materialized yet).
func (r *Repository) LinkSheetsToStatus(ctx context.Context, accountID int64, year, month int, statusID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sheets SET status_id = ? WHERE account_id = ? AND year = ? AND month = ?`,
		statusID, accountID, year, month)
	if err != nil {
		return fmt.Errorf("link sheets to status: %w", err)
	}
	return nil
}

// ListSheetIDs returns the ids of every sheet, oldest period first. The
// export worker walks this during catch-up scans.
func (r *Repository) ListSheetIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM sheets ORDER BY year, month, id`)
	if err != nil {
		return nil, fmt.Errorf("list sheet ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sheet id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SheetTotals recomputes the four totals of a sheet from its full entry
// set: the real track counts realized entries at their realized amount,
// the provisioned track counts every entry at its provisioned amount.
func (r *Repository) SheetTotals(ctx context.Context, sheetID int64) (incomeReal, incomeProv, expenseReal, expenseProv core.Money, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN t.direction = 'income' AND e.realized = 1 THEN e.realized_amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.direction = 'income' THEN e.amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.direction = 'expense' AND e.realized = 1 THEN e.realized_amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.direction = 'expense' THEN e.amount_cents ELSE 0 END), 0)
		FROM sheet_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.sheet_id = ?`, sheetID).
		Scan(&incomeReal.Cents, &incomeProv.Cents, &expenseReal.Cents, &expenseProv.Cents)
	if err != nil {
		err = fmt.Errorf("sheet totals: %w", err)
	}
	return
}

func scanSheet(row rowScanner) (*core.Sheet, error) {
	var s core.Sheet
	var statusID sql.NullInt64
	err := row.Scan(&s.ID, &s.OwnerID, &s.AccountID, &s.Year, &s.Month,
		&s.OpeningReal.Cents, &s.OpeningProvisioned.Cents,
		&s.IncomeReal.Cents, &s.IncomeProvisioned.Cents,
		&s.ExpenseReal.Cents, &s.ExpenseProvisioned.Cents,
		&s.ClosingReal.Cents, &s.ClosingProvisioned.Cents, &statusID)
	if err != nil {
		return nil, fmt.Errorf("scan sheet: %w", mapErr(err))
	}
	if statusID.Valid {
		s.StatusID = &statusID.Int64
	}
	return &s, nil
}

// --- entries ---

const entryCols = `id, sheet_id, transaction_id, due_date, description,
	amount_cents, realized_amount_cents, realized_at, realized,
	parcel_number, parcel_total`

// CreateEntries inserts a batch of entries in one transaction: either the
// whole batch lands or none of it does. A duplicate
// (sheet, transaction, due date) anywhere in the batch rolls everything
// back with core.ErrConflict.
func (r *Repository) CreateEntries(ctx context.Context, entries []core.SheetEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sheet_entries (sheet_id, transaction_id, due_date, description,
			amount_cents, realized_amount_cents, realized_at, realized,
			parcel_number, parcel_total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		res, err := stmt.ExecContext(ctx,
			e.SheetID, e.TransactionID, e.DueDate.String(), e.Description,
			e.Amount.Cents, centsOrNull(e.RealizedAmount), dateOrNull(e.RealizedAt),
			e.Realized, intOrNull(e.ParcelNumber), intOrNull(e.ParcelTotal))
		if err != nil {
			return fmt.Errorf("insert entry: %w", mapErr(err))
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("entry id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entries: %w", err)
	}
	return nil
}

func (r *Repository) GetEntry(ctx context.Context, id int64) (*core.SheetEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM sheet_entries WHERE id = ?`, id)
	return scanEntry(row)
}

func (r *Repository) ListEntries(ctx context.Context, sheetID int64) ([]core.SheetEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryCols+` FROM sheet_entries
		WHERE sheet_id = ? ORDER BY due_date, id`, sheetID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []core.SheetEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeleteUnrealizedEntries drops every not-yet-realized entry of a sheet.
// Realized entries are in-flight facts and survive re-materialization.
func (r *Repository) DeleteUnrealizedEntries(ctx context.Context, sheetID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sheet_entries WHERE sheet_id = ? AND realized = 0`, sheetID)
	if err != nil {
		return fmt.Errorf("delete unrealized entries: %w", err)
	}
	return nil
}

// RealizeEntry overwrites the realization fields of an entry. Re-realizing
// an already realized entry is allowed and simply replaces the values.
func (r *Repository) RealizeEntry(ctx context.Context, id int64, amount core.Money, at core.Date) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sheet_entries SET realized = 1, realized_amount_cents = ?, realized_at = ?
		WHERE id = ?`,
		amount.Cents, at.String(), id)
	if err != nil {
		return fmt.Errorf("realize entry: %w", err)
	}
	return requireRow(res)
}

// AccountNetSince sums income minus expense over an account's entries with
// due dates in (since, until], the settlement window. Realized entries
// count their realized amount, unrealized ones their provisioned amount.
func (r *Repository) AccountNetSince(ctx context.Context, accountID int64, since, until core.Date) (core.Money, error) {
	var net sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT SUM(
			CASE WHEN t.direction = 'income' THEN 1 ELSE -1 END *
			CASE WHEN e.realized = 1 THEN e.realized_amount_cents ELSE e.amount_cents END)
		FROM sheet_entries e
		JOIN sheets s ON s.id = e.sheet_id
		JOIN transactions t ON t.id = e.transaction_id
		WHERE s.account_id = ? AND e.due_date > ? AND e.due_date <= ?`,
		accountID, since.String(), until.String()).Scan(&net)
	if err != nil {
		return core.Money{}, fmt.Errorf("account net: %w", err)
	}
	return core.Money{Cents: net.Int64}, nil
}

func scanEntry(row rowScanner) (*core.SheetEntry, error) {
	var e core.SheetEntry
	var realizedAmount sql.NullInt64
	var dueDate string
	var realizedAt sql.NullString
	var parcelNumber, parcelTotal sql.NullInt64

	err := row.Scan(&e.ID, &e.SheetID, &e.TransactionID, &dueDate, &e.Description,
		&e.Amount.Cents, &realizedAmount, &realizedAt, &e.Realized,
		&parcelNumber, &parcelTotal)
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", mapErr(err))
	}

	due, err := scanDate(sql.NullString{String: dueDate, Valid: true})
	if err != nil {
		return nil, err
	}
	e.DueDate = due
	if e.RealizedAt, err = scanDate(realizedAt); err != nil {
		return nil, err
	}
	e.RealizedAmount = scanCents(realizedAmount)
	e.ParcelNumber = int(parcelNumber.Int64)
	e.ParcelTotal = int(parcelTotal.Int64)
	return &e, nil
}
