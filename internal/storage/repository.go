// Package storage persists the ledger entities on SQLite. The uniqueness
// invariants the engine relies on — one sheet per (owner, account, year,
// month), one entry per (sheet, transaction, due date), one status per
// (account, year, month) — live in the schema, not in application code.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contas/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// mapErr folds driver-level failures onto the engine taxonomy: uniqueness
// violations become core.ErrConflict, empty results core.ErrNotFound.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", core.ErrConflict, err)
	}
	return err
}

func dateOrNull(d core.Date) any {
	if d.IsEmpty() {
		return nil
	}
	return d.String()
}

func scanDate(s sql.NullString) (core.Date, error) {
	if !s.Valid || s.String == "" {
		return core.Date{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s.String, time.UTC)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s.String, err)
	}
	return core.Date{Time: t}, nil
}

func centsOrNull(m *core.Money) any {
	if m == nil {
		return nil
	}
	return m.Cents
}

func scanCents(n sql.NullInt64) *core.Money {
	if !n.Valid {
		return nil
	}
	return &core.Money{Cents: n.Int64}
}

// --- accounts ---

func (r *Repository) CreateAccount(ctx context.Context, a *core.Account) error {
	if !a.Kind.IsValid() {
		return fmt.Errorf("account kind %q: %w", a.Kind, core.ErrInvalidKind)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (owner_id, name, kind, is_primary, initial_balance_cents,
			balance_cents, keep_positive_balance, last_settlement_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OwnerID, a.Name, a.Kind, a.IsPrimary, a.InitialBalance.Cents,
		a.Balance.Cents, a.KeepPositiveBalance, nullTime(a.LastSettlementAt), a.Active)
	if err != nil {
		return fmt.Errorf("create account: %w", mapErr(err))
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("account id: %w", err)
	}
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, id int64) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, kind, is_primary, initial_balance_cents,
			balance_cents, keep_positive_balance, last_settlement_at, active
		FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// PrimaryAccount returns the owner's active primary personal account, the
// target of settlement postings.
func (r *Repository) PrimaryAccount(ctx context.Context, ownerID int64) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, kind, is_primary, initial_balance_cents,
			balance_cents, keep_positive_balance, last_settlement_at, active
		FROM accounts
		WHERE owner_id = ? AND kind = 'personal' AND is_primary = 1 AND active = 1
		ORDER BY id LIMIT 1`, ownerID)
	return scanAccount(row)
}

func (r *Repository) ListActiveAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, kind, is_primary, initial_balance_cents,
			balance_cents, keep_positive_balance, last_settlement_at, active
		FROM accounts WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r *Repository) ListActiveJointAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, kind, is_primary, initial_balance_cents,
			balance_cents, keep_positive_balance, last_settlement_at, active
		FROM accounts WHERE active = 1 AND kind = 'joint' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list joint accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccountSettlement records the outcome of a settlement run: the
// joint account's running balance and the advanced settlement timestamp.
func (r *Repository) UpdateAccountSettlement(ctx context.Context, id int64, balance core.Money, settledAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = ?, last_settlement_at = ? WHERE id = ?`,
		balance.Cents, settledAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("update account settlement: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*core.Account, error) {
	var a core.Account
	var settledAt sql.NullTime
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Kind, &a.IsPrimary,
		&a.InitialBalance.Cents, &a.Balance.Cents, &a.KeepPositiveBalance,
		&settledAt, &a.Active)
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", mapErr(err))
	}
	if settledAt.Valid {
		a.LastSettlementAt = settledAt.Time.UTC()
	}
	return &a, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- apportionments ---

// SaveApportionment creates or replaces a participant's share of a joint
// account. The active shares of one account may never exceed 100%; the
// check and the write share one transaction so concurrent saves cannot
// slip past it together.
func (r *Repository) SaveApportionment(ctx context.Context, ap *core.Apportionment) error {
	if ap.ShareBP <= 0 || ap.ShareBP > core.ShareScale {
		return fmt.Errorf("share %d: %w", ap.ShareBP, core.ErrShareOverflow)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var others int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(share_bp), 0) FROM apportionments
		WHERE account_id = ? AND active = 1 AND participant_id != ?`,
		ap.AccountID, ap.ParticipantID).Scan(&others)
	if err != nil {
		return fmt.Errorf("sum shares: %w", err)
	}
	if !ap.Active {
		// Deactivation never overflows.
	} else if others+ap.ShareBP > core.ShareScale {
		return fmt.Errorf("account %d shares %d+%d bp: %w",
			ap.AccountID, others, ap.ShareBP, core.ErrShareOverflow)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO apportionments (account_id, participant_id, share_bp, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, participant_id)
		DO UPDATE SET share_bp = excluded.share_bp, active = excluded.active`,
		ap.AccountID, ap.ParticipantID, ap.ShareBP, ap.Active)
	if err != nil {
		return fmt.Errorf("save apportionment: %w", mapErr(err))
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		ap.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repository) ListActiveApportionments(ctx context.Context, accountID int64) ([]core.Apportionment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, participant_id, share_bp, active
		FROM apportionments WHERE account_id = ? AND active = 1
		ORDER BY participant_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list apportionments: %w", err)
	}
	defer rows.Close()

	var aps []core.Apportionment
	for rows.Next() {
		var ap core.Apportionment
		if err := rows.Scan(&ap.ID, &ap.AccountID, &ap.ParticipantID, &ap.ShareBP, &ap.Active); err != nil {
			return nil, fmt.Errorf("scan apportionment: %w", err)
		}
		aps = append(aps, ap)
	}
	return aps, rows.Err()
}
