// Package services orchestrates the ledger engine over storage: monthly
// sheet materialization, joint-account settlement and the sequential
// close/reopen state machine.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"contas/internal/amqp"
	"contas/internal/core"
	"contas/internal/recurrence"
	"contas/internal/storage"
)

// SheetService materializes transaction definitions into monthly sheets
// and keeps sheet totals consistent. The AMQP client is optional; when
// present a sheet.recomputed event is published after every recompute,
// best-effort.
type SheetService struct {
	storage *storage.Repository
	events  *amqp.Client
}

func NewSheetService(storage *storage.Repository, events *amqp.Client) *SheetService {
	return &SheetService{
		storage: storage,
		events:  events,
	}
}

// GetOrCreateSheet returns the sheet of (owner, account, year, month),
// creating and materializing it on first access. The opening balance comes
// from the prior month's closing balance when a prior sheet exists,
// otherwise from the account's initial balance. A concurrent creator
// winning the race is not an error: the loser re-fetches.
func (s *SheetService) GetOrCreateSheet(ctx context.Context, ownerID, accountID int64, year, month int) (*core.Sheet, error) {
	sheet, err := s.storage.GetSheet(ctx, ownerID, accountID, year, month)
	if err == nil {
		return sheet, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("get sheet: %w", err)
	}

	account, err := s.storage.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	sheet = &core.Sheet{
		OwnerID:   ownerID,
		AccountID: accountID,
		Year:      year,
		Month:     month,
	}

	py, pm := core.PrevMonth(year, month)
	prior, err := s.storage.GetSheet(ctx, ownerID, accountID, py, pm)
	switch {
	case err == nil:
		sheet.OpeningReal = prior.ClosingReal
		sheet.OpeningProvisioned = prior.ClosingProvisioned
	case errors.Is(err, core.ErrNotFound):
		sheet.OpeningReal = account.InitialBalance
		sheet.OpeningProvisioned = account.InitialBalance
	default:
		return nil, fmt.Errorf("get prior sheet: %w", err)
	}

	if err := s.storage.CreateSheet(ctx, sheet); err != nil {
		if errors.Is(err, core.ErrConflict) {
			// Lost the creation race; the winner's sheet is the sheet.
			return s.storage.GetSheet(ctx, ownerID, accountID, year, month)
		}
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	slog.InfoContext(ctx, "Sheet created",
		"sheet_id", sheet.ID,
		"owner_id", ownerID,
		"account_id", accountID,
		"period", fmt.Sprintf("%04d-%02d", year, month))

	if err := s.materialize(ctx, sheet); err != nil {
		return nil, err
	}
	if err := s.RecomputeTotals(ctx, sheet.ID); err != nil {
		return nil, err
	}
	return s.storage.GetSheetByID(ctx, sheet.ID)
}

// Refresh is GetOrCreateSheet plus an additive materialization pass on an
// already existing sheet, then a recompute. Definition edits and
// settlement postings use it to fold new occurrences into a sheet that
// was materialized earlier.
func (s *SheetService) Refresh(ctx context.Context, ownerID, accountID int64, year, month int) (*core.Sheet, error) {
	sheet, err := s.GetOrCreateSheet(ctx, ownerID, accountID, year, month)
	if err != nil {
		return nil, err
	}
	if err := s.materialize(ctx, sheet); err != nil {
		return nil, err
	}
	if err := s.RecomputeTotals(ctx, sheet.ID); err != nil {
		return nil, err
	}
	return s.storage.GetSheetByID(ctx, sheet.ID)
}

// ReMaterialize drops the sheet's not-yet-realized entries and rebuilds
// them from the current definitions. Realized entries are facts and stay
// untouched, so an edited definition reshapes only the projection.
func (s *SheetService) ReMaterialize(ctx context.Context, sheetID int64) error {
	sheet, err := s.storage.GetSheetByID(ctx, sheetID)
	if err != nil {
		return fmt.Errorf("get sheet: %w", err)
	}
	if err := s.storage.DeleteUnrealizedEntries(ctx, sheetID); err != nil {
		return err
	}
	if err := s.materialize(ctx, sheet); err != nil {
		return err
	}
	return s.RecomputeTotals(ctx, sheetID)
}

// MaterializeRange projects sheets month by month across [from, to]. Each
// month is its own unit of work, so a failure leaves only fully
// materialized months behind.
func (s *SheetService) MaterializeRange(ctx context.Context, ownerID, accountID int64, fromYear, fromMonth, toYear, toMonth int) error {
	y, m := fromYear, fromMonth
	for y < toYear || (y == toYear && m <= toMonth) {
		if _, err := s.GetOrCreateSheet(ctx, ownerID, accountID, y, m); err != nil {
			return fmt.Errorf("materialize %04d-%02d: %w", y, m, err)
		}
		y, m = core.NextMonth(y, m)
	}
	return nil
}

// materialize expands every active definition of the sheet's owner+account
// into entries for the sheet's month. Occurrences already represented by
// an entry for the same (definition, due date) are skipped, so repeated
// calls are additive and idempotent. Entries are inserted per definition
// in an all-or-nothing batch.
func (s *SheetService) materialize(ctx context.Context, sheet *core.Sheet) error {
	first := core.NewDate(sheet.Year, sheet.Month, 1)
	last := core.NewDate(sheet.Year, sheet.Month, core.DaysInMonth(sheet.Year, sheet.Month))

	defs, err := s.storage.ListActiveTransactions(ctx, sheet.OwnerID, sheet.AccountID)
	if err != nil {
		return err
	}

	existing, err := s.storage.ListEntries(ctx, sheet.ID)
	if err != nil {
		return err
	}
	seen := make(map[int64]map[string]bool, len(existing))
	for _, e := range existing {
		if seen[e.TransactionID] == nil {
			seen[e.TransactionID] = make(map[string]bool)
		}
		seen[e.TransactionID][e.DueDate.String()] = true
	}

	created := 0
	for _, def := range defs {
		due, err := recurrence.DueDatesInRange(def, first, last)
		if err != nil {
			return fmt.Errorf("resolve definition %d: %w", def.ID, err)
		}

		var batch []core.SheetEntry
		for _, d := range due {
			if seen[def.ID][d.String()] {
				continue
			}
			batch = append(batch, buildEntry(sheet.ID, def, d))
		}
		if len(batch) == 0 {
			continue
		}

		if err := s.storage.CreateEntries(ctx, batch); err != nil {
			if errors.Is(err, core.ErrConflict) {
				// A concurrent materializer inserted the same occurrences
				// first; the uniqueness constraint did its job.
				slog.WarnContext(ctx, "Entry batch lost materialization race",
					"sheet_id", sheet.ID, "transaction_id", def.ID)
				continue
			}
			return fmt.Errorf("create entries for definition %d: %w", def.ID, err)
		}
		created += len(batch)
	}

	if created > 0 {
		slog.InfoContext(ctx, "Sheet materialized",
			"sheet_id", sheet.ID,
			"entries_created", created,
			"definitions", len(defs))
	}
	return nil
}

// buildEntry snapshots one occurrence of a definition into an entry.
func buildEntry(sheetID int64, def core.Transaction, due core.Date) core.SheetEntry {
	e := core.SheetEntry{
		SheetID:       sheetID,
		TransactionID: def.ID,
		DueDate:       due,
		Description:   def.Description,
		Amount:        def.Amount,
	}
	if def.Kind == core.Installment {
		e.ParcelNumber = parcelNumber(def.StartDate, due)
		e.ParcelTotal = def.ParcelCount
		e.Amount = def.ProvisionedParcel(e.ParcelNumber)
	}
	if def.RealizedAmount != nil {
		amount := *def.RealizedAmount
		e.Realized = true
		e.RealizedAmount = &amount
		e.RealizedAt = due
	}
	return e
}

// parcelNumber is the 1-based index of a parcel, counted in whole months
// from the start date's month.
func parcelNumber(start, due core.Date) int {
	return (due.Year()-start.Year())*12 + due.Month() - start.Month() + 1
}

// RecomputeTotals rebuilds the sheet's totals from the full current entry
// set and derives the closing balances: opening + income - expense, per
// track. Nothing is adjusted incrementally, so concurrent edits followed
// by a recompute converge regardless of order.
func (s *SheetService) RecomputeTotals(ctx context.Context, sheetID int64) error {
	sheet, err := s.storage.GetSheetByID(ctx, sheetID)
	if err != nil {
		return fmt.Errorf("get sheet: %w", err)
	}

	incomeReal, incomeProv, expenseReal, expenseProv, err := s.storage.SheetTotals(ctx, sheetID)
	if err != nil {
		return err
	}

	sheet.IncomeReal = incomeReal
	sheet.IncomeProvisioned = incomeProv
	sheet.ExpenseReal = expenseReal
	sheet.ExpenseProvisioned = expenseProv
	sheet.ClosingReal = sheet.OpeningReal.Add(incomeReal).Sub(expenseReal)
	sheet.ClosingProvisioned = sheet.OpeningProvisioned.Add(incomeProv).Sub(expenseProv)

	if err := s.storage.UpdateSheetTotals(ctx, sheet); err != nil {
		return err
	}

	s.publishRecomputed(ctx, sheet)
	return nil
}

// RealizeEntry marks an entry realized with the given amount and date and
// recomputes the sheet. Re-realizing overwrites the previous values.
func (s *SheetService) RealizeEntry(ctx context.Context, entryID int64, amount core.Money, at core.Date) error {
	if err := amount.Validate(); err != nil {
		return fmt.Errorf("realized amount: %w", err)
	}
	entry, err := s.storage.GetEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get entry: %w", err)
	}
	if err := s.storage.RealizeEntry(ctx, entryID, amount, at); err != nil {
		return err
	}
	return s.RecomputeTotals(ctx, entry.SheetID)
}

func (s *SheetService) publishRecomputed(ctx context.Context, sheet *core.Sheet) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSheetRecomputed(ctx, sheet); err != nil {
		// Export is eventually consistent; the ledger write already stuck.
		slog.ErrorContext(ctx, "Failed to publish sheet.recomputed",
			"sheet_id", sheet.ID, "error", err)
	}
}
