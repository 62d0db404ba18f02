// Package worker bridges the event queue and the spreadsheet exporter.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"contas/internal/amqp"
	"contas/internal/cache"
	"contas/internal/core"
	"contas/internal/export"
	"contas/internal/storage"
)

// ExportWorker exports sheets on sheet.recomputed events and during
// periodic catch-up scans. A small cache of the last exported totals per
// sheet keeps the scans from rewriting unchanged tabs.
type ExportWorker struct {
	storage  *storage.Repository
	exporter export.SheetExporter
	exported *cache.LRU[string]
}

func NewExportWorker(storage *storage.Repository, exporter export.SheetExporter) *ExportWorker {
	return &ExportWorker{
		storage:  storage,
		exporter: exporter,
		exported: cache.NewLRU[string](1000, 24*time.Hour),
	}
}

// Handler returns the AMQP dispatch table for this worker. Settlement
// events carry no export work of their own; the sheet refreshes they
// trigger arrive as separate sheet.recomputed events.
func (w *ExportWorker) Handler(ctx context.Context) amqp.Handler {
	return amqp.Handler{
		SheetRecomputed: func(msg *amqp.SheetRecomputedMessage) error {
			return w.ExportSheet(ctx, msg.SheetID)
		},
		SettlementExecuted: func(msg *amqp.SettlementMessage) error {
			slog.InfoContext(ctx, "Settlement executed",
				"account_id", msg.AccountID,
				"net_cents", msg.NetCents,
				"retained", msg.Retained)
			return nil
		},
	}
}

// ExportSheet writes one sheet's tab unless the totals match the last
// export of that sheet.
func (w *ExportWorker) ExportSheet(ctx context.Context, sheetID int64) error {
	sheet, err := w.storage.GetSheetByID(ctx, sheetID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// The sheet vanished after the event was queued. Nothing to
			// requeue for.
			slog.WarnContext(ctx, "Sheet missing, skipping export", "sheet_id", sheetID)
			return nil
		}
		return fmt.Errorf("get sheet: %w", err)
	}

	key := fmt.Sprintf("sheet:%d", sheetID)
	sig := totalsSignature(sheet)
	if last, ok := w.exported.Get(key); ok && last == sig {
		return nil
	}

	entries, err := w.storage.ListEntries(ctx, sheetID)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	snap := &export.Snapshot{Sheet: *sheet, Entries: entries}
	if err := w.exporter.WriteSheet(ctx, snap); err != nil {
		return fmt.Errorf("export sheet %d: %w", sheetID, err)
	}
	w.exported.Set(key, sig)

	slog.InfoContext(ctx, "Sheet exported",
		"sheet_id", sheetID,
		"tab", snap.TabName(),
		"entries", len(entries))
	return nil
}

// ExportAll walks every sheet, exporting the ones whose totals changed
// since their last export. Missed or dropped events are caught up here.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	ids, err := w.storage.ListSheetIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.ExportSheet(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to export sheet during scan",
				"sheet_id", id, "error", err)
		}
	}
	return nil
}

// totalsSignature fingerprints the exportable state of a sheet. Entry
// realization and totals both feed the sheet's stored columns, so a
// changed sheet always produces a new signature.
func totalsSignature(s *core.Sheet) string {
	return fmt.Sprintf("%d:%d:%d:%d:%d:%d:%d:%d",
		s.OpeningReal.Cents, s.OpeningProvisioned.Cents,
		s.IncomeReal.Cents, s.IncomeProvisioned.Cents,
		s.ExpenseReal.Cents, s.ExpenseProvisioned.Cents,
		s.ClosingReal.Cents, s.ClosingProvisioned.Cents)
}
