// Package export defines the outbound port for publishing materialized
// sheets to an external spreadsheet, one tab per account-month.
package export

import (
	"context"
	"fmt"

	"contas/internal/core"
)

// Snapshot is a fully resolved sheet ready for export: the sheet's
// balances plus its entries in due-date order.
type Snapshot struct {
	Sheet   core.Sheet
	Entries []core.SheetEntry
}

// TabName is the spreadsheet tab a snapshot lands in.
func (s *Snapshot) TabName() string {
	return fmt.Sprintf("%04d-%02d Account %d", s.Sheet.Year, s.Sheet.Month, s.Sheet.AccountID)
}

// SheetExporter writes a snapshot to its tab, replacing whatever the tab
// held before. Exports are idempotent: re-exporting the same snapshot is
// a no-op from the reader's point of view.
type SheetExporter interface {
	WriteSheet(ctx context.Context, snap *Snapshot) error
}
