// Package google exports sheet snapshots to a Google Spreadsheet using a
// service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"contas/internal/core"
	"contas/internal/export"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ export.SheetExporter = (*Client)(nil)

// NewFromEnv creates an exporter from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func credentialsFromEnv() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	credentialsJSON, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return credentialsJSON, nil
}

// WriteSheet replaces the snapshot's tab with the current entries and
// balances, creating the tab on first export.
func (c *Client) WriteSheet(ctx context.Context, snap *export.Snapshot) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	tab := snap.TabName()
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}

	clearRange := fmt.Sprintf("%s!A:F", tab)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear tab %s: %w", tab, err)
	}

	rows := snapshotRows(snap)
	writeRange := fmt.Sprintf("%s!A1:F%d", tab, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write tab %s: %w", tab, err)
	}
	return nil
}

// ensureTab adds the tab when it does not exist yet.
func (c *Client) ensureTab(ctx context.Context, tab string) error {
	spreadsheet, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == tab {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", tab, err)
	}
	return nil
}

// snapshotRows lays out a snapshot as spreadsheet rows: a header, one row
// per entry, and a balances block.
func snapshotRows(snap *export.Snapshot) [][]any {
	rows := [][]any{
		{"Due date", "Description", "Provisioned", "Realized", "Realized at", "Parcel"},
	}
	for _, e := range snap.Entries {
		realized := any("")
		realizedAt := ""
		if e.Realized && e.RealizedAmount != nil {
			realized = toUnits(*e.RealizedAmount)
			realizedAt = e.RealizedAt.String()
		}
		parcel := ""
		if e.ParcelTotal > 0 {
			parcel = fmt.Sprintf("%d/%d", e.ParcelNumber, e.ParcelTotal)
		}
		rows = append(rows, []any{e.DueDate.String(), e.Description, toUnits(e.Amount), realized, realizedAt, parcel})
	}

	s := snap.Sheet
	rows = append(rows,
		[]any{},
		[]any{"", "", "Real", "Provisioned"},
		[]any{"", "Opening", toUnits(s.OpeningReal), toUnits(s.OpeningProvisioned)},
		[]any{"", "Income", toUnits(s.IncomeReal), toUnits(s.IncomeProvisioned)},
		[]any{"", "Expense", toUnits(s.ExpenseReal), toUnits(s.ExpenseProvisioned)},
		[]any{"", "Closing", toUnits(s.ClosingReal), toUnits(s.ClosingProvisioned)},
	)
	return rows
}

func toUnits(m core.Money) float64 {
	return float64(m.Cents) / 100.0
}
