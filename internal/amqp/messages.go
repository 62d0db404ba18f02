package amqp

import (
	"encoding/json"
	"time"

	"contas/internal/core"
)

// Routing keys for the events this module publishes. Both are bound to
// the export queue so a single worker sees the full stream.
const (
	RouteSheetRecomputed    = "sheet.recomputed"
	RouteSettlementExecuted = "settlement.executed"
)

// SheetRecomputedMessage announces that a sheet's totals changed. It
// carries the identifiers and the closing balances only; the worker
// fetches the full sheet from the database before exporting.
type SheetRecomputedMessage struct {
	SheetID                 int64     `json:"sheet_id"`
	OwnerID                 int64     `json:"owner_id"`
	AccountID               int64     `json:"account_id"`
	Year                    int       `json:"year"`
	Month                   int       `json:"month"`
	ClosingRealCents        int64     `json:"closing_real_cents"`
	ClosingProvisionedCents int64     `json:"closing_provisioned_cents"`
	Timestamp               time.Time `json:"timestamp"`
}

func NewSheetRecomputedMessage(sheet *core.Sheet) *SheetRecomputedMessage {
	return &SheetRecomputedMessage{
		SheetID:                 sheet.ID,
		OwnerID:                 sheet.OwnerID,
		AccountID:               sheet.AccountID,
		Year:                    sheet.Year,
		Month:                   sheet.Month,
		ClosingRealCents:        sheet.ClosingReal.Cents,
		ClosingProvisionedCents: sheet.ClosingProvisioned.Cents,
		Timestamp:               time.Now(),
	}
}

func (m *SheetRecomputedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SheetRecomputedMessageFromJSON(data []byte) (*SheetRecomputedMessage, error) {
	var msg SheetRecomputedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SettlementMessage announces an executed joint-account settlement.
type SettlementMessage struct {
	AccountID int64     `json:"account_id"`
	NetCents  int64     `json:"net_cents"`
	Retained  bool      `json:"retained"`
	Postings  int       `json:"postings"`
	SettledAt time.Time `json:"settled_at"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSettlementMessage(result *core.SettlementResult) *SettlementMessage {
	return &SettlementMessage{
		AccountID: result.AccountID,
		NetCents:  result.Net.Cents,
		Retained:  result.Retained,
		Postings:  len(result.Postings),
		SettledAt: result.SettledAt,
		Timestamp: time.Now(),
	}
}

func (m *SettlementMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SettlementMessageFromJSON(data []byte) (*SettlementMessage, error) {
	var msg SettlementMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
