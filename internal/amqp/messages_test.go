package amqp

import (
	"testing"
	"time"

	"contas/internal/core"
)

func TestNewSheetRecomputedMessage(t *testing.T) {
	sheet := &core.Sheet{
		ID:                 7,
		OwnerID:            1,
		AccountID:          2,
		Year:               2024,
		Month:              3,
		ClosingReal:        core.Money{Cents: 85000},
		ClosingProvisioned: core.Money{Cents: 72000},
	}

	msg := NewSheetRecomputedMessage(sheet)

	if msg.SheetID != 7 || msg.OwnerID != 1 || msg.AccountID != 2 {
		t.Errorf("identifiers = (%d, %d, %d), want (7, 1, 2)", msg.SheetID, msg.OwnerID, msg.AccountID)
	}
	if msg.Year != 2024 || msg.Month != 3 {
		t.Errorf("period = %04d-%02d, want 2024-03", msg.Year, msg.Month)
	}
	if msg.ClosingRealCents != 85000 || msg.ClosingProvisionedCents != 72000 {
		t.Errorf("closings = (%d, %d), want (85000, 72000)", msg.ClosingRealCents, msg.ClosingProvisionedCents)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}

func TestSheetRecomputedMessage_JSON(t *testing.T) {
	msg := &SheetRecomputedMessage{
		SheetID:          7,
		OwnerID:          1,
		AccountID:        2,
		Year:             2024,
		Month:            3,
		ClosingRealCents: 85000,
		Timestamp:        time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC),
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := SheetRecomputedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("SheetRecomputedMessageFromJSON() error = %v", err)
	}
	if parsed.SheetID != msg.SheetID || parsed.ClosingRealCents != msg.ClosingRealCents {
		t.Errorf("parsed = %+v, want %+v", parsed, msg)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("parsed Timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestSheetRecomputedMessage_InvalidJSON(t *testing.T) {
	if _, err := SheetRecomputedMessageFromJSON([]byte(`{"sheet_id": "seven"}`)); err == nil {
		t.Error("SheetRecomputedMessageFromJSON() should fail with invalid JSON")
	}
}

func TestNewSettlementMessage(t *testing.T) {
	settledAt := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	result := &core.SettlementResult{
		AccountID: 5,
		Net:       core.Money{Cents: -120000},
		SettledAt: settledAt,
		Postings: []core.ParticipantShare{
			{ParticipantID: 1, Amount: core.Money{Cents: 72000}},
			{ParticipantID: 2, Amount: core.Money{Cents: 48000}},
		},
	}

	msg := NewSettlementMessage(result)

	if msg.AccountID != 5 || msg.NetCents != -120000 {
		t.Errorf("message = (%d, %d), want (5, -120000)", msg.AccountID, msg.NetCents)
	}
	if msg.Postings != 2 {
		t.Errorf("Postings = %d, want 2", msg.Postings)
	}
	if !msg.SettledAt.Equal(settledAt) {
		t.Errorf("SettledAt = %v, want %v", msg.SettledAt, settledAt)
	}
	if msg.Retained {
		t.Error("Retained should be false")
	}
}
