package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"contas/internal/core"
)

func TestStatusService_SequentialClose(t *testing.T) {
	repo := newRepo(t)
	svc := NewStatusService(repo)
	ctx := context.Background()
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	account := newAccount(t, repo, core.Account{OwnerID: 1})

	// February closes freely: January has no status row.
	if ok, err := svc.CanClose(ctx, account.ID, 2024, 2); err != nil || !ok {
		t.Fatalf("CanClose(feb) = (%v, %v), want (true, nil)", ok, err)
	}
	if err := svc.Close(ctx, account.ID, 2024, 2, 1, now); err != nil {
		t.Fatalf("Close(feb) error = %v", err)
	}

	// Closing February again is out of sequence.
	if err := svc.Close(ctx, account.ID, 2024, 2, 1, now); !errors.Is(err, core.ErrPrecondition) {
		t.Errorf("Close(feb) again error = %v, want ErrPrecondition", err)
	}

	// March may close now that February is closed.
	if err := svc.Close(ctx, account.ID, 2024, 3, 1, now); err != nil {
		t.Fatalf("Close(mar) error = %v", err)
	}

	status, err := repo.GetStatus(ctx, account.ID, 2024, 3)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.State != core.SheetClosed || status.ChangedBy != 1 {
		t.Errorf("status = %+v, want closed by actor 1", status)
	}
}

func TestStatusService_CloseBlockedByOpenPredecessor(t *testing.T) {
	repo := newRepo(t)
	svc := NewStatusService(repo)
	ctx := context.Background()
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	account := newAccount(t, repo, core.Account{OwnerID: 1})

	// Close then reopen February, leaving an explicit open row behind.
	if err := svc.Close(ctx, account.ID, 2024, 2, 1, now); err != nil {
		t.Fatalf("Close(feb) error = %v", err)
	}
	if err := svc.Reopen(ctx, account.ID, 2024, 2, 1, now); err != nil {
		t.Fatalf("Reopen(feb) error = %v", err)
	}

	// March is now blocked: its predecessor holds an open row.
	if ok, _ := svc.CanClose(ctx, account.ID, 2024, 3); ok {
		t.Error("CanClose(mar) = true, want false while February is explicitly open")
	}
	if err := svc.Close(ctx, account.ID, 2024, 3, 1, now); !errors.Is(err, core.ErrPrecondition) {
		t.Errorf("Close(mar) error = %v, want ErrPrecondition", err)
	}

	// Re-closing February unblocks March.
	if err := svc.Close(ctx, account.ID, 2024, 2, 1, now); err != nil {
		t.Fatalf("Close(feb) again error = %v", err)
	}
	if err := svc.Close(ctx, account.ID, 2024, 3, 1, now); err != nil {
		t.Errorf("Close(mar) error = %v, want nil after February closed", err)
	}
}

func TestStatusService_SequentialReopen(t *testing.T) {
	repo := newRepo(t)
	svc := NewStatusService(repo)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	account := newAccount(t, repo, core.Account{OwnerID: 1})

	for month := 2; month <= 4; month++ {
		if err := svc.Close(ctx, account.ID, 2024, month, 1, now); err != nil {
			t.Fatalf("Close(%d) error = %v", month, err)
		}
	}

	// February cannot reopen while March is closed.
	if ok, _ := svc.CanReopen(ctx, account.ID, 2024, 2); ok {
		t.Error("CanReopen(feb) = true, want false while March is closed")
	}
	if err := svc.Reopen(ctx, account.ID, 2024, 2, 1, now); !errors.Is(err, core.ErrPrecondition) {
		t.Errorf("Reopen(feb) error = %v, want ErrPrecondition", err)
	}

	// Reopening back-to-front works: April (May has no row), then March,
	// then February.
	for month := 4; month >= 2; month-- {
		if err := svc.Reopen(ctx, account.ID, 2024, month, 1, now); err != nil {
			t.Fatalf("Reopen(%d) error = %v", month, err)
		}
	}

	// Reopening an already open month is out of sequence.
	if err := svc.Reopen(ctx, account.ID, 2024, 3, 1, now); !errors.Is(err, core.ErrPrecondition) {
		t.Errorf("Reopen(mar) again error = %v, want ErrPrecondition", err)
	}
}

func TestStatusService_YearBoundary(t *testing.T) {
	repo := newRepo(t)
	svc := NewStatusService(repo)
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	account := newAccount(t, repo, core.Account{OwnerID: 1})

	if err := svc.Close(ctx, account.ID, 2024, 12, 1, now); err != nil {
		t.Fatalf("Close(dec) error = %v", err)
	}
	// January 2025's predecessor is December 2024.
	if err := svc.Close(ctx, account.ID, 2025, 1, 1, now); err != nil {
		t.Fatalf("Close(jan) error = %v", err)
	}
	// December cannot reopen while January 2025 is closed.
	if err := svc.Reopen(ctx, account.ID, 2024, 12, 1, now); !errors.Is(err, core.ErrPrecondition) {
		t.Errorf("Reopen(dec) error = %v, want ErrPrecondition", err)
	}
}

func TestStatusService_CloseLinksSheets(t *testing.T) {
	repo := newRepo(t)
	statusSvc := NewStatusService(repo)
	sheetSvc := NewSheetService(repo, nil)
	ctx := context.Background()
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	account := newAccount(t, repo, core.Account{OwnerID: 1})
	sheet, err := sheetSvc.GetOrCreateSheet(ctx, 1, account.ID, 2024, 3)
	if err != nil {
		t.Fatalf("GetOrCreateSheet() error = %v", err)
	}

	if err := statusSvc.Close(ctx, account.ID, 2024, 3, 1, now); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := repo.GetSheetByID(ctx, sheet.ID)
	if err != nil {
		t.Fatalf("GetSheetByID() error = %v", err)
	}
	status, _ := repo.GetStatus(ctx, account.ID, 2024, 3)
	if got.StatusID == nil || *got.StatusID != status.ID {
		t.Errorf("sheet StatusID = %v, want %d", got.StatusID, status.ID)
	}
}
