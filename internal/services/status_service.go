package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contas/internal/core"
	"contas/internal/storage"
)

// StatusService enforces the sequential close/reopen state machine: months
// close front-to-back and reopen back-to-front. A missing status row means
// the month is implicitly open.
type StatusService struct {
	storage *storage.Repository
}

func NewStatusService(storage *storage.Repository) *StatusService {
	return &StatusService{storage: storage}
}

// CanClose reports whether (year, month) may close: it must currently be
// open, and the previous month must have no status row or a closed one.
func (s *StatusService) CanClose(ctx context.Context, accountID int64, year, month int) (bool, error) {
	state, _, err := s.state(ctx, accountID, year, month)
	if err != nil {
		return false, err
	}
	if state != core.SheetOpen {
		return false, nil
	}

	py, pm := core.PrevMonth(year, month)
	prevState, prevExists, err := s.state(ctx, accountID, py, pm)
	if err != nil {
		return false, err
	}
	return !prevExists || prevState == core.SheetClosed, nil
}

// Close transitions (year, month) to closed, recording when and by whom.
// Out-of-sequence attempts fail with core.ErrPrecondition and mutate
// nothing.
func (s *StatusService) Close(ctx context.Context, accountID int64, year, month int, actorID int64, now time.Time) error {
	ok, err := s.CanClose(ctx, accountID, year, month)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("close %04d-%02d of account %d: %w", year, month, accountID, core.ErrPrecondition)
	}
	return s.transition(ctx, accountID, year, month, core.SheetClosed, actorID, now)
}

// CanReopen reports whether (year, month) may reopen: it must currently be
// closed, and the following month must have no status row or an open one.
func (s *StatusService) CanReopen(ctx context.Context, accountID int64, year, month int) (bool, error) {
	state, _, err := s.state(ctx, accountID, year, month)
	if err != nil {
		return false, err
	}
	if state != core.SheetClosed {
		return false, nil
	}

	ny, nm := core.NextMonth(year, month)
	nextState, nextExists, err := s.state(ctx, accountID, ny, nm)
	if err != nil {
		return false, err
	}
	return !nextExists || nextState == core.SheetOpen, nil
}

// Reopen transitions (year, month) back to open, symmetric to Close.
func (s *StatusService) Reopen(ctx context.Context, accountID int64, year, month int, actorID int64, now time.Time) error {
	ok, err := s.CanReopen(ctx, accountID, year, month)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reopen %04d-%02d of account %d: %w", year, month, accountID, core.ErrPrecondition)
	}
	return s.transition(ctx, accountID, year, month, core.SheetOpen, actorID, now)
}

func (s *StatusService) transition(ctx context.Context, accountID int64, year, month int, state core.SheetState, actorID int64, now time.Time) error {
	status := &core.SheetStatus{
		AccountID: accountID,
		Year:      year,
		Month:     month,
		State:     state,
		ChangedAt: now,
		ChangedBy: actorID,
	}
	if err := s.storage.UpsertStatus(ctx, status); err != nil {
		return err
	}
	return s.storage.LinkSheetsToStatus(ctx, accountID, year, month, status.ID)
}

// state resolves an account-month to its effective state and whether a
// status row exists for it. A missing row reads as open.
func (s *StatusService) state(ctx context.Context, accountID int64, year, month int) (core.SheetState, bool, error) {
	status, err := s.storage.GetStatus(ctx, accountID, year, month)
	if errors.Is(err, core.ErrNotFound) {
		return core.SheetOpen, false, nil
	}
	if err != nil {
		return "", false, err
	}
	return status.State, true, nil
}
