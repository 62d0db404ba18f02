package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"contas/internal/amqp"
	"contas/internal/core"
	"contas/internal/storage"
)

// SettlementService apportions a joint account's net period result across
// its participants' personal ledgers.
type SettlementService struct {
	storage *storage.Repository
	sheets  *SheetService
	events  *amqp.Client
}

func NewSettlementService(storage *storage.Repository, sheets *SheetService, events *amqp.Client) *SettlementService {
	return &SettlementService{
		storage: storage,
		sheets:  sheets,
		events:  events,
	}
}

// Settle reads the joint account's entries since its last settlement,
// computes the net result and fans it out to the participants' primary
// accounts by their shares. A deficit posts expenses; a surplus posts
// income, unless the account keeps positive balances, in which case the
// surplus accumulates on the joint account itself. The settlement
// timestamp always advances, whichever branch ran.
//
// Settle carries no guard against overlapping invocations: calling it
// twice before the advanced timestamp is persisted double-counts the
// window. Callers schedule it at most once per settlement date.
func (s *SettlementService) Settle(ctx context.Context, jointAccountID int64, now time.Time) (*core.SettlementResult, error) {
	account, err := s.storage.GetAccount(ctx, jointAccountID)
	if err != nil {
		return nil, fmt.Errorf("get joint account: %w", err)
	}
	if account.Kind != core.AccountJoint {
		return nil, fmt.Errorf("account %d is %s: %w", account.ID, account.Kind, core.ErrInvalidKind)
	}

	since := core.Date{}
	if !account.LastSettlementAt.IsZero() {
		since = core.DateOf(account.LastSettlementAt)
	}
	until := core.DateOf(now)

	net, err := s.storage.AccountNetSince(ctx, account.ID, since, until)
	if err != nil {
		return nil, err
	}

	shares, err := s.storage.ListActiveApportionments(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	var totalBP int64
	for _, ap := range shares {
		totalBP += ap.ShareBP
	}
	if totalBP < core.ShareScale {
		slog.WarnContext(ctx, "Apportionment shares do not cover the full amount",
			"account_id", account.ID, "total_bp", totalBP)
	}

	result := &core.SettlementResult{
		AccountID: account.ID,
		Net:       net,
		SettledAt: now,
	}
	balance := account.Balance

	switch {
	case net.Cents < 0:
		if err := s.post(ctx, result, shares, net.Abs(), core.Expense, now); err != nil {
			return nil, err
		}
	case net.Cents > 0 && account.KeepPositiveBalance:
		balance = balance.Add(net)
		result.Retained = true
	case net.Cents > 0:
		if err := s.post(ctx, result, shares, net, core.Income, now); err != nil {
			return nil, err
		}
		balance = core.Money{}
	}

	if err := s.storage.UpdateAccountSettlement(ctx, account.ID, balance, now); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Joint account settled",
		"account_id", account.ID,
		"net_cents", net.Cents,
		"postings", len(result.Postings),
		"retained", result.Retained)

	s.publishSettled(ctx, result)
	return result, nil
}

// post creates one one-time transaction per participant on their primary
// account and refreshes the participant's current sheet so the posting
// shows up in their totals immediately.
func (s *SettlementService) post(ctx context.Context, result *core.SettlementResult, shares []core.Apportionment, total core.Money, direction core.Direction, now time.Time) error {
	today := core.DateOf(now)
	for _, ap := range shares {
		amount := total.Share(ap.ShareBP)
		if amount.Cents == 0 {
			continue
		}

		primary, err := s.storage.PrimaryAccount(ctx, ap.ParticipantID)
		if err != nil {
			return fmt.Errorf("primary account of participant %d: %w", ap.ParticipantID, err)
		}

		def := &core.Transaction{
			Kind:        core.OneTime,
			Description: fmt.Sprintf("Settlement of account %d (%s)", result.AccountID, today),
			Amount:      amount,
			StartDate:   today,
			Direction:   direction,
			AccountID:   primary.ID,
			OwnerID:     ap.ParticipantID,
			Active:      true,
		}
		if err := s.storage.CreateTransaction(ctx, def); err != nil {
			return fmt.Errorf("post settlement to participant %d: %w", ap.ParticipantID, err)
		}

		if _, err := s.sheets.Refresh(ctx, ap.ParticipantID, primary.ID, today.Year(), today.Month()); err != nil {
			return fmt.Errorf("refresh participant %d sheet: %w", ap.ParticipantID, err)
		}

		result.Postings = append(result.Postings, core.ParticipantShare{
			ParticipantID: ap.ParticipantID,
			AccountID:     primary.ID,
			ShareBP:       ap.ShareBP,
			Amount:        amount,
		})
	}
	return nil
}

func (s *SettlementService) publishSettled(ctx context.Context, result *core.SettlementResult) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSettlementExecuted(ctx, result); err != nil {
		slog.ErrorContext(ctx, "Failed to publish settlement.executed",
			"account_id", result.AccountID, "error", err)
	}
}
