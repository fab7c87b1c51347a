package sessions

import (
	"context"

	"github.com/google/uuid"

	"parktayo/internal/wallet"
)

// walletAdapter narrows the ledger service to the settlement contract.
type walletAdapter struct {
	svc wallet.Service
}

func NewWalletAdapter(svc wallet.Service) WalletService {
	return &walletAdapter{svc: svc}
}

func (a *walletAdapter) Capture(ctx context.Context, holdRef string, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*captureOutcome, error) {
	result, err := a.svc.Capture(ctx, holdRef, amount, recipientUserID, platformFeeRate, refID)
	if err != nil {
		return nil, err
	}
	outcome := &captureOutcome{ReleasedResidual: result.ReleasedResidual}
	if result.CaptureEntry != nil {
		outcome.Captured = result.CaptureEntry.Amount
	}
	if result.FeeEntry != nil {
		outcome.Fee = result.FeeEntry.Amount
	}
	if result.PayoutEntry != nil {
		outcome.Payout = result.PayoutEntry.Amount
	}
	return outcome, nil
}

func (a *walletAdapter) CollectShortfall(ctx context.Context, userID uuid.UUID, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*shortfallOutcome, error) {
	result, err := a.svc.CollectShortfall(ctx, userID, amount, recipientUserID, platformFeeRate, refID)
	if err != nil {
		return nil, err
	}
	outcome := &shortfallOutcome{Collected: result.Collected, Outstanding: result.Outstanding}
	if result.FeeEntry != nil {
		outcome.Fee = result.FeeEntry.Amount
	}
	if result.PayoutEntry != nil {
		outcome.Payout = result.PayoutEntry.Amount
	}
	return outcome, nil
}

func (a *walletAdapter) RecordDebt(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*walletEntry, error) {
	entry, err := a.svc.RecordDebt(ctx, userID, amount, refID, description)
	if err != nil {
		return nil, err
	}
	return &walletEntry{Amount: entry.Amount, Replayed: entry.Replayed}, nil
}
