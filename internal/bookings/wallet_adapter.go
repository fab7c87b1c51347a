package bookings

import (
	"context"

	"parktayo/internal/wallet"

	"github.com/google/uuid"
)

// walletAdapter narrows the ledger service to the shapes the state machine
// consumes.
type walletAdapter struct {
	svc wallet.Service
}

// NewWalletAdapter adapts the wallet ledger to the local WalletService
// contract.
func NewWalletAdapter(svc wallet.Service) WalletService {
	return &walletAdapter{svc: svc}
}

func (a *walletAdapter) Hold(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*walletEntry, error) {
	entry, err := a.svc.Hold(ctx, userID, amount, refID, description)
	if err != nil {
		return nil, err
	}
	return &walletEntry{Amount: entry.Amount, Replayed: entry.Replayed}, nil
}

func (a *walletAdapter) Release(ctx context.Context, holdRef, reason string) (*walletEntry, error) {
	entry, err := a.svc.Release(ctx, holdRef, reason)
	if err != nil {
		return nil, err
	}
	return &walletEntry{Amount: entry.Amount, Replayed: entry.Replayed}, nil
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
