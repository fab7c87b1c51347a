package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"parktayo/internal/pricing"
	"parktayo/internal/shared/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the funds contract used by the booking core. Every mutating
// operation is atomic and idempotent against its reference id: replaying a
// reference id returns the prior entry with Replayed set, never a duplicate.
type Service interface {
	Credit(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*Transaction, error)
	Hold(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*Transaction, error)
	Release(ctx context.Context, holdRef, reason string) (*Transaction, error)
	Capture(ctx context.Context, holdRef string, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*CaptureResult, error)
	Refund(ctx context.Context, originalCaptureRef string, amount float64, reason, refID string) (*Transaction, error)

	// CollectShortfall drains the payer's available balance toward an
	// overtime shortfall, up to the amount owed, and splits what was
	// collected between the recipient and the platform exactly like a
	// capture. The uncollected remainder is reported as Outstanding for
	// the caller to record as debt.
	CollectShortfall(ctx context.Context, payerUserID uuid.UUID, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*ShortfallResult, error)

	// RecordDebt appends an open debt entry without touching balances.
	RecordDebt(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*Transaction, error)

	// RequestPayout moves landlord funds into a transfer_out entry awaiting
	// admin approval.
	RequestPayout(ctx context.Context, userID uuid.UUID, amount float64, refID string) (*Transaction, error)

	GetBalances(ctx context.Context, userID uuid.UUID, withTransactions bool) (*Balances, error)
}

type service struct {
	repo              Repository
	platformAccountID uuid.UUID
}

// NewService creates the wallet service. platformAccountID is the well-known
// account that retains platform fees.
func NewService(repo Repository, platformAccountID uuid.UUID) Service {
	return &service{repo: repo, platformAccountID: platformAccountID}
}

func errInvalidAmount(amount float64) error {
	return apperr.Newf(apperr.KindInvalidInput, "invalid amount %.2f: must be positive", amount)
}

func errInsufficientFunds(available, wanted float64) error {
	return apperr.Newf(apperr.KindInsufficientFunds,
		"insufficient funds: available %.2f, required %.2f", available, wanted)
}

func errUnknownHold(holdRef string) error {
	return apperr.Newf(apperr.KindNotFound, "unknown hold %q", holdRef)
}

// replayOf checks whether refID was already applied to the wallet and, if
// so, returns the prior entry marked as a replay.
func replayOf(ctx context.Context, tx Repository, walletID uuid.UUID, refID string) (*Transaction, bool) {
	if refID == "" {
		return nil, false
	}
	prior, err := tx.FindByReferenceID(ctx, walletID, refID)
	if err != nil {
		return nil, false
	}
	prior.Replayed = true
	return prior, true
}

func (s *service) Credit(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*Transaction, error) {
	amount = pricing.Round2(amount)
	if amount <= 0 {
		return nil, errInvalidAmount(amount)
	}

	var entry *Transaction
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		w, err := tx.GetOrCreateWalletForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}
		if prior, ok := replayOf(ctx, tx, w.ID, refID); ok {
			entry = prior
			return nil
		}

		w.AvailableBalance = pricing.Round2(w.AvailableBalance + amount)
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}

		entry = &Transaction{
			WalletID:     w.ID,
			UserID:       userID,
			Kind:         KindCredit,
			Status:       StatusCompleted,
			Amount:       amount,
			ReferenceID:  refID,
			BalanceAfter: w.AvailableBalance,
			Description:  description,
		}
		return tx.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Hold(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*Transaction, error) {
	amount = pricing.Round2(amount)
	if amount <= 0 {
		return nil, errInvalidAmount(amount)
	}

	var entry *Transaction
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		w, err := tx.GetOrCreateWalletForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}
		if prior, ok := replayOf(ctx, tx, w.ID, refID); ok {
			entry = prior
			return nil
		}
		if w.AvailableBalance < amount {
			return errInsufficientFunds(w.AvailableBalance, amount)
		}

		w.AvailableBalance = pricing.Round2(w.AvailableBalance - amount)
		w.HeldAmount = pricing.Round2(w.HeldAmount + amount)
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}

		entry = &Transaction{
			WalletID:     w.ID,
			UserID:       userID,
			Kind:         KindHold,
			Status:       StatusActive,
			Amount:       amount,
			ReferenceID:  refID,
			BalanceAfter: w.AvailableBalance,
			Description:  description,
		}
		return tx.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Release(ctx context.Context, holdRef, reason string) (*Transaction, error) {
	var entry *Transaction
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		hold, err := tx.FindHold(ctx, holdRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errUnknownHold(holdRef)
			}
			return err
		}

		// Double-release is a no-op that reports the original hold.
		if hold.Status != StatusActive {
			hold.Replayed = true
			entry = hold
			return nil
		}

		w, err := tx.GetOrCreateWalletForUpdate(ctx, hold.UserID)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}

		w.HeldAmount = pricing.Round2(w.HeldAmount - hold.Amount)
		w.AvailableBalance = pricing.Round2(w.AvailableBalance + hold.Amount)
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.UpdateEntryStatus(ctx, hold.ID, StatusReleased); err != nil {
			return err
		}

		entry = &Transaction{
			WalletID:     w.ID,
			UserID:       hold.UserID,
			Kind:         KindRelease,
			Status:       StatusCompleted,
			Amount:       hold.Amount,
			ReferenceID:  holdRef + ":release",
			HoldRef:      holdRef,
			BalanceAfter: w.AvailableBalance,
			Description:  reason,
		}
		return tx.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Capture(ctx context.Context, holdRef string, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*CaptureResult, error) {
	amount = pricing.Round2(amount)
	if amount <= 0 {
		return nil, errInvalidAmount(amount)
	}

	var result *CaptureResult
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		hold, err := tx.FindHold(ctx, holdRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errUnknownHold(holdRef)
			}
			return err
		}
		if hold.Status == StatusCaptured {
			prior, err := tx.FindCapture(ctx, refID)
			if err != nil {
				return apperr.Wrap(apperr.KindConflict, "hold already captured", err)
			}
			prior.Replayed = true
			result = &CaptureResult{CaptureEntry: prior}
			return nil
		}
		if hold.Status != StatusActive {
			return apperr.Newf(apperr.KindConflict, "hold %q already %s", holdRef, hold.Status)
		}
		if amount > hold.Amount {
			return apperr.Newf(apperr.KindInvalidInput,
				"capture %.2f exceeds held %.2f", amount, hold.Amount)
		}

		// Lock every wallet in ascending user-id order so concurrent
		// captures cannot deadlock.
		wallets, err := lockWallets(ctx, tx, hold.UserID, s.platformAccountID, recipientUserID)
		if err != nil {
			return err
		}
		payer := wallets[hold.UserID]
		platform := wallets[s.platformAccountID]
		recipient := wallets[recipientUserID]

		fee := pricing.Round2(amount * platformFeeRate)
		payout := pricing.Round2(amount - fee)
		residual := pricing.Round2(hold.Amount - amount)

		// Payer: full hold leaves held; residual returns to available.
		payer.HeldAmount = pricing.Round2(payer.HeldAmount - hold.Amount)
		payer.AvailableBalance = pricing.Round2(payer.AvailableBalance + residual)
		if err := tx.SaveWallet(ctx, payer); err != nil {
			return err
		}

		platform.AvailableBalance = pricing.Round2(platform.AvailableBalance + fee)
		if err := tx.SaveWallet(ctx, platform); err != nil {
			return err
		}
		recipient.AvailableBalance = pricing.Round2(recipient.AvailableBalance + payout)
		if err := tx.SaveWallet(ctx, recipient); err != nil {
			return err
		}

		if err := tx.UpdateEntryStatus(ctx, hold.ID, StatusCaptured); err != nil {
			return err
		}

		captureEntry := &Transaction{
			WalletID:     payer.ID,
			UserID:       payer.UserID,
			Kind:         KindCapture,
			Status:       StatusCompleted,
			Amount:       amount,
			ReferenceID:  refID,
			HoldRef:      holdRef,
			BalanceAfter: payer.AvailableBalance,
		}
		feeEntry := &Transaction{
			WalletID:     platform.ID,
			UserID:       platform.UserID,
			Kind:         KindCredit,
			Status:       StatusCompleted,
			Amount:       fee,
			ReferenceID:  refID + ":fee",
			CaptureRef:   refID,
			BalanceAfter: platform.AvailableBalance,
			Description:  "platform fee",
		}
		payoutEntry := &Transaction{
			WalletID:     recipient.ID,
			UserID:       recipient.UserID,
			Kind:         KindCredit,
			Status:       StatusCompleted,
			Amount:       payout,
			ReferenceID:  refID + ":payout",
			CaptureRef:   refID,
			BalanceAfter: recipient.AvailableBalance,
			Description:  "landlord payout",
		}
		for _, e := range []*Transaction{captureEntry, feeEntry, payoutEntry} {
			if err := tx.CreateEntry(ctx, e); err != nil {
				return err
			}
		}
		if residual > 0 {
			releaseEntry := &Transaction{
				WalletID:     payer.ID,
				UserID:       payer.UserID,
				Kind:         KindRelease,
				Status:       StatusCompleted,
				Amount:       residual,
				ReferenceID:  refID + ":residual",
				HoldRef:      holdRef,
				BalanceAfter: payer.AvailableBalance,
				Description:  "hold residual",
			}
			if err := tx.CreateEntry(ctx, releaseEntry); err != nil {
				return err
			}
		}

		result = &CaptureResult{
			CaptureEntry:     captureEntry,
			FeeEntry:         feeEntry,
			PayoutEntry:      payoutEntry,
			ReleasedResidual: residual,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Refund(ctx context.Context, originalCaptureRef string, amount float64, reason, refID string) (*Transaction, error) {
	amount = pricing.Round2(amount)
	if amount <= 0 {
		return nil, errInvalidAmount(amount)
	}

	var entry *Transaction
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		capture, err := tx.FindCapture(ctx, originalCaptureRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindConflict, "nothing to refund for %q", originalCaptureRef)
			}
			return err
		}

		refunded, err := tx.SumRefunded(ctx, originalCaptureRef)
		if err != nil {
			return err
		}
		remaining := pricing.Round2(capture.Amount - refunded)
		if remaining <= 0 {
			return apperr.Newf(apperr.KindConflict, "capture %q already fully refunded", originalCaptureRef)
		}
		if amount > remaining {
			return apperr.Newf(apperr.KindInvalidInput,
				"refund %.2f exceeds refundable %.2f", amount, remaining)
		}

		// The fee and payout entries tell us whose credits funded the
		// original settlement; each side returns its proportional share.
		platformShare, recipientID, err := s.captureSplit(ctx, tx, originalCaptureRef, capture.Amount)
		if err != nil {
			return err
		}

		platformDebit := pricing.Round2(amount * platformShare)
		landlordDebit := pricing.Round2(amount - platformDebit)

		wallets, err := lockWallets(ctx, tx, capture.UserID, s.platformAccountID, recipientID)
		if err != nil {
			return err
		}
		payer := wallets[capture.UserID]
		platform := wallets[s.platformAccountID]
		landlord := wallets[recipientID]

		if prior, ok := replayOf(ctx, tx, payer.ID, refID); ok {
			entry = prior
			return nil
		}
		if platform.AvailableBalance < platformDebit {
			return errInsufficientFunds(platform.AvailableBalance, platformDebit)
		}
		if landlord.AvailableBalance < landlordDebit {
			return errInsufficientFunds(landlord.AvailableBalance, landlordDebit)
		}

		platform.AvailableBalance = pricing.Round2(platform.AvailableBalance - platformDebit)
		landlord.AvailableBalance = pricing.Round2(landlord.AvailableBalance - landlordDebit)
		payer.AvailableBalance = pricing.Round2(payer.AvailableBalance + amount)
		for _, w := range []*Wallet{platform, landlord, payer} {
			if err := tx.SaveWallet(ctx, w); err != nil {
				return err
			}
		}

		for _, e := range []*Transaction{
			{
				WalletID: platform.ID, UserID: platform.UserID,
				Kind: KindDebit, Status: StatusCompleted, Amount: platformDebit,
				ReferenceID: refID + ":fee", CaptureRef: originalCaptureRef,
				BalanceAfter: platform.AvailableBalance, Description: reason,
			},
			{
				WalletID: landlord.ID, UserID: landlord.UserID,
				Kind: KindDebit, Status: StatusCompleted, Amount: landlordDebit,
				ReferenceID: refID + ":payout", CaptureRef: originalCaptureRef,
				BalanceAfter: landlord.AvailableBalance, Description: reason,
			},
		} {
			if err := tx.CreateEntry(ctx, e); err != nil {
				return err
			}
		}

		entry = &Transaction{
			WalletID:     payer.ID,
			UserID:       payer.UserID,
			Kind:         KindRefund,
			Status:       StatusCompleted,
			Amount:       amount,
			ReferenceID:  refID,
			CaptureRef:   originalCaptureRef,
			BalanceAfter: payer.AvailableBalance,
			Description:  reason,
		}
		return tx.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) CollectShortfall(ctx context.Context, payerUserID uuid.UUID, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*ShortfallResult, error) {
	amount = pricing.Round2(amount)
	if amount <= 0 {
		return nil, errInvalidAmount(amount)
	}

	var result *ShortfallResult
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		wallets, err := lockWallets(ctx, tx, payerUserID, s.platformAccountID, recipientUserID)
		if err != nil {
			return err
		}
		payer := wallets[payerUserID]
		platform := wallets[s.platformAccountID]
		recipient := wallets[recipientUserID]

		if prior, ok := replayOf(ctx, tx, payer.ID, refID); ok {
			result = &ShortfallResult{
				DebitEntry:  prior,
				Collected:   prior.Amount,
				Outstanding: pricing.Round2(amount - prior.Amount),
			}
			return nil
		}

		// Best effort: take whatever is there, never fail on an empty
		// wallet. The remainder becomes the caller's debt to record.
		collected := amount
		if payer.AvailableBalance < collected {
			collected = pricing.Round2(payer.AvailableBalance)
		}
		if collected <= 0 {
			result = &ShortfallResult{Outstanding: amount}
			return nil
		}

		fee := pricing.Round2(collected * platformFeeRate)
		payout := pricing.Round2(collected - fee)

		payer.AvailableBalance = pricing.Round2(payer.AvailableBalance - collected)
		platform.AvailableBalance = pricing.Round2(platform.AvailableBalance + fee)
		recipient.AvailableBalance = pricing.Round2(recipient.AvailableBalance + payout)
		for _, w := range []*Wallet{payer, platform, recipient} {
			if err := tx.SaveWallet(ctx, w); err != nil {
				return err
			}
		}

		debitEntry := &Transaction{
			WalletID:     payer.ID,
			UserID:       payer.UserID,
			Kind:         KindDebit,
			Status:       StatusCompleted,
			Amount:       collected,
			ReferenceID:  refID,
			BalanceAfter: payer.AvailableBalance,
			Description:  "overtime shortfall",
		}
		feeEntry := &Transaction{
			WalletID:     platform.ID,
			UserID:       platform.UserID,
			Kind:         KindCredit,
			Status:       StatusCompleted,
			Amount:       fee,
			ReferenceID:  refID + ":fee",
			CaptureRef:   refID,
			BalanceAfter: platform.AvailableBalance,
			Description:  "platform fee",
		}
		payoutEntry := &Transaction{
			WalletID:     recipient.ID,
			UserID:       recipient.UserID,
			Kind:         KindCredit,
			Status:       StatusCompleted,
			Amount:       payout,
			ReferenceID:  refID + ":payout",
			CaptureRef:   refID,
			BalanceAfter: recipient.AvailableBalance,
			Description:  "landlord payout",
		}
		for _, e := range []*Transaction{debitEntry, feeEntry, payoutEntry} {
			if err := tx.CreateEntry(ctx, e); err != nil {
				return err
			}
		}

		result = &ShortfallResult{
			DebitEntry:  debitEntry,
			FeeEntry:    feeEntry,
			PayoutEntry: payoutEntry,
			Collected:   collected,
			Outstanding: pricing.Round2(amount - collected),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RecordDebt(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*Transaction, error) {
	amount = pricing.Round2(amount)
	if amount <= 0 {
		return nil, errInvalidAmount(amount)
	}

	var entry *Transaction
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		w, err := tx.GetOrCreateWalletForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}
		if prior, ok := replayOf(ctx, tx, w.ID, refID); ok {
			entry = prior
			return nil
		}

		entry = &Transaction{
			WalletID:     w.ID,
			UserID:       userID,
			Kind:         KindDebt,
			Status:       StatusOpen,
			Amount:       amount,
			ReferenceID:  refID,
			BalanceAfter: w.AvailableBalance,
			Description:  description,
		}
		return tx.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) RequestPayout(ctx context.Context, userID uuid.UUID, amount float64, refID string) (*Transaction, error) {
	amount = pricing.Round2(amount)
	if amount <= 0 {
		return nil, errInvalidAmount(amount)
	}

	var entry *Transaction
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		w, err := tx.GetOrCreateWalletForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}
		if prior, ok := replayOf(ctx, tx, w.ID, refID); ok {
			entry = prior
			return nil
		}
		if w.AvailableBalance < amount {
			return errInsufficientFunds(w.AvailableBalance, amount)
		}

		w.AvailableBalance = pricing.Round2(w.AvailableBalance - amount)
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}

		entry = &Transaction{
			WalletID:     w.ID,
			UserID:       userID,
			Kind:         KindTransferOut,
			Status:       StatusPendingApproval,
			Amount:       amount,
			ReferenceID:  refID,
			BalanceAfter: w.AvailableBalance,
			Description:  "payout request awaiting approval",
		}
		return tx.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) GetBalances(ctx context.Context, userID uuid.UUID, withTransactions bool) (*Balances, error) {
	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Balances{}, nil
		}
		return nil, err
	}

	b := &Balances{
		AvailableBalance: w.AvailableBalance,
		HeldAmount:       w.HeldAmount,
		TotalBalance:     w.TotalBalance(),
	}
	if withTransactions {
		entries, err := s.repo.ListByUser(ctx, userID, 20)
		if err != nil {
			return nil, err
		}
		b.Transactions = entries
	}
	return b, nil
}

// captureSplit returns the platform's share of the original capture and the
// landlord who received the payout, read back from the ledger.
func (s *service) captureSplit(ctx context.Context, tx Repository, captureRef string, captured float64) (float64, uuid.UUID, error) {
	platformWallet, err := tx.GetWallet(ctx, s.platformAccountID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, uuid.Nil, err
	}

	var platformShare float64
	var recipientID uuid.UUID
	if platformWallet != nil {
		if feeEntry, err := tx.FindByReferenceID(ctx, platformWallet.ID, captureRef+":fee"); err == nil {
			if captured > 0 {
				platformShare = feeEntry.Amount / captured
			}
		}
	}

	payoutEntry, err := tx.FindPayoutEntry(ctx, captureRef)
	if err != nil {
		return 0, uuid.Nil, apperr.Wrap(apperr.KindInternal, "capture payout entry missing", err)
	}
	recipientID = payoutEntry.UserID

	return platformShare, recipientID, nil
}

// lockWallets acquires write locks on the distinct wallets of the given
// users in ascending user-id order and returns them keyed by user id.
func lockWallets(ctx context.Context, tx Repository, userIDs ...uuid.UUID) (map[uuid.UUID]*Wallet, error) {
	seen := make(map[uuid.UUID]bool, len(userIDs))
	distinct := make([]uuid.UUID, 0, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}
	sort.Slice(distinct, func(i, j int) bool {
		return distinct[i].String() < distinct[j].String()
	})

	wallets := make(map[uuid.UUID]*Wallet, len(distinct))
	for _, id := range distinct {
		w, err := tx.GetOrCreateWalletForUpdate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock wallet %s: %w", id, err)
		}
		wallets[id] = w
	}
	return wallets, nil
}
