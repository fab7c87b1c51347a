package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the storage contract for the wallet ledger. All mutating
// calls happen inside WithTx; implementations must make the locking calls
// block concurrent writers on the same wallet.
type Repository interface {
	// WithTx runs fn inside one storage transaction. The Repository passed
	// to fn is bound to that transaction.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	// GetOrCreateWalletForUpdate loads a wallet row with a write lock,
	// creating an empty wallet on first touch.
	GetOrCreateWalletForUpdate(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	SaveWallet(ctx context.Context, w *Wallet) error

	FindByReferenceID(ctx context.Context, walletID uuid.UUID, refID string) (*Transaction, error)
	FindHold(ctx context.Context, holdRef string) (*Transaction, error)
	FindCapture(ctx context.Context, captureRef string) (*Transaction, error)
	FindPayoutEntry(ctx context.Context, captureRef string) (*Transaction, error)
	SumRefunded(ctx context.Context, captureRef string) (float64, error)

	CreateEntry(ctx context.Context, entry *Transaction) error
	UpdateEntryStatus(ctx context.Context, entryID uuid.UUID, status EntryStatus) error

	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx})
	})
}

func (r *repository) GetOrCreateWalletForUpdate(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w = Wallet{UserID: userID}
		if err := r.db.WithContext(ctx).Create(&w).Error; err != nil {
			return nil, err
		}
		// Re-read under lock so the caller holds the row.
		err = r.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&w).Error
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repository) SaveWallet(ctx context.Context, w *Wallet) error {
	return r.db.WithContext(ctx).Save(w).Error
}

func (r *repository) FindByReferenceID(ctx context.Context, walletID uuid.UUID, refID string) (*Transaction, error) {
	if refID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var entry Transaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND reference_id = ?", walletID, refID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindHold(ctx context.Context, holdRef string) (*Transaction, error) {
	var entry Transaction
	err := r.db.WithContext(ctx).
		Where("kind = ? AND reference_id = ?", KindHold, holdRef).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindCapture(ctx context.Context, captureRef string) (*Transaction, error) {
	var entry Transaction
	err := r.db.WithContext(ctx).
		Where("kind = ? AND reference_id = ?", KindCapture, captureRef).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindPayoutEntry(ctx context.Context, captureRef string) (*Transaction, error) {
	var entry Transaction
	err := r.db.WithContext(ctx).
		Where("capture_ref = ? AND reference_id = ?", captureRef, captureRef+":payout").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) SumRefunded(ctx context.Context, captureRef string) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("kind = ? AND capture_ref = ?", KindRefund, captureRef).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) CreateEntry(ctx context.Context, entry *Transaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) UpdateEntryStatus(ctx context.Context, entryID uuid.UUID, status EntryStatus) error {
	return r.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ?", entryID).
		Update("status", status).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repository) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}
