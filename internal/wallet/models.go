package wallet

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds one user's funds. TotalBalance is derived, never stored.
type Wallet struct {
	ID               uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	AvailableBalance float64   `gorm:"not null;default:0" json:"available_balance"`
	HeldAmount       float64   `gorm:"not null;default:0" json:"held_amount"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TotalBalance is available plus held.
func (w *Wallet) TotalBalance() float64 {
	return w.AvailableBalance + w.HeldAmount
}

func (Wallet) TableName() string {
	return "wallets"
}

// Kind is the ledger entry type.
type Kind string

const (
	KindCredit      Kind = "credit"
	KindDebit       Kind = "debit"
	KindHold        Kind = "hold"
	KindRelease     Kind = "release"
	KindCapture     Kind = "capture"
	KindRefund      Kind = "refund"
	KindTransferOut Kind = "transfer_out"
	KindDebt        Kind = "debt"
)

// EntryStatus tracks the lifecycle of entries that are not terminal on
// creation: holds await release or capture, payouts await admin approval,
// debts await collection.
type EntryStatus string

const (
	StatusCompleted       EntryStatus = "completed"
	StatusActive          EntryStatus = "active"
	StatusReleased        EntryStatus = "released"
	StatusCaptured        EntryStatus = "captured"
	StatusPendingApproval EntryStatus = "pending_approval"
	StatusOpen            EntryStatus = "open"
)

// Transaction is one append-only ledger entry. Entries are never updated
// except for the status field of holds, payout requests and debts.
//
// ReferenceID enforces idempotency: a non-empty reference id may appear once
// per wallet (partial unique index, see database.MigrateConstraints). Entries
// without a reference id are exempt.
type Transaction struct {
	ID           uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WalletID     uuid.UUID   `gorm:"type:uuid;index;not null" json:"wallet_id"`
	UserID       uuid.UUID   `gorm:"type:uuid;index;not null" json:"user_id"`
	Kind         Kind        `gorm:"type:varchar(20);not null" json:"kind"`
	Status       EntryStatus `gorm:"type:varchar(20);not null;default:'completed'" json:"status"`
	Amount       float64     `gorm:"not null" json:"amount"`
	ReferenceID  string      `gorm:"index" json:"reference_id,omitempty"`
	HoldRef      string      `gorm:"index" json:"hold_ref,omitempty"`
	CaptureRef   string      `gorm:"index" json:"capture_ref,omitempty"`
	BalanceAfter float64     `json:"balance_after"`
	Description  string      `json:"description,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	// Replayed marks an idempotent replay of a previously applied entry.
	// Not persisted.
	Replayed bool `gorm:"-" json:"replayed,omitempty"`
}

func (Transaction) TableName() string {
	return "wallet_transactions"
}

// CaptureResult is the ledger outcome of converting a hold into a settlement.
type CaptureResult struct {
	CaptureEntry *Transaction `json:"capture_entry"`
	FeeEntry     *Transaction `json:"fee_entry"`
	PayoutEntry  *Transaction `json:"payout_entry"`
	// ReleasedResidual is the part of the hold returned to the payer.
	ReleasedResidual float64 `json:"released_residual"`
}

// ShortfallResult is the ledger outcome of a best-effort shortfall
// collection. Collected plus Outstanding always equals the amount owed;
// the entry fields are nil when nothing could be collected.
type ShortfallResult struct {
	DebitEntry  *Transaction `json:"debit_entry,omitempty"`
	FeeEntry    *Transaction `json:"fee_entry,omitempty"`
	PayoutEntry *Transaction `json:"payout_entry,omitempty"`
	Collected   float64      `json:"collected"`
	Outstanding float64      `json:"outstanding"`
}

// Balances is the read-model returned to clients.
type Balances struct {
	AvailableBalance float64       `json:"available_balance"`
	HeldAmount       float64       `json:"held_amount"`
	TotalBalance     float64       `json:"total_balance"`
	Transactions     []Transaction `json:"transactions,omitempty"`
}
