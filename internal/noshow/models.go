package noshow

import (
	"time"

	"github.com/google/uuid"
)

// EntryStatus is the scheduled evaluation's lifecycle.
type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusFired   EntryStatus = "fired"
	StatusCleared EntryStatus = "cleared"
	StatusFailed  EntryStatus = "failed"
)

// ScheduledNoShow is one deferred no-show evaluation. One row per booking;
// re-arms and retries mutate this row, they never create new ones.
type ScheduledNoShow struct {
	ID        uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BookingID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:unique_no_show_per_booking" json:"booking_id"`
	FireAt    time.Time   `gorm:"not null;index" json:"fire_at"`
	Status    EntryStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	// Attempt counts evaluation failures driving the retry backoff.
	Attempt int `gorm:"default:0" json:"attempt"`

	// ReArmCount counts early-fire re-arms (clock skew, spurious wakes).
	// Capped at 2: the third early evaluation proceeds to no-show.
	ReArmCount int `gorm:"default:0" json:"re_arm_count"`

	ClearedReason string `json:"cleared_reason,omitempty"`
	LastError     string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ScheduledNoShow) TableName() string {
	return "scheduled_no_shows"
}
