package bookings

import (
	"time"

	"parktayo/internal/pricing"
	"parktayo/internal/shared/apperr"

	"github.com/google/uuid"
)

// Booking is the central aggregate. It owns its parking session and a frozen
// pricing snapshot; funds and capacity are mutated only in lockstep with
// status transitions.
type Booking struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	SpaceID    uuid.UUID `gorm:"type:uuid;not null;index" json:"space_id"`
	LandlordID uuid.UUID `gorm:"type:uuid;not null;index" json:"landlord_id"`
	VehicleID  uuid.UUID `gorm:"type:uuid;not null" json:"vehicle_id"`

	Mode   Mode   `gorm:"type:varchar(20);not null" json:"mode"`
	Status Status `gorm:"type:varchar(20);not null;index" json:"status"`

	// Arrival contract window.
	StartTime                time.Time `gorm:"not null" json:"start_time"`
	EndTime                  time.Time `gorm:"not null" json:"end_time"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes"`
	WindowEndTime            time.Time `json:"window_end_time"`

	// Arrival prediction. NoShowCheckTime is computed exactly once at
	// acceptance: startTime + etaMinutes + gracePeriodMinutes.
	ETAMinutes         int        `json:"eta_minutes"`
	ETASource          string     `json:"eta_source,omitempty"`
	GracePeriodMinutes int        `json:"grace_period_minutes"`
	NoShowCheckTime    *time.Time `json:"no_show_check_time,omitempty"`

	// Approach state, persisted so tracker restarts can rehydrate.
	HasEnteredApproachZone bool       `gorm:"default:false" json:"has_entered_approach_zone"`
	FirstApproachAt        *time.Time `json:"first_approach_at,omitempty"`

	// Parking session. SessionStartTime is set iff status is parked or a
	// later terminal state reached through parked.
	SessionStartTime      *time.Time `json:"session_start_time,omitempty"`
	SessionEndTime        *time.Time `json:"session_end_time,omitempty"`
	ActualDurationMinutes int        `json:"actual_duration_minutes"`
	OvertimeMinutes       int        `json:"overtime_minutes"`
	IsWithinWindow        bool       `json:"is_within_window"`

	// Pricing snapshot frozen at acceptance.
	BasePricePer3Hours  float64 `json:"base_price_per_3_hours"`
	OvertimeRatePerHour float64 `json:"overtime_rate_per_hour"`
	DailyRate           float64 `json:"daily_rate"`
	SurgeMultiplier     float64 `gorm:"default:1.0" json:"surge_multiplier"`
	PlatformFeeRate     float64 `json:"platform_fee_rate"`
	SurgePlatformShare  float64 `json:"surge_platform_share"`
	PricingTimezone     string  `json:"pricing_timezone"`

	// Funds.
	QuotedAmount float64 `json:"quoted_amount"`
	HeldAmount   float64 `json:"held_amount"`
	FinalAmount  float64 `json:"final_amount"`

	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Booking) TableName() string {
	return "bookings"
}

// HoldRef is the wallet reference id of the escrow hold.
func (b *Booking) HoldRef() string {
	return b.ID.String() + ":hold"
}

// CaptureRef is the wallet reference id of the checkout settlement.
func (b *Booking) CaptureRef() string {
	return b.ID.String() + ":capture"
}

// PenaltyRef is the wallet reference id of a no-show penalty capture.
func (b *Booking) PenaltyRef() string {
	return b.ID.String() + ":penalty"
}

// ShortfallRef is the wallet reference id of an overtime shortfall debit.
func (b *Booking) ShortfallRef() string {
	return b.ID.String() + ":shortfall"
}

// DebtRef is the wallet reference id of an uncollected shortfall debt entry.
func (b *Booking) DebtRef() string {
	return b.ID.String() + ":debt"
}

// PricingSnapshot reconstructs the frozen snapshot for the pricing engine.
func (b *Booking) PricingSnapshot() pricing.Snapshot {
	return pricing.Snapshot{
		PricePer3Hours:      b.BasePricePer3Hours,
		OvertimeRatePerHour: b.OvertimeRatePerHour,
		DailyRate:           b.DailyRate,
		SurgeMultiplier:     b.SurgeMultiplier,
		PlatformFeeRate:     b.PlatformFeeRate,
		SurgePlatformShare:  b.SurgePlatformShare,
		Timezone:            b.PricingTimezone,
	}
}

// PlannedMinutes is the user's declared parking duration.
func (b *Booking) PlannedMinutes() int {
	return int(b.EndTime.Sub(b.StartTime).Minutes())
}

// transitionError explains an illegal status edge.
func transitionError(from, to Status) error {
	return apperr.Newf(apperr.KindConflict, "illegal booking transition %s -> %s", from, to)
}
