package bookings

import (
	"strconv"
	"time"

	"parktayo/internal/eta"

	"github.com/google/uuid"
)

// FormatAmount renders a monetary value as a two-decimal string, the wire
// form for all amounts.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// BookingView is the wire shape of a booking. Monetary fields travel as
// decimal strings; durations as integer minutes.
type BookingView struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	SpaceID    uuid.UUID `json:"space_id"`
	LandlordID uuid.UUID `json:"landlord_id"`
	VehicleID  uuid.UUID `json:"vehicle_id"`
	Mode       Mode      `json:"mode"`
	Status     Status    `json:"status"`

	StartTime                time.Time  `json:"start_time"`
	EndTime                  time.Time  `json:"end_time"`
	EstimatedDurationMinutes int        `json:"estimated_duration_minutes"`
	WindowEndTime            time.Time  `json:"window_end_time"`
	ETAMinutes               int        `json:"eta_minutes"`
	GracePeriodMinutes       int        `json:"grace_period_minutes"`
	NoShowCheckTime          *time.Time `json:"no_show_check_time,omitempty"`

	HasEnteredApproachZone bool       `json:"has_entered_approach_zone"`
	FirstApproachAt        *time.Time `json:"first_approach_at,omitempty"`

	SessionStartTime      *time.Time `json:"session_start_time,omitempty"`
	SessionEndTime        *time.Time `json:"session_end_time,omitempty"`
	ActualDurationMinutes int        `json:"actual_duration_minutes"`
	OvertimeMinutes       int        `json:"overtime_minutes"`
	IsWithinWindow        bool       `json:"is_within_window"`

	QuotedAmount string `json:"quoted_amount"`
	HeldAmount   string `json:"held_amount"`
	FinalAmount  string `json:"final_amount,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewBookingView converts the aggregate to its wire shape.
func NewBookingView(b *Booking) *BookingView {
	view := &BookingView{
		ID:                       b.ID,
		UserID:                   b.UserID,
		SpaceID:                  b.SpaceID,
		LandlordID:               b.LandlordID,
		VehicleID:                b.VehicleID,
		Mode:                     b.Mode,
		Status:                   b.Status,
		StartTime:                b.StartTime,
		EndTime:                  b.EndTime,
		EstimatedDurationMinutes: b.EstimatedDurationMinutes,
		WindowEndTime:            b.WindowEndTime,
		ETAMinutes:               b.ETAMinutes,
		GracePeriodMinutes:       b.GracePeriodMinutes,
		NoShowCheckTime:          b.NoShowCheckTime,
		HasEnteredApproachZone:   b.HasEnteredApproachZone,
		FirstApproachAt:          b.FirstApproachAt,
		SessionStartTime:         b.SessionStartTime,
		SessionEndTime:           b.SessionEndTime,
		ActualDurationMinutes:    b.ActualDurationMinutes,
		OvertimeMinutes:          b.OvertimeMinutes,
		IsWithinWindow:           b.IsWithinWindow,
		QuotedAmount:             FormatAmount(b.QuotedAmount),
		HeldAmount:               FormatAmount(b.HeldAmount),
		CreatedAt:                b.CreatedAt,
	}
	if b.FinalAmount > 0 {
		view.FinalAmount = FormatAmount(b.FinalAmount)
	}
	return view
}

// CreateBookingResponse returns the created booking and the arrival
// estimate that sized its no-show window.
type CreateBookingResponse struct {
	Booking *BookingView `json:"booking"`
	ETA     eta.Estimate `json:"eta"`
}

type PaginatedBookings struct {
	Bookings   []BookingView `json:"bookings"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"total_pages"`
}
