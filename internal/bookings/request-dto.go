package bookings

import (
	"time"

	"github.com/google/uuid"
)

// CreateBookingRequest is shared by smart (book-now) and reservation
// creation. Times are ISO-8601 with offset; the driver's current position
// feeds the ETA oracle.
type CreateBookingRequest struct {
	SpaceID          uuid.UUID `json:"space_id" binding:"required"`
	VehicleID        uuid.UUID `json:"vehicle_id" binding:"required"`
	StartTime        time.Time `json:"start_time" binding:"required"`
	EndTime          time.Time `json:"end_time" binding:"required"`
	CurrentLatitude  float64   `json:"current_latitude"`
	CurrentLongitude float64   `json:"current_longitude"`
}
