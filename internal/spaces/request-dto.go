package spaces

import "github.com/google/uuid"

type CreateSpaceRequest struct {
	Name            string         `json:"name" binding:"required"`
	Address         string         `json:"address"`
	Latitude        float64        `json:"latitude" binding:"required"`
	Longitude       float64        `json:"longitude" binding:"required"`
	TotalSpots      int            `json:"total_spots" binding:"required,gt=0"`
	PricePer3Hours  float64        `json:"price_per_3_hours" binding:"required,gt=0"`
	DailyRate       float64        `json:"daily_rate" binding:"omitempty,gte=0"`
	SurgeMultiplier float64        `json:"surge_multiplier" binding:"omitempty,gte=1"`
	OperatingHours  OperatingHours `json:"operating_hours" binding:"required"`
	Timezone        string         `json:"timezone"`
}

type UpdateSpaceRequest struct {
	Name            *string         `json:"name"`
	Address         *string         `json:"address"`
	PricePer3Hours  *float64        `json:"price_per_3_hours"`
	DailyRate       *float64        `json:"daily_rate"`
	SurgeMultiplier *float64        `json:"surge_multiplier"`
	OperatingHours  *OperatingHours `json:"operating_hours"`
	IsActive        *bool           `json:"is_active"`
}

type PaginatedSpaces struct {
	Spaces     []ParkingSpace `json:"spaces"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

type AvailabilityResponse struct {
	SpaceID        uuid.UUID `json:"space_id"`
	TotalSpots     int       `json:"total_spots"`
	AvailableSpots int       `json:"available_spots"`
	// Source is "live" when served from the Redis mirror, "database" when
	// the mirror was cold.
	Source string `json:"source"`
}
