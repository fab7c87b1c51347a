package spaces

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"parktayo/internal/pricing"

	"github.com/google/uuid"
)

// DayWindow is one day's open/close pair in "HH:MM" local wall-clock time.
type DayWindow struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// OperatingHours is the persisted schedule: either open around the clock or
// a day-keyed map (lowercase weekday names). Days absent from the schedule
// are closed.
type OperatingHours struct {
	Is24Hours bool                 `json:"is24Hours"`
	Schedule  map[string]DayWindow `json:"schedule,omitempty"`
}

func (oh OperatingHours) Value() (driver.Value, error) {
	return json.Marshal(oh)
}

func (oh *OperatingHours) Scan(value interface{}) error {
	if value == nil {
		*oh = OperatingHours{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, oh)
	case string:
		return json.Unmarshal([]byte(v), oh)
	default:
		return fmt.Errorf("unsupported operating hours column type %T", value)
	}
}

// ParkingSpace is a landlord listing with live capacity. availableSpots is
// authoritative in the database; Redis mirrors it for cheap reads.
type ParkingSpace struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LandlordID uuid.UUID `gorm:"type:uuid;not null;index" json:"landlord_id"`
	Name       string    `gorm:"not null" json:"name"`
	Address    string    `json:"address"`
	Latitude   float64   `gorm:"not null" json:"latitude"`
	Longitude  float64   `gorm:"not null" json:"longitude"`

	TotalSpots     int `gorm:"not null" json:"total_spots"`
	AvailableSpots int `gorm:"not null" json:"available_spots"`

	PricePer3Hours  float64 `gorm:"not null" json:"price_per_3_hours"`
	DailyRate       float64 `gorm:"default:0" json:"daily_rate"`
	SurgeMultiplier float64 `gorm:"default:1.0" json:"surge_multiplier"`

	OperatingHours OperatingHours `gorm:"type:jsonb" json:"operating_hours"`
	Timezone       string         `gorm:"default:'Asia/Manila'" json:"timezone"`

	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ParkingSpace) TableName() string {
	return "parking_spaces"
}

// OvertimeRatePerHour is derived from the 3-hour base, never stored.
func (s *ParkingSpace) OvertimeRatePerHour() float64 {
	return s.PricePer3Hours / 3
}

// PricingSnapshot freezes the rates a booking will settle against. The fee
// rate and surge share come from platform policy, not the listing.
func (s *ParkingSpace) PricingSnapshot(platformFeeRate, surgePlatformShare float64) pricing.Snapshot {
	return pricing.Snapshot{
		PricePer3Hours:      s.PricePer3Hours,
		OvertimeRatePerHour: s.OvertimeRatePerHour(),
		DailyRate:           s.DailyRate,
		SurgeMultiplier:     s.SurgeMultiplier,
		PlatformFeeRate:     platformFeeRate,
		SurgePlatformShare:  surgePlatformShare,
		Timezone:            s.Timezone,
	}
}
