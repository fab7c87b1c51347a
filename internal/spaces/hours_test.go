package spaces

import (
	"testing"
	"time"

	"parktayo/internal/shared/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manilaTime(day, hour, minute int) time.Time {
	loc, _ := time.LoadLocation("Asia/Manila")
	// June 2025: the 2nd is a Monday.
	return time.Date(2025, 6, day, hour, minute, 0, 0, loc)
}

func scheduledSpace() *ParkingSpace {
	return &ParkingSpace{
		Timezone: "Asia/Manila",
		OperatingHours: OperatingHours{
			Schedule: map[string]DayWindow{
				"monday":  {Open: "06:00", Close: "22:00"},
				"tuesday": {Open: "06:00", Close: "22:00"},
			},
		},
	}
}

func TestValidateWindow24Hours(t *testing.T) {
	s := &ParkingSpace{
		Timezone:       "Asia/Manila",
		OperatingHours: OperatingHours{Is24Hours: true},
	}
	// Crosses midnight, still fine.
	err := s.ValidateWindow(manilaTime(2, 23, 0), manilaTime(3, 2, 0))
	assert.NoError(t, err)
}

func TestValidateWindowWithinSchedule(t *testing.T) {
	s := scheduledSpace()

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		kind  apperr.Kind
	}{
		{"inside monday hours", manilaTime(2, 9, 0), manilaTime(2, 12, 0), ""},
		{"exactly at the edges", manilaTime(2, 6, 0), manilaTime(2, 22, 0), ""},
		{"starts before open", manilaTime(2, 5, 30), manilaTime(2, 9, 0), apperr.KindOutsideOperatingHours},
		{"ends after close", manilaTime(2, 20, 0), manilaTime(2, 23, 0), apperr.KindOutsideOperatingHours},
		{"closed day", manilaTime(4, 9, 0), manilaTime(4, 12, 0), apperr.KindOutsideOperatingHours},
		{"crosses midnight", manilaTime(2, 21, 0), manilaTime(3, 1, 0), apperr.KindOutsideOperatingHours},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateWindow(tt.start, tt.end)
			if tt.kind == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.kind, apperr.KindOf(err))
			}
		})
	}
}

func TestValidateWindowRespectsSpaceTimezone(t *testing.T) {
	s := scheduledSpace()

	// 01:00 UTC on Monday is 09:00 Monday in Manila: inside hours.
	start := time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)
	assert.NoError(t, s.ValidateWindow(start, start.Add(2*time.Hour)))

	// 14:30 UTC on Monday is 22:30 Manila: past closing.
	late := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	err := s.ValidateWindow(late, late.Add(30*time.Minute))
	require.Error(t, err)
	assert.Equal(t, apperr.KindOutsideOperatingHours, apperr.KindOf(err))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, validateSchedule(OperatingHours{Is24Hours: true}))

	err := validateSchedule(OperatingHours{})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	err = validateSchedule(OperatingHours{Schedule: map[string]DayWindow{
		"funday": {Open: "06:00", Close: "22:00"},
	}})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	err = validateSchedule(OperatingHours{Schedule: map[string]DayWindow{
		"monday": {Open: "22:00", Close: "06:00"},
	}})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	assert.NoError(t, validateSchedule(OperatingHours{Schedule: map[string]DayWindow{
		"monday": {Open: "00:00", Close: "24:00"},
	}}))
}
