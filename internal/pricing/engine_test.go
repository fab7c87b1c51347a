package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func snapshot() Snapshot {
	return Snapshot{
		PricePer3Hours:      50.00,
		OvertimeRatePerHour: 50.0 / 3,
		DailyRate:           400.00,
		SurgeMultiplier:     1.0,
		PlatformFeeRate:     0.10,
		SurgePlatformShare:  0.5,
		Timezone:            "Asia/Manila",
	}
}

func manila(hour int) time.Time {
	loc, _ := time.LoadLocation("Asia/Manila")
	return time.Date(2025, 6, 10, hour, 0, 0, 0, loc)
}

func TestQuoteStandardWindow(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
	}{
		{"zero duration still charges base", 0},
		{"short stay not prorated", 45},
		{"exactly three hours", 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := QuoteFor(snapshot(), tt.minutes, manila(9))
			assert.Equal(t, 50.00, q.QuotedAmount)
			assert.Equal(t, 5.00, q.PlatformFee)
			assert.Equal(t, 45.00, q.LandlordPayout)
			assert.Equal(t, 0, q.OvertimeHours)
		})
	}
}

func TestQuoteOvertime(t *testing.T) {
	tests := []struct {
		name     string
		minutes  int
		hours    int
		expected float64
	}{
		{"one minute over bills a full hour", 181, 1, 66.67},
		{"210 minutes bills one overtime hour", 210, 1, 66.67},
		{"241 minutes bills two hours", 241, 2, 83.33},
		{"270 minutes bills two hours", 270, 2, 83.33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := QuoteFor(snapshot(), tt.minutes, manila(9))
			assert.Equal(t, tt.hours, q.OvertimeHours)
			assert.InDelta(t, tt.expected, q.QuotedAmount, 0.001)
			assert.InDelta(t, q.QuotedAmount, q.PlatformFee+q.LandlordPayout, 0.001,
				"quoted must equal fee plus payout")
		})
	}
}

func TestQuoteDailyCap(t *testing.T) {
	s := snapshot()
	s.PricePer3Hours = 150.00
	s.OvertimeRatePerHour = 50.00

	// 10 hours starting at 08:00 stays within one Manila calendar day:
	// 150 + 7x50 = 500, capped at the 400 daily rate.
	q := QuoteFor(s, 600, manila(8))
	assert.True(t, q.DailyCapApplied)
	assert.Equal(t, 400.00, q.QuotedAmount)

	// Same span crossing midnight is not capped.
	q = QuoteFor(s, 600, manila(20))
	assert.False(t, q.DailyCapApplied)
	assert.Equal(t, 500.00, q.QuotedAmount)

	// No landlord daily rate, no cap.
	s.DailyRate = 0
	q = QuoteFor(s, 600, manila(8))
	assert.False(t, q.DailyCapApplied)
	assert.Equal(t, 500.00, q.QuotedAmount)
}

func TestQuoteDailyCapOnlyWhenCheaper(t *testing.T) {
	s := snapshot()
	s.DailyRate = 1000.00

	q := QuoteFor(s, 600, manila(8))
	assert.False(t, q.DailyCapApplied)
	assert.Less(t, q.QuotedAmount, 1000.00)
}

func TestQuoteSurgeSplit(t *testing.T) {
	s := snapshot()
	s.SurgeMultiplier = 1.5

	q := QuoteFor(s, 120, manila(9))
	// Effective base 75.00: surge delta 25.00, platform keeps 10% of the
	// quote plus half the delta.
	assert.Equal(t, 75.00, q.QuotedAmount)
	assert.InDelta(t, 20.00, q.PlatformFee, 0.001)
	assert.InDelta(t, 55.00, q.LandlordPayout, 0.001)
	assert.InDelta(t, q.QuotedAmount, q.PlatformFee+q.LandlordPayout, 0.001)
}

func TestRound2Bankers(t *testing.T) {
	assert.Equal(t, 83.33, Round2(83.333333))
	// Exact .5 cents round to the even centavo.
	assert.Equal(t, 0.12, Round2(0.125))
	assert.Equal(t, 0.38, Round2(0.375))
	assert.Equal(t, 16.67, Round2(50.0/3))
}

func TestSplitAmount(t *testing.T) {
	sp := SplitAmount(snapshot(), 60.00)
	assert.Equal(t, 60.00, sp.Amount)
	assert.Equal(t, 6.00, sp.PlatformFee)
	assert.Equal(t, 54.00, sp.LandlordPayout)
}

func TestOvertimeHours(t *testing.T) {
	assert.Equal(t, 0, OvertimeHours(179))
	assert.Equal(t, 0, OvertimeHours(180))
	assert.Equal(t, 1, OvertimeHours(181))
	assert.Equal(t, 1, OvertimeHours(240))
	assert.Equal(t, 2, OvertimeHours(241))
}
