package pricing

import (
	"math"
	"time"
)

// StandardWindowMinutes is the span billed at the full 3-hour base rate.
// Shorter stays are not prorated.
const StandardWindowMinutes = 180

// dailyCapThresholdMinutes is the contiguous parked span after which the
// daily rate applies, when the landlord has set one.
const dailyCapThresholdMinutes = 8 * 60

// DefaultPlatformFeeRate is used when a snapshot carries no explicit rate.
const DefaultPlatformFeeRate = 0.10

// Round2 rounds a currency amount to two decimals using banker's rounding.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// EffectiveBase returns the base price with any surge multiplier applied.
func (s Snapshot) EffectiveBase() float64 {
	if s.SurgeMultiplier > 1 {
		return s.PricePer3Hours * s.SurgeMultiplier
	}
	return s.PricePer3Hours
}

// surgeDelta is the portion of the effective base attributable to surge.
func (s Snapshot) surgeDelta() float64 {
	if s.SurgeMultiplier > 1 {
		return s.PricePer3Hours * (s.SurgeMultiplier - 1)
	}
	return 0
}

func (s Snapshot) feeRate() float64 {
	if s.PlatformFeeRate > 0 {
		return s.PlatformFeeRate
	}
	return DefaultPlatformFeeRate
}

// OvertimeHours returns the whole-hour increments billed beyond the standard
// window. Partial hours round up.
func OvertimeHours(durationMinutes int) int {
	if durationMinutes <= StandardWindowMinutes {
		return 0
	}
	return int(math.Ceil(float64(durationMinutes-StandardWindowMinutes) / 60))
}

// QuoteFor computes the full charge breakdown for a parked duration against a
// pricing snapshot. startAt is the session start in wall-clock time; it is
// only consulted for the daily-cap calendar-day rule.
//
// Contract:
//   - first 180 minutes cost the effective base in full;
//   - minutes 181+ bill in whole-hour increments at the overtime rate;
//   - a contiguous session over 8 hours inside one calendar day in the
//     space's timezone is capped at the daily rate when one is set;
//   - payout = quoted − fee after rounding, so quoted == fee + payout holds
//     to the centavo.
func QuoteFor(s Snapshot, durationMinutes int, startAt time.Time) Quote {
	if durationMinutes < 0 {
		durationMinutes = 0
	}

	overtimeHours := OvertimeHours(durationMinutes)
	amount := s.EffectiveBase() + float64(overtimeHours)*s.OvertimeRatePerHour

	capApplied := false
	if s.DailyRate > 0 &&
		durationMinutes > dailyCapThresholdMinutes &&
		withinOneCalendarDay(startAt, durationMinutes, s.Timezone) &&
		amount > s.DailyRate {
		amount = s.DailyRate
		capApplied = true
	}

	quoted := Round2(amount)
	fee := Round2(quoted*s.feeRate() + s.surgeDelta()*s.SurgePlatformShare)
	if fee > quoted {
		fee = quoted
	}

	return Quote{
		QuotedAmount:         quoted,
		PlatformFee:          fee,
		LandlordPayout:       Round2(quoted - fee),
		ExpectedOvertimeRate: s.OvertimeRatePerHour,
		OvertimeHours:        overtimeHours,
		DailyCapApplied:      capApplied,
	}
}

// SplitAmount divides an arbitrary captured amount into platform fee and
// landlord payout using the snapshot's fee rate. Used when the capture is
// smaller than the quote (e.g. a shortfall capped by wallet balance).
func SplitAmount(s Snapshot, amount float64) Split {
	amount = Round2(amount)
	fee := Round2(amount * s.feeRate())
	return Split{
		Amount:         amount,
		PlatformFee:    fee,
		LandlordPayout: Round2(amount - fee),
	}
}

// withinOneCalendarDay reports whether the session [startAt, startAt+d] stays
// inside a single calendar day in the given IANA timezone. An unknown
// timezone falls back to UTC.
func withinOneCalendarDay(startAt time.Time, durationMinutes int, tz string) bool {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	start := startAt.In(loc)
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	return sy == ey && sm == em && sd == ed
}
