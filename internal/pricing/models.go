package pricing

// Snapshot is the immutable pricing state captured on a booking at creation.
// All later charges for that booking are computed against the snapshot, never
// against the live space record.
type Snapshot struct {
	PricePer3Hours      float64 `json:"price_per_3_hours"`
	OvertimeRatePerHour float64 `json:"overtime_rate_per_hour"`
	DailyRate           float64 `json:"daily_rate"`
	SurgeMultiplier     float64 `json:"surge_multiplier"`
	PlatformFeeRate     float64 `json:"platform_fee_rate"`
	SurgePlatformShare  float64 `json:"surge_platform_share"`
	Timezone            string  `json:"timezone"`
}

// Quote is the computed charge breakdown for a duration.
type Quote struct {
	QuotedAmount         float64 `json:"quoted_amount"`
	PlatformFee          float64 `json:"platform_fee"`
	LandlordPayout       float64 `json:"landlord_payout"`
	ExpectedOvertimeRate float64 `json:"expected_overtime_rate"`
	OvertimeHours        int     `json:"overtime_hours"`
	DailyCapApplied      bool    `json:"daily_cap_applied"`
}

// Split is a fee/payout division of an arbitrary amount, used when the
// captured amount differs from the quoted amount (partial captures).
type Split struct {
	Amount         float64 `json:"amount"`
	PlatformFee    float64 `json:"platform_fee"`
	LandlordPayout float64 `json:"landlord_payout"`
}
