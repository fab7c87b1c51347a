package wallet

// TopupRequest credits a driver wallet from an external payment channel.
// ReferenceID should carry the payment provider's transaction id so retried
// webhooks replay instead of double-crediting.
type TopupRequest struct {
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	ReferenceID string  `json:"reference_id" binding:"required"`
	Channel     string  `json:"channel" binding:"omitempty,oneof=gcash maya card cash"`
}

// PayoutRequest asks to move landlord earnings off-platform.
type PayoutRequest struct {
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	ReferenceID string  `json:"reference_id" binding:"required"`
}
