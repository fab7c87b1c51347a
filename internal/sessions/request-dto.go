package sessions

// QRCheckoutRequest redeems a scanned checkout code.
type QRCheckoutRequest struct {
	Nonce string `json:"nonce" binding:"required,len=32,hexadecimal"`
}
