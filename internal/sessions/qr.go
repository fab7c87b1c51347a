package sessions

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/yeqown/go-qrcode"

	"parktayo/internal/bookings"
	"parktayo/internal/shared/apperr"
	"parktayo/internal/shared/constants"
)

// NonceStore holds single-use checkout nonces. Take consumes: a second
// redemption of the same nonce must fail.
type NonceStore interface {
	Put(ctx context.Context, nonce string, bookingID uuid.UUID, ttl time.Duration) error
	Take(ctx context.Context, nonce string) (uuid.UUID, error)
}

type redisNonceStore struct {
	client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) NonceStore {
	return &redisNonceStore{client: client}
}

func (s *redisNonceStore) Put(ctx context.Context, nonce string, bookingID uuid.UUID, ttl time.Duration) error {
	return s.client.Set(ctx, constants.QRNonceKey(nonce), bookingID.String(), ttl).Err()
}

func (s *redisNonceStore) Take(ctx context.Context, nonce string) (uuid.UUID, error) {
	val, err := s.client.GetDel(ctx, constants.QRNonceKey(nonce)).Result()
	if err == redis.Nil {
		return uuid.Nil, apperr.New(apperr.KindInvalidInput, "QR code expired or already used")
	}
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.KindDependencyUnavailable, "nonce store unavailable", err)
	}
	bookingID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.KindInternal, "corrupt nonce entry", err)
	}
	return bookingID, nil
}

// QRTicket is a rendered single-use checkout code.
type QRTicket struct {
	BookingID   uuid.UUID `json:"booking_id"`
	Nonce       string    `json:"nonce"`
	ExpiresAt   time.Time `json:"expires_at"`
	Image       []byte    `json:"-"`
	ContentType string    `json:"-"`
}

// qrPayload is what the client's scanner reads back.
type qrPayload struct {
	Kind      string    `json:"kind"`
	BookingID uuid.UUID `json:"booking_id"`
	Nonce     string    `json:"nonce"`
}

const qrPayloadKind = "parktayo.checkout"

func (s *service) GenerateQR(ctx context.Context, landlordID, bookingID uuid.UUID) (*QRTicket, error) {
	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "booking not found", err)
	}
	if booking.LandlordID != landlordID {
		return nil, apperr.New(apperr.KindForbidden, "booking belongs to another landlord")
	}
	if booking.Status != bookings.StatusParked {
		return nil, apperr.Newf(apperr.KindConflict, "booking is %s, no running session", booking.Status)
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to generate nonce", err)
	}
	if err := s.nonces.Put(ctx, nonce, bookingID, constants.TTL_QR_NONCE); err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyUnavailable, "nonce store unavailable", err)
	}

	payload, err := json.Marshal(qrPayload{Kind: qrPayloadKind, BookingID: bookingID, Nonce: nonce})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to encode QR payload", err)
	}

	qrc, err := qrcode.New(string(payload))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to render QR code", err)
	}
	var buf bytes.Buffer
	if err := qrc.SaveTo(&buf); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to render QR code", err)
	}

	s.log.Info("checkout QR issued", "booking_id", bookingID, "ttl", constants.TTL_QR_NONCE)
	return &QRTicket{
		BookingID:   bookingID,
		Nonce:       nonce,
		ExpiresAt:   s.now().Add(constants.TTL_QR_NONCE),
		Image:       buf.Bytes(),
		ContentType: "image/jpeg",
	}, nil
}

func (s *service) RedeemQR(ctx context.Context, userID uuid.UUID, nonce string) (*CheckoutResult, error) {
	bookingID, err := s.nonces.Take(ctx, nonce)
	if err != nil {
		return nil, err
	}

	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "booking not found", err)
	}
	if booking.UserID != userID {
		return nil, apperr.New(apperr.KindForbidden, "QR code is bound to another user's booking")
	}

	return s.settle(ctx, bookingID, s.now(), TriggerQR)
}

func newNonce() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
