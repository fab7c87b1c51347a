package constants

import (
	"fmt"
	"time"
)

// Redis key and TTL catalog for the ParkTayo booking core.
// Pattern: parktayo:{module}:{operation}:{identifier}

// ================== TTL DURATIONS ==================

const (
	// Space metadata changes rarely
	TTL_SPACE_DETAIL = 2 * time.Hour

	// Live availability is real-time sensitive
	TTL_SPACE_AVAILABILITY = 30 * time.Second

	// Booking reads during an active session
	TTL_BOOKING_DETAIL = 2 * time.Minute

	// Single-use checkout QR nonce
	TTL_QR_NONCE = 5 * time.Minute

	// Scheduler leader advisory lock
	TTL_LEADER_LOCK = 30 * time.Second
)

// ================== KEY PREFIXES ==================

const (
	CACHE_PREFIX = "parktayo"
)

// Space keys
const (
	KEY_SPACE_DETAIL = CACHE_PREFIX + ":spaces:detail:" // + space-id
	KEY_SPACE_SPOTS  = CACHE_PREFIX + ":spaces:spots:"  // + space-id (live counter)
	KEY_SPACE_LIST   = CACHE_PREFIX + ":spaces:list"    // listings cache
)

// Booking keys
const (
	KEY_BOOKING_DETAIL = CACHE_PREFIX + ":bookings:detail:" // + booking-id
)

// Checkout QR nonce keys
const (
	KEY_QR_NONCE = CACHE_PREFIX + ":qr:nonce:" // + nonce
)

// Scheduler coordination keys
const (
	KEY_NO_SHOW_LEADER = CACHE_PREFIX + ":noshow:leader"
)

// SpaceDetailKey builds the cache key for one space.
func SpaceDetailKey(spaceID string) string {
	return KEY_SPACE_DETAIL + spaceID
}

// SpaceSpotsKey builds the live-availability counter key for one space.
func SpaceSpotsKey(spaceID string) string {
	return KEY_SPACE_SPOTS + spaceID
}

// BookingDetailKey builds the cache key for one booking.
func BookingDetailKey(bookingID string) string {
	return KEY_BOOKING_DETAIL + bookingID
}

// QRNonceKey builds the single-use nonce key for QR checkout.
func QRNonceKey(nonce string) string {
	return KEY_QR_NONCE + nonce
}

// SpaceListKey builds the paginated listings cache key.
func SpaceListKey(page, limit int) string {
	return fmt.Sprintf("%s:page:%d:limit:%d", KEY_SPACE_LIST, page, limit)
}
