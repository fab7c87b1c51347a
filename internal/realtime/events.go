package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names every message the booking core publishes.
type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingAccepted  EventType = "booking.accepted"
	EventBookingRejected  EventType = "booking.rejected"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingParked    EventType = "booking.parked"
	EventBookingNoShow    EventType = "booking.no_show"
	EventBookingCompleted EventType = "booking.completed"
	EventApproachEntered  EventType = "approach_entered"
	EventStalePresence    EventType = "stale_presence"
)

// Audience selects the topic an event lands on.
type Audience string

const (
	AudienceUser     Audience = "user"
	AudienceLandlord Audience = "landlord"
)

// Event is one real-time message. RecipientID doubles as the partition key,
// so every recipient sees their events in publish order.
type Event struct {
	ID          uuid.UUID              `json:"id"`
	Type        EventType              `json:"type"`
	Audience    Audience               `json:"audience"`
	RecipientID uuid.UUID              `json:"recipient_id"`
	BookingID   uuid.UUID              `json:"booking_id,omitempty"`
	SpaceID     uuid.UUID              `json:"space_id,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(eventType EventType, audience Audience, recipientID, bookingID uuid.UUID) *Event {
	return &Event{
		ID:          uuid.New(),
		Type:        eventType,
		Audience:    audience,
		RecipientID: recipientID,
		BookingID:   bookingID,
		CreatedAt:   time.Now(),
	}
}

// WithPayload attaches extra event data.
func (e *Event) WithPayload(payload map[string]interface{}) *Event {
	e.Payload = payload
	return e
}

// WithSpace tags the event with its space.
func (e *Event) WithSpace(spaceID uuid.UUID) *Event {
	e.SpaceID = spaceID
	return e
}

// PartitionKey routes all of one recipient's events to the same partition.
func (e *Event) PartitionKey() string {
	return e.RecipientID.String()
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
