package bookings

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusParked    Status = "parked"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Mode distinguishes landlord-approved reservations from instant bookings.
type Mode string

const (
	ModeReservation Mode = "reservation"
	ModeBookNow     Mode = "book_now"
)

// transitions is the only legal edge set. Everything else is a Conflict.
var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusCancelled, StatusExpired},
	StatusAccepted: {StatusParked, StatusCancelled, StatusNoShow},
	StatusParked:   {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}
