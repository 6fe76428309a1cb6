// Package socrates implements conference registration as an append-only
// event log. Commands decide on a fold of the log and answer with a new event;
// rejections are events too, never errors.
package socrates

import "time"

type EventType string

const (
	ReservationIssued     EventType = "ReservationIssued"
	ParticipantRegistered EventType = "ParticipantRegistered"
	ReservationRejected   EventType = "ReservationRejected"
	RegistrationRejected  EventType = "RegistrationRejected"
)

// Rejection reasons.
const (
	ReasonAlreadyReserved   = "already-reserved"
	ReasonAlreadyRegistered = "already-registered"
	ReasonFull              = "full"
)

// DefaultReservationWindow is how long an issued reservation stays active.
const DefaultReservationWindow = 30 * time.Minute

type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RoomType  string    `json:"roomType"`
	SessionID string    `json:"sessionId"`
	MemberID  string    `json:"memberId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func (e Event) IsRejection() bool {
	return e.Type == ReservationRejected || e.Type == RegistrationRejected
}
