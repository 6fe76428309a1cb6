package socrates

import "time"

// Processor decides commands against the events seen so far. It is not safe
// for concurrent use; the Service serialises through the stream position.
type Processor struct {
	Events []Event
	Window time.Duration
	// Limits caps registrations plus active reservations per room type.
	// Room types without entry are unlimited.
	Limits map[string]int
}

func NewProcessor(events []Event, window time.Duration, limits map[string]int) *Processor {
	if window <= 0 {
		window = DefaultReservationWindow
	}
	return &Processor{Events: events, Window: window, Limits: limits}
}

// IssueReservation reserves a place in roomType for the session. A session
// holds at most one active reservation across all room types.
func (p *Processor) IssueReservation(roomType, sessionID, memberID string, now time.Time) Event {
	e := Event{Timestamp: now, RoomType: roomType, SessionID: sessionID, MemberID: memberID}
	switch {
	case p.isRegistered(sessionID, memberID):
		e.Type, e.Reason = ReservationRejected, ReasonAlreadyRegistered
	case p.hasActiveReservation(sessionID, now):
		e.Type, e.Reason = ReservationRejected, ReasonAlreadyReserved
	case p.isFull(roomType, "", now):
		e.Type, e.Reason = ReservationRejected, ReasonFull
	default:
		e.Type = ReservationIssued
	}
	p.Events = append(p.Events, e)
	return e
}

// RegisterParticipant registers the session's member for roomType. An active
// reservation of the session in roomType holds the place even when the room
// type is otherwise full. Registration ends every reservation of the session.
func (p *Processor) RegisterParticipant(roomType, sessionID, memberID string, now time.Time) Event {
	e := Event{Timestamp: now, RoomType: roomType, SessionID: sessionID, MemberID: memberID}
	switch {
	case p.isRegistered(sessionID, memberID):
		e.Type, e.Reason = RegistrationRejected, ReasonAlreadyRegistered
	case p.isFull(roomType, sessionID, now):
		e.Type, e.Reason = RegistrationRejected, ReasonFull
	default:
		e.Type = ParticipantRegistered
	}
	p.Events = append(p.Events, e)
	return e
}

// ActiveReservations returns the reservations of roomType that are within the
// window at now and not yet turned into registrations, keyed by session.
// An empty roomType covers all room types.
func (p *Processor) ActiveReservations(roomType string, now time.Time) map[string]Event {
	res := map[string]Event{}
	for _, e := range p.Events {
		switch e.Type {
		case ReservationIssued:
			if (roomType == "" || e.RoomType == roomType) && p.isActive(e, now) {
				res[e.SessionID] = e
			}
		case ParticipantRegistered:
			delete(res, e.SessionID)
		}
	}
	return res
}

// Registrations returns the participants of roomType keyed by session; an
// empty roomType covers all room types.
func (p *Processor) Registrations(roomType string) map[string]Event {
	res := map[string]Event{}
	for _, e := range p.Events {
		if e.Type == ParticipantRegistered && (roomType == "" || e.RoomType == roomType) {
			res[e.SessionID] = e
		}
	}
	return res
}

func (p *Processor) isActive(e Event, now time.Time) bool {
	return now.Sub(e.Timestamp) < p.Window
}

func (p *Processor) hasActiveReservation(sessionID string, now time.Time) bool {
	_, ok := p.ActiveReservations("", now)[sessionID]
	return ok
}

func (p *Processor) isRegistered(sessionID, memberID string) bool {
	for _, e := range p.Events {
		if e.Type != ParticipantRegistered {
			continue
		}
		if e.SessionID == sessionID || (memberID != "" && e.MemberID == memberID) {
			return true
		}
	}
	return false
}

// isFull counts registrations and active reservations of roomType, leaving
// out the reservation of ownSession.
func (p *Processor) isFull(roomType, ownSession string, now time.Time) bool {
	limit, ok := p.Limits[roomType]
	if !ok {
		return false
	}
	taken := len(p.Registrations(roomType))
	for session := range p.ActiveReservations(roomType, now) {
		if session != ownSession {
			taken++
		}
	}
	return taken >= limit
}
