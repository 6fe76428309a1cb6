package socrates

import (
	"sort"
	"time"
)

type ViewKind string

const (
	ReservationView  ViewKind = "reservation"
	RegistrationView ViewKind = "registration"
)

// View is one read-side row of a room type.
type View struct {
	Kind      ViewKind  `json:"kind"`
	RoomType  string    `json:"roomType"`
	SessionID string    `json:"sessionId"`
	MemberID  string    `json:"memberId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Views folds the log of roomType into reservation and registration rows in
// log order. Rejections are dropped, as are reservations that expired or
// turned into registrations.
func (p *Processor) Views(roomType string, now time.Time) []View {
	active := p.ActiveReservations(roomType, now)
	var res []View
	for _, e := range p.Events {
		if e.IsRejection() || e.RoomType != roomType {
			continue
		}
		switch e.Type {
		case ReservationIssued:
			if cur, ok := active[e.SessionID]; !ok || !cur.Timestamp.Equal(e.Timestamp) {
				continue
			}
			res = append(res, viewOf(ReservationView, e))
		case ParticipantRegistered:
			res = append(res, viewOf(RegistrationView, e))
		}
	}
	return res
}

func viewOf(kind ViewKind, e Event) View {
	return View{Kind: kind, RoomType: e.RoomType, SessionID: e.SessionID, MemberID: e.MemberID, Timestamp: e.Timestamp}
}

// ReservationsBySession returns the active reservations of roomType.
func (p *Processor) ReservationsBySession(roomType string, now time.Time) map[string]View {
	res := map[string]View{}
	for session, e := range p.ActiveReservations(roomType, now) {
		res[session] = viewOf(ReservationView, e)
	}
	return res
}

// ParticipantsByMember returns the registrations of roomType keyed by member.
func (p *Processor) ParticipantsByMember(roomType string) map[string]View {
	res := map[string]View{}
	for _, e := range p.Registrations(roomType) {
		res[e.MemberID] = viewOf(RegistrationView, e)
	}
	return res
}

// RoomTypes returns every room type seen in the log, sorted.
func (p *Processor) RoomTypes() []string {
	seen := map[string]bool{}
	for _, e := range p.Events {
		seen[e.RoomType] = true
	}
	res := make([]string, 0, len(seen))
	for rt := range seen {
		res = append(res, rt)
	}
	sort.Strings(res)
	return res
}
