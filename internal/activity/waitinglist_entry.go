package activity

import (
	"encoding/json"
	"time"
)

// WaitinglistEntry is a member's provisional claim on a resource.
type WaitinglistEntry struct {
	memberID     string
	resourceName string
	at           time.Time
	validUntil   *time.Time
}

type waitinglistEntryDoc struct {
	MemberID   string     `json:"_memberId"`
	At         time.Time  `json:"_registeredAt"`
	ValidUntil *time.Time `json:"_registrationValidUntil,omitempty"`
}

func newWaitinglistEntry(memberID string, at time.Time) *WaitinglistEntry {
	return &WaitinglistEntry{memberID: memberID, at: at}
}

func (e *WaitinglistEntry) MemberID() string         { return e.memberID }
func (e *WaitinglistEntry) ResourceName() string     { return e.resourceName }
func (e *WaitinglistEntry) WaitinglistAt() time.Time { return e.at }

// RegistrationValidUntil reports the end of the window in which the entry may
// be converted into a registration.
func (e *WaitinglistEntry) RegistrationValidUntil() (time.Time, bool) {
	if e.validUntil == nil {
		return time.Time{}, false
	}
	return *e.validUntil, true
}

// SetRegistrationValidityFor opens a window of the given number of hours
// starting at now. A blank or non-numeric value clears the window.
func (e *WaitinglistEntry) SetRegistrationValidityFor(hours string, now time.Time) {
	e.validUntil = ValidUntil(hours, now)
}

// CanSubscribe reports whether the entry may currently become a registration.
func (e *WaitinglistEntry) CanSubscribe(now time.Time) bool {
	return WithinWindow(e.validUntil, now)
}

func (e *WaitinglistEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(waitinglistEntryDoc{MemberID: e.memberID, At: e.at, ValidUntil: e.validUntil})
}

func (e *WaitinglistEntry) UnmarshalJSON(data []byte) error {
	var doc waitinglistEntryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	e.memberID = doc.MemberID
	e.at = doc.At
	e.validUntil = doc.ValidUntil
	return nil
}

// ValidUntil computes now + hours, taking the leading integer of hours.
// Negative hours yield an already expired window; input without a leading
// integer yields nil.
func ValidUntil(hours string, now time.Time) *time.Time {
	n, ok := parseInt(hours)
	if !ok {
		return nil
	}
	t := now.Add(time.Duration(n) * time.Hour)
	return &t
}

// WithinWindow is true iff validUntil is set and now is not after it.
func WithinWindow(validUntil *time.Time, now time.Time) bool {
	if validUntil == nil {
		return false
	}
	return !now.After(*validUntil)
}
