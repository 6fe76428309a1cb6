package activity

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RegistrationState describes what a member may do with a resource.
type RegistrationState string

const (
	Registered            RegistrationState = "registered"
	RegistrationPossible  RegistrationState = "registrationPossible"
	RegistrationElsewhere RegistrationState = "registrationElsewhere"
	RegistrationClosed    RegistrationState = "registrationClosed"
	WaitinglistPossible   RegistrationState = "waitinglistPossible"
	OnWaitinglist         RegistrationState = "onWaitinglist"
	Full                  RegistrationState = "full"
)

// RegisteredMember is one registration on a resource.
type RegisteredMember struct {
	MemberID     string    `json:"memberId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Resource is a named capacity pool. The name is the key in the owning
// Resources and is not part of the resource itself.
type Resource struct {
	members          []RegisteredMember
	waitinglist      []*WaitinglistEntry
	limit            *int
	registrationOpen bool
	withWaitinglist  bool
}

type resourceDoc struct {
	RegisteredMembers []RegisteredMember  `json:"_registeredMembers"`
	Waitinglist       []*WaitinglistEntry `json:"_waitinglist"`
	Limit             *int                `json:"_limit,omitempty"`
	RegistrationOpen  bool                `json:"_registrationOpen,omitempty"`
	WithWaitinglist   bool                `json:"_withWaitinglist,omitempty"`
}

// ResourceForm is the submitted form snapshot for a single resource.
type ResourceForm struct {
	Limit            string
	RegistrationOpen string
	WithWaitinglist  string
}

// NewResource returns an empty, closed resource without limit.
func NewResource() *Resource {
	return &Resource{}
}

// Limit returns the capacity; ok is false for unlimited resources.
func (r *Resource) Limit() (int, bool) {
	if r.limit == nil {
		return 0, false
	}
	return *r.limit, true
}

func (r *Resource) SetLimit(limit *int) {
	if limit == nil {
		r.limit = nil
		return
	}
	l := *limit
	r.limit = &l
}

func (r *Resource) IsRegistrationOpen() bool      { return r.registrationOpen }
func (r *Resource) SetRegistrationOpen(open bool) { r.registrationOpen = open }
func (r *Resource) HasWaitinglist() bool          { return r.withWaitinglist }
func (r *Resource) SetWithWaitinglist(with bool)  { r.withWaitinglist = with }

// IsFull is true iff a limit is set and reached.
func (r *Resource) IsFull() bool {
	if r.limit == nil {
		return false
	}
	return len(r.members) >= *r.limit
}

// NumberOfFreeSlots returns the remaining capacity; limited is false when the
// resource has no limit.
func (r *Resource) NumberOfFreeSlots() (free int, limited bool) {
	if r.limit == nil {
		return 0, false
	}
	free = *r.limit - len(r.members)
	if free < 0 {
		free = 0
	}
	return free, true
}

// RegisteredMembers returns a copy of the registrations in registration order.
func (r *Resource) RegisteredMembers() []RegisteredMember {
	out := make([]RegisteredMember, len(r.members))
	copy(out, r.members)
	return out
}

func (r *Resource) RegisteredMemberIDs() []string {
	ids := make([]string, 0, len(r.members))
	for _, m := range r.members {
		ids = append(ids, m.MemberID)
	}
	return ids
}

func (r *Resource) IsAlreadyRegistered(memberID string) bool {
	_, ok := r.RegisteredAt(memberID)
	return ok
}

// RegisteredAt returns when memberID registered.
func (r *Resource) RegisteredAt(memberID string) (time.Time, bool) {
	for _, m := range r.members {
		if m.MemberID == memberID {
			return m.RegisteredAt, true
		}
	}
	return time.Time{}, false
}

// AddMemberID registers memberID unless the resource is full or the member
// is already registered. A zero at means now. A successful registration
// removes the member's waitinglist entry.
func (r *Resource) AddMemberID(memberID string, at time.Time) {
	if r.IsFull() || r.IsAlreadyRegistered(memberID) {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	r.members = append(r.members, RegisteredMember{MemberID: memberID, RegisteredAt: at})
	r.RemoveFromWaitinglist(memberID)
}

// RemoveMemberID deregisters memberID if present.
func (r *Resource) RemoveMemberID(memberID string) {
	for i, m := range r.members {
		if m.MemberID == memberID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

// AddToWaitinglist appends an entry unless memberID is registered or already waiting.
func (r *Resource) AddToWaitinglist(memberID string, at time.Time) {
	if r.IsAlreadyRegistered(memberID) || r.WaitinglistEntryFor(memberID) != nil {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	r.waitinglist = append(r.waitinglist, newWaitinglistEntry(memberID, at))
}

func (r *Resource) RemoveFromWaitinglist(memberID string) {
	for i, e := range r.waitinglist {
		if e.memberID == memberID {
			r.waitinglist = append(r.waitinglist[:i], r.waitinglist[i+1:]...)
			return
		}
	}
}

// WaitinglistEntryFor returns memberID's entry or nil.
func (r *Resource) WaitinglistEntryFor(memberID string) *WaitinglistEntry {
	if memberID == "" {
		return nil
	}
	for _, e := range r.waitinglist {
		if e.memberID == memberID {
			return e
		}
	}
	return nil
}

// WaitinglistEntries returns the entries in waitinglist order.
func (r *Resource) WaitinglistEntries() []*WaitinglistEntry {
	out := make([]*WaitinglistEntry, len(r.waitinglist))
	copy(out, r.waitinglist)
	return out
}

// RegistrationStateFor evaluates the rules in order: own registration,
// external registration (limit 0), open with capacity, own waitinglist entry,
// waitinglist offered, full, closed. An empty memberID is anonymous.
func (r *Resource) RegistrationStateFor(memberID string) RegistrationState {
	if memberID != "" && r.IsAlreadyRegistered(memberID) {
		return Registered
	}
	if r.limit != nil && *r.limit == 0 {
		return RegistrationElsewhere
	}
	if r.registrationOpen && !r.IsFull() {
		return RegistrationPossible
	}
	if r.WaitinglistEntryFor(memberID) != nil {
		return OnWaitinglist
	}
	if r.withWaitinglist {
		return WaitinglistPossible
	}
	if r.IsFull() {
		return Full
	}
	return RegistrationClosed
}

// CopyFrom takes over the limit of other only. Registrations and the
// waitinglist are reset, registration is opened and the waitinglist disabled.
func (r *Resource) CopyFrom(other *Resource) *Resource {
	r.members = nil
	r.waitinglist = nil
	r.limit = nil
	if other != nil {
		r.SetLimit(other.limit)
	}
	r.registrationOpen = true
	r.withWaitinglist = false
	return r
}

// FillFromUI replaces limit and flags from a form snapshot. Flags absent from
// the form become false; an empty or non-numeric limit becomes unlimited.
func (r *Resource) FillFromUI(f ResourceForm) {
	r.limit = parseLimit(f.Limit)
	r.registrationOpen = strings.TrimSpace(f.RegistrationOpen) != ""
	r.withWaitinglist = strings.TrimSpace(f.WithWaitinglist) != ""
}

func parseLimit(s string) *int {
	n, ok := parseInt(s)
	if !ok || n < 0 {
		return nil
	}
	return &n
}

// parseInt reads the leading signed integer of s after leading whitespace
// and ignores the rest, so "1.5" is 1 and "2h" is 2. It reports false when
// no digit follows the optional sign.
func parseInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r\f\v")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (r *Resource) MarshalJSON() ([]byte, error) {
	doc := resourceDoc{
		RegisteredMembers: r.members,
		Waitinglist:       r.waitinglist,
		Limit:             r.limit,
		RegistrationOpen:  r.registrationOpen,
		WithWaitinglist:   r.withWaitinglist,
	}
	if doc.RegisteredMembers == nil {
		doc.RegisteredMembers = []RegisteredMember{}
	}
	if doc.Waitinglist == nil {
		doc.Waitinglist = []*WaitinglistEntry{}
	}
	return json.Marshal(doc)
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	var doc resourceDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	r.members = doc.RegisteredMembers
	r.waitinglist = r.waitinglist[:0]
	for _, e := range doc.Waitinglist {
		if e != nil && e.memberID != "" {
			r.waitinglist = append(r.waitinglist, e)
		}
	}
	r.limit = doc.Limit
	r.registrationOpen = doc.RegistrationOpen
	r.withWaitinglist = doc.WithWaitinglist
	return nil
}
