package server

import (
	"strconv"
	"time"

	"github.com/softwerkskammer/Agora-sub000/internal/activity"
	"github.com/softwerkskammer/Agora-sub000/internal/member"
	"github.com/softwerkskammer/Agora-sub000/internal/socrates"
	"github.com/softwerkskammer/Agora-sub000/internal/waitinglist"
)

// Request payloads

type ResourceRequest struct {
	Name             string `json:"name"`
	PreviousName     string `json:"previous_name,omitempty"`
	Limit            *int   `json:"limit,omitempty"`
	RegistrationOpen bool   `json:"registration_open,omitempty"`
	WithWaitinglist  bool   `json:"with_waitinglist,omitempty"`
}

type ActivityRequest struct {
	URL           string            `json:"url,omitempty"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Location      string            `json:"location,omitempty"`
	Direction     string            `json:"direction,omitempty"`
	AssignedGroup string            `json:"assigned_group,omitempty"`
	Owner         string            `json:"owner,omitempty"`
	StartDate     string            `json:"start_date" example:"2024-05-17"`
	StartTime     string            `json:"start_time,omitempty" example:"18:30"`
	EndDate       string            `json:"end_date" example:"2024-05-17"`
	EndTime       string            `json:"end_time,omitempty" example:"21:00"`
	Resources     []ResourceRequest `json:"resources,omitempty"`
}

type MemberRequest struct {
	MemberID string `json:"member_id"`
}

type ValidityRequest struct {
	Hours string `json:"hours" example:"2"`
}

type AddonRequest struct {
	HomeAddress    string `json:"home_address,omitempty"`
	BillingAddress string `json:"billing_address,omitempty"`
	TShirtSize     string `json:"tshirt_size,omitempty" example:"M"`
	Roommate       string `json:"roommate,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
}

func (r AddonRequest) addon() activity.Addon {
	return activity.Addon{
		HomeAddress:    r.HomeAddress,
		BillingAddress: r.BillingAddress,
		TShirtSize:     r.TShirtSize,
		Roommate:       r.Roommate,
		Remarks:        r.Remarks,
	}
}

type CreateMemberRequest struct {
	Nickname  string `json:"nickname"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

type WaitinglistEntryRequest struct {
	Nickname    string `json:"nickname"`
	ActivityURL string `json:"activity_url"`
	Resource    string `json:"resource"`
}

type WaitinglistValidityRequest struct {
	MemberID    string `json:"member_id"`
	ActivityURL string `json:"activity_url"`
	Resource    string `json:"resource"`
	Hours       string `json:"hours"`
}

type SocratesRequest struct {
	RoomType  string `json:"room_type"`
	SessionID string `json:"session_id"`
	MemberID  string `json:"member_id,omitempty"`
}

// form turns the request into the positional form snapshot the aggregate
// reads.
func (r ActivityRequest) form() activity.Form {
	f := activity.Form{
		URL:           r.URL,
		Title:         r.Title,
		Description:   r.Description,
		Location:      r.Location,
		Direction:     r.Direction,
		AssignedGroup: r.AssignedGroup,
		StartDate:     r.StartDate,
		StartTime:     r.StartTime,
		EndDate:       r.EndDate,
		EndTime:       r.EndTime,
	}
	for _, res := range r.Resources {
		limit := ""
		if res.Limit != nil {
			limit = strconv.Itoa(*res.Limit)
		}
		f.Resources.Names = append(f.Resources.Names, res.Name)
		f.Resources.PreviousNames = append(f.Resources.PreviousNames, res.PreviousName)
		f.Resources.Limits = append(f.Resources.Limits, limit)
		f.Resources.RegistrationOpen = append(f.Resources.RegistrationOpen, checkbox(res.RegistrationOpen))
		f.Resources.Waitinglist = append(f.Resources.Waitinglist, checkbox(res.WithWaitinglist))
	}
	return f
}

func checkbox(v bool) string {
	if v {
		return "on"
	}
	return ""
}

// Responses

type RegisteredMemberResponse struct {
	MemberID     string    `json:"member_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

type WaitinglistEntryResponse struct {
	MemberID      string     `json:"member_id"`
	WaitinglistAt time.Time  `json:"waitinglist_at"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
}

type ResourceResponse struct {
	Name             string                     `json:"name"`
	Limit            *int                       `json:"limit,omitempty"`
	FreeSlots        *int                       `json:"free_slots,omitempty"`
	RegistrationOpen bool                       `json:"registration_open"`
	WithWaitinglist  bool                       `json:"with_waitinglist"`
	Registered       []RegisteredMemberResponse `json:"registered"`
	Waitinglist      []WaitinglistEntryResponse `json:"waitinglist"`
}

type ActivityResponse struct {
	ID            string             `json:"id"`
	URL           string             `json:"url"`
	Title         string             `json:"title"`
	Description   string             `json:"description,omitempty"`
	Location      string             `json:"location,omitempty"`
	Direction     string             `json:"direction,omitempty"`
	AssignedGroup string             `json:"assigned_group,omitempty"`
	Owner         string             `json:"owner,omitempty"`
	Start         time.Time          `json:"start"`
	End           time.Time          `json:"end"`
	Version       int                `json:"version"`
	Resources     []ResourceResponse `json:"resources"`
}

type StateResponse struct {
	URL      string                     `json:"url"`
	Resource string                     `json:"resource"`
	MemberID string                     `json:"member_id,omitempty"`
	State    activity.RegistrationState `json:"state"`
}

type WaitinglistResponse struct {
	ID                     string     `json:"id"`
	RegistrantID           string     `json:"registrant_id"`
	Registrant             string     `json:"registrant,omitempty"`
	ActivityURL            string     `json:"activity_url"`
	Resource               string     `json:"resource"`
	RegistrationDate       time.Time  `json:"registration_date"`
	RegistrationValidUntil *time.Time `json:"registration_valid_until,omitempty"`
}

type CanSubscribeResponse struct {
	CanSubscribe bool `json:"can_subscribe"`
}

func resourceResponse(name string, r *activity.Resource) ResourceResponse {
	out := ResourceResponse{
		Name:             name,
		RegistrationOpen: r.IsRegistrationOpen(),
		WithWaitinglist:  r.HasWaitinglist(),
		Registered:       []RegisteredMemberResponse{},
		Waitinglist:      []WaitinglistEntryResponse{},
	}
	if limit, ok := r.Limit(); ok {
		out.Limit = &limit
	}
	if free, limited := r.NumberOfFreeSlots(); limited {
		out.FreeSlots = &free
	}
	for _, m := range r.RegisteredMembers() {
		out.Registered = append(out.Registered, RegisteredMemberResponse{MemberID: m.MemberID, RegisteredAt: m.RegisteredAt})
	}
	for _, e := range r.WaitinglistEntries() {
		entry := WaitinglistEntryResponse{MemberID: e.MemberID(), WaitinglistAt: e.WaitinglistAt()}
		if until, ok := e.RegistrationValidUntil(); ok {
			entry.ValidUntil = &until
		}
		out.Waitinglist = append(out.Waitinglist, entry)
	}
	return out
}

func activityResponse(a *activity.Activity, loc *time.Location) ActivityResponse {
	out := ActivityResponse{
		ID:            a.ID(),
		URL:           a.URL(),
		Title:         a.Title(),
		Description:   a.Description(),
		Location:      a.Location(),
		Direction:     a.Direction(),
		AssignedGroup: a.AssignedGroup(),
		Owner:         a.Owner(),
		Start:         a.StartMoment(loc),
		End:           a.EndMoment(loc),
		Version:       a.Version(),
		Resources:     []ResourceResponse{},
	}
	for _, name := range a.ResourceNames() {
		out.Resources = append(out.Resources, resourceResponse(name, a.ResourceNamed(name)))
	}
	return out
}

func activityResponses(list []*activity.Activity, loc *time.Location) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(list))
	for _, a := range list {
		out = append(out, activityResponse(a, loc))
	}
	return out
}

func waitinglistResponse(e waitinglist.Entry) WaitinglistResponse {
	return WaitinglistResponse{
		ID:                     e.ID,
		RegistrantID:           e.RegistrantID,
		Registrant:             e.Registrant,
		ActivityURL:            e.ActivityName,
		Resource:               e.ResourceName,
		RegistrationDate:       e.RegistrationDate,
		RegistrationValidUntil: e.RegistrationValidUntil,
	}
}

type MemberResponse struct {
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

func memberResponse(m member.Member) MemberResponse {
	return MemberResponse{ID: m.ID, Nickname: m.Nickname, DisplayName: m.DisplayName(), Email: m.Email}
}

type SocratesEventResponse struct {
	Type      socrates.EventType `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	RoomType  string             `json:"room_type"`
	SessionID string             `json:"session_id"`
	MemberID  string             `json:"member_id,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

func socratesEventResponse(e socrates.Event) SocratesEventResponse {
	return SocratesEventResponse{Type: e.Type, Timestamp: e.Timestamp, RoomType: e.RoomType, SessionID: e.SessionID, MemberID: e.MemberID, Reason: e.Reason}
}

type AddonResponse struct {
	URL            string `json:"url"`
	MemberID       string `json:"member_id"`
	Answered       bool   `json:"answered"`
	HomeAddress    string `json:"home_address,omitempty"`
	BillingAddress string `json:"billing_address,omitempty"`
	TShirtSize     string `json:"tshirt_size,omitempty"`
	Roommate       string `json:"roommate,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
	Version        int    `json:"version"`
}

func addonResponse(url, memberID string, addon activity.Addon, answered bool, version int) AddonResponse {
	return AddonResponse{
		URL:            url,
		MemberID:       memberID,
		Answered:       answered,
		HomeAddress:    addon.HomeAddress,
		BillingAddress: addon.BillingAddress,
		TShirtSize:     addon.TShirtSize,
		Roommate:       addon.Roommate,
		Remarks:        addon.Remarks,
		Version:        version,
	}
}
