// Package activity holds the activity aggregate and its capacity-limited
// resources. All methods are in-memory and never fail; validation happens
// at the form boundary and concurrency is handled by the versioned store.
package activity

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/softwerkskammer/Agora-sub000/internal/member"
)

// Activity is an event with one or more resources members can register for.
type Activity struct {
	id            string
	url           string
	title         string
	description   string
	location      string
	direction     string
	startUnix     int64
	endUnix       int64
	assignedGroup string
	owner         string
	resources     *Resources
	addonConfig   AddonConfig
	addons        map[string]Addon
	version       int

	// transient, never persisted
	participants []member.Member
}

// Participant is a member together with the time of registration.
type Participant struct {
	member.Member
	RegisteredAt time.Time
}

// Form is a snapshot of a submitted activity form.
type Form struct {
	URL           string
	Title         string
	Description   string
	Location      string
	Direction     string
	AssignedGroup string
	StartDate     string
	StartTime     string
	EndDate       string
	EndTime       string
	Resources     ResourcesForm
	Addon         AddonConfigForm
}

type activityDoc struct {
	ID            string           `json:"id"`
	URL           string           `json:"url"`
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	Location      string           `json:"location,omitempty"`
	Direction     string           `json:"direction,omitempty"`
	StartUnix     int64            `json:"startUnix"`
	EndUnix       int64            `json:"endUnix"`
	AssignedGroup string           `json:"assignedGroup,omitempty"`
	Owner         string           `json:"owner,omitempty"`
	Resources     *Resources       `json:"resources,omitempty"`
	AddonConfig   *AddonConfig     `json:"_addonConfig,omitempty"`
	Addons        map[string]Addon `json:"_addons,omitempty"`
	Version       int              `json:"version,omitempty"`
}

var (
	ErrTitleRequired = errors.New("title is required")
	ErrStartAfterEnd = errors.New("start must precede end")
	ErrNoResources   = errors.New("at least one resource is required")
)

// New returns an activity with the default resource, open for registration.
func New() *Activity {
	rs := NewResources()
	def := NewResource()
	def.SetRegistrationOpen(true)
	rs.Put(DefaultResourceName, def)
	return &Activity{resources: rs}
}

// NewEmpty returns an activity without any resource.
func NewEmpty() *Activity {
	return &Activity{resources: NewResources()}
}

func (a *Activity) ID() string            { return a.id }
func (a *Activity) DocumentID() string    { return a.id }
func (a *Activity) URL() string           { return a.url }
func (a *Activity) Title() string         { return a.title }
func (a *Activity) Description() string   { return a.description }
func (a *Activity) Location() string      { return a.location }
func (a *Activity) Direction() string     { return a.direction }
func (a *Activity) AssignedGroup() string { return a.assignedGroup }
func (a *Activity) Owner() string         { return a.owner }
func (a *Activity) SetOwner(memberID string) {
	a.owner = memberID
}
func (a *Activity) StartUnix() int64 { return a.startUnix }
func (a *Activity) EndUnix() int64   { return a.endUnix }
func (a *Activity) Version() int     { return a.version }
func (a *Activity) SetVersion(v int) { a.version = v }

// SetTimes sets start and end directly, bypassing form parsing.
func (a *Activity) SetTimes(start, end time.Time) {
	a.startUnix = start.Unix()
	a.endUnix = end.Unix()
}

// StartMoment returns the start in loc.
func (a *Activity) StartMoment(loc *time.Location) time.Time {
	return time.Unix(a.startUnix, 0).In(locOrUTC(loc))
}

func (a *Activity) EndMoment(loc *time.Location) time.Time {
	return time.Unix(a.endUnix, 0).In(locOrUTC(loc))
}

// IsMultiDay is true when start and end fall on different days in loc.
func (a *Activity) IsMultiDay(loc *time.Location) bool {
	s, e := a.StartMoment(loc), a.EndMoment(loc)
	return s.YearDay() != e.YearDay() || s.Year() != e.Year()
}

// Month and Year group activities by their start in calendar views.
func (a *Activity) Month(loc *time.Location) time.Month { return a.StartMoment(loc).Month() }
func (a *Activity) Year(loc *time.Location) int         { return a.StartMoment(loc).Year() }

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func (a *Activity) Resources() *Resources {
	if a.resources == nil {
		a.resources = NewResources()
	}
	return a.resources
}

func (a *Activity) ResourceNamed(name string) *Resource { return a.Resources().Named(name) }
func (a *Activity) ResourceNames() []string             { return a.Resources().Names() }
func (a *Activity) AllRegisteredMembers() []string      { return a.Resources().AllRegisteredMembers() }

func (a *Activity) AllWaitinglistEntries() []*WaitinglistEntry {
	return a.Resources().AllWaitinglistEntries()
}

// AddMemberID registers memberID for the named resource. Unknown resources
// are ignored.
func (a *Activity) AddMemberID(memberID, resourceName string, at time.Time) {
	if r := a.ResourceNamed(resourceName); r != nil {
		r.AddMemberID(memberID, at)
	}
}

func (a *Activity) RemoveMemberID(memberID, resourceName string) {
	if r := a.ResourceNamed(resourceName); r != nil {
		r.RemoveMemberID(memberID)
	}
}

func (a *Activity) AddonConfig() AddonConfig { return a.addonConfig }
func (a *Activity) SetAddonConfig(c AddonConfig) {
	a.addonConfig = c
}

// AddonForMember returns the member's addon answers.
func (a *Activity) AddonForMember(memberID string) (Addon, bool) {
	addon, ok := a.addons[memberID]
	return addon, ok
}

// FillAddonFromUI replaces the member's addon answers.
func (a *Activity) FillAddonFromUI(memberID string, f Addon) {
	if a.addons == nil {
		a.addons = map[string]Addon{}
	}
	a.addons[memberID] = f.trimmed()
}

// SetParticipants attaches externally resolved members.
func (a *Activity) SetParticipants(members []member.Member) {
	a.participants = members
}

// ParticipantsOf returns the attached participants registered for the named
// resource, each with its registration time.
func (a *Activity) ParticipantsOf(resourceName string) []Participant {
	r := a.ResourceNamed(resourceName)
	if r == nil || len(a.participants) == 0 {
		return nil
	}
	var out []Participant
	for _, m := range a.participants {
		if at, ok := r.RegisteredAt(m.ID); ok {
			out = append(out, Participant{Member: m, RegisteredAt: at})
		}
	}
	return out
}

// FillFromUI replaces the descriptive fields from the form, parses start and
// end in loc and derives id and url from group, title and start when unset.
func (a *Activity) FillFromUI(f Form, loc *time.Location) *Activity {
	loc = locOrUTC(loc)
	a.url = strings.TrimSpace(f.URL)
	a.title = f.Title
	a.description = f.Description
	a.location = f.Location
	a.direction = f.Direction
	a.assignedGroup = f.AssignedGroup
	if start, ok := parseMoment(f.StartDate, f.StartTime, loc); ok {
		a.startUnix = start.Unix()
	}
	if end, ok := parseMoment(f.EndDate, f.EndTime, loc); ok {
		a.endUnix = end.Unix()
	}
	if a.id == "" || a.id == "undefined" {
		a.id = createLinkFrom(a.assignedGroup, a.title, a.StartMoment(loc).Format("2006-01-02"))
	}
	if a.url == "" {
		a.url = a.id
	}
	a.Resources().FillFromUI(f.Resources)
	a.addonConfig = ReconcileAddonConfig(a.addonConfig, f.Addon)
	return a
}

// Validate checks what the form boundary must guarantee.
func (a *Activity) Validate() error {
	if strings.TrimSpace(a.title) == "" {
		return ErrTitleRequired
	}
	if a.startUnix >= a.endUnix {
		return ErrStartAfterEnd
	}
	if a.Resources().Len() == 0 {
		return ErrNoResources
	}
	return nil
}

// ResetForClone returns a new activity carrying the descriptive fields and
// the resource limits of a, without id, url, owner or registrations.
func (a *Activity) ResetForClone() *Activity {
	return NewEmpty().CopyFrom(a)
}

// CopyFrom takes over the clonable parts of original.
func (a *Activity) CopyFrom(original *Activity) *Activity {
	a.id, a.url, a.owner = "", "", ""
	a.version = 0
	a.title = original.title
	a.description = original.description
	a.location = original.location
	a.direction = original.direction
	a.startUnix = original.startUnix
	a.endUnix = original.endUnix
	a.resources = NewResources().CopyFrom(original.Resources())
	a.addons = nil
	return a
}

var dateLayouts = []string{"2.1.2006", "2006-01-02"}

func parseMoment(date, clock string, loc *time.Location) (time.Time, bool) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" {
		return time.Time{}, false
	}
	if clock == "" {
		clock = "0:0"
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout+" 15:4", date+" "+clock, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func createLinkFrom(parts ...string) string {
	joined := strings.Join(parts, "_")
	var b strings.Builder
	for _, r := range joined {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}

// FormFromValues reads an activity form from posted values. Scalar and
// repeated resource fields both end up as positional slices.
func FormFromValues(v url.Values) Form {
	return Form{
		URL:           v.Get("url"),
		Title:         v.Get("title"),
		Description:   v.Get("description"),
		Location:      v.Get("location"),
		Direction:     v.Get("direction"),
		AssignedGroup: v.Get("assignedGroup"),
		StartDate:     v.Get("startDate"),
		StartTime:     v.Get("startTime"),
		EndDate:       v.Get("endDate"),
		EndTime:       v.Get("endTime"),
		Resources: ResourcesForm{
			Names:            v["resources[names]"],
			Limits:           v["resources[limits]"],
			PreviousNames:    v["resources[previousNames]"],
			RegistrationOpen: v["resources[isRegistrationOpen]"],
			Waitinglist:      v["resources[hasWaitinglist]"],
		},
		Addon: AddonConfigForm{
			HomeAddress:      v.Get("homeAddress"),
			BillingAddress:   v.Get("billingAddress"),
			TShirtSize:       v.Get("tShirtSize"),
			Roommate:         v.Get("roommate"),
			Deposit:          v.Get("deposit"),
			AddonInformation: v.Get("addonInformation"),
		},
	}
}

func (a *Activity) MarshalJSON() ([]byte, error) {
	doc := activityDoc{
		ID:            a.id,
		URL:           a.url,
		Title:         a.title,
		Description:   a.description,
		Location:      a.location,
		Direction:     a.direction,
		StartUnix:     a.startUnix,
		EndUnix:       a.endUnix,
		AssignedGroup: a.assignedGroup,
		Owner:         a.owner,
		Resources:     a.Resources(),
		Addons:        a.addons,
		Version:       a.version,
	}
	if !a.addonConfig.IsEmpty() {
		c := a.addonConfig
		doc.AddonConfig = &c
	}
	return json.Marshal(doc)
}

// UnmarshalJSON restores an activity; a document without resources gets the
// default resource.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var doc activityDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*a = Activity{
		id:            doc.ID,
		url:           strings.TrimSpace(doc.URL),
		title:         doc.Title,
		description:   doc.Description,
		location:      doc.Location,
		direction:     doc.Direction,
		startUnix:     doc.StartUnix,
		endUnix:       doc.EndUnix,
		assignedGroup: doc.AssignedGroup,
		owner:         doc.Owner,
		resources:     doc.Resources,
		addons:        doc.Addons,
		version:       doc.Version,
	}
	if doc.AddonConfig != nil {
		a.addonConfig = *doc.AddonConfig
	}
	if a.resources == nil {
		a.resources = New().resources
	}
	return nil
}
