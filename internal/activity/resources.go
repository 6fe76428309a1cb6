package activity

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// DefaultResourceName is the resource every new activity starts with.
const DefaultResourceName = "Veranstaltung"

// Resources is the keyed set of resources owned by one activity.
type Resources struct {
	byName map[string]*Resource
}

// ResourcesForm holds the positionally paired resource fields of a submitted
// activity form.
type ResourcesForm struct {
	Names            []string
	Limits           []string
	PreviousNames    []string
	RegistrationOpen []string
	Waitinglist      []string
}

func NewResources() *Resources {
	return &Resources{byName: map[string]*Resource{}}
}

func (rs *Resources) ensure() {
	if rs.byName == nil {
		rs.byName = map[string]*Resource{}
	}
}

// Named returns the resource for name or nil.
func (rs *Resources) Named(name string) *Resource {
	if rs == nil || rs.byName == nil {
		return nil
	}
	r := rs.byName[name]
	if r != nil {
		for _, e := range r.waitinglist {
			e.resourceName = name
		}
	}
	return r
}

// Put stores r under name, replacing any previous resource.
func (rs *Resources) Put(name string, r *Resource) {
	rs.ensure()
	rs.byName[name] = r
}

func (rs *Resources) Remove(name string) {
	if rs.byName != nil {
		delete(rs.byName, name)
	}
}

// Names returns the names with a defined resource, sorted.
func (rs *Resources) Names() []string {
	if rs == nil {
		return nil
	}
	names := make([]string, 0, len(rs.byName))
	for name, r := range rs.byName {
		if r != nil && name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (rs *Resources) Len() int { return len(rs.Names()) }

// AllRegisteredMembers returns every registered member id once.
func (rs *Resources) AllRegisteredMembers() []string {
	seen := map[string]bool{}
	var ids []string
	for _, name := range rs.Names() {
		for _, id := range rs.byName[name].RegisteredMemberIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// AllWaitinglistEntries returns the entries of all resources with their
// resource names attached.
func (rs *Resources) AllWaitinglistEntries() []*WaitinglistEntry {
	var entries []*WaitinglistEntry
	for _, name := range rs.Names() {
		entries = append(entries, rs.Named(name).WaitinglistEntries()...)
	}
	return entries
}

// CopyFrom replaces the set with fresh copies of other's resources (limits only).
func (rs *Resources) CopyFrom(other *Resources) *Resources {
	rs.byName = map[string]*Resource{}
	for _, name := range other.Names() {
		rs.byName[name] = NewResource().CopyFrom(other.byName[name])
	}
	return rs
}

// FillFromUI applies a submitted form. For each row: an empty previous name
// creates a resource, an empty name deletes the previous one, equal names
// update in place and different names rename, carrying registrations and the
// waitinglist along. All rows are resolved against the state before the
// submit, so swapping two names keeps each resource's data intact. A new row
// naming an existing resource updates it, and a rename onto a name that stays
// taken is skipped.
func (rs *Resources) FillFromUI(f ResourcesForm) {
	rs.ensure()
	before := make(map[string]*Resource, len(rs.byName))
	for name, r := range rs.byName {
		before[name] = r
	}
	n := len(f.Names)
	if len(f.PreviousNames) > n {
		n = len(f.PreviousNames)
	}
	rows := make([]resourceRow, n)
	for i := range rows {
		rows[i] = resourceRow{
			name: field(f.Names, i),
			prev: field(f.PreviousNames, i),
			form: ResourceForm{
				Limit:            field(f.Limits, i),
				RegistrationOpen: field(f.RegistrationOpen, i),
				WithWaitinglist:  field(f.Waitinglist, i),
			},
		}
	}
	blocked := blockedRenames(rows, before)

	for i, row := range rows {
		if row.moves(before) && !blocked[i] {
			delete(rs.byName, row.prev)
		}
	}
	for i, row := range rows {
		switch {
		case row.prev == "":
			if row.name == "" {
				continue
			}
			if r := rs.byName[row.name]; r != nil {
				r.FillFromUI(row.form)
				continue
			}
			r := NewResource()
			r.FillFromUI(row.form)
			rs.byName[row.name] = r
		case row.name == "" || blocked[i]:
			// deleted above, or left where it is
		default:
			r := before[row.prev]
			if r == nil {
				continue
			}
			r.FillFromUI(row.form)
			rs.byName[row.name] = r
		}
	}
}

type resourceRow struct {
	name, prev string
	form       ResourceForm
}

// moves is true when the row renames or deletes an existing resource.
func (r resourceRow) moves(before map[string]*Resource) bool {
	return r.prev != "" && r.name != r.prev && before[r.prev] != nil
}

// blockedRenames marks renames whose target stays occupied: by a resource
// that is not moved away, or by an earlier rename onto the same name. A
// blocked rename keeps its resource under the old name, which can block
// further renames, so this runs until nothing changes.
func blockedRenames(rows []resourceRow, before map[string]*Resource) []bool {
	blocked := make([]bool, len(rows))
	for changed := true; changed; {
		changed = false
		vacated := map[string]bool{}
		for i, row := range rows {
			if row.moves(before) && !blocked[i] {
				vacated[row.prev] = true
			}
		}
		targets := map[string]bool{}
		for i, row := range rows {
			if !row.moves(before) || row.name == "" || blocked[i] {
				continue
			}
			if (before[row.name] != nil && !vacated[row.name]) || targets[row.name] {
				blocked[i] = true
				changed = true
				continue
			}
			targets[row.name] = true
		}
	}
	return blocked
}

func field(values []string, i int) string {
	if i >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[i])
}

func (rs *Resources) MarshalJSON() ([]byte, error) {
	out := make(map[string]*Resource, len(rs.byName))
	for _, name := range rs.Names() {
		out[name] = rs.byName[name]
	}
	return json.Marshal(out)
}

// UnmarshalJSON drops entries whose backing data is null or empty.
func (rs *Resources) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rs.byName = make(map[string]*Resource, len(raw))
	for name, msg := range raw {
		trimmed := bytes.TrimSpace(msg)
		if name == "" || isEmptyJSON(trimmed) {
			continue
		}
		r := NewResource()
		if err := json.Unmarshal(trimmed, r); err != nil {
			return err
		}
		rs.byName[name] = r
	}
	return nil
}

func isEmptyJSON(b []byte) bool {
	switch string(b) {
	case "", "null", `""`, "false", "0":
		return true
	}
	return false
}
