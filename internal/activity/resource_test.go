package activity_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/softwerkskammer/Agora-sub000/internal/activity"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func limited(n int, open, waitinglist bool) *activity.Resource {
	r := activity.NewResource()
	r.SetLimit(&n)
	r.SetRegistrationOpen(open)
	r.SetWithWaitinglist(waitinglist)
	return r
}

func TestLimitBoundsRegistrations(t *testing.T) {
	r := limited(2, true, false)
	for _, id := range []string{"m1", "m2", "m3"} {
		r.AddMemberID(id, t0)
	}
	if got := r.RegisteredMemberIDs(); len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("expected m1,m2 registered, got %v", got)
	}
	if !r.IsFull() {
		t.Fatalf("expected full")
	}
	if free, ok := r.NumberOfFreeSlots(); !ok || free != 0 {
		t.Fatalf("expected 0 free slots, got %d %v", free, ok)
	}

	unlimited := activity.NewResource()
	for i := 0; i < 50; i++ {
		unlimited.AddMemberID(string(rune('a'+i%26))+strings.Repeat("x", i/26), t0)
	}
	if unlimited.IsFull() || len(unlimited.RegisteredMembers()) != 50 {
		t.Fatalf("unlimited resource must take everyone")
	}
	if _, ok := unlimited.NumberOfFreeSlots(); ok {
		t.Fatalf("unlimited resource has no slot count")
	}
}

func TestAddMemberIsIdempotent(t *testing.T) {
	r := activity.NewResource()
	r.AddMemberID("m1", t0)
	r.AddMemberID("m1", t0.Add(time.Hour))
	members := r.RegisteredMembers()
	if len(members) != 1 || !members[0].RegisteredAt.Equal(t0) {
		t.Fatalf("expected single registration at t0, got %+v", members)
	}
	r.RemoveMemberID("m1")
	r.RemoveMemberID("m1")
	if len(r.RegisteredMembers()) != 0 {
		t.Fatalf("expected no registrations")
	}
}

func TestRegistrationRemovesWaitinglistEntry(t *testing.T) {
	r := limited(1, true, true)
	r.AddToWaitinglist("m1", t0)
	r.AddToWaitinglist("m1", t0)
	if len(r.WaitinglistEntries()) != 1 {
		t.Fatalf("waitinglist must not hold duplicates")
	}
	r.AddMemberID("m1", t0)
	if r.WaitinglistEntryFor("m1") != nil {
		t.Fatalf("registration must clear the waitinglist entry")
	}
	r.AddToWaitinglist("m1", t0)
	if r.WaitinglistEntryFor("m1") != nil {
		t.Fatalf("registered member must not be queued")
	}
}

func TestRegistrationStateFor(t *testing.T) {
	zero := 0
	cases := []struct {
		name   string
		build  func() *activity.Resource
		member string
		want   activity.RegistrationState
	}{
		{"registered", func() *activity.Resource {
			r := limited(1, true, false)
			r.AddMemberID("m1", t0)
			return r
		}, "m1", activity.Registered},
		{"elsewhere", func() *activity.Resource {
			r := activity.NewResource()
			r.SetLimit(&zero)
			r.SetRegistrationOpen(true)
			return r
		}, "m1", activity.RegistrationElsewhere},
		{"open with room", func() *activity.Resource { return limited(1, true, false) }, "m1", activity.RegistrationPossible},
		{"anonymous open", func() *activity.Resource { return limited(1, true, false) }, "", activity.RegistrationPossible},
		{"on waitinglist", func() *activity.Resource {
			r := limited(1, true, true)
			r.AddMemberID("m2", t0)
			r.AddToWaitinglist("m1", t0)
			return r
		}, "m1", activity.OnWaitinglist},
		{"waitinglist offered", func() *activity.Resource {
			r := limited(1, true, true)
			r.AddMemberID("m2", t0)
			return r
		}, "m1", activity.WaitinglistPossible},
		{"full", func() *activity.Resource {
			r := limited(1, true, false)
			r.AddMemberID("m2", t0)
			return r
		}, "m1", activity.Full},
		{"closed", func() *activity.Resource { return limited(5, false, false) }, "m1", activity.RegistrationClosed},
		{"closed with waitinglist", func() *activity.Resource { return limited(5, false, true) }, "m1", activity.WaitinglistPossible},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.build().RegistrationStateFor(tc.member); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRegistrationValidity(t *testing.T) {
	r := limited(1, false, true)
	r.AddToWaitinglist("m1", t0)
	e := r.WaitinglistEntryFor("m1")

	e.SetRegistrationValidityFor("1", t0)
	until, ok := e.RegistrationValidUntil()
	if !ok || !until.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected window until t0+1h, got %v %v", until, ok)
	}
	if !e.CanSubscribe(t0.Add(59 * time.Minute)) {
		t.Fatalf("expected subscription inside window")
	}
	if e.CanSubscribe(t0.Add(61 * time.Minute)) {
		t.Fatalf("expected no subscription after window")
	}

	e.SetRegistrationValidityFor("-1", t0)
	if e.CanSubscribe(t0) {
		t.Fatalf("negative hours must yield an expired window")
	}

	e.SetRegistrationValidityFor("", t0)
	if _, ok := e.RegistrationValidUntil(); ok || e.CanSubscribe(t0) {
		t.Fatalf("blank hours must clear the window")
	}
	e.SetRegistrationValidityFor("soon", t0)
	if _, ok := e.RegistrationValidUntil(); ok {
		t.Fatalf("non-numeric hours must clear the window")
	}
}

func TestValidUntilTakesLeadingInteger(t *testing.T) {
	for _, tc := range []struct {
		hours string
		want  time.Duration
		set   bool
	}{
		{"1", time.Hour, true},
		{"1.5", time.Hour, true},
		{"2h", 2 * time.Hour, true},
		{"  3 hours", 3 * time.Hour, true},
		{"-1.9", -time.Hour, true},
		{"+4", 4 * time.Hour, true},
		{"", 0, false},
		{"h2", 0, false},
		{".5", 0, false},
		{"-", 0, false},
	} {
		got := activity.ValidUntil(tc.hours, t0)
		if (got != nil) != tc.set {
			t.Fatalf("hours %q: expected set=%v, got %v", tc.hours, tc.set, got)
		}
		if got != nil && !got.Equal(t0.Add(tc.want)) {
			t.Fatalf("hours %q: expected %v, got %v", tc.hours, t0.Add(tc.want), got)
		}
	}
}

func TestCopyFromKeepsLimitOnly(t *testing.T) {
	src := limited(7, false, true)
	src.AddMemberID("m1", t0)
	src.AddToWaitinglist("m2", t0)

	dst := activity.NewResource().CopyFrom(src)
	if l, ok := dst.Limit(); !ok || l != 7 {
		t.Fatalf("expected limit 7, got %d %v", l, ok)
	}
	if len(dst.RegisteredMembers()) != 0 || len(dst.WaitinglistEntries()) != 0 {
		t.Fatalf("copy must not carry registrations")
	}
	if !dst.IsRegistrationOpen() || dst.HasWaitinglist() {
		t.Fatalf("copy must be open without waitinglist")
	}
	if activity.NewResource().CopyFrom(activity.NewResource()).IsFull() {
		t.Fatalf("unlimited copy must stay unlimited")
	}
}

func TestFillFromUILimit(t *testing.T) {
	r := activity.NewResource()
	for _, tc := range []struct {
		in      string
		want    int
		limited bool
	}{
		{"10", 10, true},
		{" 3 ", 3, true},
		{"0", 0, true},
		{"", 0, false},
		{"-2", 0, false},
		{"many", 0, false},
		{"12.5", 12, true},
		{"4 places", 4, true},
		{"+7", 7, true},
		{"-", 0, false},
	} {
		r.FillFromUI(activity.ResourceForm{Limit: tc.in, RegistrationOpen: "on"})
		got, ok := r.Limit()
		if ok != tc.limited || got != tc.want {
			t.Fatalf("limit %q: expected %d %v, got %d %v", tc.in, tc.want, tc.limited, got, ok)
		}
	}
	if !r.IsRegistrationOpen() || r.HasWaitinglist() {
		t.Fatalf("flags must follow the form")
	}
}

func TestResourceJSONFieldNames(t *testing.T) {
	// full, so m2 stays on the waitinglist
	r := limited(1, true, true)
	r.AddMemberID("m1", t0)
	r.AddToWaitinglist("m2", t0)
	r.WaitinglistEntryFor("m2").SetRegistrationValidityFor("2", t0)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, key := range []string{"_registeredMembers", "_waitinglist", "_limit", "_registrationOpen", "_withWaitinglist"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing key %s in %s", key, data)
		}
	}
	entry := raw["_waitinglist"].([]any)[0].(map[string]any)
	for _, key := range []string{"_memberId", "_registeredAt", "_registrationValidUntil"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("missing entry key %s in %s", key, data)
		}
	}

	back := activity.NewResource()
	if err := json.Unmarshal(data, back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.RegistrationStateFor("m1") != activity.Registered || back.RegistrationStateFor("m2") != activity.OnWaitinglist {
		t.Fatalf("round trip lost state")
	}
	if !back.WaitinglistEntryFor("m2").CanSubscribe(t0.Add(time.Hour)) {
		t.Fatalf("round trip lost the window")
	}
}
