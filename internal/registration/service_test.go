package registration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwerkskammer/Agora-sub000/internal/activity"
	"github.com/softwerkskammer/Agora-sub000/internal/activitystore"
	"github.com/softwerkskammer/Agora-sub000/internal/db"
	"github.com/softwerkskammer/Agora-sub000/internal/migrate"
	"github.com/softwerkskammer/Agora-sub000/internal/persistence"
	"github.com/softwerkskammer/Agora-sub000/internal/registration"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Service *registration.Service
	Store   activitystore.Store
	Docs    *racingDocs
	Ctx     context.Context
}

// racingDocs lets a test slip a competing write in before the next versioned
// save.
type racingDocs struct {
	persistence.Store
	before func()
}

func (r *racingDocs) SaveWithVersion(ctx context.Context, collection string, doc persistence.Versioned) error {
	if hook := r.before; hook != nil {
		r.before = nil
		hook()
	}
	return r.Store.SaveWithVersion(ctx, collection, doc)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	docs := &racingDocs{Store: persistence.NewSQLStore(conn)}
	store := activitystore.Store{Docs: docs}
	svc := registration.New(store, registration.DefaultRetries, zerolog.Nop())
	svc.Now = func() time.Time { return now }
	return testEnv{Service: svc, Store: store, Docs: docs, Ctx: context.Background()}
}

func (env testEnv) createActivity(t *testing.T, url, limit, open, waitinglist string) {
	t.Helper()
	a := activity.NewEmpty().FillFromUI(activity.Form{
		URL:       url,
		Title:     url,
		StartDate: "2024-02-01",
		EndDate:   "2024-02-02",
		Resources: activity.ResourcesForm{
			Names:            []string{"Veranstaltung"},
			PreviousNames:    []string{""},
			Limits:           []string{limit},
			RegistrationOpen: []string{open},
			Waitinglist:      []string{waitinglist},
		},
	}, time.UTC)
	if err := env.Store.SaveActivity(env.Ctx, a); err != nil {
		t.Fatalf("save activity: %v", err)
	}
}

func TestRegisterUntilFull(t *testing.T) {
	env := newTestEnv(t)
	env.createActivity(t, "kata", "2", "on", "")

	for _, id := range []string{"m1", "m2"} {
		res, err := env.Service.AddVisitorTo(env.Ctx, id, "kata", "Veranstaltung")
		if err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		if res.State != activity.Registered {
			t.Fatalf("expected %s registered, got %s", id, res.State)
		}
	}
	if _, err := env.Service.AddVisitorTo(env.Ctx, "m3", "kata", "Veranstaltung"); !errors.Is(err, registration.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed when full, got %v", err)
	}
	res, err := env.Service.AddVisitorTo(env.Ctx, "m1", "kata", "Veranstaltung")
	if err != nil || res.State != activity.Registered {
		t.Fatalf("registering twice must be a no-op, got %+v %v", res, err)
	}

	if _, err := env.Service.RemoveVisitorFrom(env.Ctx, "m1", "kata", "Veranstaltung"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	res, err = env.Service.AddVisitorTo(env.Ctx, "m3", "kata", "Veranstaltung")
	if err != nil || res.State != activity.Registered {
		t.Fatalf("freed slot must be usable, got %+v %v", res, err)
	}
	stored, _ := env.Store.GetActivity(env.Ctx, "kata")
	if ids := stored.ResourceNamed("Veranstaltung").RegisteredMemberIDs(); len(ids) != 2 || ids[0] != "m2" || ids[1] != "m3" {
		t.Fatalf("unexpected registrations %v", ids)
	}
}

func TestClosedResourceRefuses(t *testing.T) {
	env := newTestEnv(t)
	env.createActivity(t, "closed", "", "", "")
	if _, err := env.Service.AddVisitorTo(env.Ctx, "m1", "closed", "Veranstaltung"); !errors.Is(err, registration.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if _, err := env.Service.AddToWaitinglist(env.Ctx, "m1", "closed", "Veranstaltung"); !errors.Is(err, registration.ErrNotAllowed) {
		t.Fatalf("resource without waitinglist must refuse queueing, got %v", err)
	}
}

func TestWaitinglistWindow(t *testing.T) {
	env := newTestEnv(t)
	env.createActivity(t, "socrates", "5", "", "on")

	res, err := env.Service.AddToWaitinglist(env.Ctx, "m1", "socrates", "Veranstaltung")
	if err != nil || res.State != activity.OnWaitinglist {
		t.Fatalf("queue: %+v %v", res, err)
	}
	if _, err := env.Service.AddVisitorTo(env.Ctx, "m1", "socrates", "Veranstaltung"); !errors.Is(err, registration.ErrNotAllowed) {
		t.Fatalf("registration without window must be refused, got %v", err)
	}
	if _, err := env.Service.SetRegistrationValidity(env.Ctx, "m2", "socrates", "Veranstaltung", "2"); !errors.Is(err, registration.ErrNotAllowed) {
		t.Fatalf("member without entry cannot be promoted, got %v", err)
	}
	if _, err := env.Service.SetRegistrationValidity(env.Ctx, "m1", "socrates", "Veranstaltung", "2"); err != nil {
		t.Fatalf("promote: %v", err)
	}

	env.Service.Now = func() time.Time { return now.Add(3 * time.Hour) }
	if _, err := env.Service.AddVisitorTo(env.Ctx, "m1", "socrates", "Veranstaltung"); !errors.Is(err, registration.ErrNotAllowed) {
		t.Fatalf("expired window must be refused, got %v", err)
	}

	env.Service.Now = func() time.Time { return now.Add(time.Hour) }
	res, err = env.Service.AddVisitorTo(env.Ctx, "m1", "socrates", "Veranstaltung")
	if err != nil || res.State != activity.Registered {
		t.Fatalf("register inside window: %+v %v", res, err)
	}
	stored, _ := env.Store.GetActivity(env.Ctx, "socrates")
	if len(stored.ResourceNamed("Veranstaltung").WaitinglistEntries()) != 0 {
		t.Fatalf("registration must clear the waitinglist entry")
	}
}

func TestRemoveFromWaitinglist(t *testing.T) {
	env := newTestEnv(t)
	env.createActivity(t, "wl", "1", "on", "on")
	if _, err := env.Service.AddToWaitinglist(env.Ctx, "m1", "wl", "Veranstaltung"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	res, err := env.Service.RemoveFromWaitinglist(env.Ctx, "m1", "wl", "Veranstaltung")
	if err != nil {
		t.Fatalf("unqueue: %v", err)
	}
	if res.State != activity.RegistrationPossible {
		t.Fatalf("expected registrationPossible, got %s", res.State)
	}
}

func TestUnknownActivityAndResource(t *testing.T) {
	env := newTestEnv(t)
	env.createActivity(t, "kata", "", "on", "")
	if _, err := env.Service.AddVisitorTo(env.Ctx, "m1", "nope", "Veranstaltung"); !errors.Is(err, registration.ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
	if _, err := env.Service.AddVisitorTo(env.Ctx, "m1", "kata", "Bett"); !errors.Is(err, registration.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestConflictIsRetriedOnFreshState(t *testing.T) {
	env := newTestEnv(t)
	env.createActivity(t, "race", "2", "on", "")

	env.Docs.before = func() {
		competitor, err := env.Store.GetActivity(env.Ctx, "race")
		if err != nil || competitor == nil {
			t.Errorf("load competitor: %v", err)
			return
		}
		competitor.AddMemberID("m2", "Veranstaltung", now)
		if err := env.Store.SaveActivity(env.Ctx, competitor); err != nil {
			t.Errorf("competing save: %v", err)
		}
	}
	res, err := env.Service.AddVisitorTo(env.Ctx, "m1", "race", "Veranstaltung")
	if err != nil {
		t.Fatalf("register after conflict: %v", err)
	}
	if res.Version != 3 {
		t.Fatalf("expected version 3 after competitor and retry, got %d", res.Version)
	}
	stored, _ := env.Store.GetActivity(env.Ctx, "race")
	if ids := stored.AllRegisteredMembers(); len(ids) != 2 {
		t.Fatalf("both registrations must survive, got %v", ids)
	}
}

func TestConflictRetriesAreBounded(t *testing.T) {
	env := newTestEnv(t)
	env.createActivity(t, "busy", "", "on", "")
	env.Service.Retries = 0

	env.Docs.before = func() {
		competitor, _ := env.Store.GetActivity(env.Ctx, "busy")
		competitor.AddMemberID("other", "Veranstaltung", now)
		if err := env.Store.SaveActivity(env.Ctx, competitor); err != nil {
			t.Errorf("competing save: %v", err)
		}
	}
	if _, err := env.Service.AddVisitorTo(env.Ctx, "m1", "busy", "Veranstaltung"); !errors.Is(err, persistence.ErrConflictingVersions) {
		t.Fatalf("expected ErrConflictingVersions without retries, got %v", err)
	}
}

func TestFillAddonForParticipants(t *testing.T) {
	env := newTestEnv(t)
	env.createActivity(t, "socrates", "", "on", "")
	if _, err := env.Service.AddVisitorTo(env.Ctx, "m1", "socrates", "Veranstaltung"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := env.Service.FillAddon(env.Ctx, "m9", "socrates", activity.Addon{TShirtSize: "M"}); !errors.Is(err, registration.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed for a non-participant, got %v", err)
	}
	if _, err := env.Service.FillAddon(env.Ctx, "m1", "nope", activity.Addon{}); !errors.Is(err, registration.ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}

	env.Docs.before = func() {
		competitor, _ := env.Store.GetActivity(env.Ctx, "socrates")
		competitor.AddMemberID("m2", "Veranstaltung", now)
		if err := env.Store.SaveActivity(env.Ctx, competitor); err != nil {
			t.Errorf("competing save: %v", err)
		}
	}
	res, err := env.Service.FillAddon(env.Ctx, "m1", "socrates", activity.Addon{TShirtSize: " L ", Roommate: "m2"})
	if err != nil {
		t.Fatalf("fill addon: %v", err)
	}
	if res.Addon.TShirtSize != "L" || res.Version != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
	stored, _ := env.Store.GetActivity(env.Ctx, "socrates")
	if addon, ok := stored.AddonForMember("m1"); !ok || addon.Roommate != "m2" {
		t.Fatalf("addon not stored: %+v %v", addon, ok)
	}
	if ids := stored.AllRegisteredMembers(); len(ids) != 2 {
		t.Fatalf("competing registration must survive, got %v", ids)
	}
}
