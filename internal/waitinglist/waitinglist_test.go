package waitinglist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwerkskammer/Agora-sub000/internal/db"
	"github.com/softwerkskammer/Agora-sub000/internal/member"
	"github.com/softwerkskammer/Agora-sub000/internal/migrate"
	"github.com/softwerkskammer/Agora-sub000/internal/persistence"
	"github.com/softwerkskammer/Agora-sub000/internal/waitinglist"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Service *waitinglist.Service
	Members member.Store
	Ctx     context.Context
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
	docs := persistence.NewSQLStore(conn)
	members := member.Store{Docs: docs}
	svc := &waitinglist.Service{
		Store:   waitinglist.Store{Docs: docs},
		Members: members,
		Now:     func() time.Time { return now },
		Log:     zerolog.Nop(),
	}
	return testEnv{Service: svc, Members: members, Ctx: context.Background()}
}

func (env testEnv) member(t *testing.T, nickname string) member.Member {
	t.Helper()
	m := member.Member{Nickname: nickname}
	if err := env.Members.Save(env.Ctx, &m); err != nil {
		t.Fatalf("save member: %v", err)
	}
	return m
}

func TestSaveAndListEntries(t *testing.T) {
	env := newTestEnv(t)
	alice := env.member(t, "alice")

	e, err := env.Service.SaveWaitinglistEntry(env.Ctx, "alice", "socrates-2024", "single")
	if err != nil {
		t.Fatalf("save entry: %v", err)
	}
	if e.ID == "" || e.RegistrantID != alice.ID || !e.RegistrationDate.Equal(now) || e.RegistrationValidUntil != nil {
		t.Fatalf("unexpected entry %+v", e)
	}
	if _, err := env.Service.SaveWaitinglistEntry(env.Ctx, "nobody", "socrates-2024", "single"); !errors.Is(err, waitinglist.ErrUnknownMember) {
		t.Fatalf("expected ErrUnknownMember, got %v", err)
	}

	list, err := env.Service.Waitinglist(env.Ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Registrant != "alice" || list[0].ActivityName != "socrates-2024" || list[0].ResourceName != "single" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestRegistrationWindow(t *testing.T) {
	env := newTestEnv(t)
	bob := env.member(t, "bob")
	if _, err := env.Service.SaveWaitinglistEntry(env.Ctx, "bob", "socrates-2024", "double"); err != nil {
		t.Fatalf("save entry: %v", err)
	}

	ok, err := env.Service.CanSubscribe(env.Ctx, bob.ID, "socrates-2024", "double")
	if err != nil || ok {
		t.Fatalf("entry without window cannot subscribe: %v %v", ok, err)
	}
	e, err := env.Service.SetRegistrationValidity(env.Ctx, bob.ID, "socrates-2024", "double", "1")
	if err != nil || e == nil {
		t.Fatalf("set validity: %v %v", e, err)
	}
	if e.RegistrationValidUntil == nil || !e.RegistrationValidUntil.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected window until now+1h, got %v", e.RegistrationValidUntil)
	}
	ok, err = env.Service.CanSubscribe(env.Ctx, bob.ID, "socrates-2024", "double")
	if err != nil || !ok {
		t.Fatalf("expected subscription inside window: %v %v", ok, err)
	}

	env.Service.Now = func() time.Time { return now.Add(2 * time.Hour) }
	if ok, _ := env.Service.CanSubscribe(env.Ctx, bob.ID, "socrates-2024", "double"); ok {
		t.Fatalf("expired window must not allow subscription")
	}

	if e, err := env.Service.SetRegistrationValidity(env.Ctx, bob.ID, "socrates-2024", "single", "1"); err != nil || e != nil {
		t.Fatalf("missing entry must yield nil, got %v %v", e, err)
	}
	if ok, err := env.Service.CanSubscribe(env.Ctx, "ghost", "socrates-2024", "double"); err != nil || ok {
		t.Fatalf("missing entry cannot subscribe: %v %v", ok, err)
	}

	if _, err := env.Service.SetRegistrationValidity(env.Ctx, bob.ID, "socrates-2024", "double", ""); err != nil {
		t.Fatalf("clear validity: %v", err)
	}
	list, _ := env.Service.Waitinglist(env.Ctx)
	if len(list) != 1 || list[0].RegistrationValidUntil != nil {
		t.Fatalf("cleared window must be stored, got %+v", list)
	}
}
