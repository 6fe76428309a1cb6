package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwerkskammer/Agora-sub000/internal/activity"
	"github.com/softwerkskammer/Agora-sub000/internal/app"
	"github.com/softwerkskammer/Agora-sub000/internal/config"
	"github.com/softwerkskammer/Agora-sub000/internal/registration"
	"github.com/softwerkskammer/Agora-sub000/internal/socrates"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Workspace = t.TempDir()
	cfg.Storage.Connect.Attempts = 1
	a, err := app.Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	a.SetNow(func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) })
	handler, err := New(Config{App: a, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			a.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createActivity(t *testing.T, srv *testServer, body map[string]any) ActivityResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/activities", body)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create activity status %d: %s", res.StatusCode, string(data))
	}
	var created ActivityResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	return created
}

func stateOf(t *testing.T, srv *testServer, url, resource, memberID string) activity.RegistrationState {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities/"+url+"/resources/"+resource+"/state?member_id="+memberID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("state status %d: %s", res.StatusCode, string(data))
	}
	var st StateResponse
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return st.State
}

func TestRegistrationUntilFull(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	created := createActivity(t, srv, map[string]any{
		"url":        "coderetreat",
		"title":      "Coderetreat",
		"start_date": "2024-05-17",
		"start_time": "09:00",
		"end_date":   "2024-05-17",
		"end_time":   "17:00",
		"resources": []map[string]any{
			{"name": "Veranstaltung", "limit": 1, "registration_open": true},
		},
	})
	if created.Version != 1 || len(created.Resources) != 1 {
		t.Fatalf("unexpected activity %+v", created)
	}

	regURL := srv.URL + "/v0/activities/coderetreat/resources/Veranstaltung/registrations"
	res, data := doJSON(t, client, http.MethodPost, regURL, map[string]any{"member_id": "m1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register m1: %d %s", res.StatusCode, string(data))
	}
	var result registration.Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.State != activity.Registered || result.Version != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if st := stateOf(t, srv, "coderetreat", "Veranstaltung", "m2"); st != activity.Full {
		t.Fatalf("expected full for m2, got %s", st)
	}
	res, data = doJSON(t, client, http.MethodPost, regURL, map[string]any{"member_id": "m2"})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for m2, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, regURL+"/m1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("deregister m1: %d %s", res.StatusCode, string(data))
	}
	if st := stateOf(t, srv, "coderetreat", "Veranstaltung", "m2"); st != activity.RegistrationPossible {
		t.Fatalf("expected registrationPossible for m2, got %s", st)
	}
}

func TestWaitinglistPromotion(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createActivity(t, srv, map[string]any{
		"url":        "socrates-day",
		"title":      "Socrates Day",
		"start_date": "2024-06-01",
		"end_date":   "2024-06-02",
		"resources": []map[string]any{
			{"name": "Einzelzimmer", "limit": 5, "with_waitinglist": true},
		},
	})
	base := srv.URL + "/v0/activities/socrates-day/resources/Einzelzimmer"

	res, data := doJSON(t, client, http.MethodPost, base+"/waitinglist", map[string]any{"member_id": "abc"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("waitinglist add: %d %s", res.StatusCode, string(data))
	}
	if st := stateOf(t, srv, "socrates-day", "Einzelzimmer", "abc"); st != activity.OnWaitinglist {
		t.Fatalf("expected onWaitinglist, got %s", st)
	}
	res, _ = doJSON(t, client, http.MethodPost, base+"/registrations", map[string]any{"member_id": "abc"})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected registration without window to be refused, got %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPut, base+"/waitinglist/abc/validity", map[string]any{"hours": "2"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set validity: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/registrations", map[string]any{"member_id": "abc"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register within window: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/socrates-day", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get activity: %d %s", res.StatusCode, string(data))
	}
	var got ActivityResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	room := got.Resources[0]
	if len(room.Registered) != 1 || room.Registered[0].MemberID != "abc" || len(room.Waitinglist) != 0 {
		t.Fatalf("expected abc registered and waitinglist empty, got %+v", room)
	}
}

func TestUnknownActivity(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found code, got %+v", envelope)
	}
}

func TestStandaloneWaitinglist(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/members", map[string]any{"nickname": "alice"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create member: %d %s", res.StatusCode, string(data))
	}
	var m MemberResponse
	_ = json.Unmarshal(data, &m)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/waitinglist", map[string]any{
		"nickname": "alice", "activity_url": "socrates-2024", "resource": "single",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create entry: %d %s", res.StatusCode, string(data))
	}
	canURL := srv.URL + "/v0/waitinglist/can-subscribe?member_id=" + m.ID + "&activity_url=socrates-2024&resource=single"
	var can CanSubscribeResponse
	_, data = doJSON(t, client, http.MethodGet, canURL, nil)
	_ = json.Unmarshal(data, &can)
	if can.CanSubscribe {
		t.Fatalf("expected no subscription without window")
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/waitinglist/validity", map[string]any{
		"member_id": m.ID, "activity_url": "socrates-2024", "resource": "single", "hours": "2",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set validity: %d %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, canURL, nil)
	_ = json.Unmarshal(data, &can)
	if !can.CanSubscribe {
		t.Fatalf("expected subscription within window")
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/waitinglist", nil)
	var list []WaitinglistResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 1 || list[0].Registrant != "alice" {
		t.Fatalf("expected alice on the waitinglist, got %+v", list)
	}

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/waitinglist", map[string]any{
		"nickname": "bob", "activity_url": "socrates-2024", "resource": "single",
	})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown nickname, got %d", res.StatusCode)
	}
}

func TestSocratesCommands(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	post := func(path string, body map[string]any) SocratesEventResponse {
		t.Helper()
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/socrates/"+path, body)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: %d %s", path, res.StatusCode, string(data))
		}
		var e SocratesEventResponse
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return e
	}

	if e := post("reservations", map[string]any{"room_type": "single", "session_id": "s1"}); e.Type != socrates.ReservationIssued {
		t.Fatalf("expected reservation, got %+v", e)
	}
	if e := post("reservations", map[string]any{"room_type": "junior", "session_id": "s1"}); e.Type != socrates.ReservationRejected || e.Reason != socrates.ReasonAlreadyReserved {
		t.Fatalf("expected rejection, got %+v", e)
	}
	if e := post("registrations", map[string]any{"room_type": "single", "session_id": "s1", "member_id": "m1"}); e.Type != socrates.ParticipantRegistered {
		t.Fatalf("expected registration, got %+v", e)
	}

	_, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/socrates/rooms/single", nil)
	var views []socrates.View
	if err := json.Unmarshal(data, &views); err != nil {
		t.Fatalf("unmarshal views: %v", err)
	}
	if len(views) != 1 || views[0].Kind != socrates.RegistrationView || views[0].MemberID != "m1" {
		t.Fatalf("expected one registration view, got %+v", views)
	}
}

func TestAddonsAndClone(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createActivity(t, srv, map[string]any{
		"url":        "socrates",
		"title":      "SoCraTes",
		"start_date": "2024-08-22",
		"end_date":   "2024-08-25",
		"resources": []map[string]any{
			{"name": "single", "limit": 10, "registration_open": true},
		},
	})
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/socrates/resources/single/registrations", map[string]any{"member_id": "m1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register m1: %d %s", res.StatusCode, string(data))
	}

	addonURL := srv.URL + "/v0/activities/socrates/addons/"
	res, data = doJSON(t, client, http.MethodPut, addonURL+"m2", map[string]any{"tshirt_size": "S"})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a non-participant, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, addonURL+"m1", map[string]any{"tshirt_size": " XL ", "roommate": "m3"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fill addon: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, addonURL+"m1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get addon: %d %s", res.StatusCode, string(data))
	}
	var addon AddonResponse
	if err := json.Unmarshal(data, &addon); err != nil {
		t.Fatalf("unmarshal addon: %v", err)
	}
	if !addon.Answered || addon.TShirtSize != "XL" || addon.Roommate != "m3" || addon.Version != 3 {
		t.Fatalf("unexpected addon %+v", addon)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/socrates/clone", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clone: %d %s", res.StatusCode, string(data))
	}
	var clone ActivityResponse
	if err := json.Unmarshal(data, &clone); err != nil {
		t.Fatalf("unmarshal clone: %v", err)
	}
	if clone.URL != "" || clone.Version != 0 || len(clone.Resources) != 1 {
		t.Fatalf("clone must be an unsaved template, got %+v", clone)
	}
	if r := clone.Resources[0]; r.Name != "single" || r.Limit == nil || *r.Limit != 10 || len(r.Registered) != 0 {
		t.Fatalf("clone must keep limits only, got %+v", r)
	}
}
