package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"tideline/internal/config"
	"tideline/internal/db"
	"tideline/internal/engine"
	"tideline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	return newTestServerAuth(t, AuthConfig{AllowLegacyActorHeader: true})
}

func newTestServerAuth(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("op-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if err := e.Repo.UpsertOperatorConfig(context.Background(), "op-1", cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	if err := e.Repo.EnsureActor(context.Background(), "tester", "2026-06-01T08:00:00Z"); err != nil {
		t.Fatalf("seed actor: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
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
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
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
	for k, v := range headers {
		req.Header.Set(k, v)
	}
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

func createResource(t *testing.T, srv *testServer, id string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/resources", map[string]any{
		"id":       id,
		"name":     "Reef Runner",
		"type":     "boat",
		"capacity": 8,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create resource: %d %s", res.StatusCode, string(data))
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	createResource(t, srv, "boat-1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"title":       "Morning charter",
		"resource_id": "boat-1",
		"start_at":    "2026-06-10T09:00:00Z",
		"end_at":      "2026-06-10T11:00:00Z",
		"guests":      2,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create booking: %d %s", res.StatusCode, string(data))
	}
	var created BookingResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal booking: %v", err)
	}
	if created.Status != "pending" || created.Day != "2026-06-10" {
		t.Fatalf("unexpected booking: %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bookings/"+created.ID+"/status", map[string]any{
		"status": "confirmed",
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bookings/"+created.ID, nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get booking: %d %s", res.StatusCode, string(data))
	}
	var fetched BookingResponse
	_ = json.Unmarshal(data, &fetched)
	if fetched.Status != "confirmed" {
		t.Fatalf("want confirmed, got %s", fetched.Status)
	}
}

func TestConflictEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	createResource(t, srv, "boat-1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"title":       "First",
		"resource_id": "boat-1",
		"start_at":    "2026-06-10T09:00:00Z",
		"end_at":      "2026-06-10T11:00:00Z",
		"guests":      1,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("first booking: %d %s", res.StatusCode, string(data))
	}
	var first BookingResponse
	_ = json.Unmarshal(data, &first)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"title":       "Clash",
		"resource_id": "boat-1",
		"start_at":    "2026-06-10T10:00:00Z",
		"end_at":      "2026-06-10T12:00:00Z",
		"guests":      1,
	}, actorHeader)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("want 409, got %d %s", res.StatusCode, string(data))
	}
	var envelope apiError
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Body.Code != "booking_conflict" {
		t.Fatalf("want booking_conflict, got %q", envelope.Body.Code)
	}
	if envelope.Body.Details["competing_booking_id"] != first.ID {
		t.Fatalf("competing id missing: %v", envelope.Body.Details)
	}
}

func TestValidationErrorIs422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createResource(t, srv, "boat-1")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"title":       "Backwards",
		"resource_id": "boat-1",
		"start_at":    "2026-06-10T11:00:00Z",
		"end_at":      "2026-06-10T09:00:00Z",
		"guests":      1,
	}, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d %s", res.StatusCode, string(data))
	}
	var envelope apiError
	_ = json.Unmarshal(data, &envelope)
	if envelope.Body.Code != "validation_failed" {
		t.Fatalf("want validation_failed, got %q", envelope.Body.Code)
	}
}

func TestUnknownResourceIs404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/resources/ghost", nil, actorHeader)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestMissingAuthIs401ButHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/resources", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 without credentials, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	raw, key, err := engine.NewAPIKey("tester", "ci")
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Engine.Repo.InsertAPIKey(context.Background(), key); err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/resources", nil, map[string]string{"X-Api-Key": raw})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth failed: %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/resources", nil, map[string]string{"X-Api-Key": "tl_bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus key should be 401, got %d", res.StatusCode)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServerAuth(t, AuthConfig{JWTSecret: "test-secret"})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "tester",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var out DevLoginResponse
	if err := json.Unmarshal(data, &out); err != nil || out.Token == "" {
		t.Fatalf("want token, got %s (err %v)", string(data), err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/resources", nil, map[string]string{
		"Authorization": "Bearer " + out.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("token rejected: %d %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/resources", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token should be 401, got %d", res.StatusCode)
	}
}

func TestEligibilityBlockedConfirm(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	createResource(t, srv, "heli-1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/resources/heli-1/rules", map[string]any{
		"name":         "wind ceiling",
		"severity":     "block",
		"max_wind_kmh": 20,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create rule: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"title":       "Gusty",
		"resource_id": "heli-1",
		"start_at":    "2026-06-10T09:00:00Z",
		"end_at":      "2026-06-10T10:00:00Z",
		"guests":      1,
		"weather":     map[string]any{"wind_kmh": 45},
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("blocked verdict still books: %d %s", res.StatusCode, string(data))
	}
	var b BookingResponse
	_ = json.Unmarshal(data, &b)
	if b.Eligibility != "blocked" {
		t.Fatalf("want blocked verdict, got %s", b.Eligibility)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bookings/"+b.ID+"/status", map[string]any{
		"status": "confirmed",
	}, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("want 422 eligibility_blocked, got %d %s", res.StatusCode, string(data))
	}
	var envelope apiError
	_ = json.Unmarshal(data, &envelope)
	if envelope.Body.Code != "eligibility_blocked" {
		t.Fatalf("want eligibility_blocked, got %q", envelope.Body.Code)
	}
}

func TestNotificationsFeed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	createResource(t, srv, "boat-1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"title":       "Notify me",
		"resource_id": "boat-1",
		"start_at":    "2026-06-10T09:00:00Z",
		"end_at":      "2026-06-10T11:00:00Z",
		"guests":      1,
		"recipients":  []string{"dock-office"},
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications?recipient=dock-office", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list notifications: %d %s", res.StatusCode, string(data))
	}
	var out struct {
		Items []NotificationResponse `json:"items"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Seq != 1 || out.Items[0].Action != "created" {
		t.Fatalf("unexpected feed: %+v", out.Items)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/notifications/"+out.Items[0].ID+"/read", map[string]any{
		"recipient": "dock-office",
	}, actorHeader)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications/unread-count?recipient=dock-office", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unread count: %d %s", res.StatusCode, string(data))
	}
	var count map[string]int
	_ = json.Unmarshal(data, &count)
	if count["unread"] != 0 {
		t.Fatalf("want zero unread, got %d", count["unread"])
	}
}

func TestEventsFeedPaginatesByToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	createResource(t, srv, "boat-1")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"title":       "Evented",
		"resource_id": "boat-1",
		"start_at":    "2026-06-10T09:00:00Z",
		"end_at":      "2026-06-10T11:00:00Z",
		"guests":      1,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?after=0&limit=50", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var out struct {
		Items []EventResponse `json:"items"`
	}
	_ = json.Unmarshal(data, &out)
	if len(out.Items) < 2 {
		t.Fatalf("want resource.create and booking.create, got %+v", out.Items)
	}
	for k := 1; k < len(out.Items); k++ {
		if out.Items[k].ID <= out.Items[k-1].ID {
			t.Fatalf("feed must ascend by id")
		}
	}
	last := out.Items[len(out.Items)-1].ID

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?after="+strconv.FormatInt(last, 10), nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events after: %d %s", res.StatusCode, string(data))
	}
	out.Items = nil
	_ = json.Unmarshal(data, &out)
	if len(out.Items) != 0 {
		t.Fatalf("no events expected past the token, got %+v", out.Items)
	}
}
