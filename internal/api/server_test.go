package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/equipctl/internal/auth"
	"github.com/nerrad567/equipctl/internal/command"
	"github.com/nerrad567/equipctl/internal/equipment"
	"github.com/nerrad567/equipctl/internal/infrastructure/config"
	"github.com/nerrad567/equipctl/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/equipctl/internal/infrastructure/logging"
	"github.com/nerrad567/equipctl/internal/registry"
	"github.com/nerrad567/equipctl/internal/reservation"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakePublisher records publishes and can be told to fail. When forward is
// set, each successful publish is also delivered to it, standing in for
// the broker.
type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
	forward  func(topic string, payload []byte) error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	forward := p.forward
	p.mu.Unlock()

	if forward != nil {
		return forward(topic, payload)
	}
	return nil
}

type testEnv struct {
	srv    *Server
	router http.Handler
	reg    *registry.Registry
	dir    *equipment.Directory
	pub    *fakePublisher
}

type envOption func(*config.SecurityConfig)

func withoutAuth(c *config.SecurityConfig) { c.AuthRequired = false }

func withRateLimit(perMinute, burst int) envOption {
	return func(c *config.SecurityConfig) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute, Burst: burst}
	}
}

// newTestEnv wires every service over one in-memory database.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db := dbtest.Open(t)
	reg := registry.New(db.DB)
	if err := reg.Seed(context.Background()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	sec := config.SecurityConfig{
		JWT:          config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		AuthRequired: true,
	}
	for _, opt := range opts {
		opt(&sec)
	}

	log := logging.Discard()
	pub := &fakePublisher{}
	dir := equipment.NewDirectory(equipment.NewSQLiteRepository(db.DB), reg)
	dispatcher := command.NewDispatcher(command.NewSQLiteRepository(db.DB), reg, pub)

	srv, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1"},
		WS:         config.WebSocketConfig{Path: "/ws"},
		Security:   sec,
		Logger:     log,
		Registry:   reg,
		Equipment:  dir,
		Ledger:     reservation.NewLedger(reservation.NewSQLiteRepository(db.DB), reg),
		Dispatcher: dispatcher,
		Auth:       auth.NewService(auth.NewUserRepository(db.DB), sec.JWT.Secret, sec.JWT.AccessTokenTTL),
		Health:     map[string]HealthChecker{"database": db},
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	dir.SetObserver(srv.Hub())
	dispatcher.SetNotifier(srv.Hub())

	return &testEnv{srv: srv, router: srv.buildRouter(), reg: reg, dir: dir, pub: pub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// login registers username and returns its id and an access token.
func (e *testEnv) login(t *testing.T, username string) (string, string) {
	t.Helper()

	w := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name":     "User " + username,
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", w.Code, w.Body)
	}
	var user auth.User
	decode(t, w, &user)

	w = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body)
	}
	var tok auth.Token
	decode(t, w, &tok)
	return user.ID, tok.AccessToken
}

func (e *testEnv) statusID(t *testing.T, kind registry.Kind, name string) string {
	t.Helper()
	id, err := e.reg.ResolveByName(context.Background(), kind, name)
	if err != nil {
		t.Fatalf("ResolveByName(%s) error = %v", name, err)
	}
	return id
}

func (e *testEnv) createEquipment(t *testing.T, token, name string) equipment.Equipment {
	t.Helper()
	w := e.do(t, http.MethodPost, "/equipments", token, map[string]any{
		"name":            name,
		"currentStatusId": e.statusID(t, registry.KindEquipmentStatus, registry.StatusAvailable),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create equipment status = %d, body %s", w.Code, w.Body)
	}
	var eq equipment.Equipment
	decode(t, w, &eq)
	return eq
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e Error
	decode(t, w, &e)
	return e.Detail
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp healthResponse
	decode(t, w, &resp)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Components["database"] != "ok" {
		t.Errorf("database component = %q, want ok", resp.Components["database"])
	}
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return errors.New("broker unreachable") }

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t)
	env.srv.health["mqtt"] = failingCheck{}

	w := env.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp healthResponse
	decode(t, w, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Components["mqtt"] != "broker unreachable" {
		t.Errorf("mqtt component = %q", resp.Components["mqtt"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics output should include the default Go collectors")
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	t.Run("generated", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/health", "", nil)
		if w.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header to be set")
		}
	})

	t.Run("preserved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "client-123")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if got := w.Header().Get("X-Request-ID"); got != "client-123" {
			t.Errorf("X-Request-ID = %q, want client-123", got)
		}
	})
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/equipments", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want http://localhost:3000", got)
	}
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/nonexistent", "", nil)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if detail(t, w) == "" {
		t.Error("error body should carry a detail")
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/equipments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if w.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Error("401 should carry a Bearer challenge")
			}
		})
	}
}

func TestAuthOptional(t *testing.T) {
	env := newTestEnv(t, withoutAuth)

	if w := env.do(t, http.MethodGet, "/equipments", "", nil); w.Code != http.StatusOK {
		t.Errorf("anonymous status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := env.do(t, http.MethodGet, "/equipments", "bogus", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := env.do(t, http.MethodGet, "/auth/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous /auth/me status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)
	id, token := env.login(t, "alice")

	w := env.do(t, http.MethodGet, "/auth/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", w.Code, w.Body)
	}

	var body map[string]any
	decode(t, w, &body)
	if body["id"] != id || body["username"] != "alice" || body["isActive"] != true {
		t.Errorf("me = %v", body)
	}
	if _, leaked := body["passwordHash"]; leaked {
		t.Error("password hash must not be serialised")
	}
}

func TestLogin_Form(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice")

	form := url.Values{"username": {"alice"}, "password": {"password123"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("form login status = %d, body %s", w.Code, w.Body)
	}
	var tok map[string]string
	decode(t, w, &tok)
	if tok["tokenType"] != "bearer" || tok["accessToken"] == "" {
		t.Errorf("token = %v", tok)
	}
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"wrong password", map[string]string{"username": "alice", "password": "nope-nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "bob", "password": "password123"}, http.StatusUnauthorized},
		{"missing fields", map[string]string{"username": "alice"}, http.StatusBadRequest},
		{"invalid json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/auth/login", "", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRegister_Conflict(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice")

	w := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Other", "username": "alice", "email": "other@example.com", "password": "password123",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestUsers(t *testing.T) {
	env := newTestEnv(t)
	aliceID, token := env.login(t, "alice")
	bobID, bobToken := env.login(t, "bob")

	w := env.do(t, http.MethodGet, "/users", token, nil)
	var users []auth.User
	decode(t, w, &users)
	if len(users) != 2 {
		t.Fatalf("users = %d, want 2", len(users))
	}

	w = env.do(t, http.MethodPatch, "/users/"+aliceID, token, map[string]string{"name": "Alice L."})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", w.Code, w.Body)
	}
	var alice auth.User
	decode(t, w, &alice)
	if alice.Name != "Alice L." {
		t.Errorf("name = %q", alice.Name)
	}

	if w := env.do(t, http.MethodGet, "/users/missing", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want %d", w.Code, http.StatusNotFound)
	}

	if w := env.do(t, http.MethodDelete, "/users/"+bobID, token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := env.do(t, http.MethodGet, "/auth/me", bobToken, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("deactivated token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	w = env.do(t, http.MethodGet, "/users/"+bobID, token, nil)
	var bob auth.User
	decode(t, w, &bob)
	if bob.IsActive {
		t.Error("deleted user should be kept and marked inactive")
	}
}

func TestEquipmentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.login(t, "alice")

	eq := env.createEquipment(t, token, "Centrifuge")
	if eq.CurrentStatusName == nil || *eq.CurrentStatusName != registry.StatusAvailable {
		t.Errorf("status name = %v, want Available", eq.CurrentStatusName)
	}

	if w := env.do(t, http.MethodGet, "/equipments/"+eq.ID, token, nil); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}

	occupied := env.statusID(t, registry.KindEquipmentStatus, registry.StatusOccupied)
	w := env.do(t, http.MethodPatch, "/equipments/"+eq.ID, token, map[string]any{
		"currentStatusId": occupied,
		"location":        nil,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", w.Code, w.Body)
	}

	w = env.do(t, http.MethodGet, "/equipments/"+eq.ID+"/status", token, nil)
	var view equipment.StatusView
	decode(t, w, &view)
	if view.CurrentStatusName == nil || *view.CurrentStatusName != registry.StatusOccupied {
		t.Errorf("status view = %+v", view)
	}

	w = env.do(t, http.MethodGet, "/equipment-status-logs/"+eq.ID, token, nil)
	var logs []equipment.StatusLogEntry
	decode(t, w, &logs)
	if len(logs) != 1 || logs[0].EquipmentStatus != registry.StatusOccupied {
		t.Errorf("logs = %+v, want one Occupied entry", logs)
	}

	w = env.do(t, http.MethodGet, "/equipment-status-logs", token, nil)
	decode(t, w, &logs)
	if len(logs) != 1 {
		t.Errorf("global logs = %d, want 1", len(logs))
	}

	if w := env.do(t, http.MethodDelete, "/equipments/"+eq.ID, token, nil); w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("delete status = %d, body %q", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodGet, "/equipments/"+eq.ID, token, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestEquipmentErrors(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.login(t, "alice")
	env.createEquipment(t, token, "Centrifuge")
	available := env.statusID(t, registry.KindEquipmentStatus, registry.StatusAvailable)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate name", map[string]any{"name": "Centrifuge", "currentStatusId": available}, http.StatusConflict},
		{"empty name", map[string]any{"name": "", "currentStatusId": available}, http.StatusBadRequest},
		{"unknown status", map[string]any{"name": "Scope", "currentStatusId": "missing"}, http.StatusNotFound},
		{"bad location", map[string]any{"name": "Scope", "currentStatusId": available, "location": "lab 3"}, http.StatusBadRequest},
		{"invalid json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/equipments", token, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestEquipmentStatusVocabulary(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.login(t, "alice")

	w := env.do(t, http.MethodGet, "/equipment-status", token, nil)
	var entries []registry.Entry
	decode(t, w, &entries)
	if len(entries) != len(registry.Names(registry.KindEquipmentStatus)) {
		t.Errorf("statuses = %d, want %d", len(entries), len(registry.Names(registry.KindEquipmentStatus)))
	}
}

func TestReservationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.login(t, "alice")
	eq := env.createEquipment(t, token, "Centrifuge")

	w := env.do(t, http.MethodPost, "/reservations", token, map[string]any{
		"equipmentId": eq.ID,
		"startTime":   "2026-10-20T09:00:00Z",
		"endTime":     "2026-10-20T11:00:00Z",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body)
	}
	var res reservation.Reservation
	decode(t, w, &res)
	if res.UserID != userID {
		t.Errorf("userId = %q, want caller %q", res.UserID, userID)
	}
	if res.StatusName != registry.ReservationActive || res.EquipmentName != "Centrifuge" {
		t.Errorf("reservation = %+v", res)
	}

	completed := env.statusID(t, registry.KindReservationStatus, registry.ReservationCompleted)
	active := env.statusID(t, registry.KindReservationStatus, registry.ReservationActive)

	if w := env.do(t, http.MethodPatch, "/reservations/"+res.ID, token, map[string]string{"statusId": completed}); w.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodPatch, "/reservations/"+res.ID, token, map[string]string{"statusId": active}); w.Code != http.StatusConflict {
		t.Errorf("reopen status = %d, want %d", w.Code, http.StatusConflict)
	}
	if w := env.do(t, http.MethodDelete, "/reservations/"+res.ID, token, nil); w.Code != http.StatusConflict {
		t.Errorf("cancel completed status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = env.do(t, http.MethodGet, "/reservations/status-reservation", token, nil)
	var statuses []registry.Entry
	decode(t, w, &statuses)
	if len(statuses) != 3 {
		t.Errorf("reservation statuses = %d, want 3", len(statuses))
	}
}

func TestReservationCancel(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.login(t, "alice")
	eq := env.createEquipment(t, token, "Centrifuge")

	w := env.do(t, http.MethodPost, "/reservations", token, map[string]any{
		"equipmentId": eq.ID,
		"startTime":   "2026-10-20T09:00:00Z",
		"endTime":     "2026-10-20T11:00:00Z",
	})
	var res reservation.Reservation
	decode(t, w, &res)

	for range 2 {
		if w := env.do(t, http.MethodDelete, "/reservations/"+res.ID, token, nil); w.Code != http.StatusNoContent {
			t.Fatalf("cancel status = %d, body %s", w.Code, w.Body)
		}
	}

	w = env.do(t, http.MethodGet, "/reservations/"+res.ID, token, nil)
	decode(t, w, &res)
	if res.StatusName != registry.ReservationCanceled {
		t.Errorf("status = %q, want Canceled", res.StatusName)
	}

	if w := env.do(t, http.MethodGet, "/reservations/missing", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want %d", w.Code, http.StatusNotFound)
	}

	// Equipment with reservations cannot be deleted.
	if w := env.do(t, http.MethodDelete, "/equipments/"+eq.ID, token, nil); w.Code != http.StatusConflict {
		t.Errorf("delete referenced equipment status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestCommands(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.login(t, "alice")
	eq := env.createEquipment(t, token, "Centrifuge")
	start := env.statusID(t, registry.KindCommandType, registry.CommandStart)

	w := env.do(t, http.MethodPost, "/commands", token, map[string]any{
		"equipmentId":   eq.ID,
		"commandTypeId": start,
		"payload":       "speed=3000",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", w.Code, w.Body)
	}
	var cmd command.Command
	decode(t, w, &cmd)
	if cmd.CommandName != registry.CommandStart {
		t.Errorf("command name = %q", cmd.CommandName)
	}

	if len(env.pub.topics) != 1 || env.pub.topics[0] != "equipments/"+eq.ID+"/commands" {
		t.Errorf("published topics = %v", env.pub.topics)
	}

	if w := env.do(t, http.MethodGet, "/commands/"+cmd.ID, token, nil); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/commands/missing", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = env.do(t, http.MethodGet, "/commands/available-types", token, nil)
	var types []registry.Entry
	decode(t, w, &types)
	if len(types) != 6 {
		t.Errorf("command types = %d, want 6", len(types))
	}
}

func TestCommands_PublishFailureStillCreated(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.login(t, "alice")
	eq := env.createEquipment(t, token, "Centrifuge")
	env.pub.err = errors.New("broker down")

	w := env.do(t, http.MethodPost, "/commands", token, map[string]any{
		"equipmentId":   eq.ID,
		"commandTypeId": env.statusID(t, registry.KindCommandType, registry.CommandStop),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, want %d", w.Code, http.StatusCreated)
	}

	w = env.do(t, http.MethodGet, "/commands", token, nil)
	var cmds []command.Command
	decode(t, w, &cmds)
	if len(cmds) != 1 {
		t.Errorf("commands = %d, want the row kept", len(cmds))
	}
}

func TestCommands_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.login(t, "alice")
	eq := env.createEquipment(t, token, "Centrifuge")
	start := env.statusID(t, registry.KindCommandType, registry.CommandStart)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown equipment", map[string]any{"equipmentId": "missing", "commandTypeId": start}, http.StatusNotFound},
		{"unknown type", map[string]any{"equipmentId": eq.ID, "commandTypeId": "missing"}, http.StatusNotFound},
		{"payload too long", map[string]any{"equipmentId": eq.ID, "commandTypeId": start, "payload": strings.Repeat("x", command.MaxPayloadLength+1)}, http.StatusBadRequest},
		{"missing fields", map[string]any{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/commands", token, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
	if len(env.pub.topics) != 0 {
		t.Errorf("rejected commands published %v", env.pub.topics)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, withRateLimit(60, 2))

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, env.do(t, http.MethodGet, "/health", "", nil).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst codes = %v, want first two 200", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third code = %d, want %d", codes[2], http.StatusTooManyRequests)
	}
}

func TestWriteDomainError(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		err  error
		want int
	}{
		{equipment.ErrNotFound, http.StatusNotFound},
		{equipment.ErrHasDependents, http.StatusConflict},
		{reservation.ErrInvalidTransition, http.StatusConflict},
		{reservation.ErrStatusMisconfigured, http.StatusInternalServerError},
		{command.ErrPublishFailed, http.StatusServiceUnavailable},
		{auth.ErrTokenInvalid, http.StatusUnauthorized},
		{auth.ErrInvalid, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			env.srv.writeDomainError(w, r, tt.err)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if d := detail(t, w); d == "" || strings.Contains(d, "disk on fire") {
				t.Errorf("detail = %q", d)
			}
		})
	}
}
