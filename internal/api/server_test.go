package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/c4bridge/internal/bridge"
	"github.com/nerrad567/c4bridge/internal/director"
	"github.com/nerrad567/c4bridge/internal/entity"
	"github.com/nerrad567/c4bridge/internal/infrastructure/config"
	"github.com/nerrad567/c4bridge/internal/infrastructure/logging"
)

type noopCommander struct{}

func (noopCommander) SendCommand(context.Context, int, string, map[string]any) error { return nil }

// fakeBridge serves a canned registry and counters.
type fakeBridge struct {
	registry *entity.Registry
	metrics  bridge.Metrics
}

func (f *fakeBridge) Registry() *entity.Registry { return f.registry }
func (f *fakeBridge) GetMetrics() bridge.Metrics { return f.metrics }

type fakeDirectorStatus struct {
	stats    director.ClientStats
	bindings json.RawMessage
	network  json.RawMessage
}

func (f *fakeDirectorStatus) Stats() director.ClientStats         { return f.stats }
func (f *fakeDirectorStatus) HealthCheck(_ context.Context) error { return nil }

func (f *fakeDirectorStatus) GetItemBindings(_ context.Context, _ int) (json.RawMessage, error) {
	return f.bindings, nil
}

func (f *fakeDirectorStatus) GetItemNetwork(_ context.Context, _ int) (json.RawMessage, error) {
	return f.network, nil
}

type fakeEventStatus struct{ stats director.EventStats }

func (f *fakeEventStatus) Stats() director.EventStats { return f.stats }

type fakeTokenStatus struct {
	status     director.TokenStatus
	refreshed  bool
	refreshErr error
}

func (f *fakeTokenStatus) Status() director.TokenStatus { return f.status }

func (f *fakeTokenStatus) Refresh(_ context.Context) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshed = true
	return nil
}

type fakeConn struct{ connected bool }

func (f *fakeConn) IsConnected() bool { return f.connected }

type fakeItemStore struct{ items []director.Item }

func (f *fakeItemStore) LoadItems(_ context.Context, category string) ([]director.Item, error) {
	if category == "" {
		return f.items, nil
	}
	var filtered []director.Item
	for _, item := range f.items {
		for _, c := range item.Categories {
			if c == category {
				filtered = append(filtered, item)
			}
		}
	}
	return filtered, nil
}

func (f *fakeItemStore) ItemCount(_ context.Context) (int, error) { return len(f.items), nil }

func testEntityRegistry() *entity.Registry {
	registry := entity.NewRegistry()
	item := director.Item{
		ID: 100, Name: "Kitchen Light", Type: director.ItemTypeDevice,
		ParentID: 99, RoomName: "Kitchen", Proxy: "light_v2",
	}
	light := entity.NewLight(item, director.Item{ID: 99}, noopCommander{}, 250)
	light.ApplyUpdate(map[string]any{"LIGHT_LEVEL": 75})
	registry.Add(light)

	relay := director.Item{
		ID: 450, Name: "Fountain Pump", Type: director.ItemTypeDevice,
		ParentID: 449, RoomName: "Garden", Proxy: "relaysingle_relay_c4",
	}
	registry.Add(entity.NewSwitch(relay, director.Item{ID: 449}, noopCommander{}))
	return registry
}

func newTestServer(t *testing.T, mutate func(*Deps)) (*Server, *fakeTokenStatus) {
	t.Helper()

	tokens := &fakeTokenStatus{
		status: director.TokenStatus{
			HasToken:  true,
			ExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Refreshes: 3,
		},
	}
	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger: logging.Default(),
		Bridge: &fakeBridge{
			registry: testEntityRegistry(),
			metrics:  bridge.Metrics{CommandsProcessed: 5, EventsReceived: 40},
		},
		Director: &fakeDirectorStatus{
			stats:    director.ClientStats{RequestsTotal: 20, CommandsSent: 5},
			bindings: json.RawMessage(`{"bindings":[{"bindingid":1}]}`),
			network:  json.RawMessage(`{"network":{"mac":"aa:bb"}}`),
		},
		Events:   &fakeEventStatus{stats: director.EventStats{Connected: true, EventsReceived: 40}},
		Tokens:   tokens,
		MQTT:     &fakeConn{connected: true},
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	server, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return server, tokens
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response: %v (body %s)", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	if rec := doRequest(t, server, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestListEntities(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/entities/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body EntityListResponse
	decode(t, rec, &body)
	if body.Count != 2 || len(body.Entities) != 2 {
		t.Fatalf("count = %d, entities = %d", body.Count, len(body.Entities))
	}
	if body.ByType[entity.TypeLight] != 1 || body.ByType[entity.TypeSwitch] != 1 {
		t.Errorf("by_type = %v", body.ByType)
	}
}

func TestListEntities_TypeFilter(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/entities/?type=light")
	var body EntityListResponse
	decode(t, rec, &body)
	if body.Count != 1 || body.Entities[0].Address != "100" {
		t.Errorf("filtered entities = %+v", body.Entities)
	}
}

func TestGetEntity(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/entities/100")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body EntityResponse
	decode(t, rec, &body)
	if body.Address != "100" || body.Name != "Kitchen Light" || !body.Available {
		t.Errorf("entity = %+v", body)
	}
	if body.State["on"] != true {
		t.Errorf("state = %v", body.State)
	}
}

func TestGetEntityBindings(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/entities/100/bindings")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]any
	decode(t, rec, &body)
	if _, ok := body["bindings"]; !ok {
		t.Errorf("body = %v", body)
	}

	rec = doRequest(t, server, http.MethodGet, "/api/v1/entities/999/network")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown entity status = %d", rec.Code)
	}
}

func TestGetEntity_NotFound(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/entities/999")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}

	var body Error
	decode(t, rec, &body)
	if body.Code != ErrCodeNotFound {
		t.Errorf("error = %+v", body)
	}
}

func TestDirectorStatus(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/director/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body DirectorStatusResponse
	decode(t, rec, &body)
	if body.Client == nil || body.Client.RequestsTotal != 20 {
		t.Errorf("client = %+v", body.Client)
	}
	if body.Events == nil || !body.Events.Connected {
		t.Errorf("events = %+v", body.Events)
	}
	if body.Token == nil || !body.Token.HasToken || body.Token.ExpiresAt == "" {
		t.Errorf("token = %+v", body.Token)
	}
}

func TestRefresh(t *testing.T) {
	reloaded := false
	server, tokens := newTestServer(t, func(deps *Deps) {
		deps.Reload = func(_ context.Context) error {
			reloaded = true
			return nil
		}
	})

	rec := doRequest(t, server, http.MethodPost, "/api/v1/director/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if !tokens.refreshed || !reloaded {
		t.Errorf("refreshed = %v, reloaded = %v", tokens.refreshed, reloaded)
	}

	var body map[string]any
	decode(t, rec, &body)
	if body["reloaded"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestRefresh_TokenFailure(t *testing.T) {
	server, tokens := newTestServer(t, nil)
	tokens.refreshErr = errors.New("director unreachable")

	rec := doRequest(t, server, http.MethodPost, "/api/v1/director/refresh")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}

	var body Error
	decode(t, rec, &body)
	if body.Code != ErrCodeUpstream {
		t.Errorf("error = %+v", body)
	}
}

func TestMetrics(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body SystemMetrics
	decode(t, rec, &body)
	if body.Version != "test" || !body.MQTT.Connected {
		t.Errorf("metrics = %+v", body)
	}
	if body.Bridge.CommandsProcessed != 5 || body.Entities.Total != 2 {
		t.Errorf("bridge = %+v, entities = %+v", body.Bridge, body.Entities)
	}
	if body.Runtime.Goroutines == 0 {
		t.Error("runtime metrics missing")
	}
}

func TestListItems(t *testing.T) {
	store := &fakeItemStore{items: []director.Item{
		{ID: 100, Name: "Kitchen Light", Categories: []string{"lights"}},
		{ID: 200, Name: "Hall Thermostat", Categories: []string{"comfort"}},
	}}
	server, _ := newTestServer(t, func(deps *Deps) { deps.Items = store })

	rec := doRequest(t, server, http.MethodGet, "/api/v1/items")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body ItemListResponse
	decode(t, rec, &body)
	if body.Count != 2 || len(body.Items) != 2 {
		t.Fatalf("count = %d, items = %d", body.Count, len(body.Items))
	}

	rec = doRequest(t, server, http.MethodGet, "/api/v1/items?category=lights")
	decode(t, rec, &body)
	if body.Count != 1 || body.Items[0].ID != 100 {
		t.Errorf("filtered items = %+v", body.Items)
	}
}

func TestListItems_NoStore(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/items")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetrics_PersistedItems(t *testing.T) {
	store := &fakeItemStore{items: make([]director.Item, 7)}
	server, _ := newTestServer(t, func(deps *Deps) { deps.Items = store })

	rec := doRequest(t, server, http.MethodGet, "/api/v1/metrics")
	var body SystemMetrics
	decode(t, rec, &body)
	if body.Entities.PersistedItems != 7 {
		t.Errorf("persisted_items = %d, want 7", body.Entities.PersistedItems)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("New() without bridge should fail")
	}
	if _, err := New(Deps{Bridge: &fakeBridge{}}); err == nil {
		t.Error("New() without logger should fail")
	}
}
