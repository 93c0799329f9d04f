package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/switchyard-hub/switchyard/internal/hub"
	"github.com/switchyard-hub/switchyard/internal/infrastructure/config"
	"github.com/switchyard-hub/switchyard/internal/infrastructure/logging"
	"github.com/switchyard-hub/switchyard/internal/state"
)

func newTestServer(t *testing.T) (*Server, *state.Store, *hub.Router) {
	t.Helper()

	store := state.NewStore()
	logger := logging.Default()
	h := hub.NewHub(config.HubConfig{ProbeInterval: 30, SendBuffer: 32}, logger)
	router := hub.NewRouter(store, h, []string{"switch1", "switch2"}, logger)

	s, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: config.APITimeoutConfig{
				Read: 30, Write: 30, Idle: 60,
			},
		},
		WS:      config.WebSocketConfig{Path: "/api/v1/ws", MaxMessageSize: 8192},
		Logger:  logger,
		Hub:     h,
		Router:  router,
		Store:   store,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s, store, router
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with empty deps succeeded")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health body = %v", body)
	}
	if online, ok := body["is_hardware_online"].(bool); !ok || online {
		t.Errorf("is_hardware_online = %v, want false", body["is_hardware_online"])
	}
}

func TestGetState(t *testing.T) {
	s, store, _ := newTestServer(t)
	store.Rename("name1", "Heater")
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/state")
	if err != nil {
		t.Fatalf("GET /state error: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var doc state.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if doc.Names["name1"] != "Heater" {
		t.Errorf("Names[name1] = %q", doc.Names["name1"])
	}
	if len(doc.Switches) != 4 {
		t.Errorf("state carries %d switches, want 4", len(doc.Switches))
	}
}

func TestToggleEndpoint(t *testing.T) {
	s, store, _ := newTestServer(t)
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(ts.URL+"/api/v1/toggle", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("POST /toggle error: %v", err)
		}
		return resp
	}

	// Applies without a live hardware connection; the facade is for
	// staging state while the controller reconnects.
	resp := post(`{"switchId":"switch3","value":true}`)
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var ok ToggleResponse
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		t.Fatalf("decoding toggle response: %v", err)
	}
	if !ok.Success || !ok.State.Switches["switch3"] {
		t.Errorf("toggle response = %+v", ok)
	}
	if !store.Snapshot().Switches["switch3"] {
		t.Error("toggle not applied to store")
	}

	// Unknown switch: 400.
	resp = post(`{"switchId":"switch9","value":true}`)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown switch status = %d, want 400", resp.StatusCode)
	}

	// Interlocked switch with wall toggle off: 403.
	resp = post(`{"switchId":"switch1","value":true}`)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("interlocked status = %d, want 403", resp.StatusCode)
	}

	// Malformed body: 400.
	resp = post(`{"switchId":`)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestWebSocketAttachReceivesFullState(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	if resp != nil {
		resp.Body.Close() //nolint:errcheck
	}
	defer conn.Close() //nolint:errcheck

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("reading greeting: %v", err)
	}
	if env.Type != "FULL_STATE" {
		t.Errorf("greeting type = %q, want FULL_STATE", env.Type)
	}
	var doc state.Document
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		t.Fatalf("decoding greeting document: %v", err)
	}
	if len(doc.Switches) != 4 {
		t.Errorf("greeting carries %d switches, want 4", len(doc.Switches))
	}
}

func TestWebSocketToggleRoundTrip(t *testing.T) {
	s, store, _ := newTestServer(t)
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	hw, _, err := websocket.DefaultDialer.Dial(wsURL, nil) //nolint:bodyclose
	if err != nil {
		t.Fatalf("dialing hardware socket: %v", err)
	}
	defer hw.Close() //nolint:errcheck

	// Drain greeting, then identify as hardware.
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := hw.ReadJSON(&env); err != nil {
		t.Fatalf("reading greeting: %v", err)
	}
	if err := hw.WriteJSON(map[string]any{
		"type": "IDENTIFY",
		"data": map[string]any{"role": "hardware"},
	}); err != nil {
		t.Fatalf("sending IDENTIFY: %v", err)
	}

	// The identify triggers a FULL_STATE broadcast with liveness on.
	if err := hw.ReadJSON(&env); err != nil {
		t.Fatalf("reading post-identify state: %v", err)
	}
	var doc state.Document
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		t.Fatalf("decoding post-identify state: %v", err)
	}
	if !doc.HardwareOnline {
		t.Fatal("hardware not online after IDENTIFY")
	}

	// A toggle from the socket now lands and comes back as COMMAND
	// followed by STATE_CHANGED.
	if err := hw.WriteJSON(map[string]any{
		"type": "TOGGLE_SWITCH",
		"data": map[string]any{"switchId": "switch4", "value": true},
	}); err != nil {
		t.Fatalf("sending TOGGLE_SWITCH: %v", err)
	}
	if err := hw.ReadJSON(&env); err != nil {
		t.Fatalf("reading command: %v", err)
	}
	if env.Type != "COMMAND" {
		t.Errorf("first frame type = %q, want COMMAND", env.Type)
	}
	if err := hw.ReadJSON(&env); err != nil {
		t.Fatalf("reading state change: %v", err)
	}
	if env.Type != "STATE_CHANGED" {
		t.Errorf("second frame type = %q, want STATE_CHANGED", env.Type)
	}
	if !store.Snapshot().Switches["switch4"] {
		t.Error("toggle not applied")
	}
}

func TestCORSPreflights(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, ts.URL+"/api/v1/state", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight error: %v", err)
	}
	resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestRequestIDPropagation(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/api/v1/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-ID", "req-123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	resp.Body.Close() //nolint:errcheck

	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
}
