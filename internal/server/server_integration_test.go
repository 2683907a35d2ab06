package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/fixtureplay/internal/builtin"
	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/plugin"
	"github.com/ayusman/fixtureplay/internal/protocol"
	"github.com/ayusman/fixtureplay/internal/store"
	"github.com/ayusman/fixtureplay/internal/transport"
)

func newIntegrationServer(t *testing.T) *httptest.Server {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	hub := transport.NewHub(transport.HubConfig{})
	mgr := connection.NewManager(hub, connection.Config{})
	reg := plugin.NewRegistry()
	if err := builtin.Install(reg, builtin.Deps{Manager: mgr, Store: s, Namespace: "test"}, builtin.Options{}); err != nil {
		t.Fatalf("builtin.Install() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Dispatch(ctx, mgr.Handle)
	}()

	ts := httptest.NewServer(New(Config{Renderers: hub, Manager: mgr, Registry: reg}))
	t.Cleanup(func() {
		cancel()
		<-done
		hub.Close()
		ts.Close()
		reg.Reset()
	})
	return ts
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func getRecord(t *testing.T, ts *httptest.Server, id protocol.RendererID) (connection.Record, int) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + "/api/renderers/" + string(id))
	if err != nil {
		t.Fatalf("GET /api/renderers/%s error = %v", id, err)
	}
	defer resp.Body.Close()

	var rec connection.Record
	json.NewDecoder(resp.Body).Decode(&rec)
	return rec, resp.StatusCode
}

func TestAPI_RendererWorkflow(t *testing.T) {
	ts := newIntegrationServer(t)
	client := ts.Client()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/renderer", nil)
	if err != nil {
		t.Fatalf("dial /renderer error = %v", err)
	}
	defer conn.Close()

	send := func(p protocol.Payload) {
		data, err := protocol.Encode(p)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	// 1. Renderer announces its fixtures
	button := fixture.ID{Path: "button.fixture.tsx"}
	send(protocol.FixtureListUpdate{
		RendererID: "r1",
		Fixtures:   fixture.List{"button.fixture.tsx": {Type: fixture.TypeSingle}},
	})
	waitFor(t, func() bool {
		_, status := getRecord(t, ts, "r1")
		return status == http.StatusOK
	})

	// 2. UI selects a fixture
	body, _ := json.Marshal(map[string]any{"fixtureId": button})
	resp, err := client.Post(ts.URL+"/api/select", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/select error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/select status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// 3. Renderer receives the selection
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := protocol.SelectFixture{RendererID: "r1", FixtureID: button}
	if msg != want {
		t.Fatalf("received %v, want %v", msg, want)
	}

	rec, _ := getRecord(t, ts, "r1")
	if rec.PendingSelection == nil || *rec.PendingSelection != button {
		t.Errorf("pendingSelection = %v, want %s", rec.PendingSelection, button)
	}

	// 4. Renderer confirms with its initial state
	send(protocol.FixtureStateChange{
		RendererID:   "r1",
		FixtureID:    button,
		FixtureState: fixture.State{"props": json.RawMessage(`{"label":"Go"}`)},
	})
	waitFor(t, func() bool {
		rec, _ := getRecord(t, ts, "r1")
		return rec.CurrentFixtureID != nil && *rec.CurrentFixtureID == button
	})

	// 5. The props panel shows the reported state
	resp, err = client.Get(ts.URL + "/api/slots/controlPanelRow")
	if err != nil {
		t.Fatalf("GET /api/slots/controlPanelRow error = %v", err)
	}
	defer resp.Body.Close()
	var slot struct {
		Plugs []struct {
			Output builtin.PropsView `json:"output"`
		} `json:"plugs"`
	}
	json.NewDecoder(resp.Body).Decode(&slot)
	if len(slot.Plugs) != 1 {
		t.Fatalf("len(plugs) = %d, want 1", len(slot.Plugs))
	}
	if got := string(slot.Plugs[0].Output.Props); got != `{"label":"Go"}` {
		t.Errorf("props = %s, want {\"label\":\"Go\"}", got)
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
