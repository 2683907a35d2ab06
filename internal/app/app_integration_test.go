package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/fixtureplay/internal/builtin"
	"github.com/ayusman/fixtureplay/internal/config"
	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/protocol"
	"github.com/ayusman/fixtureplay/internal/rendererurl"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server:    config.ServerConfig{Addr: "127.0.0.1:0"},
		Storage:   config.StorageConfig{Path: filepath.Join(t.TempDir(), "data", "test.db"), Namespace: "test"},
		Liveness:  config.LivenessConfig{PingInterval: 50 * time.Millisecond, MaxMissedRounds: 1},
		Renderers: config.RenderersConfig{Max: 4},
		Mode:      rendererurl.ModeDev,
	}
}

type running struct {
	app *App
	srv *httptest.Server
}

func startApp(t *testing.T, cfg config.Config) *running {
	t.Helper()

	a, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		srv.Close()
		assert.NoError(t, a.Close())
	})
	return &running{app: a, srv: srv}
}

func (r *running) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(r.srv.URL, "http")+"/renderer", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, p protocol.Payload) {
	t.Helper()
	data, err := protocol.Encode(p)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "bogus"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestNew_UnknownDisabledPlugin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plugins.Disabled = []string{"nope"}

	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, builtin.ErrInvalidComponent)
}

func TestApp_RendererIsPrunedWhenSilent(t *testing.T) {
	r := startApp(t, testConfig(t))
	conn := r.dial(t)

	send(t, conn, protocol.FixtureListUpdate{
		RendererID: "r1",
		Fixtures:   fixture.List{"a.fixture.tsx": {Type: fixture.TypeSingle}},
	})
	require.Eventually(t, func() bool {
		_, ok := r.app.Manager().Record("r1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// The renderer never answers pings.
	require.Eventually(t, func() bool {
		_, ok := r.app.Manager().Record("r1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_RendererAnsweringPingsStays(t *testing.T) {
	r := startApp(t, testConfig(t))
	conn := r.dial(t)

	list := protocol.FixtureListUpdate{
		RendererID: "r1",
		Fixtures:   fixture.List{"a.fixture.tsx": {Type: fixture.TypeSingle}},
	}
	send(t, conn, list)

	answered := make(chan struct{})
	go func() {
		defer close(answered)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			if _, ok := msg.(protocol.PingRenderers); ok {
				data, _ := protocol.Encode(list)
				if conn.WriteMessage(websocket.TextMessage, data) != nil {
					return
				}
			}
		}
	}()

	time.Sleep(300 * time.Millisecond)
	_, ok := r.app.Manager().Record("r1")
	assert.True(t, ok, "renderer answering pings was pruned")

	conn.Close()
	<-answered
}

func TestApp_Endpoints(t *testing.T) {
	r := startApp(t, testConfig(t))
	client := r.srv.Client()

	for _, path := range []string{"/api/health", "/live", "/api/renderers", "/api/slots/navPanelRow"} {
		resp, err := client.Get(r.srv.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	// Readiness waits for the first async database ping.
	assert.Eventually(t, func() bool {
		resp, err := client.Get(r.srv.URL + "/ready")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := client.Get(r.srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "fixtureplay_ping_rounds_total")

	resp, err = client.Get(r.srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, float64(0), health["renderers"])
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
