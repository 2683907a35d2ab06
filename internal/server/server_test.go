package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/protocol"
)

func getHealth(t *testing.T, s *Server) map[string]any {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", response["status"])
	}
	if _, exists := response["uptime"]; !exists {
		t.Error("expected 'uptime' field in response")
	}
	return response
}

func TestServer_Health(t *testing.T) {
	t.Run("omits renderers without a manager", func(t *testing.T) {
		response := getHealth(t, New(Config{}))
		if _, exists := response["renderers"]; exists {
			t.Errorf("expected no 'renderers' field, got %v", response["renderers"])
		}
	})

	t.Run("counts known renderers", func(t *testing.T) {
		mgr := connection.NewManager(nil, connection.Config{})
		s := New(Config{Manager: mgr})

		if got := getHealth(t, s)["renderers"]; got != float64(0) {
			t.Errorf("expected 0 renderers, got %v", got)
		}

		list := fixture.List{"a.fixture.tsx": {Type: fixture.TypeSingle}}
		mgr.Handle(protocol.FixtureListUpdate{RendererID: "r1", Fixtures: list})
		mgr.Handle(protocol.FixtureListUpdate{RendererID: "r2", Fixtures: list})
		// Repeated announcements do not add records.
		mgr.Handle(protocol.FixtureListUpdate{RendererID: "r1", Fixtures: list})

		if got := getHealth(t, s)["renderers"]; got != float64(2) {
			t.Errorf("expected 2 renderers, got %v", got)
		}

		mgr.Sweep()
		mgr.Sweep()
		if got := getHealth(t, s)["renderers"]; got != float64(0) {
			t.Errorf("expected silent renderers to be pruned, got %v", got)
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		s := New(Config{})
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	index := "<html><body>fixtureplay</body></html>"
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(index), 0644); err != nil {
		t.Fatalf("failed to write index.html: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0755); err != nil {
		t.Fatalf("failed to create assets dir: %v", err)
	}
	script := "console.log('ui')"
	if err := os.WriteFile(filepath.Join(dir, "assets", "ui.js"), []byte(script), 0644); err != nil {
		t.Fatalf("failed to write ui.js: %v", err)
	}

	s := New(Config{StaticDir: dir, Manager: connection.NewManager(nil, connection.Config{})})

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{path: "/", status: http.StatusOK, body: index},
		{path: "/assets/ui.js", status: http.StatusOK, body: script},
		{path: "/missing.html", status: http.StatusNotFound},
		// API routes are not shadowed by the file server.
		{path: "/api/renderers", status: http.StatusOK, body: `{"renderers":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.body != "" && strings.TrimSpace(rec.Body.String()) != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestServer_NoStaticDir(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/", "/api/nonexistent"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_OptionalRoutes(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := New(Config{Renderers: ok, Metrics: ok, Health: ok})

	for _, path := range []string{"/renderer", "/metrics", "/live", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusTeapot {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusTeapot, rec.Code)
		}
	}

	bare := New(Config{})
	for _, path := range []string{"/renderer", "/metrics", "/api/renderers", "/api/select"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		bare.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d without handler, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_Run(t *testing.T) {
	s := New(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, "127.0.0.1:0")
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
