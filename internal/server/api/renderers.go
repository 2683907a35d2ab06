package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/protocol"
)

// RendererHandler serves the connection records of known renderers.
type RendererHandler struct {
	mgr       *connection.Manager
	connected func(protocol.RendererID) bool
}

// NewRendererHandler creates a new RendererHandler. connected reports whether
// a renderer has an open websocket; it may be nil.
func NewRendererHandler(mgr *connection.Manager, connected func(protocol.RendererID) bool) *RendererHandler {
	return &RendererHandler{mgr: mgr, connected: connected}
}

type rendererView struct {
	connection.Record
	Connected bool `json:"connected"`
}

type listRenderersResponse struct {
	Renderers []rendererView `json:"renderers"`
}

func (h *RendererHandler) view(rec connection.Record) rendererView {
	v := rendererView{Record: rec}
	if h.connected != nil {
		v.Connected = h.connected(rec.RendererID)
	}
	return v
}

// ServeHTTP handles GET /api/renderers and GET /api/renderers/{id}.
func (h *RendererHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/renderers")
	id = strings.TrimPrefix(id, "/")

	if id == "" {
		records := h.mgr.Records()
		views := make([]rendererView, 0, len(records))
		for _, rec := range records {
			views = append(views, h.view(rec))
		}
		writeJSON(w, http.StatusOK, listRenderersResponse{Renderers: views})
		return
	}

	rec, ok := h.mgr.Record(protocol.RendererID(id))
	if !ok {
		writeError(w, http.StatusNotFound, "Renderer not found")
		return
	}
	writeJSON(w, http.StatusOK, h.view(rec))
}
