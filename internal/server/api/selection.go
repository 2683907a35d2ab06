package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/fixtureplay/internal/builtin"
	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/plugin"
	"github.com/ayusman/fixtureplay/internal/protocol"
)

// SelectionHandler drives fixture selection and state edits through the
// router and rendererCore plugins.
type SelectionHandler struct {
	reg *plugin.Registry
}

// NewSelectionHandler creates a new SelectionHandler.
func NewSelectionHandler(reg *plugin.Registry) *SelectionHandler {
	return &SelectionHandler{reg: reg}
}

type selectRequest struct {
	FixtureID fixture.ID `json:"fixtureId"`
	// RendererID limits the selection to one renderer.
	RendererID protocol.RendererID `json:"rendererId,omitempty"`
}

type fixtureStateRequest struct {
	FixtureID   fixture.ID    `json:"fixtureId"`
	StateChange fixture.State `json:"stateChange"`
}

type selectionResponse struct {
	Selected *fixture.ID `json:"selected"`
	NotFound bool        `json:"notFound"`
}

// ServeHTTP handles POST /api/select, /api/unselect and /api/fixture-state.
func (h *SelectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/api/select":
		h.selectFixture(w, r)
	case "/api/unselect":
		h.unselect(w, r)
	case "/api/fixture-state":
		h.setState(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *SelectionHandler) selectFixture(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FixtureID.Path == "" {
		writeError(w, http.StatusBadRequest, "fixtureId.path is required")
		return
	}

	if req.RendererID != "" {
		core, err := plugin.MethodsOf[builtin.RendererCore](h.reg, builtin.RendererCoreName)
		if err != nil {
			writeErr(w, err)
			return
		}
		if err := core.SelectFixtureOn(req.RendererID, req.FixtureID); err != nil {
			writeErr(w, err)
			return
		}
		id := req.FixtureID
		writeJSON(w, http.StatusOK, selectionResponse{Selected: &id})
		return
	}

	router, err := plugin.MethodsOf[builtin.Router](h.reg, builtin.RouterName)
	if err != nil {
		writeErr(w, err)
		return
	}
	// An unknown fixture stays selected and is reported as not found.
	if err := router.Select(req.FixtureID); err != nil && !errors.Is(err, connection.ErrInvalidFixture) {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse{Selected: router.Selected(), NotFound: router.NotFound()})
}

func (h *SelectionHandler) unselect(w http.ResponseWriter, r *http.Request) {
	router, err := plugin.MethodsOf[builtin.Router](h.reg, builtin.RouterName)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := router.Unselect(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse{})
}

func (h *SelectionHandler) setState(w http.ResponseWriter, r *http.Request) {
	var req fixtureStateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FixtureID.Path == "" || len(req.StateChange) == 0 {
		writeError(w, http.StatusBadRequest, "fixtureId and stateChange are required")
		return
	}

	core, err := plugin.MethodsOf[builtin.RendererCore](h.reg, builtin.RendererCoreName)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := core.SetFixtureState(req.FixtureID, req.StateChange); err != nil {
		writeErr(w, err)
		return
	}

	state, _ := core.FixtureState(req.FixtureID)
	writeJSON(w, http.StatusOK, map[string]any{
		"fixtureId":    req.FixtureID,
		"fixtureState": state,
	})
}
