package api

import (
	"net/http"

	"github.com/ayusman/fixtureplay/internal/builtin"
	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/plugin"
	"github.com/ayusman/fixtureplay/internal/rendererurl"
)

// RendererURLHandler returns the URL that opens the selected fixture in a
// standalone renderer.
type RendererURLHandler struct {
	reg  *plugin.Registry
	urls rendererurl.URLs
	mode rendererurl.Mode
}

// NewRendererURLHandler creates a new RendererURLHandler.
func NewRendererURLHandler(reg *plugin.Registry, urls rendererurl.URLs, mode rendererurl.Mode) *RendererURLHandler {
	return &RendererURLHandler{reg: reg, urls: urls, mode: mode}
}

type rendererURLResponse struct {
	URL       string      `json:"url"`
	FixtureID *fixture.ID `json:"fixtureId,omitempty"`
	Locked    bool        `json:"locked"`
}

// ServeHTTP handles GET /api/renderer-url?locked=true. The fixtureId
// parameter overrides the selected fixture.
func (h *RendererURLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	base := rendererurl.Pick(h.urls, h.mode)
	if base == "" {
		writeError(w, http.StatusNotFound, "No renderer URL configured")
		return
	}

	fixtureID, locked, err := rendererurl.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fixtureID == nil {
		if router, err := plugin.MethodsOf[builtin.Router](h.reg, builtin.RouterName); err == nil {
			fixtureID = router.Selected()
		}
	}

	writeJSON(w, http.StatusOK, rendererURLResponse{
		URL:       rendererurl.Create(base, fixtureID, locked),
		FixtureID: fixtureID,
		Locked:    locked,
	})
}
