package api

import (
	"net/http"

	"github.com/ayusman/fixtureplay/internal/builtin"
	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/plugin"
)

// BookmarkHandler manages fixture bookmarks.
type BookmarkHandler struct {
	reg *plugin.Registry
}

// NewBookmarkHandler creates a new BookmarkHandler.
func NewBookmarkHandler(reg *plugin.Registry) *BookmarkHandler {
	return &BookmarkHandler{reg: reg}
}

type bookmarkRequest struct {
	FixtureID fixture.ID `json:"fixtureId"`
}

type listBookmarksResponse struct {
	Bookmarks []fixture.ID `json:"bookmarks"`
}

// ServeHTTP handles GET, POST and DELETE on /api/bookmarks.
func (h *BookmarkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, err := plugin.MethodsOf[builtin.Bookmarks](h.reg, builtin.FixtureBookmarksName)
	if err != nil {
		writeErr(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost, http.MethodDelete:
		var req bookmarkRequest
		if !decode(w, r, &req) {
			return
		}
		if req.FixtureID.Path == "" {
			writeError(w, http.StatusBadRequest, "fixtureId.path is required")
			return
		}
		if r.Method == http.MethodPost {
			err = b.Add(req.FixtureID)
		} else {
			err = b.Remove(req.FixtureID)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids, err := b.List()
	if err != nil {
		writeErr(w, err)
		return
	}
	if ids == nil {
		ids = []fixture.ID{}
	}
	writeJSON(w, http.StatusOK, listBookmarksResponse{Bookmarks: ids})
}
