package api

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/fixtureplay/internal/builtin"
	"github.com/ayusman/fixtureplay/internal/plugin"
)

// DefaultPollTimeout bounds how long a slot request with ?after= waits.
const DefaultPollTimeout = 25 * time.Second

// SlotHandler renders slots as JSON.
type SlotHandler struct {
	reg         *plugin.Registry
	pollTimeout time.Duration
}

// NewSlotHandler creates a new SlotHandler.
func NewSlotHandler(reg *plugin.Registry) *SlotHandler {
	return &SlotHandler{reg: reg, pollTimeout: DefaultPollTimeout}
}

type slotResponse struct {
	Slot     string            `json:"slot"`
	Revision uint64            `json:"revision"`
	Plugs    []plugin.Rendered `json:"plugs"`
}

// ServeHTTP handles GET /api/slots/{slot}. The q parameter is passed to
// navPanelRow plugs as the search query. With after=N the response is held
// until the slot's revision passes N or the poll times out.
func (h *SlotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	slot := strings.TrimPrefix(r.URL.Path, "/api/slots/")
	if err := builtin.CheckSlot(slot); err != nil {
		writeErr(w, err)
		return
	}

	if after := r.URL.Query().Get("after"); after != "" {
		n, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid after revision")
			return
		}
		h.waitRevision(r.Context(), slot, n)
	}

	var props any
	if slot == builtin.NavPanelRow {
		props = builtin.NavProps{Query: r.URL.Query().Get("q")}
	}

	// Revision is read first so a client polling with it never misses a change.
	revision := h.reg.Revision(slot)
	plugs := slices.Collect(h.reg.RenderSlot(slot, props))
	if plugs == nil {
		plugs = []plugin.Rendered{}
	}
	writeJSON(w, http.StatusOK, slotResponse{Slot: slot, Revision: revision, Plugs: plugs})
}

func (h *SlotHandler) waitRevision(ctx context.Context, slot string, after uint64) {
	changed := make(chan struct{}, 1)
	stop := h.reg.Watch(func(s string) {
		if s != slot {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer stop()

	timer := time.NewTimer(h.pollTimeout)
	defer timer.Stop()

	for h.reg.Revision(slot) <= after {
		select {
		case <-changed:
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
