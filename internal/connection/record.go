// Package connection tracks the renderers known to the UI: their fixture
// lists, liveness, fixture selection and the fixture state they report.
package connection

import (
	"errors"
	"time"

	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/protocol"
)

var (
	// ErrUnrecognizedRenderer is returned for UI requests that target a
	// renderer without a connection record. Inbound messages from such
	// renderers are dropped silently instead.
	ErrUnrecognizedRenderer = errors.New("unrecognized renderer")
	// ErrInvalidFixture is returned when a fixture is not in the renderer's
	// fixture list, or is not the fixture the renderer renders.
	ErrInvalidFixture = errors.New("invalid fixture")
)

// Record is the connection record of one renderer.
type Record struct {
	RendererID       protocol.RendererID `json:"rendererId"`
	Fixtures         fixture.List        `json:"fixtures"`
	ConnectedAt      time.Time           `json:"connectedAt"`
	LastSeenAt       time.Time           `json:"lastSeenAt"`
	PendingSelection *fixture.ID         `json:"pendingSelection,omitempty"`
	CurrentFixtureID *fixture.ID         `json:"currentFixtureId,omitempty"`
	// NotFoundFixtureID is the selected fixture when the renderer does not
	// export it. The renderer shows "not found" and reports no state.
	NotFoundFixtureID *fixture.ID `json:"notFoundFixtureId,omitempty"`
	MissedRounds      int         `json:"missedRounds"`

	seen bool
}

// Selected returns the pending selection if any, else the current fixture.
func (r *Record) Selected() *fixture.ID {
	if r.PendingSelection != nil {
		return r.PendingSelection
	}
	return r.CurrentFixtureID
}

func (r *Record) clone() Record {
	c := *r
	c.Fixtures = r.Fixtures.Clone()
	c.PendingSelection = cloneID(r.PendingSelection)
	c.CurrentFixtureID = cloneID(r.CurrentFixtureID)
	c.NotFoundFixtureID = cloneID(r.NotFoundFixtureID)
	return c
}

func cloneID(id *fixture.ID) *fixture.ID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// ChangeKind classifies a Change.
type ChangeKind int

// Change kinds.
const (
	RendererAdded ChangeKind = iota + 1
	FixtureListChanged
	SelectionChanged
	FixtureStateChanged
	RendererPruned
)

func (k ChangeKind) String() string {
	switch k {
	case RendererAdded:
		return "rendererAdded"
	case FixtureListChanged:
		return "fixtureListChanged"
	case SelectionChanged:
		return "selectionChanged"
	case FixtureStateChanged:
		return "fixtureStateChanged"
	case RendererPruned:
		return "rendererPruned"
	}
	return "unknown"
}

// Change is delivered to subscribers after the manager's state changed.
type Change struct {
	Kind       ChangeKind
	RendererID protocol.RendererID
	FixtureID  *fixture.ID
}

type stateKey struct {
	renderer protocol.RendererID
	fixture  fixture.ID
}
