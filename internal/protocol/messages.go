// Package protocol defines the messages exchanged between the UI and the
// renderers and the codec used to put them on the wire.
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ayusman/fixtureplay/internal/fixture"
)

// Type names a message kind. The set is closed.
type Type string

// Message types.
const (
	TypeFixtureListUpdate  Type = "fixtureListUpdate"
	TypeSelectFixture      Type = "selectFixture"
	TypeUnselectFixture    Type = "unselectFixture"
	TypeFixtureStateChange Type = "fixtureStateChange"
	TypeSetFixtureState    Type = "setFixtureState"
	TypePingRenderers      Type = "pingRenderers"
)

// RendererID identifies one renderer instance for its lifetime.
type RendererID string

// NewRendererID returns a fresh random renderer id.
func NewRendererID() RendererID {
	return RendererID(uuid.NewString())
}

// Message is the wire envelope.
type Message struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Payload is implemented by every message body.
type Payload interface {
	MessageType() Type
	validate() error
}

// Scoped is implemented by payloads addressed to or sent by a single renderer.
type Scoped interface {
	Payload
	Renderer() RendererID
}

// FixtureListUpdate announces the fixtures a renderer can render.
type FixtureListUpdate struct {
	RendererID RendererID   `json:"rendererId"`
	Fixtures   fixture.List `json:"fixtures"`
}

// SelectFixture asks a renderer to render a fixture.
type SelectFixture struct {
	RendererID RendererID `json:"rendererId"`
	FixtureID  fixture.ID `json:"fixtureId"`
}

// UnselectFixture asks a renderer to stop rendering its fixture.
type UnselectFixture struct {
	RendererID RendererID `json:"rendererId"`
}

// FixtureStateChange reports the live state of the fixture a renderer renders.
type FixtureStateChange struct {
	RendererID   RendererID    `json:"rendererId"`
	FixtureID    fixture.ID    `json:"fixtureId"`
	FixtureState fixture.State `json:"fixtureState"`
}

// SetFixtureState carries a UI edit of fixture state fragments.
type SetFixtureState struct {
	RendererID  RendererID    `json:"rendererId"`
	FixtureID   fixture.ID    `json:"fixtureId"`
	StateChange fixture.State `json:"stateChange"`
}

// PingRenderers asks every renderer to announce itself.
type PingRenderers struct{}

func (FixtureListUpdate) MessageType() Type  { return TypeFixtureListUpdate }
func (SelectFixture) MessageType() Type      { return TypeSelectFixture }
func (UnselectFixture) MessageType() Type    { return TypeUnselectFixture }
func (FixtureStateChange) MessageType() Type { return TypeFixtureStateChange }
func (SetFixtureState) MessageType() Type    { return TypeSetFixtureState }
func (PingRenderers) MessageType() Type      { return TypePingRenderers }

func (m FixtureListUpdate) Renderer() RendererID  { return m.RendererID }
func (m SelectFixture) Renderer() RendererID      { return m.RendererID }
func (m UnselectFixture) Renderer() RendererID    { return m.RendererID }
func (m FixtureStateChange) Renderer() RendererID { return m.RendererID }
func (m SetFixtureState) Renderer() RendererID    { return m.RendererID }

// FromRenderer reports whether messages of type t travel renderer → UI.
func FromRenderer(t Type) bool {
	return t == TypeFixtureListUpdate || t == TypeFixtureStateChange
}
