// Package renderer implements the renderer side of the protocol: it announces
// its fixtures, renders the fixture the UI selects and reports fixture state.
package renderer

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/protocol"
)

// ErrNotRendering is returned by SetState when no fixture is rendered.
var ErrNotRendering = errors.New("no fixture rendered")

// Policy decides when the fixture list is announced.
type Policy int

const (
	// Eager announces on start and on every fixture set change.
	Eager Policy = iota
	// Lazy withholds the list until the first pingRenderers, then behaves
	// like Eager.
	Lazy
)

func (p Policy) String() string {
	if p == Lazy {
		return "lazy"
	}
	return "eager"
}

// Rendering describes what the renderer currently shows.
type Rendering struct {
	FixtureID *fixture.ID
	// NotFound is set when the selected fixture is not in the set.
	NotFound bool
	State    fixture.State
}

// Config holds Renderer options.
type Config struct {
	// ID is generated when empty.
	ID     protocol.RendererID
	Policy Policy
	Logger *zap.Logger
	// OnRender is called after every rendering change, with the renderer's
	// lock held.
	OnRender func(Rendering)
}

// Renderer is one renderer instance. Posting happens with the lock held so
// that messages leave in the order they were produced; the Poster must not
// call back into the Renderer.
type Renderer struct {
	mu        sync.Mutex
	id        protocol.RendererID
	poster    protocol.Poster
	policy    Policy
	fixtures  Set
	announced bool
	rendering Rendering
	onRender  func(Rendering)
	log       *zap.Logger
}

// New creates a Renderer for fixtures. Nothing is posted until Start.
func New(poster protocol.Poster, fixtures Set, cfg Config) *Renderer {
	id := cfg.ID
	if id == "" {
		id = protocol.NewRendererID()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{
		id:       id,
		poster:   poster,
		policy:   cfg.Policy,
		fixtures: fixtures,
		onRender: cfg.OnRender,
		log:      log.Named("renderer"),
	}
}

// ID returns the current renderer id.
func (r *Renderer) ID() protocol.RendererID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Start announces the fixture list when the policy is Eager.
func (r *Renderer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info("renderer started",
		zap.String("renderer", string(r.id)),
		zap.Stringer("policy", r.policy),
		zap.Int("fixtures", len(r.fixtures)))

	if r.policy == Eager {
		r.announced = true
		return r.postListLocked()
	}
	return nil
}

// Receive decodes and handles one frame from the UI. Malformed frames are
// logged and dropped.
func (r *Renderer) Receive(data []byte) {
	p, err := protocol.Decode(data)
	if err != nil {
		r.log.Warn("dropping malformed message", zap.Error(err))
		return
	}
	if err := r.Handle(p); err != nil {
		r.log.Warn("handle message", zap.String("type", string(p.MessageType())), zap.Error(err))
	}
}

// Handle applies a message from the UI. Messages addressed to another
// renderer are ignored.
func (r *Renderer) Handle(p protocol.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if scoped, ok := p.(protocol.Scoped); ok && scoped.Renderer() != r.id {
		return nil
	}

	switch msg := p.(type) {
	case protocol.PingRenderers:
		// Every ping is answered; it doubles as the liveness signal.
		r.announced = true
		return r.postListLocked()

	case protocol.SelectFixture:
		return r.selectLocked(msg.FixtureID)

	case protocol.UnselectFixture:
		r.rendering = Rendering{}
		r.renderedLocked()
		return nil

	case protocol.SetFixtureState:
		cur := r.rendering.FixtureID
		if cur == nil || *cur != msg.FixtureID || r.rendering.NotFound {
			r.log.Debug("ignoring state for fixture not rendered", zap.String("fixture", msg.FixtureID.String()))
			return nil
		}
		r.rendering.State = r.rendering.State.Merge(msg.StateChange)
		r.renderedLocked()
		// Reported back so the UI sees edits applied after the initial state.
		return r.post(protocol.FixtureStateChange{
			RendererID:   r.id,
			FixtureID:    msg.FixtureID,
			FixtureState: msg.StateChange.Clone(),
		})
	}
	return fmt.Errorf("unexpected %s message", p.MessageType())
}

func (r *Renderer) selectLocked(id fixture.ID) error {
	fid := id
	f, ok := r.fixtures.Lookup(id)
	if !ok {
		r.rendering = Rendering{FixtureID: &fid, NotFound: true}
		r.renderedLocked()
		r.log.Info("fixture not found", zap.String("fixture", id.String()))
		return nil
	}

	r.rendering = Rendering{FixtureID: &fid, State: f.State.Clone()}
	if r.rendering.State == nil {
		r.rendering.State = fixture.State{}
	}
	r.renderedLocked()
	return r.post(protocol.FixtureStateChange{
		RendererID:   r.id,
		FixtureID:    id,
		FixtureState: r.rendering.State.Clone(),
	})
}

// SetState applies a change made inside the rendered fixture and reports it
// to the UI.
func (r *Renderer) SetState(change fixture.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.rendering.FixtureID
	if cur == nil || r.rendering.NotFound {
		return ErrNotRendering
	}
	r.rendering.State = r.rendering.State.Merge(change)
	r.renderedLocked()
	return r.post(protocol.FixtureStateChange{
		RendererID:   r.id,
		FixtureID:    *cur,
		FixtureState: change.Clone(),
	})
}

// SetFixtures replaces the fixture set and re-announces it once the list has
// been announced. A rendered fixture that disappears becomes not found.
func (r *Renderer) SetFixtures(fixtures Set) error {
	if err := fixtures.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.fixtures = fixtures
	if cur := r.rendering.FixtureID; cur != nil && !r.rendering.NotFound {
		if _, ok := fixtures.Lookup(*cur); !ok {
			r.rendering = Rendering{FixtureID: cur, NotFound: true}
			r.renderedLocked()
		}
	}
	if !r.announced {
		return nil
	}
	return r.postListLocked()
}

// Reload starts a new renderer instance: a fresh id, nothing rendered and,
// for lazy renderers, no announcement until the next ping.
func (r *Renderer) Reload() error {
	r.mu.Lock()
	old := r.id
	r.id = protocol.NewRendererID()
	r.announced = false
	r.rendering = Rendering{}
	r.renderedLocked()
	r.log.Info("renderer reloaded", zap.String("previous", string(old)), zap.String("renderer", string(r.id)))
	r.mu.Unlock()

	return r.Start()
}

// Rendering returns a copy of what is currently rendered.
func (r *Renderer) Rendering() Rendering {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rendering.clone()
}

func (r *Renderer) renderedLocked() {
	if r.onRender != nil {
		r.onRender(r.rendering.clone())
	}
}

func (r *Renderer) postListLocked() error {
	return r.post(protocol.FixtureListUpdate{RendererID: r.id, Fixtures: r.fixtures.List()})
}

func (r *Renderer) post(p protocol.Payload) error {
	if err := r.poster.Post(p); err != nil {
		return fmt.Errorf("post %s: %w", p.MessageType(), err)
	}
	return nil
}

func (rd Rendering) clone() Rendering {
	c := rd
	if rd.FixtureID != nil {
		id := *rd.FixtureID
		c.FixtureID = &id
	}
	c.State = rd.State.Clone()
	return c
}
