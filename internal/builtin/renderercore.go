package builtin

import (
	"errors"
	"fmt"

	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/plugin"
	"github.com/ayusman/fixtureplay/internal/protocol"
)

// ErrNoRenderers is returned when a UI action needs a connected renderer.
var ErrNoRenderers = errors.New("no renderers connected")

// RendererCore exposes the connected renderers to other plugins. The first
// renderer to connect is the primary one: its fixture list and state are
// what the UI shows.
type RendererCore interface {
	Renderers() []connection.Record
	Primary() (connection.Record, bool)
	Fixtures() fixture.List
	FixtureState(id fixture.ID) (fixture.State, bool)
	// SelectFixture selects id on every renderer. Renderers that do not
	// export it show "not found".
	SelectFixture(id fixture.ID) error
	SelectFixtureOn(rendererID protocol.RendererID, id fixture.ID) error
	UnselectFixture() error
	// SetFixtureState edits the state of id on every renderer showing it.
	SetFixtureState(id fixture.ID, change fixture.State) error
	OnChange(fn func(connection.Change)) func()
}

type rendererCore struct {
	mgr *connection.Manager
}

func (c *rendererCore) Renderers() []connection.Record {
	return c.mgr.Records()
}

func (c *rendererCore) Primary() (connection.Record, bool) {
	records := c.mgr.Records()
	if len(records) == 0 {
		return connection.Record{}, false
	}
	return records[0], true
}

func (c *rendererCore) Fixtures() fixture.List {
	primary, ok := c.Primary()
	if !ok {
		return fixture.List{}
	}
	return primary.Fixtures
}

func (c *rendererCore) FixtureState(id fixture.ID) (fixture.State, bool) {
	primary, ok := c.Primary()
	if !ok {
		return nil, false
	}
	return c.mgr.FixtureState(primary.RendererID, id)
}

func (c *rendererCore) SelectFixture(id fixture.ID) error {
	if c.mgr.Len() == 0 {
		return ErrNoRenderers
	}

	found, err := c.mgr.SelectAll(id)
	if err != nil {
		return err
	}
	if found == 0 {
		return fmt.Errorf("%w: %s", connection.ErrInvalidFixture, id)
	}
	return nil
}

func (c *rendererCore) SelectFixtureOn(rendererID protocol.RendererID, id fixture.ID) error {
	return c.mgr.SelectFixture(rendererID, id)
}

func (c *rendererCore) UnselectFixture() error {
	for _, rec := range c.mgr.Records() {
		if rec.Selected() == nil && rec.NotFoundFixtureID == nil {
			continue
		}
		if err := c.mgr.UnselectFixture(rec.RendererID); err != nil {
			return err
		}
	}
	return nil
}

func (c *rendererCore) SetFixtureState(id fixture.ID, change fixture.State) error {
	var edited int
	for _, rec := range c.mgr.Records() {
		if sel := rec.Selected(); sel == nil || *sel != id {
			continue
		}
		if err := c.mgr.SetFixtureState(rec.RendererID, id, change); err != nil {
			return err
		}
		edited++
	}
	if edited == 0 {
		return fmt.Errorf("%w: %s is not selected", connection.ErrInvalidFixture, id)
	}
	return nil
}

func (c *rendererCore) OnChange(fn func(connection.Change)) func() {
	return c.mgr.Subscribe(fn)
}

func rendererCoreSpec(deps Deps) (plugin.Spec, error) {
	if deps.Manager == nil {
		return plugin.Spec{}, errors.New("connection manager is required")
	}
	core := &rendererCore{mgr: deps.Manager}

	return plugin.Spec{
		Name:    RendererCoreName,
		Methods: RendererCore(core),
		OnLoad: func(ctx *plugin.Context) func() {
			// Anything shown in the panels may depend on renderer state.
			return core.OnChange(func(connection.Change) {
				ctx.Invalidate(NavPanelRow, ControlPanelRow)
			})
		},
	}, nil
}
