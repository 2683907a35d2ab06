package builtin

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/plugin"
)

// Router owns the fixture selected in the UI.
type Router interface {
	// Selected returns the selected fixture, nil when none is.
	Selected() *fixture.ID
	// NotFound reports whether the selected fixture could not be resolved.
	NotFound() bool
	Select(id fixture.ID) error
	Unselect() error
}

type router struct {
	mu       sync.RWMutex
	core     RendererCore
	selected *fixture.ID
	notFound bool
	ctx      *plugin.Context
	log      *zap.Logger
}

func (r *router) Selected() *fixture.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected == nil {
		return nil
	}
	id := *r.selected
	return &id
}

func (r *router) NotFound() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notFound
}

func (r *router) Select(id fixture.ID) error {
	err := r.core.SelectFixture(id)

	r.mu.Lock()
	r.selected = &id
	r.notFound = errors.Is(err, connection.ErrInvalidFixture)
	r.mu.Unlock()
	r.invalidate()

	if errors.Is(err, ErrNoRenderers) {
		// Sent to renderers as they connect.
		return nil
	}
	return err
}

func (r *router) Unselect() error {
	r.mu.Lock()
	r.selected = nil
	r.notFound = false
	r.mu.Unlock()
	r.invalidate()

	return r.core.UnselectFixture()
}

func (r *router) invalidate() {
	if r.ctx != nil {
		r.ctx.Invalidate(NavPanelRow, ControlPanelRow)
	}
}

// onChange forwards the selection to renderers that connect after it was
// made and re-resolves it against the primary renderer's fixture list.
func (r *router) onChange(c connection.Change) {
	selected := r.Selected()
	if selected == nil {
		return
	}

	switch c.Kind {
	case connection.RendererAdded:
		err := r.core.SelectFixtureOn(c.RendererID, *selected)
		if err != nil && !errors.Is(err, connection.ErrInvalidFixture) {
			r.log.Warn("forward selection", zap.String("renderer", string(c.RendererID)), zap.Error(err))
		}
	case connection.FixtureListChanged, connection.RendererPruned:
	default:
		return
	}

	notFound := len(r.core.Renderers()) > 0 && !r.core.Fixtures().Has(*selected)
	r.mu.Lock()
	r.notFound = notFound
	r.mu.Unlock()
}

func routerSpec(deps Deps) (plugin.Spec, error) {
	r := &router{log: deps.Logger.Named(RouterName)}
	return plugin.Spec{
		Name:      RouterName,
		DependsOn: []string{RendererCoreName},
		Methods:   Router(r),
		OnLoad: func(ctx *plugin.Context) func() {
			core, err := plugin.MethodsOf[RendererCore](ctx, RendererCoreName)
			if err != nil {
				r.log.Error("router loaded without renderer core", zap.Error(err))
				return nil
			}
			r.mu.Lock()
			r.core = core
			r.ctx = ctx
			r.mu.Unlock()
			return core.OnChange(r.onChange)
		},
	}, nil
}
