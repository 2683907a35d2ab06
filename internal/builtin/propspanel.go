package builtin

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/plugin"
)

const propsFragment = "props"

// PropsView is rendered by the props plug of the control panel.
type PropsView struct {
	FixtureID fixture.ID      `json:"fixtureId"`
	Props     json.RawMessage `json:"props"`
}

// BlankState is rendered when there are no props to show.
type BlankState struct {
	Message string `json:"message"`
}

// Blank state messages.
const (
	MessageNoFixture     = "No fixture selected"
	MessageNotFound      = "Fixture not found"
	MessageNoRenderers   = "Waiting for renderer"
	MessageNoFixtureData = "Fixture has no props"
)

func propsPanelSpec(deps Deps) (plugin.Spec, error) {
	log := deps.Logger.Named(PropsPanelName)
	var (
		core   RendererCore
		router Router
	)

	props := func() (PropsView, bool) {
		selected := router.Selected()
		if selected == nil || router.NotFound() {
			return PropsView{}, false
		}
		state, ok := core.FixtureState(*selected)
		if !ok {
			return PropsView{}, false
		}
		raw, ok := state.Fragment(propsFragment)
		if !ok {
			return PropsView{}, false
		}
		return PropsView{FixtureID: *selected, Props: raw}, true
	}

	return plugin.Spec{
		Name:      PropsPanelName,
		DependsOn: []string{RendererCoreName, RouterName},
		Slots:     []string{ControlPanelRow},
		Plugs: []plugin.PlugSpec{
			{
				Slot: ControlPanelRow,
				ID:   "props",
				Render: func(plugin.PlugContext) any {
					if router == nil {
						return nil
					}
					view, ok := props()
					if !ok {
						return nil
					}
					return view
				},
			},
			{
				Slot: ControlPanelRow,
				ID:   "blankState",
				Render: func(plugin.PlugContext) any {
					if router == nil {
						return nil
					}
					if _, ok := props(); ok {
						return nil
					}
					switch {
					case router.Selected() == nil:
						return BlankState{Message: MessageNoFixture}
					case router.NotFound():
						return BlankState{Message: MessageNotFound}
					case len(core.Renderers()) == 0:
						return BlankState{Message: MessageNoRenderers}
					}
					return BlankState{Message: MessageNoFixtureData}
				},
				Options: []plugin.PlugOption{plugin.WithOrder(1)},
			},
		},
		OnLoad: func(ctx *plugin.Context) func() {
			var err error
			if core, err = plugin.MethodsOf[RendererCore](ctx, RendererCoreName); err != nil {
				log.Error("props panel loaded without renderer core", zap.Error(err))
			}
			if router, err = plugin.MethodsOf[Router](ctx, RouterName); err != nil {
				log.Error("props panel loaded without router", zap.Error(err))
			}
			return nil
		},
	}, nil
}
