package builtin

import (
	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/plugin"
)

// NavProps are the props of the navPanelRow slot.
type NavProps struct {
	Query string `json:"query"`
}

// FixtureSearch filters the primary renderer's fixtures.
type FixtureSearch interface {
	Search(query string) []fixture.Item
}

// SearchView is rendered by the fixtureSearch plug.
type SearchView struct {
	Query    string         `json:"query"`
	Items    []fixture.Item `json:"items"`
	Selected *fixture.ID    `json:"selected,omitempty"`
}

type fixtureSearch struct {
	core RendererCore
}

func (s *fixtureSearch) Search(query string) []fixture.Item {
	if s.core == nil {
		return nil
	}
	return fixture.Search(s.core.Fixtures().Flatten(), query)
}

func fixtureSearchSpec(deps Deps) (plugin.Spec, error) {
	log := deps.Logger.Named(FixtureSearchName)
	search := &fixtureSearch{}
	var router Router

	return plugin.Spec{
		Name:      FixtureSearchName,
		DependsOn: []string{RendererCoreName, RouterName},
		Methods:   FixtureSearch(search),
		Slots:     []string{NavPanelRow},
		Plugs: []plugin.PlugSpec{{
			Slot: NavPanelRow,
			ID:   FixtureSearchName,
			Render: func(pc plugin.PlugContext) any {
				props, _ := pc.Props.(NavProps)
				view := SearchView{Query: props.Query, Items: search.Search(props.Query)}
				if router != nil {
					view.Selected = router.Selected()
				}
				return view
			},
		}},
		OnLoad: func(ctx *plugin.Context) func() {
			var err error
			if search.core, err = plugin.MethodsOf[RendererCore](ctx, RendererCoreName); err != nil {
				log.Error("search loaded without renderer core", zap.Error(err))
			}
			if router, err = plugin.MethodsOf[Router](ctx, RouterName); err != nil {
				log.Error("search loaded without router", zap.Error(err))
			}
			return nil
		},
	}, nil
}
