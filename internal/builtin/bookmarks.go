package builtin

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/plugin"
)

const bookmarksKey = "fixtureBookmarks"

// Bookmarks keeps a persisted, sorted set of fixture ids.
type Bookmarks interface {
	List() ([]fixture.ID, error)
	Add(id fixture.ID) error
	Remove(id fixture.ID) error
}

// BookmarksView is rendered by the fixtureBookmarks plug.
type BookmarksView struct {
	Items []fixture.Item `json:"items"`
}

type bookmarks struct {
	mu      sync.Mutex
	storage Storage
	ctx     *plugin.Context
}

func (b *bookmarks) load() ([]fixture.ID, error) {
	if b.storage == nil {
		return nil, errors.New("bookmarks not loaded")
	}
	var ids []fixture.ID
	if _, err := b.storage.GetItem(bookmarksKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *bookmarks) save(ids []fixture.ID) error {
	if len(ids) == 0 {
		return b.storage.RemoveItem(bookmarksKey)
	}
	sortIDs(ids)
	return b.storage.SetItem(bookmarksKey, ids)
}

// invalidate must run without b.mu held: watchers may render the slot.
func (b *bookmarks) invalidate() {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx != nil {
		ctx.Invalidate(NavPanelRow)
	}
}

func (b *bookmarks) List() ([]fixture.ID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, err := b.load()
	if err != nil {
		return nil, err
	}
	sortIDs(ids)
	return ids, nil
}

func (b *bookmarks) Add(id fixture.ID) error {
	changed, err := b.update(func(ids []fixture.ID) []fixture.ID {
		if slices.Contains(ids, id) {
			return ids
		}
		return append(ids, id)
	})
	if changed {
		b.invalidate()
	}
	return err
}

func (b *bookmarks) Remove(id fixture.ID) error {
	changed, err := b.update(func(ids []fixture.ID) []fixture.ID {
		return slices.DeleteFunc(ids, func(other fixture.ID) bool { return other == id })
	})
	if changed {
		b.invalidate()
	}
	return err
}

func (b *bookmarks) update(fn func([]fixture.ID) []fixture.ID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, err := b.load()
	if err != nil {
		return false, err
	}
	n := len(ids)
	ids = fn(ids)
	if len(ids) == n {
		return false, nil
	}
	if err := b.save(ids); err != nil {
		return false, err
	}
	return true, nil
}

func sortIDs(ids []fixture.ID) {
	slices.SortFunc(ids, func(a, b fixture.ID) int {
		return cmp.Compare(a.String(), b.String())
	})
}

func fixtureBookmarksSpec(deps Deps) (plugin.Spec, error) {
	log := deps.Logger.Named(FixtureBookmarksName)
	b := &bookmarks{}
	var core RendererCore

	return plugin.Spec{
		Name:      FixtureBookmarksName,
		DependsOn: []string{StorageName, RendererCoreName},
		Methods:   Bookmarks(b),
		Slots:     []string{NavPanelRow},
		Plugs: []plugin.PlugSpec{{
			Slot: NavPanelRow,
			ID:   FixtureBookmarksName,
			Render: func(plugin.PlugContext) any {
				if core == nil {
					return nil
				}
				ids, err := b.List()
				if err != nil || len(ids) == 0 {
					return nil
				}
				// Only bookmarks the renderer still exports are shown.
				var view BookmarksView
				for _, item := range core.Fixtures().Flatten() {
					if slices.Contains(ids, item.ID) {
						view.Items = append(view.Items, item)
					}
				}
				if len(view.Items) == 0 {
					return nil
				}
				return view
			},
			Options: []plugin.PlugOption{plugin.Before(FixtureSearchName)},
		}},
		OnLoad: func(ctx *plugin.Context) func() {
			storage, err := plugin.MethodsOf[Storage](ctx, StorageName)
			if err != nil {
				log.Error("bookmarks loaded without storage", zap.Error(err))
			}
			if core, err = plugin.MethodsOf[RendererCore](ctx, RendererCoreName); err != nil {
				log.Error("bookmarks loaded without renderer core", zap.Error(err))
			}
			b.mu.Lock()
			b.storage = storage
			b.ctx = ctx
			b.mu.Unlock()
			return nil
		},
	}, nil
}
