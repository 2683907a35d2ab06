// Package builtin contains the plugins every UI session starts with.
package builtin

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/plugin"
	"github.com/ayusman/fixtureplay/internal/store"
)

// ErrInvalidComponent is returned for plugin or slot names that no builtin
// plugin provides.
var ErrInvalidComponent = errors.New("invalid component")

// Plugin names.
const (
	StorageName          = "storage"
	RendererCoreName     = "rendererCore"
	RouterName           = "router"
	FixtureSearchName    = "fixtureSearch"
	FixtureBookmarksName = "fixtureBookmarks"
	PropsPanelName       = "propsPanel"
)

// Slot names.
const (
	NavPanelRow     = "navPanelRow"
	ControlPanelRow = "controlPanelRow"
)

// Names lists the builtin plugins in registration order.
var Names = []string{
	StorageName,
	RendererCoreName,
	RouterName,
	FixtureSearchName,
	FixtureBookmarksName,
	PropsPanelName,
}

// Slots lists the slots builtin plugins plug into.
var Slots = []string{NavPanelRow, ControlPanelRow}

// Deps are the collaborators builtin plugins are built on.
type Deps struct {
	Manager *connection.Manager
	Store   *store.Store
	// Namespace scopes stored items, usually one per project.
	Namespace string
	Logger    *zap.Logger
}

// Options adjust which plugins are installed and how slots are ordered.
type Options struct {
	Disabled  []string
	SlotOrder map[string][]string
}

// CheckSlot returns ErrInvalidComponent for slots no builtin plugin uses.
func CheckSlot(slot string) error {
	if !slices.Contains(Slots, slot) {
		return fmt.Errorf("%w: slot %q", ErrInvalidComponent, slot)
	}
	return nil
}

// Install registers the enabled builtin plugins, applies slot orders and
// loads the registry.
func Install(reg *plugin.Registry, deps Deps, opts Options) error {
	for _, name := range opts.Disabled {
		if !slices.Contains(Names, name) {
			return fmt.Errorf("%w: plugin %q", ErrInvalidComponent, name)
		}
	}
	for slot := range opts.SlotOrder {
		if err := CheckSlot(slot); err != nil {
			return err
		}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	specs := map[string]func(Deps) (plugin.Spec, error){
		StorageName:          storageSpec,
		RendererCoreName:     rendererCoreSpec,
		RouterName:           routerSpec,
		FixtureSearchName:    fixtureSearchSpec,
		FixtureBookmarksName: fixtureBookmarksSpec,
		PropsPanelName:       propsPanelSpec,
	}

	for _, name := range Names {
		if slices.Contains(opts.Disabled, name) {
			deps.Logger.Info("plugin disabled", zap.String("plugin", name))
			continue
		}
		spec, err := specs[name](deps)
		if err != nil {
			return fmt.Errorf("build %s plugin: %w", name, err)
		}
		if _, err := reg.Register(spec); err != nil {
			return fmt.Errorf("register %s plugin: %w", name, err)
		}
	}

	for slot, order := range opts.SlotOrder {
		reg.SetSlotOrder(slot, order)
	}
	reg.Load()
	return nil
}
