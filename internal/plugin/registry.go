package plugin

import (
	"fmt"
	"slices"
	"sync"
)

type entry struct {
	spec    Spec
	ctx     *Context
	loaded  bool
	cleanup func()
}

// Registry holds registered plugins and their slot contributions.
// A Registry is scoped to one UI (or one renderer) session; Reset returns it
// to a clean slate.
type Registry struct {
	mu        sync.RWMutex
	plugins   map[string]*entry
	order     []string
	slots     map[string][]*plug
	slotOrder map[string][]string
	revisions map[string]uint64
	watchers  map[int]func(slot string)
	nextWatch int
	seq       uint64
	loaded    bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.clear()
	return r
}

func (r *Registry) clear() {
	r.plugins = make(map[string]*entry)
	r.order = nil
	r.slots = make(map[string][]*plug)
	r.slotOrder = make(map[string][]string)
	r.revisions = make(map[string]uint64)
	r.watchers = make(map[int]func(slot string))
	r.loaded = false
}

// Register adds a plugin. Every name in spec.DependsOn must already be
// registered. Plugs declared in spec are added together with the plugin.
// If the registry is already loaded, the plugin's OnLoad runs immediately.
func (r *Registry) Register(spec Spec) (*Context, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}

	r.mu.Lock()
	if _, exists := r.plugins[spec.Name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
	}

	deps := make(map[string]struct{}, len(spec.DependsOn))
	for _, dep := range spec.DependsOn {
		if _, ok := r.plugins[dep]; !ok {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, spec.Name, dep)
		}
		deps[dep] = struct{}{}
	}

	ctx := &Context{r: r, name: spec.Name, deps: deps, slots: spec.Slots}
	plugs := make([]*plug, 0, len(spec.Plugs))
	for _, ps := range spec.Plugs {
		p, err := r.newPlugLocked(ctx, ps.Slot, ps.ID, ps.Render, ps.Options)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		for _, other := range plugs {
			if other.slot == p.slot && other.id == p.id {
				r.mu.Unlock()
				return nil, fmt.Errorf("%w: %s/%s", ErrDuplicatePlug, p.slot, p.id)
			}
		}
		plugs = append(plugs, p)
	}

	e := &entry{spec: spec, ctx: ctx}
	r.plugins[spec.Name] = e
	r.order = append(r.order, spec.Name)

	touched := make([]string, 0, len(plugs))
	for _, p := range plugs {
		r.slots[p.slot] = append(r.slots[p.slot], p)
		touched = append(touched, p.slot)
	}
	loadNow := r.loaded
	r.mu.Unlock()

	if loadNow {
		r.load(e)
	}
	r.Invalidate(touched...)
	return ctx, nil
}

// GetMethodsOf returns the method table exposed by a registered plugin.
func (r *Registry) GetMethodsOf(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredPlugin, name)
	}
	return e.spec.Methods, nil
}

// Has reports whether a plugin is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[name]
	return ok
}

// Plugins returns registered plugin names in registration order.
func (r *Registry) Plugins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Load runs OnLoad for every registered plugin in registration order.
// Plugins registered afterwards are loaded as they register.
func (r *Registry) Load() {
	r.mu.Lock()
	r.loaded = true
	pending := make([]*entry, 0, len(r.order))
	for _, name := range r.order {
		if e := r.plugins[name]; !e.loaded {
			pending = append(pending, e)
		}
	}
	r.mu.Unlock()

	for _, e := range pending {
		r.load(e)
	}
}

func (r *Registry) load(e *entry) {
	r.mu.Lock()
	if e.loaded {
		r.mu.Unlock()
		return
	}
	e.loaded = true
	onLoad := e.spec.OnLoad
	r.mu.Unlock()

	if onLoad == nil {
		return
	}
	cleanup := onLoad(e.ctx)

	r.mu.Lock()
	e.cleanup = cleanup
	r.mu.Unlock()
}

// Unregister removes a plugin and all of its plugs. It fails if another
// registered plugin depends on it.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	e, ok := r.plugins[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnregisteredPlugin, name)
	}
	for _, other := range r.order {
		if slices.Contains(r.plugins[other].spec.DependsOn, name) {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s is used by %s", ErrPluginInUse, name, other)
		}
	}

	delete(r.plugins, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	touched := r.removePlugsLocked(name)
	cleanup := e.cleanup
	r.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
	r.Invalidate(touched...)
	return nil
}

// Reset unloads every plugin, running cleanups in reverse registration
// order, and clears all registry state. Calling Reset on an empty registry
// is a no-op.
func (r *Registry) Reset() {
	r.mu.Lock()
	var cleanups []func()
	for i := len(r.order) - 1; i >= 0; i-- {
		if c := r.plugins[r.order[i]].cleanup; c != nil {
			cleanups = append(cleanups, c)
		}
	}
	r.clear()
	r.mu.Unlock()

	for _, c := range cleanups {
		c()
	}
}

// Context is the handle a plugin receives on registration.
type Context struct {
	r     *Registry
	name  string
	deps  map[string]struct{}
	slots []string
}

// Name returns the plugin name.
func (c *Context) Name() string { return c.name }

// GetMethodsOf returns the methods of a plugin declared in DependsOn.
func (c *Context) GetMethodsOf(name string) (any, error) {
	if _, ok := c.deps[name]; !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrUndeclaredDependency, c.name, name)
	}
	return c.r.GetMethodsOf(name)
}

// NamedPlug adds a contribution owned by this plugin.
func (c *Context) NamedPlug(slot, plugID string, render RenderFunc, opts ...PlugOption) error {
	return c.r.plugFor(c, slot, plugID, render, opts)
}

// Invalidate bumps the revision of the given slots.
func (c *Context) Invalidate(slots ...string) {
	c.r.Invalidate(slots...)
}
