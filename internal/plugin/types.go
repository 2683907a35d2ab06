// Package plugin provides the capability registry and the slot/plug dispatcher
// that lets independently written plugins expose methods to each other by name
// and render contributions into named extension points.
package plugin

import "errors"

// Registry errors.
var (
	ErrInvalidSpec          = errors.New("invalid plugin spec")
	ErrDuplicateName        = errors.New("duplicate plugin name")
	ErrUnknownDependency    = errors.New("unknown dependency")
	ErrUnregisteredPlugin   = errors.New("plugin not registered")
	ErrUndeclaredDependency = errors.New("plugin not declared as dependency")
	ErrUndeclaredSlot       = errors.New("slot not declared by plugin")
	ErrDuplicatePlug        = errors.New("duplicate plug")
	ErrPluginInUse          = errors.New("plugin is a dependency of another plugin")
	ErrMethodsMismatch      = errors.New("plugin methods have unexpected type")
)

// Spec describes a plugin at registration time.
type Spec struct {
	// Name is unique within a registry.
	Name string
	// DependsOn lists plugins that must already be registered. Only these
	// plugins are reachable through Context.GetMethodsOf.
	DependsOn []string
	// Methods is the method table exposed to dependents, usually an
	// interface value or a struct of funcs.
	Methods any
	// Slots lists the slots this plugin may plug into. Empty means any slot.
	Slots []string
	// Plugs are registered together with the plugin.
	Plugs []PlugSpec
	// OnLoad runs when the registry is loaded. The returned func, if any,
	// runs when the plugin is unregistered or the registry is reset.
	OnLoad func(ctx *Context) func()
}

// PlugSpec declares a contribution to a slot.
type PlugSpec struct {
	Slot    string
	ID      string
	Render  RenderFunc
	Options []PlugOption
}

// RenderFunc renders one contribution. Returning nil renders nothing.
type RenderFunc func(pc PlugContext) any

// PlugContext is passed to a RenderFunc.
type PlugContext struct {
	Slot   string
	PlugID string
	// Plugin is the context of the plugin owning the plug.
	Plugin *Context
	// Props are the slot props given to RenderSlot.
	Props any
}

// Rendered is one element of a RenderSlot sequence.
type Rendered struct {
	PlugID string `json:"plugId"`
	Plugin string `json:"plugin"`
	Output any    `json:"output"`
}

// MethodSource is implemented by Registry and Context.
type MethodSource interface {
	GetMethodsOf(name string) (any, error)
}

// MethodsOf looks up a plugin's method table and asserts it to T.
func MethodsOf[T any](src MethodSource, name string) (T, error) {
	var zero T
	methods, err := src.GetMethodsOf(name)
	if err != nil {
		return zero, err
	}
	typed, ok := methods.(T)
	if !ok {
		return zero, ErrMethodsMismatch
	}
	return typed, nil
}
