package plugin

import (
	"errors"
	"slices"
	"testing"
)

type storageMethods interface {
	GetItem(key string) string
}

type memStorage map[string]string

func (m memStorage) GetItem(key string) string { return m[key] }

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	ctx, err := r.Register(Spec{Name: "storage", Methods: memStorage{"k": "v"}})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if ctx.Name() != "storage" {
		t.Errorf("expected context name 'storage', got %q", ctx.Name())
	}

	if _, err := r.Register(Spec{Name: "storage"}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}

	if _, err := r.Register(Spec{}); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestRegistry_DependenciesMustRegisterFirst(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(Spec{Name: "bookmarks", DependsOn: []string{"storage"}})
	if !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("expected ErrUnknownDependency, got %v", err)
	}
	if r.Has("bookmarks") {
		t.Fatal("failed registration must not leave the plugin behind")
	}

	if _, err := r.Register(Spec{Name: "storage", Methods: memStorage{}}); err != nil {
		t.Fatalf("Register(storage) error = %v", err)
	}
	if _, err := r.Register(Spec{Name: "bookmarks", DependsOn: []string{"storage"}}); err != nil {
		t.Fatalf("Register(bookmarks) after dependency error = %v", err)
	}
}

func TestRegistry_SelfDependencyRejected(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(Spec{Name: "loop", DependsOn: []string{"loop"}})
	if !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("expected ErrUnknownDependency, got %v", err)
	}
}

func TestRegistry_GetMethodsOf(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(Spec{Name: "storage", Methods: memStorage{"k": "v"}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := r.GetMethodsOf("missing"); !errors.Is(err, ErrUnregisteredPlugin) {
		t.Errorf("expected ErrUnregisteredPlugin, got %v", err)
	}

	storage, err := MethodsOf[storageMethods](r, "storage")
	if err != nil {
		t.Fatalf("MethodsOf() error = %v", err)
	}
	if got := storage.GetItem("k"); got != "v" {
		t.Errorf("expected 'v', got %q", got)
	}

	if _, err := MethodsOf[func()](r, "storage"); !errors.Is(err, ErrMethodsMismatch) {
		t.Errorf("expected ErrMethodsMismatch, got %v", err)
	}
}

func TestContext_GetMethodsOfRequiresDeclaredDependency(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Spec{Name: "storage", Methods: memStorage{}})
	mustRegister(t, r, Spec{Name: "router"})
	ctx := mustRegister(t, r, Spec{Name: "bookmarks", DependsOn: []string{"storage"}})

	if _, err := ctx.GetMethodsOf("storage"); err != nil {
		t.Errorf("GetMethodsOf(storage) error = %v", err)
	}
	if _, err := ctx.GetMethodsOf("router"); !errors.Is(err, ErrUndeclaredDependency) {
		t.Errorf("expected ErrUndeclaredDependency, got %v", err)
	}
}

func TestRegistry_LoadOrderAndCleanup(t *testing.T) {
	r := NewRegistry()
	var events []string

	for _, name := range []string{"a", "b", "c"} {
		mustRegister(t, r, Spec{
			Name: name,
			OnLoad: func(ctx *Context) func() {
				events = append(events, "load "+ctx.Name())
				return func() { events = append(events, "unload "+ctx.Name()) }
			},
		})
	}

	r.Load()
	r.Load()
	mustRegister(t, r, Spec{
		Name:   "late",
		OnLoad: func(ctx *Context) func() { events = append(events, "load late"); return nil },
	})

	r.Reset()
	r.Reset()

	want := []string{"load a", "load b", "load c", "load late", "unload c", "unload b", "unload a"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
	if len(r.Plugins()) != 0 {
		t.Errorf("expected no plugins after Reset, got %v", r.Plugins())
	}
}

func TestRegistry_ResetAllowsReRegistration(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Spec{Name: "storage"})
	r.Reset()

	if _, err := r.Register(Spec{Name: "storage"}); err != nil {
		t.Fatalf("Register() after Reset error = %v", err)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	cleaned := false
	mustRegister(t, r, Spec{Name: "storage", OnLoad: func(*Context) func() { return func() { cleaned = true } }})
	mustRegister(t, r, Spec{Name: "bookmarks", DependsOn: []string{"storage"}})
	r.Load()

	if err := r.Unregister("storage"); !errors.Is(err, ErrPluginInUse) {
		t.Fatalf("expected ErrPluginInUse, got %v", err)
	}
	if err := r.Unregister("bookmarks"); err != nil {
		t.Fatalf("Unregister(bookmarks) error = %v", err)
	}
	if err := r.Unregister("storage"); err != nil {
		t.Fatalf("Unregister(storage) error = %v", err)
	}
	if !cleaned {
		t.Error("expected cleanup to run on Unregister")
	}
	if err := r.Unregister("storage"); !errors.Is(err, ErrUnregisteredPlugin) {
		t.Errorf("expected ErrUnregisteredPlugin, got %v", err)
	}
}

func mustRegister(t *testing.T, r *Registry, spec Spec) *Context {
	t.Helper()
	ctx, err := r.Register(spec)
	if err != nil {
		t.Fatalf("Register(%s) error = %v", spec.Name, err)
	}
	return ctx
}
