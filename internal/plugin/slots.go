package plugin

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
)

type plug struct {
	owner  *Context
	slot   string
	id     string
	render RenderFunc
	rank   float64
	before string
	after  string
	seq    uint64
}

// PlugOption adjusts the position of a plug within its slot.
type PlugOption func(*plug)

// WithOrder sets a numeric rank. Plugs without one have rank 0; lower ranks
// render first and equal ranks keep registration order.
func WithOrder(rank float64) PlugOption {
	return func(p *plug) { p.rank = rank }
}

// Before places the plug immediately before another plug of the same slot.
func Before(plugID string) PlugOption {
	return func(p *plug) { p.before, p.after = plugID, "" }
}

// After places the plug immediately after another plug of the same slot.
func After(plugID string) PlugOption {
	return func(p *plug) { p.after, p.before = plugID, "" }
}

func (r *Registry) newPlugLocked(owner *Context, slot, plugID string, render RenderFunc, opts []PlugOption) (*plug, error) {
	if slot == "" || plugID == "" || render == nil {
		return nil, fmt.Errorf("%w: plug needs slot, id and render func", ErrInvalidSpec)
	}
	if len(owner.slots) > 0 && !slices.Contains(owner.slots, slot) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrUndeclaredSlot, owner.name, slot)
	}
	for _, existing := range r.slots[slot] {
		if existing.id == plugID {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicatePlug, slot, plugID)
		}
	}

	r.seq++
	p := &plug{owner: owner, slot: slot, id: plugID, render: render, seq: r.seq}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (r *Registry) plugFor(owner *Context, slot, plugID string, render RenderFunc, opts []PlugOption) error {
	r.mu.Lock()
	if e, ok := r.plugins[owner.name]; !ok || e.ctx != owner {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnregisteredPlugin, owner.name)
	}
	p, err := r.newPlugLocked(owner, slot, plugID, render, opts)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.slots[slot] = append(r.slots[slot], p)
	r.mu.Unlock()

	r.Invalidate(slot)
	return nil
}

func (r *Registry) removePlugsLocked(owner string) []string {
	var touched []string
	for slot, plugs := range r.slots {
		kept := slices.DeleteFunc(slices.Clone(plugs), func(p *plug) bool { return p.owner.name == owner })
		if len(kept) == len(plugs) {
			continue
		}
		touched = append(touched, slot)
		if len(kept) == 0 {
			delete(r.slots, slot)
		} else {
			r.slots[slot] = kept
		}
	}
	slices.Sort(touched)
	return touched
}

// SetSlotOrder pins the listed plugs to the front of a slot, in the given
// order. Plugs not listed follow in their resolved order.
func (r *Registry) SetSlotOrder(slot string, plugIDs []string) {
	r.mu.Lock()
	if len(plugIDs) == 0 {
		delete(r.slotOrder, slot)
	} else {
		r.slotOrder[slot] = slices.Clone(plugIDs)
	}
	r.mu.Unlock()

	r.Invalidate(slot)
}

// PlugIDs returns the resolved plug order of a slot.
func (r *Registry) PlugIDs(slot string) []string {
	r.mu.RLock()
	resolved := r.resolveLocked(slot)
	r.mu.RUnlock()

	ids := make([]string, len(resolved))
	for i, p := range resolved {
		ids[i] = p.id
	}
	return ids
}

// RenderSlot returns the contributions of a slot in resolved order. The set
// of plugs is captured when RenderSlot is called; render funcs run lazily as
// the sequence is consumed, and every iteration renders again from the same
// snapshot.
func (r *Registry) RenderSlot(slot string, props any) iter.Seq[Rendered] {
	r.mu.RLock()
	snapshot := r.resolveLocked(slot)
	r.mu.RUnlock()

	return func(yield func(Rendered) bool) {
		for _, p := range snapshot {
			out := p.render(PlugContext{Slot: slot, PlugID: p.id, Plugin: p.owner, Props: props})
			if out == nil {
				continue
			}
			if !yield(Rendered{PlugID: p.id, Plugin: p.owner.name, Output: out}) {
				return
			}
		}
	}
}

func (r *Registry) resolveLocked(slot string) []*plug {
	registered := r.slots[slot]
	if len(registered) == 0 {
		return nil
	}

	resolved := slices.Clone(registered)
	slices.SortStableFunc(resolved, func(a, b *plug) int {
		if c := cmp.Compare(a.rank, b.rank); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	for _, p := range registered {
		anchor := p.before
		if anchor == "" {
			anchor = p.after
		}
		if anchor == "" || anchor == p.id {
			continue
		}
		from := slices.Index(resolved, p)
		without := slices.Delete(slices.Clone(resolved), from, from+1)
		at := slices.IndexFunc(without, func(q *plug) bool { return q.id == anchor })
		if at < 0 {
			continue
		}
		if p.after != "" {
			at++
		}
		resolved = slices.Insert(without, at, p)
	}

	if pinned := r.slotOrder[slot]; len(pinned) > 0 {
		front := make([]*plug, 0, len(resolved))
		for _, id := range pinned {
			if i := slices.IndexFunc(resolved, func(q *plug) bool { return q.id == id }); i >= 0 {
				front = append(front, resolved[i])
			}
		}
		rest := slices.DeleteFunc(slices.Clone(resolved), func(q *plug) bool { return slices.Contains(front, q) })
		resolved = append(front, rest...)
	}
	return resolved
}

// Invalidate bumps the revision of each slot and notifies watchers.
func (r *Registry) Invalidate(slots ...string) {
	if len(slots) == 0 {
		return
	}
	r.mu.Lock()
	for _, slot := range slots {
		r.revisions[slot]++
	}
	watchers := make([]func(string), 0, len(r.watchers))
	for _, w := range r.watchers {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()

	for _, slot := range slots {
		for _, w := range watchers {
			w(slot)
		}
	}
}

// Revision returns a counter that increases whenever a slot's plugs or the
// state they render changes.
func (r *Registry) Revision(slot string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revisions[slot]
}

// Watch registers fn to be called with the name of every invalidated slot.
// The returned func stops the notifications.
func (r *Registry) Watch(fn func(slot string)) func() {
	r.mu.Lock()
	id := r.nextWatch
	r.nextWatch++
	r.watchers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
}
