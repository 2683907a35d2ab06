package fixture

import (
	"bytes"
	"encoding/json"
	"maps"
	"sort"
)

// State is the live state of a rendered fixture, keyed by fragment name
// ("props", "classState", ...). Fragment contents are owned by the plugin that
// reads them and are never interpreted here.
type State map[string]json.RawMessage

// Merge returns a new State with change applied on top of s. Fragments absent
// from change are kept; a fragment whose value is JSON null is removed.
func (s State) Merge(change State) State {
	out := make(State, len(s)+len(change))
	for name, value := range s {
		out[name] = value
	}
	for name, value := range change {
		if isNull(value) {
			delete(out, name)
			continue
		}
		out[name] = bytes.Clone(value)
	}
	return out
}

// Fragment returns the raw value of a fragment.
func (s State) Fragment(name string) (json.RawMessage, bool) {
	v, ok := s[name]
	return v, ok
}

// Fragments returns fragment names in sorted order.
func (s State) Fragments() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for name, value := range s {
		out[name] = bytes.Clone(value)
	}
	return out
}

// Equal compares fragment values byte for byte.
func (s State) Equal(o State) bool {
	return maps.EqualFunc(s, o, func(a, b json.RawMessage) bool {
		return bytes.Equal(a, b)
	})
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
