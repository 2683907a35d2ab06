package renderer

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/fixtureplay/internal/fixture"
)

// Fixture is one renderable fixture and the state it starts with.
type Fixture struct {
	ID    fixture.ID
	State fixture.State
}

// Set is the ordered collection of fixtures a renderer can render.
type Set []Fixture

// List derives the fixture list announced to the UI. A path with named
// fixtures becomes a multi entry, names kept in declaration order.
func (s Set) List() fixture.List {
	list := make(fixture.List)
	for _, f := range s {
		item := list[f.ID.Path]
		if f.ID.Name == "" {
			item.Type = fixture.TypeSingle
		} else {
			item.Type = fixture.TypeMulti
			item.FixtureNames = append(item.FixtureNames, f.ID.Name)
		}
		list[f.ID.Path] = item
	}
	return list
}

// Validate rejects sets whose fixtures cannot all be announced: a repeated
// id, or a path that is both a single fixture and has named fixtures.
func (s Set) Validate() error {
	seen := make(map[fixture.ID]bool, len(s))
	named := make(map[string]bool)
	single := make(map[string]bool)
	for _, f := range s {
		if seen[f.ID] {
			return fmt.Errorf("%w: %s is declared twice", fixture.ErrInvalidList, f.ID)
		}
		seen[f.ID] = true
		if f.ID.Name == "" {
			single[f.ID.Path] = true
		} else {
			named[f.ID.Path] = true
		}
		if single[f.ID.Path] && named[f.ID.Path] {
			return fmt.Errorf("%w: %s has both an unnamed and named fixtures", fixture.ErrInvalidList, f.ID.Path)
		}
	}
	return s.List().Validate()
}

// Lookup finds a fixture by id.
func (s Set) Lookup(id fixture.ID) (Fixture, bool) {
	for _, f := range s {
		if f.ID == id {
			return f, true
		}
	}
	return Fixture{}, false
}

type manifest struct {
	Fixtures []manifestEntry `yaml:"fixtures"`
}

type manifestEntry struct {
	Path  string          `yaml:"path"`
	State map[string]any  `yaml:"state"`
	Names []manifestNamed `yaml:"names"`
}

type manifestNamed struct {
	Name  string         `yaml:"name"`
	State map[string]any `yaml:"state"`
}

// LoadFixtures reads a YAML fixture manifest from disk.
func LoadFixtures(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture manifest: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes a YAML fixture manifest:
//
//	fixtures:
//	  - path: button.fixture.tsx
//	    state: {props: {label: Click}}
//	  - path: card.fixture.tsx
//	    names:
//	      - name: light
//	        state: {props: {theme: light}}
func ParseFixtures(data []byte) (Set, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse fixture manifest: %w", err)
	}

	var set Set
	for _, entry := range m.Fixtures {
		if len(entry.Names) == 0 {
			state, err := toState(entry.State)
			if err != nil {
				return nil, fmt.Errorf("fixture %s: %w", entry.Path, err)
			}
			set = append(set, Fixture{ID: fixture.ID{Path: entry.Path}, State: state})
			continue
		}
		if entry.State != nil {
			return nil, fmt.Errorf("%w: %s has both state and names", fixture.ErrInvalidList, entry.Path)
		}
		for _, named := range entry.Names {
			if named.Name == "" {
				return nil, fmt.Errorf("%w: %s has a fixture without a name", fixture.ErrInvalidList, entry.Path)
			}
			state, err := toState(named.State)
			if err != nil {
				return nil, fmt.Errorf("fixture %s#%s: %w", entry.Path, named.Name, err)
			}
			set = append(set, Fixture{ID: fixture.ID{Path: entry.Path, Name: named.Name}, State: state})
		}
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func toState(fragments map[string]any) (fixture.State, error) {
	state := make(fixture.State, len(fragments))
	for name, value := range fragments {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("fragment %s: %w", name, err)
		}
		state[name] = raw
	}
	return state, nil
}
