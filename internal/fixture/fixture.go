// Package fixture defines fixture identifiers, fixture lists and fixture state
// shared by the UI and the renderers.
package fixture

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrInvalidList is returned when a fixture list fails validation.
var ErrInvalidList = errors.New("invalid fixture list")

// ID identifies a single fixture. Name is empty for single-fixture modules.
type ID struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

// String returns "path" or "path#name".
func (id ID) String() string {
	if id.Name == "" {
		return id.Path
	}
	return id.Path + "#" + id.Name
}

// ParseID is the inverse of ID.String.
func ParseID(s string) ID {
	path, name, _ := strings.Cut(s, "#")
	return ID{Path: path, Name: name}
}

// ItemType distinguishes modules exporting one fixture from modules exporting several.
type ItemType string

// Fixture list item types.
const (
	TypeSingle ItemType = "single"
	TypeMulti  ItemType = "multi"
)

// ListItem describes the fixtures exported by one path.
type ListItem struct {
	Type         ItemType `json:"type"`
	FixtureNames []string `json:"fixtureNames,omitempty"`
}

// List maps a fixture path to its list item.
type List map[string]ListItem

// Validate checks every entry of the list.
func (l List) Validate() error {
	for path, item := range l {
		if path == "" {
			return fmt.Errorf("%w: empty path", ErrInvalidList)
		}
		switch item.Type {
		case TypeSingle:
			if len(item.FixtureNames) > 0 {
				return fmt.Errorf("%w: single entry %q has fixture names", ErrInvalidList, path)
			}
		case TypeMulti:
			seen := make(map[string]struct{}, len(item.FixtureNames))
			for _, name := range item.FixtureNames {
				if name == "" {
					return fmt.Errorf("%w: empty fixture name in %q", ErrInvalidList, path)
				}
				if _, dup := seen[name]; dup {
					return fmt.Errorf("%w: duplicate fixture name %q in %q", ErrInvalidList, name, path)
				}
				seen[name] = struct{}{}
			}
		default:
			return fmt.Errorf("%w: unknown type %q for %q", ErrInvalidList, item.Type, path)
		}
	}
	return nil
}

// Has reports whether id names a fixture present in the list.
func (l List) Has(id ID) bool {
	item, ok := l[id.Path]
	if !ok {
		return false
	}
	if item.Type == TypeSingle {
		return id.Name == ""
	}
	return id.Name != "" && slices.Contains(item.FixtureNames, id.Name)
}

// Equal reports whether both lists hold the same entries, names in the same order.
func (l List) Equal(o List) bool {
	if len(l) != len(o) {
		return false
	}
	for path, item := range l {
		other, ok := o[path]
		if !ok || item.Type != other.Type || !slices.Equal(item.FixtureNames, other.FixtureNames) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the list.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for path, item := range l {
		out[path] = ListItem{Type: item.Type, FixtureNames: slices.Clone(item.FixtureNames)}
	}
	return out
}

// Item is one entry of a flattened fixture list.
type Item struct {
	ID       ID     `json:"fixtureId"`
	FileName string `json:"fileName"`
	Label    string `json:"label"`
}

// Flatten expands the list into one item per fixture, ordered by path and then
// by declaration order of names.
func (l List) Flatten() []Item {
	paths := make([]string, 0, len(l))
	for path := range l {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var items []Item
	for _, path := range paths {
		item := l[path]
		fileName := fileNameOf(path)
		if item.Type == TypeSingle {
			items = append(items, Item{ID: ID{Path: path}, FileName: fileName, Label: fileName})
			continue
		}
		for _, name := range item.FixtureNames {
			items = append(items, Item{
				ID:       ID{Path: path, Name: name},
				FileName: fileName,
				Label:    fileName + " " + name,
			})
		}
	}
	return items
}

// Search returns the items whose path or name contain every whitespace
// separated term of query, case-insensitively. An empty query matches all.
func Search(items []Item, query string) []Item {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return items
	}
	var out []Item
	for _, item := range items {
		haystack := strings.ToLower(item.ID.Path + " " + item.ID.Name)
		matched := true
		for _, term := range terms {
			if !strings.Contains(haystack, term) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, item)
		}
	}
	return out
}

// fileNameOf strips directories and the extension chain from a fixture path.
func fileNameOf(path string) string {
	base := path
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
