package builtin

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/fixtureplay/internal/plugin"
	"github.com/ayusman/fixtureplay/internal/store"
)

// Storage persists small JSON values per project.
type Storage interface {
	// GetItem decodes the stored value into v and reports whether it exists.
	GetItem(key string, v any) (bool, error)
	SetItem(key string, v any) error
	// RemoveItem deletes a value. Removing a missing key is not an error.
	RemoveItem(key string) error
}

type sqliteStorage struct {
	items *store.ItemRepository
}

func (s *sqliteStorage) GetItem(key string, v any) (bool, error) {
	item, err := s.items.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(item.Value, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *sqliteStorage) SetItem(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.items.Set(key, data)
}

func (s *sqliteStorage) RemoveItem(key string) error {
	if err := s.items.Delete(key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func storageSpec(deps Deps) (plugin.Spec, error) {
	if deps.Store == nil {
		return plugin.Spec{}, errors.New("store is required")
	}
	return plugin.Spec{
		Name:    StorageName,
		Methods: Storage(&sqliteStorage{items: deps.Store.Items(deps.Namespace)}),
	}, nil
}
