package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidValue is returned when a value is not valid JSON.
var ErrInvalidValue = errors.New("invalid JSON value")

// Item is a stored JSON value.
type Item struct {
	Namespace string
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// ItemRepository provides get/set access to the items of one namespace.
type ItemRepository struct {
	db        *sql.DB
	namespace string
}

// Items returns the item repository for a namespace.
func (s *Store) Items(namespace string) *ItemRepository {
	return &ItemRepository{db: s.db, namespace: namespace}
}

// Get retrieves an item by key.
func (r *ItemRepository) Get(key string) (*Item, error) {
	item := &Item{Namespace: r.namespace, Key: key}
	var value string

	err := r.db.QueryRow(
		`SELECT value, updated_at FROM items WHERE namespace = ? AND key = ?`,
		r.namespace, key,
	).Scan(&value, &item.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	item.Value = json.RawMessage(value)
	return item, nil
}

// Set inserts or replaces an item. The value must be valid JSON.
func (r *ItemRepository) Set(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return ErrInvalidValue
	}
	_, err := r.db.Exec(
		`INSERT INTO items (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		r.namespace, key, string(value), time.Now(),
	)
	return err
}

// Delete removes an item.
func (r *ItemRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM items WHERE namespace = ? AND key = ?`, r.namespace, key)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
