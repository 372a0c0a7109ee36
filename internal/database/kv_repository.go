package database

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// KVRepository handles database operations for namespaced key/value state
type KVRepository struct {
	db *sqlx.DB
}

// NewKVRepository creates a new repository instance
func NewKVRepository(db *sqlx.DB) *KVRepository {
	return &KVRepository{db: db}
}

// Get returns the raw value of key. The boolean is false when the key is absent.
func (r *KVRepository) Get(namespace, key string) (string, bool, error) {
	var value string
	query := r.db.Rebind(`SELECT value FROM local_state WHERE namespace = ? AND key = ?`)
	err := r.db.Get(&value, query, namespace, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to get %s/%s", namespace, key)
	}
	return value, true, nil
}

// Set writes value under key, replacing any previous value.
func (r *KVRepository) Set(namespace, key, value string) error {
	query := r.db.Rebind(`
		INSERT INTO local_state (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if _, err := r.db.Exec(query, namespace, key, value, time.Now().UTC()); err != nil {
		return errors.Wrapf(err, "failed to set %s/%s", namespace, key)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (r *KVRepository) Remove(namespace, key string) error {
	query := r.db.Rebind(`DELETE FROM local_state WHERE namespace = ? AND key = ?`)
	if _, err := r.db.Exec(query, namespace, key); err != nil {
		return errors.Wrapf(err, "failed to remove %s/%s", namespace, key)
	}
	return nil
}

// Clear deletes every key of namespace.
func (r *KVRepository) Clear(namespace string) error {
	query := r.db.Rebind(`DELETE FROM local_state WHERE namespace = ?`)
	if _, err := r.db.Exec(query, namespace); err != nil {
		return errors.Wrapf(err, "failed to clear %s", namespace)
	}
	return nil
}

// Entry is one stored row.
type Entry struct {
	Namespace string    `db:"namespace"`
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// List returns every entry of namespace ordered by key.
func (r *KVRepository) List(namespace string) ([]Entry, error) {
	var entries []Entry
	query := r.db.Rebind(`SELECT namespace, key, value, updated_at FROM local_state WHERE namespace = ? ORDER BY key`)
	if err := r.db.Select(&entries, query, namespace); err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", namespace)
	}
	return entries, nil
}

// Namespaces returns every namespace that holds at least one key.
func (r *KVRepository) Namespaces() ([]string, error) {
	var namespaces []string
	if err := r.db.Select(&namespaces, `SELECT DISTINCT namespace FROM local_state ORDER BY namespace`); err != nil {
		return nil, errors.Wrap(err, "failed to list namespaces")
	}
	return namespaces, nil
}
