// Package localstore persists one user's progress as JSON values in the
// local key/value table. Reads never fail: a missing or undecodable value
// falls back to the caller's default.
package localstore

import (
	"encoding/json"
	"log/slog"

	"github.com/example/examprep/internal/database"
	"github.com/pkg/errors"
)

// Store is the local state of a single user identity.
type Store struct {
	repo      *database.KVRepository
	namespace string
	logger    *slog.Logger
}

// New returns the store of namespace.
func New(repo *database.KVRepository, namespace string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:      repo,
		namespace: namespace,
		logger:    logger.With("namespace", namespace),
	}
}

// Namespace returns the user identity the store belongs to.
func (s *Store) Namespace() string {
	return s.namespace
}

// Get decodes key into a T, returning def when the key is absent or broken.
func Get[T any](s *Store, key string, def T) T {
	raw, ok, err := s.repo.Get(s.namespace, key)
	if err != nil {
		s.logger.Warn("local read failed, using default", "key", key, "error", err)
		return def
	}
	if !ok {
		return def
	}
	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		s.logger.Warn("undecodable local value, using default", "key", key, "error", err)
		return def
	}
	return value
}

// Set serializes value and writes it immediately.
func (s *Store) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	return s.repo.Set(s.namespace, key, string(raw))
}

// Remove deletes key.
func (s *Store) Remove(key string) error {
	return s.repo.Remove(s.namespace, key)
}

// Clear wipes every key of the user.
func (s *Store) Clear() error {
	return s.repo.Clear(s.namespace)
}
