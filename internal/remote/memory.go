package remote

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/example/examprep/pkg/models"
)

// MemoryStore keeps documents in process. It backs offline mode and tests.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]json.RawMessage
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]json.RawMessage)}
}

func (s *MemoryStore) GetDocument(ctx context.Context, userID string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	fields, ok := s.docs[NormalizeUserID(userID)]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	copied := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.mu.Unlock()
	return decodeDocument(copied)
}

func (s *MemoryStore) SetDocument(ctx context.Context, userID string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := encodeFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := NormalizeUserID(userID)
	doc, ok := s.docs[id]
	if !ok {
		doc = make(map[string]json.RawMessage)
		s.docs[id] = doc
	}
	for k, v := range encoded {
		doc[k] = v
	}
	return nil
}

// Field returns the stored JSON of one field.
func (s *MemoryStore) Field(userID, name string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.docs[NormalizeUserID(userID)][name]
	return v, ok
}
