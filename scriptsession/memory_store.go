package scriptsession

import (
	"context"
	"sync"
)

type memoryKey struct {
	sessionID string
	section   Section
}

// MemoryStore is a Store that keeps values in memory. The zero value is ready
// to use.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[memoryKey]map[string][]byte
}

// NewMemoryStore returns a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.values {
		if key.sessionID == sessionID {
			delete(s.values, key)
		}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string, section Section, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[memoryKey{sessionID, section}][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *MemoryStore) List(ctx context.Context, sessionID string, section Section) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string][]byte)
	for key, value := range s.values[memoryKey{sessionID, section}] {
		values[key] = append([]byte(nil), value...)
	}
	return values, nil
}

func (s *MemoryStore) Put(ctx context.Context, sessionID string, section Section, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values == nil {
		s.values = make(map[memoryKey]map[string][]byte)
	}

	sectionValues, ok := s.values[memoryKey{sessionID, section}]
	if !ok {
		sectionValues = make(map[string][]byte)
		s.values[memoryKey{sessionID, section}] = sectionValues
	}
	sectionValues[key] = append([]byte(nil), value...)
	return nil
}
