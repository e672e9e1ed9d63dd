package sessioncache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/model"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is a process-local Store. Views are stored serialized so callers
// never share mutable state with the cache.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
	clock   clock.Clock
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]memoryEntry), clock: c}
}

func (s *MemoryStore) Put(_ context.Context, attemptID uuid.UUID, view *model.SessionView, ttl time.Duration) error {
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	e := memoryEntry{payload: data}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[attemptID] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, attemptID uuid.UUID) (*model.SessionView, error) {
	s.mu.RLock()
	e, ok := s.entries[attemptID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		s.mu.Lock()
		if cur, still := s.entries[attemptID]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.entries, attemptID)
		}
		s.mu.Unlock()
		return nil, ErrMiss
	}

	var view model.SessionView
	if err := json.Unmarshal(e.payload, &view); err != nil {
		return nil, ErrMiss
	}
	return &view, nil
}

func (s *MemoryStore) Invalidate(_ context.Context, attemptID uuid.UUID) error {
	s.mu.Lock()
	delete(s.entries, attemptID)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
