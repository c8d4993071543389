package scenario

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Mutation edits a private copy of a session. Returning an error discards the edit.
type Mutation func(*Session) error

// Store persists whole sessions. It never changes fields on its own beyond
// bookkeeping (id, version, timestamps).
type Store interface {
	Create(ctx context.Context, session *Session) (string, error)
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, mutate Mutation) error
}

// MemoryStore implements Store with an in-process map, suitable for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a copy of session and returns its id, generating one when empty.
func (s *MemoryStore) Create(ctx context.Context, session *Session) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Join(ErrStoreUnavailable, err)
	}

	record := session.Clone()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := s.now()
	record.CreatedAt = now
	record.UpdatedAt = now
	record.Version = 1

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[record.ID]; exists {
		return "", errors.Join(ErrStoreUnavailable, errors.New("duplicate session id "+record.ID))
	}
	s.sessions[record.ID] = record
	return record.ID, nil
}

// Get returns a copy of the stored session.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return record.Clone(), nil
}

// Update applies mutate to a copy and swaps it in atomically when mutate succeeds.
func (s *MemoryStore) Update(ctx context.Context, id string, mutate Mutation) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	draft := record.Clone()
	if err := mutate(draft); err != nil {
		return err
	}
	draft.ID = record.ID
	draft.CreatedAt = record.CreatedAt
	draft.Version = record.Version + 1
	draft.UpdatedAt = s.now()
	s.sessions[id] = draft
	return nil
}

// Len reports how many sessions are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
