package entitlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aegis/pkg/sentinel"
)

// MemoryStore backs unit tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Entitlement
}

func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[string]Entitlement)}
}

func (s *MemoryStore) Insert(_ context.Context, e Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[e.ID]; exists {
		return fmt.Errorf("entitlement %s: %w", e.ID, sentinel.ErrConflict)
	}
	s.records[e.ID] = cloneEntitlement(e)
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return Entitlement{}, fmt.Errorf("entitlement %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneEntitlement(e), nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status, updatedAt time.Time, revokedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return fmt.Errorf("entitlement %s: %w", id, sentinel.ErrNotFound)
	}
	e.Status = status
	e.UpdatedAt = updatedAt
	if revokedAt != nil {
		e.RevokedAt = revokedAt
	}
	s.records[id] = e
	return nil
}

func (s *MemoryStore) ListBySubject(_ context.Context, subjectID string) ([]Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entitlement
	for _, e := range s.records {
		if e.SubjectID == subjectID {
			out = append(out, cloneEntitlement(e))
		}
	}
	return out, nil
}

func cloneEntitlement(e Entitlement) Entitlement {
	scopes := make([]string, len(e.Scopes))
	copy(scopes, e.Scopes)
	e.Scopes = scopes
	return e
}
