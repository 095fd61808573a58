package store

import (
	"context"
	"fmt"
	"sync"

	"mtoken/internal/identity/models"
	"mtoken/pkg/platform/sentinel"
	"mtoken/pkg/requestcontext"
)

// InMemoryStore keeps identities in a map keyed by citizen id, with the same
// conflict semantics as PostgresStore.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.IdentityRecord
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.IdentityRecord)}
}

// EnsureSchema is a no-op.
func (s *InMemoryStore) EnsureSchema(context.Context) error {
	return nil
}

func (s *InMemoryStore) FindByCitizenID(_ context.Context, citizenID string) (*models.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[citizenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

func (s *InMemoryStore) Upsert(ctx context.Context, record *models.IdentityRecord) error {
	if record == nil {
		return fmt.Errorf("identity record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[record.CitizenID]; ok {
		existing.Mobile = record.Mobile
		existing.AdditionalInfo = record.AdditionalInfo
		s.records[record.CitizenID] = existing
		return nil
	}
	for _, r := range s.records {
		if r.SubjectID == record.SubjectID {
			return fmt.Errorf("%w: user_id %s", sentinel.ErrAlreadyExists, record.SubjectID)
		}
	}

	stored := *record
	stored.CreatedAt = requestcontext.Now(ctx).UTC()
	s.records[record.CitizenID] = stored
	return nil
}

// Len returns the number of stored identities.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
