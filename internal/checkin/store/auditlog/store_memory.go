package auditlog

import (
	"context"
	"sync"

	"presence/internal/checkin/models"
	id "presence/pkg/domain"
)

// InMemoryStore keeps audit entries in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByPair(_ context.Context, registrationID id.RegistrationID, eventID id.EventID) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.AuditEntry
	for _, entry := range s.entries {
		if entry.RegistrationID == registrationID && entry.EventID == eventID {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// All returns every entry in insertion order. Test helper.
func (s *InMemoryStore) All() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditEntry(nil), s.entries...)
}
