package attendance

import (
	"context"
	"fmt"
	"sync"

	"presence/internal/checkin/models"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

type pairKey struct {
	registrationID id.RegistrationID
	eventID        id.EventID
}

// InMemoryStore keeps attendance records in process. The map key doubles as
// the unique index, so the duplicate semantics match the postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[pairKey]models.AttendanceRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[pairKey]models.AttendanceRecord),
	}
}

func (s *InMemoryStore) Record(_ context.Context, rec models.AttendanceRecord) (models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{rec.RegistrationID, rec.EventID}
	if _, exists := s.records[key]; exists {
		return models.AttendanceRecord{}, fmt.Errorf("attendance for %s/%s: %w",
			rec.RegistrationID, rec.EventID, sentinel.ErrConflict)
	}
	s.records[key] = rec
	return rec, nil
}

func (s *InMemoryStore) Exists(_ context.Context, registrationID id.RegistrationID, eventID id.EventID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.records[pairKey{registrationID, eventID}]
	return exists, nil
}

func (s *InMemoryStore) Find(_ context.Context, registrationID id.RegistrationID, eventID id.EventID) (models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[pairKey{registrationID, eventID}]
	if !exists {
		return models.AttendanceRecord{}, sentinel.ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) FindByRegistration(_ context.Context, registrationID id.RegistrationID) (models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, rec := range s.records {
		if key.registrationID == registrationID {
			return rec, nil
		}
	}
	return models.AttendanceRecord{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByEvent(_ context.Context, eventID id.EventID) ([]models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []models.AttendanceRecord
	for key, rec := range s.records {
		if key.eventID == eventID {
			records = append(records, rec)
		}
	}
	return records, nil
}
