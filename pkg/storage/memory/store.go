// Package memory keeps building assignments in process. It backs the "memory"
// storage backend for single-instance deployments and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/porthorian/cityauthz/pkg/storage"
)

var (
	ErrEmptySubject    = errors.New("memory store: subject is required")
	ErrEmptyBuildingID = errors.New("memory store: building id is required")
)

type Store struct {
	mu       sync.RWMutex
	subjects map[string]map[string]storage.AssignmentRecord
	now      func() time.Time
}

var _ storage.AssignmentStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		subjects: map[string]map[string]storage.AssignmentRecord{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) PutAssignment(ctx context.Context, record storage.AssignmentRecord) error {
	record.Subject = strings.TrimSpace(record.Subject)
	record.BuildingID = strings.TrimSpace(record.BuildingID)
	if record.Subject == "" {
		return ErrEmptySubject
	}
	if record.BuildingID == "" {
		return ErrEmptyBuildingID
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.DateAdded.IsZero() {
		record.DateAdded = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buildings, ok := s.subjects[record.Subject]
	if !ok {
		buildings = map[string]storage.AssignmentRecord{}
		s.subjects[record.Subject] = buildings
	}
	if _, exists := buildings[record.BuildingID]; !exists {
		buildings[record.BuildingID] = record
	}
	return nil
}

// ListAssignmentsBySubject orders by DateAdded, then building id.
func (s *Store) ListAssignmentsBySubject(ctx context.Context, subject string) ([]storage.AssignmentRecord, error) {
	s.mu.RLock()
	buildings := s.subjects[strings.TrimSpace(subject)]
	records := make([]storage.AssignmentRecord, 0, len(buildings))
	for _, record := range buildings {
		records = append(records, record)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].DateAdded.Equal(records[j].DateAdded) {
			return records[i].DateAdded.Before(records[j].DateAdded)
		}
		return records[i].BuildingID < records[j].BuildingID
	})
	return records, nil
}

func (s *Store) DeleteAssignment(ctx context.Context, subject string, buildingID string) error {
	subject = strings.TrimSpace(subject)
	buildingID = strings.TrimSpace(buildingID)

	s.mu.Lock()
	defer s.mu.Unlock()

	buildings, ok := s.subjects[subject]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := buildings[buildingID]; !ok {
		return storage.ErrNotFound
	}

	delete(buildings, buildingID)
	if len(buildings) == 0 {
		delete(s.subjects, subject)
	}
	return nil
}

func (s *Store) ReplaceAssignments(ctx context.Context, subject string, buildingIDs []string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrEmptySubject
	}

	now := s.now()
	buildings := make(map[string]storage.AssignmentRecord, len(buildingIDs))
	for _, buildingID := range buildingIDs {
		buildingID = strings.TrimSpace(buildingID)
		if buildingID == "" {
			continue
		}
		if _, dup := buildings[buildingID]; dup {
			continue
		}
		buildings[buildingID] = storage.AssignmentRecord{
			ID:         uuid.NewString(),
			DateAdded:  now,
			Subject:    subject,
			BuildingID: buildingID,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(buildings) == 0 {
		delete(s.subjects, subject)
		return nil
	}
	s.subjects[subject] = buildings
	return nil
}
