package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: record not found")

// AssignmentRecord binds one subject to one building.
type AssignmentRecord struct {
	ID         string
	DateAdded  time.Time
	Subject    string
	BuildingID string
}

type AssignmentStore interface {
	PutAssignment(ctx context.Context, record AssignmentRecord) error
	ListAssignmentsBySubject(ctx context.Context, subject string) ([]AssignmentRecord, error)
	DeleteAssignment(ctx context.Context, subject string, buildingID string) error
	ReplaceAssignments(ctx context.Context, subject string, buildingIDs []string) error
}

// BuildingIDs flattens records into building ids, keeping record order and dropping duplicates.
func BuildingIDs(records []AssignmentRecord) []string {
	ids := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		if _, dup := seen[record.BuildingID]; dup {
			continue
		}
		seen[record.BuildingID] = struct{}{}
		ids = append(ids, record.BuildingID)
	}
	return ids
}
