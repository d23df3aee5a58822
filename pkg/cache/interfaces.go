package cache

import (
	"context"
	"time"
)

// AssignmentCache holds per-subject building assignment lists for a bounded time.
type AssignmentCache interface {
	SetAssignments(ctx context.Context, subject string, buildingIDs []string, ttl time.Duration) error
	GetAssignments(ctx context.Context, subject string) ([]string, bool, error)
	DeleteAssignments(ctx context.Context, subject string) error
}
