package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/porthorian/cityauthz/pkg/cache"
)

var (
	ErrInvalidTTL = errors.New("memory cache: ttl must be greater than zero")
	ErrEmptyKey   = errors.New("memory cache: subject is required")
)

type assignmentEntry struct {
	buildingIDs []string
	expires     time.Time
}

type Adapter struct {
	mu      sync.RWMutex
	entries map[string]assignmentEntry
	now     func() time.Time
}

var _ cache.AssignmentCache = (*Adapter)(nil)

func NewAdapter() *Adapter {
	return &Adapter{
		entries: map[string]assignmentEntry{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (a *Adapter) SetAssignments(ctx context.Context, subject string, buildingIDs []string, ttl time.Duration) error {
	if err := validateSetInput(subject, ttl); err != nil {
		return err
	}

	a.mu.Lock()
	a.entries[subject] = assignmentEntry{
		buildingIDs: cloneIDs(buildingIDs),
		expires:     a.now().Add(ttl),
	}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) GetAssignments(ctx context.Context, subject string) ([]string, bool, error) {
	now := a.now()

	a.mu.RLock()
	entry, ok := a.entries[subject]
	a.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if now.After(entry.expires) {
		a.mu.Lock()
		if current, ok := a.entries[subject]; ok && now.After(current.expires) {
			delete(a.entries, subject)
		}
		a.mu.Unlock()
		return nil, false, nil
	}

	return cloneIDs(entry.buildingIDs), true, nil
}

func (a *Adapter) DeleteAssignments(ctx context.Context, subject string) error {
	a.mu.Lock()
	delete(a.entries, subject)
	a.mu.Unlock()
	return nil
}

func validateSetInput(subject string, ttl time.Duration) error {
	if subject == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

func cloneIDs(ids []string) []string {
	cloned := make([]string, len(ids))
	copy(cloned, ids)
	return cloned
}
