// Package testsuite holds behaviour every storage.AssignmentStore must share.
package testsuite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/cityauthz/pkg/storage"
)

// RunAssignmentStore runs the shared contract. newStore must return an empty store.
func RunAssignmentStore(t *testing.T, newStore func(t *testing.T) storage.AssignmentStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("put and list", func(t *testing.T) {
		store := newStore(t)
		first := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

		require.NoError(t, store.PutAssignment(ctx, storage.AssignmentRecord{Subject: "bm-1", BuildingID: "school-2", DateAdded: first.Add(time.Hour)}))
		require.NoError(t, store.PutAssignment(ctx, storage.AssignmentRecord{Subject: "bm-1", BuildingID: "school-1", DateAdded: first}))
		require.NoError(t, store.PutAssignment(ctx, storage.AssignmentRecord{Subject: "bm-2", BuildingID: "gym-1", DateAdded: first}))

		records, err := store.ListAssignmentsBySubject(ctx, "bm-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"school-1", "school-2"}, storage.BuildingIDs(records))
		for _, record := range records {
			assert.NotEmpty(t, record.ID)
			assert.Equal(t, "bm-1", record.Subject)
		}
	})

	t.Run("duplicate put is ignored", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.PutAssignment(ctx, storage.AssignmentRecord{Subject: "u-1", BuildingID: "a"}))
		require.NoError(t, store.PutAssignment(ctx, storage.AssignmentRecord{Subject: "u-1", BuildingID: "a"}))

		records, err := store.ListAssignmentsBySubject(ctx, "u-1")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("put rejects blank fields", func(t *testing.T) {
		store := newStore(t)

		assert.Error(t, store.PutAssignment(ctx, storage.AssignmentRecord{Subject: " ", BuildingID: "a"}))
		assert.Error(t, store.PutAssignment(ctx, storage.AssignmentRecord{Subject: "u-1", BuildingID: ""}))
	})

	t.Run("unknown subject lists empty", func(t *testing.T) {
		store := newStore(t)

		records, err := store.ListAssignmentsBySubject(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.PutAssignment(ctx, storage.AssignmentRecord{Subject: "u-1", BuildingID: "a"}))

		require.NoError(t, store.DeleteAssignment(ctx, "u-1", "a"))
		err := store.DeleteAssignment(ctx, "u-1", "a")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "expected ErrNotFound, got %v", err)
	})

	t.Run("replace", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.PutAssignment(ctx, storage.AssignmentRecord{Subject: "u-1", BuildingID: "old"}))

		require.NoError(t, store.ReplaceAssignments(ctx, "u-1", []string{"b", " ", "a", "b"}))
		records, err := store.ListAssignmentsBySubject(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, storage.BuildingIDs(records))

		require.NoError(t, store.ReplaceAssignments(ctx, "u-1", nil))
		records, err = store.ListAssignmentsBySubject(ctx, "u-1")
		require.NoError(t, err)
		assert.Empty(t, records)

		assert.Error(t, store.ReplaceAssignments(ctx, "", []string{"a"}))
	})
}
