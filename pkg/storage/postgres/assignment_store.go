package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/porthorian/cityauthz/pkg/storage"
)

const (
	putAssignmentQuery = `
INSERT INTO cityauthz.building_assignment (
  id, subject, building_id, date_added
) VALUES ($1, $2, $3, $4)
ON CONFLICT (subject, building_id) DO NOTHING
`

	listAssignmentsBySubjectQuery = `
SELECT
  id::text, date_added, subject, building_id
FROM cityauthz.building_assignment
WHERE subject = $1
ORDER BY date_added ASC, building_id ASC
`

	deleteAssignmentQuery = `
DELETE FROM cityauthz.building_assignment
WHERE subject = $1 AND building_id = $2
`

	deleteAssignmentsBySubjectQuery = `DELETE FROM cityauthz.building_assignment WHERE subject = $1`
)

func (a *Adapter) PutAssignment(ctx context.Context, record storage.AssignmentRecord) error {
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	record, err := normalizeRecord(record)
	if err != nil {
		return err
	}

	_, err = a.stmts.putAssignment.ExecContext(
		ctx,
		record.ID,
		record.Subject,
		record.BuildingID,
		record.DateAdded,
	)
	return err
}

func (a *Adapter) ListAssignmentsBySubject(ctx context.Context, subject string) ([]storage.AssignmentRecord, error) {
	if err := a.requirePreparedStatements(); err != nil {
		return nil, err
	}

	rows, err := a.stmts.listAssignmentsBySubject.QueryContext(ctx, strings.TrimSpace(subject))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []storage.AssignmentRecord{}
	for rows.Next() {
		record, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func (a *Adapter) DeleteAssignment(ctx context.Context, subject string, buildingID string) error {
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	result, err := a.stmts.deleteAssignment.ExecContext(ctx, strings.TrimSpace(subject), strings.TrimSpace(buildingID))
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ReplaceAssignments swaps the subject's full assignment list in one transaction.
func (a *Adapter) ReplaceAssignments(ctx context.Context, subject string, buildingIDs []string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return errEmptySubject
	}

	return a.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteAssignmentsBySubjectQuery, subject); err != nil {
			return err
		}

		now := time.Now().UTC()
		seen := make(map[string]struct{}, len(buildingIDs))
		for _, buildingID := range buildingIDs {
			buildingID = strings.TrimSpace(buildingID)
			if buildingID == "" {
				continue
			}
			if _, dup := seen[buildingID]; dup {
				continue
			}
			seen[buildingID] = struct{}{}

			if _, err := tx.ExecContext(ctx, putAssignmentQuery, uuid.NewString(), subject, buildingID, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func normalizeRecord(record storage.AssignmentRecord) (storage.AssignmentRecord, error) {
	record.Subject = strings.TrimSpace(record.Subject)
	record.BuildingID = strings.TrimSpace(record.BuildingID)
	if record.Subject == "" {
		return storage.AssignmentRecord{}, errEmptySubject
	}
	if record.BuildingID == "" {
		return storage.AssignmentRecord{}, errEmptyBuildingID
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.DateAdded.IsZero() {
		record.DateAdded = time.Now().UTC()
	}
	return record, nil
}

func scanAssignment(s scanner) (storage.AssignmentRecord, error) {
	var (
		record    storage.AssignmentRecord
		dateAdded time.Time
	)

	if err := s.Scan(&record.ID, &dateAdded, &record.Subject, &record.BuildingID); err != nil {
		return storage.AssignmentRecord{}, err
	}

	record.DateAdded = dateAdded.UTC()
	return record, nil
}
