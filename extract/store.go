package extract

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hirewire/scout/errors"
)

// Store persists finished (or in-flight) run snapshots to SQLite so run
// history survives restarts. Profiles and CV results are stored as JSON
// blobs; the run row itself stays queryable.
type Store struct {
	db *sql.DB
}

// NewStore creates a run history store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveRun upserts a run snapshot and replaces its items and errors.
func (s *Store) SaveRun(snap Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var endedAt interface{}
	if snap.EndTime != nil {
		endedAt = snap.EndTime.UTC()
	}
	var runErr interface{}
	if snap.Err != "" {
		runErr = snap.Err
	}

	_, err = tx.Exec(`
		INSERT INTO extraction_runs (id, job_id, applicant_view_id, phase, cursor, total_items,
			batch_size, max_items, cooldown_ms, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			cursor = excluded.cursor,
			total_items = excluded.total_items,
			error = excluded.error,
			ended_at = excluded.ended_at
	`, snap.ID, snap.Target.JobID, snap.Target.ApplicantViewID, string(snap.Phase),
		snap.Cursor, snap.TotalItems, snap.Target.BatchSize, snap.Target.MaxItems,
		snap.Target.Cooldown.Milliseconds(), runErr, snap.StartTime.UTC(), endedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save run")
	}

	if _, err := tx.Exec(`DELETE FROM extraction_items WHERE run_id = ?`, snap.ID); err != nil {
		return errors.Wrap(err, "failed to clear run items")
	}
	if _, err := tx.Exec(`DELETE FROM extraction_errors WHERE run_id = ?`, snap.ID); err != nil {
		return errors.Wrap(err, "failed to clear run errors")
	}

	for i, item := range snap.ProcessedItems {
		var profile, cvDownload interface{}
		if item.Profile != nil {
			data, err := json.Marshal(item.Profile)
			if err != nil {
				return errors.Wrap(err, "failed to marshal profile")
			}
			profile = string(data)
		}
		if item.CVDownload != nil {
			data, err := json.Marshal(item.CVDownload)
			if err != nil {
				return errors.Wrap(err, "failed to marshal cv download")
			}
			cvDownload = string(data)
		}

		ref, err := json.Marshal(item.SourceRef)
		if err != nil {
			return errors.Wrap(err, "failed to marshal source ref")
		}

		_, err = tx.Exec(`
			INSERT INTO extraction_items (run_id, position, source_ref, success, attempts, profile, cv_download)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, snap.ID, i, string(ref), item.Success, item.Attempts, profile, cvDownload)
		if err != nil {
			return errors.Wrap(err, "failed to save run item")
		}
	}

	for i, rec := range snap.Errors {
		_, err = tx.Exec(`
			INSERT INTO extraction_errors (run_id, position, item_ref, error_kind, message, recoverable, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, snap.ID, i, rec.ItemRef, rec.Kind, rec.Message, rec.Recoverable, rec.Timestamp.UTC())
		if err != nil {
			return errors.Wrap(err, "failed to save run error")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit run")
}

// GetRun loads a full run snapshot by ID.
func (s *Store) GetRun(id string) (*Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT id, job_id, applicant_view_id, phase, cursor, total_items,
			batch_size, max_items, cooldown_ms, error, started_at, ended_at
		FROM extraction_runs WHERE id = ?
	`, id)

	snap, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrRunNotFound, "run %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load run")
	}

	if err := s.loadItems(snap); err != nil {
		return nil, err
	}
	if err := s.loadErrors(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// ListRuns returns run summaries (no items or errors) newest first.
func (s *Store) ListRuns(limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, job_id, applicant_view_id, phase, cursor, total_items,
			batch_size, max_items, cooldown_ms, error, started_at, ended_at
		FROM extraction_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []Snapshot
	for rows.Next() {
		snap, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, *snap)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate runs")
}

// CleanupOldRuns deletes runs that ended before the cutoff. Item and
// error rows go with them via the cascade.
func (s *Store) CleanupOldRuns(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.Exec(`
		DELETE FROM extraction_runs WHERE ended_at IS NOT NULL AND ended_at < ?
	`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to clean up old runs")
	}
	n, err := result.RowsAffected()
	return n, errors.Wrap(err, "failed to count cleaned runs")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var phase string
	var viewID, runErr sql.NullString
	var cooldownMs int64
	var endedAt sql.NullTime

	err := row.Scan(&snap.ID, &snap.Target.JobID, &viewID, &phase, &snap.Cursor,
		&snap.TotalItems, &snap.Target.BatchSize, &snap.Target.MaxItems,
		&cooldownMs, &runErr, &snap.StartTime, &endedAt)
	if err != nil {
		return nil, err
	}

	snap.Phase = Phase(phase)
	snap.Target.ApplicantViewID = viewID.String
	snap.Target.Cooldown = time.Duration(cooldownMs) * time.Millisecond
	snap.Err = runErr.String
	if endedAt.Valid {
		t := endedAt.Time
		snap.EndTime = &t
	}
	return &snap, nil
}

func (s *Store) loadItems(snap *Snapshot) error {
	rows, err := s.db.Query(`
		SELECT source_ref, success, attempts, profile, cv_download
		FROM extraction_items WHERE run_id = ? ORDER BY position
	`, snap.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load run items")
	}
	defer rows.Close()

	for rows.Next() {
		var item ItemResult
		var ref string
		var profile, cvDownload sql.NullString
		if err := rows.Scan(&ref, &item.Success, &item.Attempts, &profile, &cvDownload); err != nil {
			return errors.Wrap(err, "failed to scan run item")
		}
		if err := json.Unmarshal([]byte(ref), &item.SourceRef); err != nil {
			return errors.Wrap(err, "failed to unmarshal source ref")
		}
		if profile.Valid {
			item.Profile = &ProfileData{}
			if err := json.Unmarshal([]byte(profile.String), item.Profile); err != nil {
				return errors.Wrap(err, "failed to unmarshal profile")
			}
		}
		if cvDownload.Valid {
			item.CVDownload = &DownloadResult{}
			if err := json.Unmarshal([]byte(cvDownload.String), item.CVDownload); err != nil {
				return errors.Wrap(err, "failed to unmarshal cv download")
			}
		}
		snap.ProcessedItems = append(snap.ProcessedItems, item)
	}
	return errors.Wrap(rows.Err(), "failed to iterate run items")
}

func (s *Store) loadErrors(snap *Snapshot) error {
	rows, err := s.db.Query(`
		SELECT item_ref, error_kind, message, recoverable, occurred_at
		FROM extraction_errors WHERE run_id = ? ORDER BY position
	`, snap.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load run errors")
	}
	defer rows.Close()

	for rows.Next() {
		var rec ErrorRecord
		if err := rows.Scan(&rec.ItemRef, &rec.Kind, &rec.Message, &rec.Recoverable, &rec.Timestamp); err != nil {
			return errors.Wrap(err, "failed to scan run error")
		}
		snap.Errors = append(snap.Errors, rec)
	}
	return errors.Wrap(rows.Err(), "failed to iterate run errors")
}
