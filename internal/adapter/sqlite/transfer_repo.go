package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/port"
)

// Ensure Store implements port.TransferJournal
var _ port.TransferJournal = (*Store)(nil)

// StartRun inserts a run in running state, assigning an ID when empty
func (s *Store) StartRun(run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = domain.RunStatusRunning

	query := `
		INSERT INTO runs (
			id, update_id, update_name, build, arch, dest_dir,
			file_count, total_bytes, status, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.ID, run.UpdateID, run.UpdateName, run.Build, run.Arch, run.DestDir,
		run.FileCount, run.TotalBytes, run.Status, run.StartedAt.UTC())
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("run %s: %w", run.ID, domain.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

// FinishRun stores the terminal status of a run
func (s *Store) FinishRun(run *domain.Run) error {
	var finishedAt interface{}
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.UTC()
	}

	query := `
		UPDATE runs
		SET status = ?, last_error = ?, finished_at = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query, run.Status, nullString(run.LastError), finishedAt, run.ID)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, domain.ErrNotFound)
	}
	return nil
}

// RecordTransfer appends one file outcome to a run
func (s *Store) RecordTransfer(rec *domain.TransferRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	query := `
		INSERT INTO transfers (
			run_id, filename, path, status, bytes_written, resumed_from, error, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		rec.RunID, rec.Filename, rec.Path, rec.Status,
		rec.BytesWritten, rec.ResumedFrom, nullString(rec.Error), rec.RecordedAt.UTC())
	return err
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, update_id, update_name, build, arch, dest_dir,
			   file_count, total_bytes, status, last_error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run := &domain.Run{}
		var lastError sql.NullString
		var finishedAt sql.NullTime

		if err := rows.Scan(
			&run.ID, &run.UpdateID, &run.UpdateName, &run.Build, &run.Arch, &run.DestDir,
			&run.FileCount, &run.TotalBytes, &run.Status, &lastError, &run.StartedAt, &finishedAt,
		); err != nil {
			return nil, err
		}

		if lastError.Valid {
			run.LastError = lastError.String
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ListTransfers returns the outcomes recorded for a run in insertion order
func (s *Store) ListTransfers(runID string) ([]*domain.TransferRecord, error) {
	query := `
		SELECT run_id, filename, path, status, bytes_written, resumed_from, error, recorded_at
		FROM transfers
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.TransferRecord
	for rows.Next() {
		rec := &domain.TransferRecord{}
		var errMsg sql.NullString

		if err := rows.Scan(
			&rec.RunID, &rec.Filename, &rec.Path, &rec.Status,
			&rec.BytesWritten, &rec.ResumedFrom, &errMsg, &rec.RecordedAt,
		); err != nil {
			return nil, err
		}

		if errMsg.Valid {
			rec.Error = errMsg.String
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
