package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/archon-dev/archon/internal/models"
)

// CreateJob inserts a pending job and returns it with its initial snapshot.
func (s *Store) CreateJob(kind string, total int) (*models.Job, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO jobs (kind, status, snapshot, created_at, updated_at) VALUES (?, ?, '{}', ?, ?)",
		kind, models.StatusPending, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:   id,
		Kind: kind,
		Snapshot: models.JobProgressSnapshot{
			JobID:      models.NewJobID(id),
			Status:     models.StatusPending,
			TotalUnits: total,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveSnapshot(job.Snapshot); err != nil {
		return nil, err
	}
	return job, nil
}

// SaveSnapshot stores the latest snapshot of a job.
func (s *Store) SaveSnapshot(snap models.JobProgressSnapshot) error {
	id, err := snap.JobID.Int64()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	res, err := s.db.Exec("UPDATE jobs SET status = ?, snapshot = ?, updated_at = ? WHERE id = ?",
		snap.Status, string(payload), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for job %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const jobColumns = "id, kind, snapshot, created_at, updated_at"

func scanJob(row interface{ Scan(...any) error }) (*models.Job, error) {
	var job models.Job
	var payload string
	if err := row.Scan(&job.ID, &job.Kind, &payload, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &job.Snapshot); err != nil {
		return nil, fmt.Errorf("corrupt snapshot for job %d: %w", job.ID, err)
	}
	job.Snapshot.JobID = models.NewJobID(job.ID)
	return &job, nil
}

// GetJob retrieves a single job by its primary key.
func (s *Store) GetJob(id int64) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs() ([]*models.Job, error) {
	rows, err := s.db.Query("SELECT " + jobColumns + " FROM jobs ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// PruneFinishedJobs removes terminal jobs last updated before the cutoff.
// Indexed documents are kept and lose their job reference.
func (s *Store) PruneFinishedJobs(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM jobs WHERE status IN (?, ?, ?) AND updated_at < ?",
		models.StatusCompleted, models.StatusFailed, models.StatusCancelled, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// FailRunningJobs marks every unfinished job as failed. It is run on
// startup, when no job goroutine from a previous process can still be alive.
func (s *Store) FailRunningJobs(message string) (int, error) {
	rows, err := s.db.Query("SELECT "+jobColumns+" FROM jobs WHERE status IN (?, ?)",
		models.StatusPending, models.StatusRunning)
	if err != nil {
		return 0, err
	}
	var stale []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		stale = append(stale, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, job := range stale {
		snap := job.Snapshot
		snap.Status = models.StatusFailed
		snap.CurrentItem = ""
		snap.RecentErrors = append(snap.RecentErrors, models.ItemError{Item: job.Kind, Error: message})
		if err := s.SaveSnapshot(snap); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
