package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/archon-dev/archon/internal/models"
	"github.com/archon-dev/archon/internal/store"
	"github.com/archon-dev/archon/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	t.Run("CreateJob", func(t *testing.T) {
		job, err := s.CreateJob("scan", 5)
		if err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}
		if job.ID == 0 {
			t.Fatal("Expected job to have an id")
		}
		assert.Equal(t, models.NewJobID(job.ID), job.Snapshot.JobID)
		assert.Equal(t, models.StatusPending, job.Snapshot.Status)
		assert.Equal(t, 5, job.Snapshot.TotalUnits)

		stored, err := s.GetJob(job.ID)
		require.NoError(t, err)
		assert.Equal(t, "scan", stored.Kind)
		assert.Equal(t, job.Snapshot.JobID, stored.Snapshot.JobID)
		assert.Equal(t, 5, stored.Snapshot.TotalUnits)
	})

	t.Run("SaveSnapshot", func(t *testing.T) {
		job, err := s.CreateJob("scan", 2)
		require.NoError(t, err)

		elapsed := 1.5
		snap := job.Snapshot
		snap.Status = models.StatusRunning
		snap.CompletedUnits = 1
		snap.ProgressPercent = 50
		snap.Phase = "processing"
		snap.RecentItems = []string{"a.pdf"}
		snap.ElapsedSeconds = &elapsed
		require.NoError(t, s.SaveSnapshot(snap))

		stored, err := s.GetJob(job.ID)
		require.NoError(t, err)
		assert.Equal(t, snap, stored.Snapshot)
	})

	t.Run("SaveSnapshotUnknownJob", func(t *testing.T) {
		err := s.SaveSnapshot(models.JobProgressSnapshot{JobID: "9999", Status: models.StatusRunning})
		assert.ErrorIs(t, err, store.ErrNotFound)

		err = s.SaveSnapshot(models.JobProgressSnapshot{JobID: "abc"})
		assert.Error(t, err)
	})

	t.Run("GetJobNotFound", func(t *testing.T) {
		_, err := s.GetJob(9999)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListJobsNewestFirst", func(t *testing.T) {
		jobs, err := s.ListJobs()
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(jobs), 2)
		for i := 1; i < len(jobs); i++ {
			assert.Greater(t, jobs[i-1].ID, jobs[i].ID)
		}
	})
}

func TestPruneFinishedJobs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	done, err := s.CreateJob("scan", 0)
	require.NoError(t, err)
	snap := done.Snapshot
	snap.Status = models.StatusCompleted
	require.NoError(t, s.SaveSnapshot(snap))

	running, err := s.CreateJob("scan", 0)
	require.NoError(t, err)
	snap = running.Snapshot
	snap.Status = models.StatusRunning
	require.NoError(t, s.SaveSnapshot(snap))

	_, err = s.UpsertDocument(&models.Document{JobID: done.ID, Path: "/docs/a.pdf", Kind: models.KindPDF, SHA1: "x"})
	require.NoError(t, err)

	n, err := s.PruneFinishedJobs(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "recent jobs are kept")

	n, err = s.PruneFinishedJobs(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the finished job is pruned")

	_, err = s.GetJob(done.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetJob(running.ID)
	assert.NoError(t, err)

	count, err := s.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "documents outlive their job")
}

func TestFailRunningJobs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	pending, err := s.CreateJob("scan", 3)
	require.NoError(t, err)
	finished, err := s.CreateJob("scan", 3)
	require.NoError(t, err)
	snap := finished.Snapshot
	snap.Status = models.StatusCompleted
	require.NoError(t, s.SaveSnapshot(snap))

	n, err := s.FailRunningJobs("server restarted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := s.GetJob(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Snapshot.Status)
	assert.Equal(t, []models.ItemError{{Item: "scan", Error: "server restarted"}}, stored.Snapshot.RecentErrors)

	stored, err = s.GetJob(finished.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Snapshot.Status)
}
