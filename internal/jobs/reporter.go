package jobs

import (
	"sync"
	"time"

	"github.com/archon-dev/archon/internal/hub"
	"github.com/archon-dev/archon/internal/models"
	"github.com/archon-dev/archon/internal/store"
	"k8s.io/utils/clock"
)

const (
	recentLimit  = 10
	skippedLimit = 100
)

// PhaseComplete is set on every job that finishes successfully.
const PhaseComplete = "complete"

// Reporter owns the progress snapshot of one running job. Every change is
// persisted and published to the job's stream subscribers.
type Reporter struct {
	store *store.Store
	hub   *hub.Hub
	clock clock.Clock
	id    int64
	kind  string

	mu      sync.Mutex
	snap    models.JobProgressSnapshot
	started time.Time
}

func newReporter(job *models.Job, st *store.Store, h *hub.Hub, clk clock.Clock) *Reporter {
	return &Reporter{
		store: st,
		hub:   h,
		clock: clk,
		id:    job.ID,
		kind:  job.Kind,
		snap:  job.Snapshot,
	}
}

// JobID returns the database id of the job being reported.
func (r *Reporter) JobID() int64 { return r.id }

// Snapshot returns a copy of the current snapshot.
func (r *Reporter) Snapshot() models.JobProgressSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneSnapshot(r.snap)
}

func (r *Reporter) begin() {
	r.update(func(s *models.JobProgressSnapshot) {
		r.started = r.clock.Now()
		s.Status = models.StatusRunning
	})
}

// SetTotal sets the number of units the job expects to process.
func (r *Reporter) SetTotal(total int) {
	r.update(func(s *models.JobProgressSnapshot) { s.TotalUnits = total })
}

// SetPhase names the pipeline stage the job is in.
func (r *Reporter) SetPhase(phase string) {
	r.update(func(s *models.JobProgressSnapshot) { s.Phase = phase })
}

// Begin marks item as the one being worked on.
func (r *Reporter) Begin(item string) {
	r.update(func(s *models.JobProgressSnapshot) { s.CurrentItem = item })
}

// ItemDone counts item as processed.
func (r *Reporter) ItemDone(item string) {
	r.update(func(s *models.JobProgressSnapshot) {
		s.CompletedUnits++
		s.RecentItems = pushLimited(s.RecentItems, item, recentLimit)
	})
}

// ItemFailed counts item as a failed unit.
func (r *Reporter) ItemFailed(item string, err error) {
	r.update(func(s *models.JobProgressSnapshot) {
		s.FailedUnits++
		s.RecentErrors = pushLimited(s.RecentErrors, models.ItemError{Item: item, Error: err.Error()}, recentLimit)
	})
}

// Skip records an item that is not part of the work.
func (r *Reporter) Skip(item string) {
	r.update(func(s *models.JobProgressSnapshot) {
		s.SkippedItems = pushLimited(s.SkippedItems, item, skippedLimit)
	})
}

func (r *Reporter) finish(status models.JobStatus, err error) {
	r.update(func(s *models.JobProgressSnapshot) {
		if r.started.IsZero() {
			r.started = r.clock.Now()
		}
		s.Status = status
		s.CurrentItem = ""
		switch status {
		case models.StatusCompleted:
			s.Phase = PhaseComplete
		case models.StatusFailed:
			if err == nil {
				break
			}
			s.RecentErrors = pushLimited(s.RecentErrors, models.ItemError{Item: r.kind, Error: err.Error()}, recentLimit)
		}
	})
}

func (r *Reporter) update(fn func(*models.JobProgressSnapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(&r.snap)
	r.computeRates()
	snap := cloneSnapshot(r.snap)

	if err := r.store.SaveSnapshot(snap); err != nil {
		log.Errorf("job %s: could not save progress: %v", snap.JobID, err)
	}
	r.hub.Publish(snap)
}

// computeRates derives the percentage and timing fields from the counters.
func (r *Reporter) computeRates() {
	s := &r.snap
	processed := s.CompletedUnits + s.FailedUnits

	switch {
	case s.Status == models.StatusCompleted:
		s.ProgressPercent = 100
	case s.TotalUnits > 0:
		s.ProgressPercent = float64(processed) / float64(s.TotalUnits) * 100
		if s.ProgressPercent > 100 {
			s.ProgressPercent = 100
		}
	default:
		s.ProgressPercent = 0
	}

	s.ElapsedSeconds, s.Throughput, s.ETASeconds = nil, nil, nil
	if r.started.IsZero() {
		return
	}
	elapsed := r.clock.Since(r.started).Seconds()
	s.ElapsedSeconds = &elapsed

	if s.Status.IsTerminal() {
		if s.Status == models.StatusCompleted {
			zero := 0.0
			s.ETASeconds = &zero
		}
		if elapsed > 0 && processed > 0 {
			throughput := float64(processed) / elapsed
			s.Throughput = &throughput
		}
		return
	}
	if elapsed <= 0 || processed == 0 {
		return
	}
	throughput := float64(processed) / elapsed
	s.Throughput = &throughput
	if remaining := s.TotalUnits - processed; s.TotalUnits > 0 && remaining >= 0 {
		eta := float64(remaining) / throughput
		s.ETASeconds = &eta
	}
}

func pushLimited[T any](list []T, v T, limit int) []T {
	list = append(list, v)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

func cloneSnapshot(s models.JobProgressSnapshot) models.JobProgressSnapshot {
	out := s
	out.RecentItems = append([]string(nil), s.RecentItems...)
	out.RecentErrors = append([]models.ItemError(nil), s.RecentErrors...)
	out.SkippedItems = append([]string(nil), s.SkippedItems...)
	out.ETASeconds = clonePtr(s.ETASeconds)
	out.ElapsedSeconds = clonePtr(s.ElapsedSeconds)
	out.Throughput = clonePtr(s.Throughput)
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
