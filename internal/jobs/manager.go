// Package jobs runs background jobs and records their progress.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/archon-dev/archon/internal/hub"
	"github.com/archon-dev/archon/internal/models"
	"github.com/archon-dev/archon/internal/store"
	logging "github.com/ipfs/go-log/v2"
	"k8s.io/utils/clock"
)

var log = logging.Logger("jobs")

// KindScan is the library scan job.
const KindScan = "scan"

var (
	ErrUnknownKind    = errors.New("unknown job kind")
	ErrAlreadyRunning = errors.New("a job of this kind is already running")
	ErrNotRunning     = errors.New("job is not running")
)

// Params are the free-form arguments of a job request.
type Params map[string]string

// Task does the work of a job. It reports progress through r and must
// return promptly once ctx is cancelled.
type Task func(ctx context.Context, r *Reporter, params Params) error

type runningJob struct {
	kind   string
	cancel context.CancelFunc
}

// Manager starts registered tasks on their own goroutine, at most one per
// kind at a time.
type Manager struct {
	store *store.Store
	hub   *hub.Hub
	clock clock.Clock

	mu      sync.Mutex
	tasks   map[string]Task
	running map[int64]*runningJob
	onStart []func(kind string)
	wg      sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for elapsed time and retention.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

func NewManager(st *store.Store, h *hub.Hub, opts ...Option) *Manager {
	m := &Manager{
		store:   st,
		hub:     h,
		clock:   clock.RealClock{},
		tasks:   make(map[string]Task),
		running: make(map[int64]*runningJob),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Register(kind string, task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[kind] = task
}

// OnStart adds a hook called with the kind of every job that starts.
func (m *Manager) OnStart(fn func(kind string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStart = append(m.onStart, fn)
}

// Start creates the job record and runs its task in the background. The
// returned job carries the initial pending snapshot.
func (m *Manager) Start(kind string, params Params) (*models.Job, error) {
	m.mu.Lock()
	task, ok := m.tasks[kind]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	for _, r := range m.running {
		if r.kind == kind {
			m.mu.Unlock()
			return nil, ErrAlreadyRunning
		}
	}

	job, err := m.store.CreateJob(kind, 0)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.running[job.ID] = &runningJob{kind: kind, cancel: cancel}
	hooks := append([]func(string){}, m.onStart...)
	m.wg.Add(1)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(kind)
	}

	reporter := newReporter(job, m.store, m.hub, m.clock)
	log.Infof("Starting job %d: %s", job.ID, kind)
	go m.run(ctx, job, task, reporter, params)
	return job, nil
}

func (m *Manager) run(ctx context.Context, job *models.Job, task Task, r *Reporter, params Params) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		if rj, ok := m.running[job.ID]; ok {
			rj.cancel()
			delete(m.running, job.ID)
		}
		m.mu.Unlock()
	}()

	var err error
	func() {
		// Ensure a panicking task still ends with a terminal snapshot.
		defer func() {
			if p := recover(); p != nil {
				log.Errorf("Job %d (%s) panicked: %v", job.ID, job.Kind, p)
				err = fmt.Errorf("job panicked: %v", p)
			}
		}()
		r.begin()
		err = task(ctx, r, params)
	}()

	switch {
	case ctx.Err() != nil:
		r.finish(models.StatusCancelled, nil)
		log.Infof("Job %d (%s) cancelled", job.ID, job.Kind)
	case err != nil:
		r.finish(models.StatusFailed, err)
		log.Errorf("Job %d (%s) failed: %v", job.ID, job.Kind, err)
	default:
		r.finish(models.StatusCompleted, nil)
		log.Infof("Finished job %d: %s", job.ID, job.Kind)
	}
}

// Cancel asks a running job to stop.
func (m *Manager) Cancel(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rj, ok := m.running[id]
	if !ok {
		return ErrNotRunning
	}
	rj.cancel()
	return nil
}

// Running returns the ids of jobs whose task has not returned yet.
func (m *Manager) Running() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	return ids
}

// Prune deletes finished jobs older than retention.
func (m *Manager) Prune(retention time.Duration) (int64, error) {
	return m.store.PruneFinishedJobs(m.clock.Now().Add(-retention))
}

// Shutdown cancels every running job and waits for their tasks to return.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, rj := range m.running {
		rj.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Wait blocks until no job is running.
func (m *Manager) Wait() {
	m.wg.Wait()
}
