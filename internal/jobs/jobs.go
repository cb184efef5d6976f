package jobs

import (
	"time"

	"github.com/archon-dev/archon/internal/config"
	"github.com/go-co-op/gocron"
)

// StartScheduler starts the background job scheduler: a periodic library
// scan every scan_interval minutes and an hourly prune of finished jobs.
func StartScheduler(jm *Manager, cfg *config.Config) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	startLibraryScanJob(s, jm, cfg.ScanInterval)
	startPruneJob(s, jm, cfg.Jobs.Retention)

	log.Info("Starting background job scheduler...")
	s.StartAsync()
	return s
}

func startLibraryScanJob(s *gocron.Scheduler, jm *Manager, interval int) {
	if interval <= 0 {
		log.Info("Library scan interval is 0, scheduled scan is disabled.")
		return
	}

	log.Infof("Scheduling job: '%s' to run every %d minutes.", KindScan, interval)
	_, err := s.Every(interval).Minutes().WaitForSchedule().Do(func() {
		// Submit through the manager so a manual scan is never doubled.
		if _, err := jm.Start(KindScan, Params{}); err != nil {
			log.Warnf("Scheduled job '%s' could not start: %v", KindScan, err)
		}
	})
	if err != nil {
		log.Errorf("Error scheduling '%s' job: %v", KindScan, err)
	}
}

func startPruneJob(s *gocron.Scheduler, jm *Manager, retention time.Duration) {
	if retention <= 0 {
		log.Info("Job retention is 0, finished jobs are kept forever.")
		return
	}

	_, err := s.Every(1).Hour().Do(func() {
		n, err := jm.Prune(retention)
		if err != nil {
			log.Errorf("Could not prune finished jobs: %v", err)
			return
		}
		if n > 0 {
			log.Infof("Pruned %d finished jobs older than %s", n, retention)
		}
	})
	if err != nil {
		log.Errorf("Error scheduling prune job: %v", err)
	}
}
