// Command archon-server is the development server for the archon job API.
// It runs library scans as background jobs and streams their progress.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archon-dev/archon/internal/api"
	"github.com/archon-dev/archon/internal/config"
	"github.com/archon-dev/archon/internal/core"
	"github.com/archon-dev/archon/internal/jobs"
	"github.com/archon-dev/archon/internal/library"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("server")

func main() {
	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()

	config.Watch(func(cfg *config.Config) {
		app.SetConfig(cfg)
		log.Infof("Configuration reloaded")
	}, func(err error) {
		log.Errorf("Could not reload configuration, keeping the previous one: %v", err)
	})

	scheduler := jobs.StartScheduler(app.JobManager(), app.Config())
	defer scheduler.Stop()

	libraryPath := app.Config().Library.Path
	if _, err := os.Stat(libraryPath); err == nil {
		watcher := library.NewWatcher(libraryPath, 0, func() {
			if _, err := app.JobManager().Start(jobs.KindScan, nil); err != nil {
				if errors.Is(err, jobs.ErrAlreadyRunning) {
					log.Debugf("Library changed while a scan is running")
					return
				}
				log.Warnf("Could not start library scan: %v", err)
			}
		})
		if err := watcher.Start(); err != nil {
			log.Warnf("Could not watch library %s: %v", libraryPath, err)
		} else {
			defer watcher.Stop()
		}
	} else {
		log.Warnf("Library path %s is not readable, file watching disabled: %v", libraryPath, err)
	}

	// Setup the API server
	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Config().Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Start the server in a goroutine so it doesn't block.
	go func() {
		log.Infof("Starting web server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infof("Shutting down server...")

	// Open progress streams are closed by Shutdown's context; running jobs
	// are cancelled by app.Close.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Infof("Server exiting.")
}
