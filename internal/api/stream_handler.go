package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/archon-dev/archon/internal/models"
	"github.com/archon-dev/archon/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultHeartbeat = 15 * time.Second

// eventWriter writes text/event-stream frames and flushes each one.
type eventWriter struct {
	w       io.Writer
	flusher http.Flusher
	metrics *Metrics
	frames  int
}

func (e *eventWriter) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	e.flusher.Flush()
	e.frames++
	e.metrics.frames.WithLabelValues(event).Inc()
	return nil
}

func (e *eventWriter) comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// sendSnapshot writes snap as progress, or as complete once the job has
// ended. It reports whether the stream is finished.
func (e *eventWriter) sendSnapshot(snap models.JobProgressSnapshot) (bool, error) {
	if snap.Status.IsTerminal() {
		return true, e.send("complete", snap)
	}
	return false, e.send("progress", snap)
}

// handleJobStream streams progress for one job until it reaches a terminal
// status. The optional drop_after query parameter ends the response after
// that many frames, which lets clients exercise their reconnect path.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondWithError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	dropAfter := 0
	if v := r.URL.Query().Get("drop_after"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RespondWithError(w, http.StatusBadRequest, "Invalid drop_after")
			return
		}
		dropAfter = n
	}

	id, err := models.JobID(chi.URLParam(r, "jobID")).Int64()
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	// Subscribe before reading the stored snapshot so no update falls
	// between the two.
	h := s.app.Hub()
	sub := h.Subscribe(models.NewJobID(id))
	defer h.Unsubscribe(sub)

	job, err := s.app.Store().GetJob(id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Errorf("job %d: could not load snapshot: %v", id, err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	out := &eventWriter{w: w, flusher: flusher, metrics: s.metrics}
	if job == nil {
		out.send("error", models.StreamError{Message: fmt.Sprintf("job %d not found", id)})
		return
	}

	s.metrics.connections.Inc()
	defer s.metrics.connections.Dec()

	dropped := func() bool {
		if dropAfter > 0 && out.frames >= dropAfter {
			log.Debugf("job %d: dropping stream after %d frames", id, out.frames)
			return true
		}
		return false
	}

	done, err := out.sendSnapshot(job.Snapshot)
	if done || err != nil || dropped() {
		return
	}

	heartbeat := s.app.Config().Stream.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				// Dropped by the hub; the client reconnects and catches up.
				return
			}
			done, err := out.sendSnapshot(snap)
			if done || err != nil || dropped() {
				return
			}
		case <-ticker.C:
			if err := out.comment("keepalive"); err != nil {
				return
			}
		}
	}
}
