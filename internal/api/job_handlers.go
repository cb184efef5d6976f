package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/archon-dev/archon/internal/jobs"
	"github.com/archon-dev/archon/internal/library"
	"github.com/archon-dev/archon/internal/models"
	"github.com/archon-dev/archon/internal/store"
	"github.com/go-chi/chi/v5"
)

type startJobRequest struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.Kind == "" {
		req.Kind = jobs.KindScan
	}

	params := jobs.Params{}
	if req.Path != "" {
		if _, err := library.ResolvePath(s.app.Config().Library.Path, req.Path); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		params["path"] = req.Path
	}

	job, err := s.app.JobManager().Start(req.Kind, params)
	switch {
	case errors.Is(err, jobs.ErrUnknownKind):
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, jobs.ErrAlreadyRunning):
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Errorf("Could not start %s job: %v", req.Kind, err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to start job")
		return
	}
	RespondWithJSON(w, http.StatusCreated, job.Snapshot)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.Store().ListJobs()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	RespondWithJSON(w, http.StatusOK, list)
}

// jobIDParam parses the {jobID} route parameter. It writes a 400 response
// and returns false when the id is not numeric.
func jobIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := models.JobID(chi.URLParam(r, "jobID")).Int64()
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid job ID")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := s.app.Store().GetJob(id)
	if errors.Is(err, store.ErrNotFound) {
		RespondWithError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}
	RespondWithJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	if err := s.app.JobManager().Cancel(id); err != nil {
		if errors.Is(err, jobs.ErrNotRunning) {
			RespondWithError(w, http.StatusConflict, "Job is not running")
			return
		}
		RespondWithError(w, http.StatusInternalServerError, "Failed to cancel job")
		return
	}
	RespondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Cancellation requested"})
}

func (s *Server) handleListJobDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	docs, err := s.app.Store().ListDocuments(id)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	RespondWithJSON(w, http.StatusOK, docs)
}
