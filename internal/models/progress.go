package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further progress will be made on the job.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// JobID identifies a job. The server may send it as a JSON number or string.
type JobID string

// UnmarshalJSON accepts both 123 and "123".
func (id *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = JobID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("job_id must be a number or string: %w", err)
	}
	*id = JobID(n.String())
	return nil
}

// MarshalJSON writes canonical integer ids as numbers so the wire format
// round-trips. Anything else, "007" included, stays a string.
func (id JobID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// ItemError records one item that failed during a job.
type ItemError struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// JobProgressSnapshot is the state of a job at one point in time, as sent
// in the data payload of progress and complete frames.
type JobProgressSnapshot struct {
	JobID           JobID       `json:"job_id"`
	Status          JobStatus   `json:"status"`
	TotalUnits      int         `json:"total_units"`
	CompletedUnits  int         `json:"completed_units"`
	FailedUnits     int         `json:"failed_units"`
	ProgressPercent float64     `json:"progress_percent"`
	Phase           string      `json:"phase,omitempty"`
	CurrentItem     string      `json:"current_item,omitempty"`
	RecentItems     []string    `json:"recent_items,omitempty"`
	RecentErrors    []ItemError `json:"recent_errors,omitempty"`
	SkippedItems    []string    `json:"skipped_items,omitempty"`
	ETASeconds      *float64    `json:"eta_seconds"`
	ElapsedSeconds  *float64    `json:"elapsed_seconds"`
	Throughput      *float64    `json:"throughput"`
}

// StreamError is the payload of an error frame.
type StreamError struct {
	Message string `json:"message"`
}

// NewJobID formats a numeric database id.
func NewJobID(id int64) JobID {
	return JobID(strconv.FormatInt(id, 10))
}

// Int64 parses the id as a database key.
func (id JobID) Int64() (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q", string(id))
	}
	return n, nil
}
