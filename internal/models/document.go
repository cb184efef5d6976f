package models

import "time"

// Document kinds recognised by the scanner.
const (
	KindPDF   = "pdf"
	KindImage = "image"
	KindText  = "text"
	KindVideo = "video"
	KindEmail = "email"
)

// Document is a file indexed by a scan job.
type Document struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Size      int64     `json:"size"`
	SHA1      string    `json:"sha1"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Job is the stored record of a background job.
type Job struct {
	ID        int64               `json:"id"`
	Kind      string              `json:"kind"`
	Snapshot  JobProgressSnapshot `json:"snapshot"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}
