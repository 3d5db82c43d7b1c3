package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobDead      = "dead"
)

// Document statuses.
const (
	DocPending = "pending"
	DocIndexed = "indexed"
	DocFailed  = "failed"
)

// Job is a queued unit of work. The upload endpoint enqueues one per received
// file; ingest workers claim, process, and complete or fail them. A job that
// exhausts its attempts, or hits a terminal input error, ends up dead with
// LastError and Attempts preserved for inspection and manual replay.
type Job struct {
	ID           string
	Type         string
	PayloadJSON  string
	Status       string
	Attempts     int
	MaxAttempts  int
	RunAfter     time.Time
	LeaseExpires time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastError    string
}

// Document is an uploaded file tracked through the ingest pipeline.
type Document struct {
	ID          string
	FileName    string
	StoragePath string
	Status      string
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
