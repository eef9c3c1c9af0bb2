package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pagemend/pagemend/internal/pipeline"
)

// ErrNotFound is returned when no job exists for the given ID
var ErrNotFound = errors.New("job not found")

// ErrNotFinished is returned when a result is requested before the job
// reaches a terminal status
var ErrNotFinished = errors.New("job not finished")

// ErrAlreadyFinished is returned when cancelling a job that already
// reached a terminal status
var ErrAlreadyFinished = errors.New("job already finished")

// Status represents the lifecycle state of a repair job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// terminal reports whether the status is final.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is the internal record for one repair run. All fields are guarded
// by the manager's mutex.
type Job struct {
	ID             uuid.UUID
	Filename       string
	Status         Status
	Stage          pipeline.Stage
	TotalPages     int
	ProcessedPages int
	Degraded       bool
	Error          string
	CreatedAt      time.Time
	StartedAt      time.Time
	FinishedAt     time.Time

	result *pipeline.Result
	cancel func()
}

// Snapshot is the externally visible view of a job.
type Snapshot struct {
	ID             uuid.UUID      `json:"id"`
	Filename       string         `json:"filename"`
	Status         Status         `json:"status"`
	Stage          pipeline.Stage `json:"stage,omitempty"`
	TotalPages     int            `json:"total_pages"`
	ProcessedPages int            `json:"processed_pages"`
	Degraded       bool           `json:"degraded"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// Event is published on the job's pub/sub channel for every progress
// update and status transition.
type Event struct {
	Type           string         `json:"type"` // "progress" or "status"
	JobID          uuid.UUID      `json:"job_id"`
	Status         Status         `json:"status,omitempty"`
	Stage          pipeline.Stage `json:"stage,omitempty"`
	PageIndex      int            `json:"page_index,omitempty"`
	TotalPages     int            `json:"total_pages,omitempty"`
	ProcessedPages int            `json:"processed_pages,omitempty"`
}

func (j *Job) snapshot() Snapshot {
	s := Snapshot{
		ID:             j.ID,
		Filename:       j.Filename,
		Status:         j.Status,
		Stage:          j.Stage,
		TotalPages:     j.TotalPages,
		ProcessedPages: j.ProcessedPages,
		Degraded:       j.Degraded,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
	}
	if !j.StartedAt.IsZero() {
		t := j.StartedAt
		s.StartedAt = &t
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		s.FinishedAt = &t
	}
	return s
}
