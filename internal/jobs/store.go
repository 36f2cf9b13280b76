// Package jobs tracks extraction jobs and runs them in the background.
//
// Job status lives in a Store keyed by song code. Two implementations are
// provided: an in-memory map for single-process use and a SQLite database
// that survives restarts.
package jobs

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions will happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

var (
	// ErrNotFound is returned when no job exists for a song code.
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyProcessing is returned when a song already has a job in flight.
	ErrAlreadyProcessing = errors.New("already processing")
)

// Job is the status record of one extraction.
type Job struct {
	ID        string    `json:"id"`
	SongCode  string    `json:"song_code"`
	SongTitle string    `json:"song_title,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand to other goroutines.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// Store persists job status. Create replaces any earlier job for the same
// song code.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, songCode string) (*Job, error)
	Update(ctx context.Context, job *Job) error
	Delete(ctx context.Context, songCode string) error
	List(ctx context.Context) ([]*Job, error)
	Close() error
}
