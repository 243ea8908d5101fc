package entity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrAllClassificationsFailed means not a single frame came back from the classifier.
	ErrAllClassificationsFailed = errors.New("all frame classifications failed")
	ErrJobNotFound              = errors.New("job not found")
	ErrJobInFlight              = errors.New("job is already being processed")
	ErrInvalidTransition        = errors.New("invalid job status transition")
)

// ProbeError is fatal to the job: metadata is required for the completion record.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ExtractionError aborts sensitivity analysis but not the job.
type ExtractionError struct {
	JobID uuid.UUID
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract frames for job %s: %v", e.JobID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ClassificationError covers a single failed classifier call; the frame is skipped.
type ClassificationError struct {
	FrameIndex int
	Err        error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify frame %d: %v", e.FrameIndex, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

type PersistenceError struct {
	JobID uuid.UUID
	Op    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist job %s (%s): %v", e.JobID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type TransitionError struct {
	JobID uuid.UUID
	From  JobStatus
	To    JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: invalid transition %s -> %s", e.JobID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
