package entity

import (
	"time"

	"github.com/google/uuid"
)

// VideoProcessingMessage is the inbound message from the video.processing queue,
// published by the upload handler once per stored file. Either VideoPath (a file
// the worker can read) or VideoKey (an object in the upload bucket) is set.
type VideoProcessingMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	VideoPath string    `json:"video_path,omitempty"`
	VideoKey  string    `json:"video_key,omitempty"`
	UserEmail string    `json:"user_email,omitempty"`
}

type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// ProgressEvent is what observers receive. Fields are populated per Kind:
// progress carries Progress/Stage, completed carries the verdict and resolved
// metadata, failed carries Error.
type ProgressEvent struct {
	Kind      EventKind `json:"kind"`
	JobID     uuid.UUID `json:"job_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	SensitivityFlag SensitivityFlag `json:"sensitivity_flag,omitempty"`
	Confidence      float64         `json:"confidence"`
	DetectedIssues  []string        `json:"detected_issues"`
	Details         *VerdictDetails `json:"details,omitempty"`
	Resolution      string          `json:"resolution,omitempty"`
	Codec           string          `json:"codec,omitempty"`
	Duration        float64         `json:"duration,omitempty"`
	Message         string          `json:"message,omitempty"`

	Error string `json:"error,omitempty"`
}

// IsTerminal reports whether the event closes the job's event stream.
func (e ProgressEvent) IsTerminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}

func NewProgressEvent(jobID uuid.UUID, progress int, stage string) ProgressEvent {
	return ProgressEvent{
		Kind:      EventProgress,
		JobID:     jobID,
		Status:    JobStatusProcessing,
		Progress:  clampProgress(progress),
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	}
}

func NewCompletedEvent(jobID uuid.UUID, metadata VideoMetadata, verdict Verdict, message string) ProgressEvent {
	details := verdict.Details
	issues := verdict.DetectedIssues
	if issues == nil {
		issues = []string{}
	}
	return ProgressEvent{
		Kind:            EventCompleted,
		JobID:           jobID,
		Status:          JobStatusCompleted,
		Progress:        100,
		Timestamp:       time.Now().UTC(),
		SensitivityFlag: verdict.SensitivityFlag,
		Confidence:      verdict.Confidence,
		DetectedIssues:  issues,
		Details:         &details,
		Resolution:      metadata.Resolution(),
		Codec:           metadata.Codec,
		Duration:        metadata.Duration,
		Message:         message,
	}
}

func NewFailedEvent(jobID uuid.UUID, progress int, errMsg string) ProgressEvent {
	return ProgressEvent{
		Kind:      EventFailed,
		JobID:     jobID,
		Status:    JobStatusFailed,
		Progress:  clampProgress(progress),
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}
