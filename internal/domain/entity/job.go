package entity

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo enforces pending -> processing -> {completed, failed}.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

type SensitivityFlag string

const (
	SensitivityPending SensitivityFlag = "pending"
	SensitivitySafe    SensitivityFlag = "safe"
	SensitivityFlagged SensitivityFlag = "flagged"
)

// VideoMetadata holds the technical attributes reported by the media probe.
// Zero Width, Height or Codec means the probe did not report them.
type VideoMetadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	FPS      float64 `json:"fps"`
	Bitrate  int64   `json:"bitrate"`
	Codec    string  `json:"codec,omitempty"`
}

// Resolution renders "{width}x{height}", or "" when either side is unknown.
func (m VideoMetadata) Resolution() string {
	if m.Width <= 0 || m.Height <= 0 {
		return ""
	}
	return strconv.Itoa(m.Width) + "x" + strconv.Itoa(m.Height)
}

type VideoJob struct {
	ID              uuid.UUID
	UserID          string
	VideoPath       string
	VideoKey        string
	Status          JobStatus
	ProcessProgress int
	SensitivityFlag SensitivityFlag
	Metadata        *VideoMetadata
	Analysis        *Verdict
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessedAt     *time.Time
}

func NewVideoJob(userID, videoPath, videoKey string) *VideoJob {
	now := time.Now().UTC()
	return &VideoJob{
		ID:              uuid.New(),
		UserID:          userID,
		VideoPath:       videoPath,
		VideoKey:        videoKey,
		Status:          JobStatusPending,
		SensitivityFlag: SensitivityPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (j *VideoJob) MarkProcessing() error {
	if !j.Status.CanTransitionTo(JobStatusProcessing) {
		return &TransitionError{JobID: j.ID, From: j.Status, To: JobStatusProcessing}
	}
	j.Status = JobStatusProcessing
	j.ProcessProgress = 0
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// AdvanceProgress raises the progress; lower values are ignored so progress never goes backwards.
func (j *VideoJob) AdvanceProgress(progress int) {
	if j.Status != JobStatusProcessing {
		return
	}
	progress = clampProgress(progress)
	if progress > j.ProcessProgress {
		j.ProcessProgress = progress
		j.UpdatedAt = time.Now().UTC()
	}
}

func (j *VideoJob) MarkCompleted(metadata VideoMetadata, verdict Verdict, at time.Time) error {
	if !j.Status.CanTransitionTo(JobStatusCompleted) {
		return &TransitionError{JobID: j.ID, From: j.Status, To: JobStatusCompleted}
	}
	at = at.UTC()
	j.Status = JobStatusCompleted
	j.ProcessProgress = 100
	j.SensitivityFlag = verdict.SensitivityFlag
	j.Metadata = &metadata
	j.Analysis = &verdict
	j.ErrorMessage = ""
	j.UpdatedAt = at
	j.ProcessedAt = &at
	return nil
}

func (j *VideoJob) MarkFailed(errMsg string, at time.Time) error {
	if !j.Status.CanTransitionTo(JobStatusFailed) {
		return &TransitionError{JobID: j.ID, From: j.Status, To: JobStatusFailed}
	}
	at = at.UTC()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = at
	j.ProcessedAt = &at
	return nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
