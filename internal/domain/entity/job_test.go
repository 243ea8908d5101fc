package entity

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycleCompleted(t *testing.T) {
	job := NewVideoJob("user-1", "/videos/a.mp4", "")
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, SensitivityPending, job.SensitivityFlag)

	require.NoError(t, job.MarkProcessing())
	job.AdvanceProgress(30)
	job.AdvanceProgress(20)
	assert.Equal(t, 30, job.ProcessProgress, "progress must not go backwards")

	verdict := Verdict{SensitivityFlag: SensitivitySafe, Confidence: 0.9}
	now := time.Now()
	require.NoError(t, job.MarkCompleted(VideoMetadata{Duration: 12, Width: 640, Height: 480}, verdict, now))

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.ProcessProgress)
	assert.Equal(t, SensitivitySafe, job.SensitivityFlag)
	require.NotNil(t, job.ProcessedAt)
	assert.Equal(t, "640x480", job.Metadata.Resolution())
}

func TestJobRejectsBackwardTransitions(t *testing.T) {
	job := NewVideoJob("user-1", "/videos/a.mp4", "")
	require.NoError(t, job.MarkProcessing())
	require.NoError(t, job.MarkFailed("boom", time.Now()))

	var terr *TransitionError
	assert.True(t, errors.As(job.MarkProcessing(), &terr))
	assert.ErrorIs(t, job.MarkProcessing(), ErrInvalidTransition)
	assert.True(t, errors.As(job.MarkCompleted(VideoMetadata{}, Verdict{}, time.Now()), &terr))
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMessage)
}

func TestPendingJobCannotComplete(t *testing.T) {
	job := NewVideoJob("user-1", "/videos/a.mp4", "")
	assert.Error(t, job.MarkCompleted(VideoMetadata{}, Verdict{}, time.Now()))
	assert.Error(t, job.MarkFailed("x", time.Now()))
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		ok       bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusProcessing, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestResolutionAbsentWhenUnknown(t *testing.T) {
	assert.Equal(t, "", VideoMetadata{Width: 1920}.Resolution())
	assert.Equal(t, "1920x1080", VideoMetadata{Width: 1920, Height: 1080}.Resolution())
}

func TestProgressEventClampsRange(t *testing.T) {
	ev := NewProgressEvent(NewVideoJob("", "", "").ID, 140, "finalizing")
	assert.Equal(t, 100, ev.Progress)
	assert.False(t, ev.IsTerminal())
	assert.True(t, NewFailedEvent(ev.JobID, 20, "x").IsTerminal())
}

func TestCompletedEventAlwaysCarriesVerdictFields(t *testing.T) {
	job := NewVideoJob("u", "/videos/a.mp4", "")
	verdict := Verdict{SensitivityFlag: SensitivitySafe, Confidence: 0}

	raw, err := json.Marshal(NewCompletedEvent(job.ID, VideoMetadata{}, verdict, "Video marked as safe"))
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.JSONEq(t, `[]`, string(fields["detected_issues"]))
	assert.JSONEq(t, `0`, string(fields["confidence"]))
}
