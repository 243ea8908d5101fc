package policy

import (
	"testing"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		average    float64
		flagged    int
		wantFlag   entity.SensitivityFlag
		wantConfid float64
	}{
		{"low average and no flagged frames", 0.4, 0, entity.SensitivitySafe, 0.66},
		{"high average without flagged frames", 0.7, 0, entity.SensitivityFlagged, 0.77},
		{"flagged frame with low average", 0.1, 1, entity.SensitivityFlagged, 0.11},
		{"clean video caps confidence", 0.0, 0, entity.SensitivitySafe, 0.99},
		{"average exactly at threshold", 0.5, 0, entity.SensitivityFlagged, 0.55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag, confidence := Decide(tt.average, tt.flagged, DefaultThresholds)
			assert.Equal(t, tt.wantFlag, flag)
			assert.InDelta(t, tt.wantConfid, confidence, 1e-9)
		})
	}
}

func TestConfidenceStaysWithinBounds(t *testing.T) {
	for avg := 0.0; avg <= 1.0; avg += 0.05 {
		for _, flagged := range []int{0, 1, 3} {
			_, confidence := Decide(avg, flagged, DefaultThresholds)
			assert.GreaterOrEqual(t, confidence, 0.0)
			assert.LessOrEqual(t, confidence, 0.99)
		}
	}
}

func TestAccumulatorSingleSuccessfulFrame(t *testing.T) {
	acc := NewAccumulator(5, DefaultThresholds)
	assert.True(t, acc.Add(3, entity.ClassificationResult{NsfwScore: 0.8}))

	verdict, err := acc.Finalize("v1")
	require.NoError(t, err)

	assert.Equal(t, entity.SensitivityFlagged, verdict.SensitivityFlag)
	assert.InDelta(t, 0.8, verdict.Details.AverageNsfwScore, 1e-9)
	assert.InDelta(t, 0.88, verdict.Confidence, 1e-9)
	assert.Equal(t, 5, verdict.Details.TotalFrames)
	assert.Equal(t, 1, verdict.Details.AnalyzedFrames)
	require.Len(t, verdict.DetectedIssues, 1)
	assert.Contains(t, verdict.DetectedIssues[0], "Frame 3")
	assert.Contains(t, verdict.DetectedIssues[0], "80%")
}

func TestAccumulatorSafeVideoHasNoIssues(t *testing.T) {
	acc := NewAccumulator(3, DefaultThresholds)
	acc.Add(1, entity.ClassificationResult{NsfwScore: 0.1, NormalScore: 0.9})
	acc.Add(2, entity.ClassificationResult{NsfwScore: 0.2, NormalScore: 0.8})
	acc.Add(3, entity.ClassificationResult{NsfwScore: 0.0, NormalScore: 0.95})

	verdict, err := acc.Finalize("v1")
	require.NoError(t, err)
	assert.Equal(t, entity.SensitivitySafe, verdict.SensitivityFlag)
	assert.Empty(t, verdict.DetectedIssues)
	assert.NotNil(t, verdict.DetectedIssues)
	assert.InDelta(t, 0.99, verdict.Confidence, 1e-9)
}

func TestAccumulatorFrameAtThresholdIsNotFlagged(t *testing.T) {
	acc := NewAccumulator(1, DefaultThresholds)
	assert.False(t, acc.Add(1, entity.ClassificationResult{NsfwScore: 0.6}))
	assert.Equal(t, 0, acc.Flagged())
}

func TestAccumulatorWithoutResults(t *testing.T) {
	_, err := NewAccumulator(5, DefaultThresholds).Finalize("v1")
	assert.ErrorIs(t, err, entity.ErrAllClassificationsFailed)
}
