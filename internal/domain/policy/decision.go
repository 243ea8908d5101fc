// Package policy turns per-frame classifier scores into a single verdict for a video.
package policy

import (
	"fmt"
	"math"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
)

var DefaultThresholds = entity.PolicyThresholds{
	FrameFlag:       0.6,
	AverageSafe:     0.5,
	ConfidenceScale: 1.1,
	ConfidenceCap:   0.99,
}

// Decide picks the label and confidence from the aggregate numbers.
// The video is safe only when no frame was flagged and the average stays below AverageSafe.
func Decide(averageNsfw float64, flaggedFrames int, th entity.PolicyThresholds) (entity.SensitivityFlag, float64) {
	if flaggedFrames == 0 && averageNsfw < th.AverageSafe {
		return entity.SensitivitySafe, capConfidence((1-averageNsfw)*th.ConfidenceScale, th.ConfidenceCap)
	}
	return entity.SensitivityFlagged, capConfidence(averageNsfw*th.ConfidenceScale, th.ConfidenceCap)
}

func capConfidence(v, limit float64) float64 {
	return math.Max(0, math.Min(v, limit))
}

// Accumulator collects frame results as they arrive. It is not safe for concurrent use;
// the classification loop is sequential.
type Accumulator struct {
	thresholds  entity.PolicyThresholds
	totalFrames int
	analyzed    int
	flagged     int
	sumNsfw     float64
	issues      []string
}

func NewAccumulator(totalFrames int, th entity.PolicyThresholds) *Accumulator {
	return &Accumulator{thresholds: th, totalFrames: totalFrames}
}

// Add records a successful classification and reports whether the frame itself is flagged.
func (a *Accumulator) Add(frameIndex int, r entity.ClassificationResult) bool {
	a.analyzed++
	a.sumNsfw += r.NsfwScore
	if r.NsfwScore <= a.thresholds.FrameFlag {
		return false
	}
	a.flagged++
	a.issues = append(a.issues, fmt.Sprintf(
		"Frame %d: potentially sensitive content detected (%.0f%% confidence)",
		frameIndex, r.NsfwScore*100,
	))
	return true
}

func (a *Accumulator) Analyzed() int { return a.analyzed }

func (a *Accumulator) Flagged() int { return a.flagged }

// Finalize returns entity.ErrAllClassificationsFailed when nothing was added.
func (a *Accumulator) Finalize(vocabularyVersion string) (entity.Verdict, error) {
	if a.analyzed == 0 {
		return entity.Verdict{}, entity.ErrAllClassificationsFailed
	}

	avg := a.sumNsfw / float64(a.analyzed)
	flag, confidence := Decide(avg, a.flagged, a.thresholds)

	issues := []string{}
	if flag == entity.SensitivityFlagged {
		issues = append(issues, a.issues...)
	}

	return entity.Verdict{
		SensitivityFlag: flag,
		Confidence:      confidence,
		DetectedIssues:  issues,
		Details: entity.VerdictDetails{
			TotalFrames:       a.totalFrames,
			AnalyzedFrames:    a.analyzed,
			FlaggedFrames:     a.flagged,
			AverageNsfwScore:  avg,
			Thresholds:        a.thresholds,
			VocabularyVersion: vocabularyVersion,
		},
	}, nil
}
