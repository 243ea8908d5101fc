package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/policy"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/port"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/classifier"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	verdictSourceClassifier = "classifier"
	verdictSourceMock       = "mock"
)

// assessSensitivity samples frames and turns them into a verdict. Extraction
// failure, an unconfigured classifier or a run where no frame could be scored
// all fall back to the mock verdict; only cancellation of ctx is returned.
func (uc *ProcessVideoUseCase) assessSensitivity(
	ctx context.Context,
	job *entity.VideoJob,
	rep *progressReporter,
	videoPath string,
	metadata entity.VideoMetadata,
	log *zap.Logger,
) ([]entity.Frame, entity.Verdict, error) {
	tracer := otel.Tracer("usecase")

	exStart := time.Now()
	exCtx, spanEx := tracer.Start(ctx, "extract_frames")
	frames, err := uc.sampler.Extract(exCtx, port.FrameRequest{
		VideoPath: videoPath,
		JobID:     job.ID,
		Duration:  metadata.Duration,
		Count:     uc.frameCount,
	})
	spanEx.End()
	if err != nil {
		if ctx.Err() != nil {
			return nil, entity.Verdict{}, ctx.Err()
		}
		log.Warn("frame extraction failed, using mock verdict", zap.Error(err))
		return nil, uc.mockVerdict(uc.frameCount, "frame extraction failed"), nil
	}
	metrics.JobProcessingDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())
	metrics.FramesExtractedTotal.Add(float64(len(frames)))

	if len(frames) == 0 {
		return nil, uc.mockVerdict(uc.frameCount, "no frames extracted"), nil
	}
	if uc.availability == classifier.Unavailable {
		log.Info("classifier not configured, using mock verdict")
		return frames, uc.mockVerdict(len(frames), "classifier unavailable"), nil
	}

	clsStart := time.Now()
	verdict, err := uc.classifyFrames(ctx, rep, frames, log)
	metrics.JobProcessingDuration.WithLabelValues("classify").Observe(time.Since(clsStart).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, entity.Verdict{}, ctx.Err()
		}
		log.Warn("no frame could be classified, using mock verdict", zap.Error(err))
		return frames, uc.mockVerdict(len(frames), err.Error()), nil
	}

	metrics.VerdictsTotal.WithLabelValues(string(verdict.SensitivityFlag), verdictSourceClassifier).Inc()
	return frames, verdict, nil
}

// classifyFrames scores frames one at a time, paced by the shared limiter.
// A frame whose call fails is skipped.
func (uc *ProcessVideoUseCase) classifyFrames(
	ctx context.Context,
	rep *progressReporter,
	frames []entity.Frame,
	log *zap.Logger,
) (entity.Verdict, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "classify_frames")
	defer span.End()

	n := len(frames)
	acc := policy.NewAccumulator(n, uc.thresholds)

	for i, frame := range frames {
		if err := uc.limiter.Wait(ctx); err != nil {
			return entity.Verdict{}, err
		}

		result, err := uc.classifier.Classify(ctx, frame.Data)
		if err != nil {
			metrics.FrameClassificationsTotal.WithLabelValues("error").Inc()
			log.Warn("frame classification failed, skipping",
				zap.Error(&entity.ClassificationError{FrameIndex: frame.Index, Err: err}),
			)
		} else if acc.Add(frame.Index, result) {
			metrics.FrameClassificationsTotal.WithLabelValues("flagged").Inc()
		} else {
			metrics.FrameClassificationsTotal.WithLabelValues("safe").Inc()
		}

		rep.report(ctx, 30+60*(i+1)/n, fmt.Sprintf("analyzing frame %d/%d", i+1, n))
	}

	span.SetAttributes(
		attribute.Int("frames.analyzed", acc.Analyzed()),
		attribute.Int("frames.flagged", acc.Flagged()),
	)
	return acc.Finalize(uc.vocabularyVersion)
}

func (uc *ProcessVideoUseCase) mockVerdict(totalFrames int, reason string) entity.Verdict {
	verdict := uc.fallback.Verdict(totalFrames, reason)
	verdict.Details.VocabularyVersion = uc.vocabularyVersion
	metrics.VerdictsTotal.WithLabelValues(string(verdict.SensitivityFlag), verdictSourceMock).Inc()
	return verdict
}
