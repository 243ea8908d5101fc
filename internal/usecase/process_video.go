package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/policy"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/port"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/classifier"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ProcessVideoUseCase struct {
	repo        port.JobRepository
	prober      port.MetadataProber
	sampler     port.FrameSampler
	classifier  port.FrameClassifier
	fallback    port.FallbackClassifier
	broadcaster port.ProgressBroadcaster
	review      port.ReviewPublisher
	logger      *zap.Logger

	availability      classifier.Availability
	frameCount        int
	thresholds        entity.PolicyThresholds
	vocabularyVersion string
	limiter           *rate.Limiter

	inFlight sync.Map
}

type ProcessVideoConfig struct {
	FrameCount        int
	// ClassifierDelay is the minimum spacing between two classifier calls,
	// shared by every job running in this process. Zero disables pacing.
	ClassifierDelay   time.Duration
	Availability      classifier.Availability
	Thresholds        entity.PolicyThresholds
	VocabularyVersion string
}

// NewProcessVideoUseCase wires the pipeline. review may be nil, in which case
// flagged jobs are not bundled for manual moderation.
func NewProcessVideoUseCase(
	repo port.JobRepository,
	prober port.MetadataProber,
	sampler port.FrameSampler,
	frameClassifier port.FrameClassifier,
	fallback port.FallbackClassifier,
	broadcaster port.ProgressBroadcaster,
	review port.ReviewPublisher,
	logger *zap.Logger,
	cfg ProcessVideoConfig,
) *ProcessVideoUseCase {
	if cfg.FrameCount <= 0 {
		cfg.FrameCount = entity.DefaultFrameCount
	}
	if cfg.Thresholds == (entity.PolicyThresholds{}) {
		cfg.Thresholds = policy.DefaultThresholds
	}
	limit := rate.Inf
	if cfg.ClassifierDelay > 0 {
		limit = rate.Every(cfg.ClassifierDelay)
	}

	return &ProcessVideoUseCase{
		repo:              repo,
		prober:            prober,
		sampler:           sampler,
		classifier:        frameClassifier,
		fallback:          fallback,
		broadcaster:       broadcaster,
		review:            review,
		logger:            logger,
		availability:      cfg.Availability,
		frameCount:        cfg.FrameCount,
		thresholds:        cfg.Thresholds,
		vocabularyVersion: cfg.VocabularyVersion,
		limiter:           rate.NewLimiter(limit, 1),
	}
}

// Run drives one pending job through probing, frame sampling, classification
// and persistence. On success the completed job is returned. Any stage failure
// marks the job failed, emits a failure event and is returned to the caller.
func (uc *ProcessVideoUseCase) Run(ctx context.Context, videoPath string, jobID uuid.UUID) (*entity.VideoJob, error) {
	if _, busy := uc.inFlight.LoadOrStore(jobID, struct{}{}); busy {
		return nil, fmt.Errorf("run job %s: %w", jobID, entity.ErrJobInFlight)
	}
	defer uc.inFlight.Delete(jobID)

	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessVideoUseCase.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", jobID.String()),
		attribute.String("job.video_path", videoPath),
	)

	totalTimer := time.Now()
	log := uc.logger.With(zap.String("job_id", jobID.String()))

	job, err := uc.repo.FindByID(ctx, jobID)
	if err != nil {
		span.SetStatus(codes.Error, "job lookup failed")
		return nil, &entity.PersistenceError{JobID: jobID, Op: "find", Err: err}
	}
	if err := job.MarkProcessing(); err != nil {
		span.SetStatus(codes.Error, "job not pending")
		return nil, err
	}
	if err := uc.repo.MarkProcessing(ctx, jobID); err != nil {
		span.SetStatus(codes.Error, "mark processing failed")
		return nil, &entity.PersistenceError{JobID: jobID, Op: "mark_processing", Err: err}
	}

	log.Info("processing video", zap.String("video_path", videoPath))

	rep := newProgressReporter(jobID, uc.broadcaster, uc.repo, log)
	rep.report(ctx, 0, "starting")

	metadata, frames, verdict, err := uc.analyze(ctx, job, rep, videoPath, log)
	if err != nil {
		return nil, uc.fail(ctx, job, rep, err, log)
	}

	rep.report(ctx, 100, "finalizing")

	now := time.Now().UTC()
	if err := uc.repo.MarkCompleted(ctx, jobID, metadata, verdict, now); err != nil {
		return nil, uc.fail(ctx, job, rep, &entity.PersistenceError{JobID: jobID, Op: "mark_completed", Err: err}, log)
	}
	if err := job.MarkCompleted(metadata, verdict, now); err != nil {
		log.Error("job record diverged from store", zap.Error(err))
	}

	uc.broadcaster.Publish(ctx, entity.NewCompletedEvent(jobID, metadata, verdict, summarize(verdict)))

	if verdict.SensitivityFlag == entity.SensitivityFlagged {
		uc.publishReview(ctx, jobID, frames, log)
	}

	metrics.JobsProcessedTotal.WithLabelValues(string(entity.JobStatusCompleted)).Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	log.Info("job completed",
		zap.String("sensitivity_flag", string(verdict.SensitivityFlag)),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("analyzed_frames", verdict.Details.AnalyzedFrames),
		zap.Bool("mock", verdict.Details.Mock),
		zap.String("resolution", metadata.Resolution()),
		zap.Float64("duration_secs", metadata.Duration),
	)
	return job, nil
}

func (uc *ProcessVideoUseCase) analyze(
	ctx context.Context,
	job *entity.VideoJob,
	rep *progressReporter,
	videoPath string,
	log *zap.Logger,
) (entity.VideoMetadata, []entity.Frame, entity.Verdict, error) {
	tracer := otel.Tracer("usecase")

	rep.report(ctx, 20, "extracting metadata")
	probeStart := time.Now()
	probeCtx, spanProbe := tracer.Start(ctx, "probe_metadata")
	metadata, err := uc.prober.Probe(probeCtx, videoPath)
	spanProbe.End()
	if err != nil {
		var probeErr *entity.ProbeError
		if !errors.As(err, &probeErr) {
			err = &entity.ProbeError{Path: videoPath, Err: err}
		}
		return entity.VideoMetadata{}, nil, entity.Verdict{}, err
	}
	metrics.JobProcessingDuration.WithLabelValues("probe").Observe(time.Since(probeStart).Seconds())
	log.Debug("metadata extracted",
		zap.Float64("duration", metadata.Duration),
		zap.String("resolution", metadata.Resolution()),
		zap.String("codec", metadata.Codec),
	)

	rep.report(ctx, 25, "extracting frames")
	frames, verdict, err := uc.assessSensitivity(ctx, job, rep, videoPath, metadata, log)
	if err != nil {
		return entity.VideoMetadata{}, nil, entity.Verdict{}, err
	}
	return metadata, frames, verdict, nil
}

// fail records the failure and returns cause unchanged.
func (uc *ProcessVideoUseCase) fail(ctx context.Context, job *entity.VideoJob, rep *progressReporter, cause error, log *zap.Logger) error {
	msg := cause.Error()
	now := time.Now().UTC()

	span := trace.SpanFromContext(ctx)
	span.RecordError(cause)
	span.SetStatus(codes.Error, "job failed")

	// The job context may be the reason for the failure; the failed status must still land.
	persistCtx := context.WithoutCancel(ctx)
	if err := uc.repo.MarkFailed(persistCtx, job.ID, msg, now); err != nil {
		log.Error("failed to persist job failure", zap.Error(err))
	}
	_ = job.MarkFailed(msg, now)

	uc.broadcaster.Publish(persistCtx, entity.NewFailedEvent(job.ID, rep.current(), msg))

	metrics.JobsProcessedTotal.WithLabelValues(string(entity.JobStatusFailed)).Inc()
	log.Error("job failed", zap.Error(cause))
	return cause
}

func (uc *ProcessVideoUseCase) publishReview(ctx context.Context, jobID uuid.UUID, frames []entity.Frame, log *zap.Logger) {
	if uc.review == nil || len(frames) == 0 {
		return
	}
	ctx, span := otel.Tracer("usecase").Start(ctx, "publish_review_bundle")
	defer span.End()

	key, err := uc.review.Publish(ctx, jobID, frames)
	if err != nil {
		log.Warn("failed to publish review bundle", zap.Error(err))
		return
	}
	log.Info("review bundle published", zap.String("object_key", key))
}

func summarize(v entity.Verdict) string {
	var msg string
	switch v.SensitivityFlag {
	case entity.SensitivityFlagged:
		msg = fmt.Sprintf("Video flagged for review: potentially sensitive content (%.0f%% confidence)", v.Confidence*100)
	default:
		msg = fmt.Sprintf("Video marked as safe (%.0f%% confidence)", v.Confidence*100)
	}
	if v.Details.Mock {
		msg += " [mock analysis]"
	}
	return msg
}
