package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/port"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/metrics"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/worker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type TaskSubmitter interface {
	Submit(name string, fn worker.Func) (*worker.Task, error)
}

type VideoRunner interface {
	Run(ctx context.Context, videoPath string, jobID uuid.UUID) (*entity.VideoJob, error)
}

// DispatchVideoUseCase turns a trigger message into a background pipeline run.
// It returns as soon as the run is queued; the outcome of the run is only
// visible through the job record and its events. At most one task per job is
// queued or running in this process at any time.
type DispatchVideoUseCase struct {
	repo        port.JobRepository
	storage     port.VideoStorage
	pool        TaskSubmitter
	runner      VideoRunner
	broadcaster port.ProgressBroadcaster
	dlq         port.DLQPublisher
	notifier    port.FailureNotifier
	logger      *zap.Logger
	tempDir     string

	dispatched sync.Map
}

type DispatchVideoConfig struct {
	TempDir string
}

func NewDispatchVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	pool TaskSubmitter,
	runner VideoRunner,
	broadcaster port.ProgressBroadcaster,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg DispatchVideoConfig,
) *DispatchVideoUseCase {
	return &DispatchVideoUseCase{
		repo:        repo,
		storage:     storage,
		pool:        pool,
		runner:      runner,
		broadcaster: broadcaster,
		dlq:         dlq,
		notifier:    notifier,
		logger:      logger,
		tempDir:     cfg.TempDir,
	}
}

// Execute returns an error only when the message should be redelivered.
// Malformed messages go to the DLQ and are acknowledged.
func (uc *DispatchVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "DispatchVideoUseCase.Execute")
	defer span.End()

	var msg entity.VideoProcessingMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		uc.toDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if err := validateMessage(msg); err != nil {
		uc.logger.Error("invalid processing message", zap.Error(err), zap.ByteString("body", rawMsg))
		uc.toDLQ(ctx, rawMsg, "invalid_message: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)
	log := uc.logger.With(zap.String("job_id", msg.JobID.String()))

	job, err := uc.ensureJob(ctx, msg)
	if err != nil {
		log.Error("failed to load job record", zap.Error(err))
		return err
	}
	if job.Status != entity.JobStatusPending {
		log.Warn("job is not pending, ignoring message", zap.String("status", string(job.Status)))
		return nil
	}

	if _, busy := uc.dispatched.LoadOrStore(msg.JobID, struct{}{}); busy {
		log.Warn("job already dispatched, ignoring duplicate message")
		return nil
	}

	raw := append([]byte(nil), rawMsg...)
	_, err = uc.pool.Submit("process-video:"+msg.JobID.String(), func(taskCtx context.Context) error {
		defer uc.dispatched.Delete(msg.JobID)
		return uc.process(taskCtx, msg, raw)
	})
	if err != nil {
		uc.dispatched.Delete(msg.JobID)
		return fmt.Errorf("submit job %s: %w", msg.JobID, err)
	}

	log.Info("job dispatched", zap.String("video_path", msg.VideoPath), zap.String("video_key", msg.VideoKey))
	return nil
}

func validateMessage(msg entity.VideoProcessingMessage) error {
	if msg.JobID == uuid.Nil {
		return errors.New("missing job_id")
	}
	if msg.VideoPath == "" && msg.VideoKey == "" {
		return errors.New("one of video_path or video_key is required")
	}
	return nil
}

// ensureJob returns the stored job, creating a pending one when the upload
// handler's record has not been written.
func (uc *DispatchVideoUseCase) ensureJob(ctx context.Context, msg entity.VideoProcessingMessage) (*entity.VideoJob, error) {
	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, entity.ErrJobNotFound) {
		return nil, err
	}

	job = entity.NewVideoJob(msg.UserID, msg.VideoPath, msg.VideoKey)
	job.ID = msg.JobID
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (uc *DispatchVideoUseCase) process(ctx context.Context, msg entity.VideoProcessingMessage, rawMsg []byte) error {
	log := uc.logger.With(zap.String("job_id", msg.JobID.String()))

	videoPath := msg.VideoPath
	if videoPath == "" {
		path, cleanup, err := uc.download(ctx, msg)
		if err != nil {
			if uc.failPending(ctx, msg.JobID, err, log) {
				uc.handleFailure(ctx, msg, rawMsg, err)
			}
			return err
		}
		defer cleanup()
		videoPath = path
	}

	if _, err := uc.runner.Run(ctx, videoPath, msg.JobID); err != nil {
		var transitionErr *entity.TransitionError
		if errors.Is(err, entity.ErrJobInFlight) || errors.As(err, &transitionErr) {
			log.Warn("duplicate run rejected", zap.Error(err))
			return nil
		}
		uc.handleFailure(ctx, msg, rawMsg, err)
		return err
	}
	return nil
}

// download fetches the object into a scratch directory owned by this task
// alone. The returned cleanup removes it.
func (uc *DispatchVideoUseCase) download(ctx context.Context, msg entity.VideoProcessingMessage) (string, func(), error) {
	if uc.storage == nil {
		return "", nil, errors.New("download video: object storage not configured")
	}
	uploads := filepath.Join(uc.tempDir, "uploads")
	if err := os.MkdirAll(uploads, 0o755); err != nil {
		return "", nil, fmt.Errorf("create upload dir: %w", err)
	}
	workDir, err := os.MkdirTemp(uploads, msg.JobID.String()+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("create workdir: %w", err)
	}
	cleanup := func() { os.RemoveAll(workDir) }

	ctx, span := otel.Tracer("usecase").Start(ctx, "download_video")
	defer span.End()

	start := time.Now()
	path := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	if err := uc.storage.DownloadVideo(ctx, msg.VideoKey, path); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("download video: %w", err)
	}
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(start).Seconds())
	return path, cleanup, nil
}

// failPending moves a job that never reached the pipeline straight to failed.
// It reports false when the job has already left pending; the run that moved
// it owns the outcome.
func (uc *DispatchVideoUseCase) failPending(ctx context.Context, jobID uuid.UUID, cause error, log *zap.Logger) bool {
	ctx = context.WithoutCancel(ctx)
	if err := uc.repo.MarkProcessing(ctx, jobID); err != nil {
		if errors.Is(err, entity.ErrInvalidTransition) {
			log.Warn("download failed for a job claimed by another run", zap.NamedError("cause", cause), zap.Error(err))
			return false
		}
		log.Error("failed to claim job for failure", zap.Error(err))
		return true
	}
	if err := uc.repo.MarkFailed(ctx, jobID, cause.Error(), time.Now().UTC()); err != nil {
		log.Error("failed to persist job failure", zap.Error(err))
		return true
	}
	uc.broadcaster.Publish(ctx, entity.NewFailedEvent(jobID, 0, cause.Error()))
	metrics.JobsProcessedTotal.WithLabelValues(string(entity.JobStatusFailed)).Inc()
	return true
}

func (uc *DispatchVideoUseCase) handleFailure(ctx context.Context, msg entity.VideoProcessingMessage, rawMsg []byte, cause error) {
	ctx = context.WithoutCancel(ctx)
	uc.toDLQ(ctx, rawMsg, cause.Error())

	if msg.UserEmail == "" || uc.notifier == nil {
		return
	}
	video := msg.VideoKey
	if video == "" {
		video = filepath.Base(msg.VideoPath)
	}
	if err := uc.notifier.NotifyFailure(ctx, msg.UserEmail, msg.JobID.String(), video, cause.Error()); err != nil {
		uc.logger.Warn("failed to send failure notification",
			zap.String("job_id", msg.JobID.String()),
			zap.Error(err),
		)
	}
}

func (uc *DispatchVideoUseCase) toDLQ(ctx context.Context, rawMsg []byte, reason string) {
	if uc.dlq == nil {
		return
	}
	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, reason); err != nil {
		uc.logger.Error("failed to publish to DLQ", zap.Error(err))
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
}
