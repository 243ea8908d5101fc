package usecase

import (
	"context"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// progressReporter emits progress events for one job and records the value in
// the store. Progress never goes backwards; a lower value is raised to the last
// one reported. Store failures here are logged only, status transitions are
// what make a job's outcome durable.
type progressReporter struct {
	jobID       uuid.UUID
	broadcaster port.ProgressBroadcaster
	repo        port.JobRepository
	logger      *zap.Logger
	last        int
}

func newProgressReporter(jobID uuid.UUID, broadcaster port.ProgressBroadcaster, repo port.JobRepository, logger *zap.Logger) *progressReporter {
	return &progressReporter{jobID: jobID, broadcaster: broadcaster, repo: repo, logger: logger}
}

func (r *progressReporter) report(ctx context.Context, progress int, stage string) {
	progress = max(min(progress, 100), r.last)
	r.last = progress

	r.broadcaster.Publish(ctx, entity.NewProgressEvent(r.jobID, progress, stage))

	if err := r.repo.UpdateProgress(ctx, r.jobID, progress); err != nil {
		r.logger.Warn("failed to persist progress",
			zap.Int("progress", progress),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}
}

func (r *progressReporter) current() int { return r.last }
