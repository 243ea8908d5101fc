package port

import (
	"context"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/google/uuid"
)

// JobRepository is the document store for video jobs. Every mutation is an
// atomic conditional update on a single record: status changes only apply
// when the stored status allows the transition, and progress only increases.
type JobRepository interface {
	Create(ctx context.Context, job *entity.VideoJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.VideoJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	MarkCompleted(ctx context.Context, id uuid.UUID, metadata entity.VideoMetadata, verdict entity.Verdict, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error
}
