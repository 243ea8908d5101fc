package port

import (
	"context"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/google/uuid"
)

type MetadataProber interface {
	Probe(ctx context.Context, videoPath string) (entity.VideoMetadata, error)
}

type FrameRequest struct {
	VideoPath string
	JobID     uuid.UUID
	Duration  float64
	Count     int
}

type FrameSampler interface {
	Extract(ctx context.Context, req FrameRequest) ([]entity.Frame, error)
}
