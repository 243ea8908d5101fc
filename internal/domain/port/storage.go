package port

import (
	"context"
	"io"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/google/uuid"
)

type VideoStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
}

// FrameArchive keeps a remote copy of archived frames and review bundles.
type FrameArchive interface {
	ArchiveFrame(ctx context.Context, objectKey string, data []byte) error
	UploadReviewBundle(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}

// ReviewPublisher packages the frames of a flagged job for manual moderation.
type ReviewPublisher interface {
	Publish(ctx context.Context, jobID uuid.UUID, frames []entity.Frame) (string, error)
}
