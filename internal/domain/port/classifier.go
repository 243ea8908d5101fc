package port

import (
	"context"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
)

// FrameClassifier scores one image buffer. Implementations apply their own per-call timeout.
type FrameClassifier interface {
	Classify(ctx context.Context, image []byte) (entity.ClassificationResult, error)
}

// FallbackClassifier produces a non-authoritative verdict without looking at any frame.
type FallbackClassifier interface {
	Verdict(totalFrames int, reason string) entity.Verdict
}
