package port

import (
	"context"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
)

// ProgressBroadcaster delivers job events to whoever is listening at the time.
// Publish must not block on slow or absent observers.
type ProgressBroadcaster interface {
	Publish(ctx context.Context, event entity.ProgressEvent)
}
