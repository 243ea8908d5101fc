package broadcast

import (
	"context"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/port"
)

// Fanout publishes every event to each sink in order.
type Fanout []port.ProgressBroadcaster

func (f Fanout) Publish(ctx context.Context, event entity.ProgressEvent) {
	for _, sink := range f {
		if sink != nil {
			sink.Publish(ctx, event)
		}
	}
}
