// Package broadcast fans job progress events out to observers.
package broadcast

import (
	"context"
	"sync"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 32

// Subscription is one observer listening on one job's channel.
type Subscription struct {
	id    uint64
	jobID uuid.UUID
	ch    chan entity.ProgressEvent
}

// Events is closed when the subscription is removed from the hub.
func (s *Subscription) Events() <-chan entity.ProgressEvent { return s.ch }

func (s *Subscription) JobID() uuid.UUID { return s.jobID }

// Hub is an in-process publish/subscribe channel keyed by job id. Events are
// not buffered for absent subscribers, and a subscriber whose buffer is full
// misses the event rather than stalling the publisher. Sends for a job happen
// under the hub lock, so every subscriber sees a job's events in publish order.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uuid.UUID]map[uint64]*Subscription
	buffer int
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe(jobID uuid.UUID) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{id: h.nextID, jobID: jobID, ch: make(chan entity.ProgressEvent, h.buffer)}
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[uint64]*Subscription)
	}
	h.subs[jobID][sub.id] = sub
	metrics.ProgressSubscribers.Inc()
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[sub.jobID]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.subs, sub.jobID)
	}
	close(sub.ch)
	metrics.ProgressSubscribers.Dec()
}

func (h *Hub) Publish(_ context.Context, event entity.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs[event.JobID] {
		select {
		case sub.ch <- event:
		default:
			metrics.ProgressEventsDropped.Inc()
			h.logger.Debug("subscriber buffer full, dropping event",
				zap.String("job_id", event.JobID.String()),
				zap.String("kind", string(event.Kind)),
				zap.Int("progress", event.Progress),
			)
		}
	}
}

// Subscribers reports how many observers are listening on jobID.
func (h *Hub) Subscribers(jobID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}
