package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ProgressRoutingKey = "video.progress"
	StatusRoutingKey   = "video.status"

	relayPublishTimeout = 2 * time.Second
	relayBufferSize     = 256
)

type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table, persistent bool) error {
	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}
	return p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: mode,
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
		},
	)
}

// ProgressRelay mirrors job events onto the exchange for observers in other
// processes. Every event goes to video.progress; completion and failure events
// are also published, persistently, on video.status.
//
// Publish only enqueues. A single goroutine talks to the broker, so a stalled
// broker costs dropped events rather than a stalled pipeline.
type ProgressRelay struct {
	send   relaySender
	events chan entity.ProgressEvent
	done   chan struct{}
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

type relaySender func(ctx context.Context, routingKey string, body []byte, headers amqp.Table, persistent bool) error

func NewProgressRelay(pub *Publisher, logger *zap.Logger) *ProgressRelay {
	send := func(ctx context.Context, routingKey string, body []byte, headers amqp.Table, persistent bool) error {
		return pub.publish(ctx, pub.exchange, routingKey, body, headers, persistent)
	}
	return newProgressRelay(send, relayBufferSize, logger)
}

func newProgressRelay(send relaySender, buffer int, logger *zap.Logger) *ProgressRelay {
	r := &ProgressRelay{
		send:   send,
		events: make(chan entity.ProgressEvent, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.run()
	return r
}

func (r *ProgressRelay) Publish(_ context.Context, event entity.ProgressEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.events <- event:
	default:
		metrics.ProgressEventsDropped.Inc()
		r.logger.Warn("progress relay backlog full, dropping event",
			zap.String("job_id", event.JobID.String()),
			zap.String("kind", string(event.Kind)),
			zap.Int("progress", event.Progress),
		)
	}
}

// Close stops accepting events and waits until the backlog has been sent.
func (r *ProgressRelay) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *ProgressRelay) run() {
	defer close(r.done)
	for event := range r.events {
		r.relay(event)
	}
}

func (r *ProgressRelay) relay(event entity.ProgressEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to encode progress event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()

	headers := amqp.Table{"x-job-id": event.JobID.String(), "x-event-kind": string(event.Kind)}
	if err := r.send(ctx, ProgressRoutingKey, body, headers, false); err != nil {
		r.logger.Warn("failed to relay progress event",
			zap.String("job_id", event.JobID.String()),
			zap.Int("progress", event.Progress),
			zap.Error(err),
		)
	}
	if !event.IsTerminal() {
		return
	}
	if err := r.send(ctx, StatusRoutingKey, body, headers, true); err != nil {
		r.logger.Error("failed to publish job status",
			zap.String("job_id", event.JobID.String()),
			zap.String("status", string(event.Status)),
			zap.Error(err),
		)
	}
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.publish(ctx, "", dp.queue, msg, amqp.Table{"x-dlq-reason": reason}, true)
}
