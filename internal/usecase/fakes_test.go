package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/port"
	"github.com/google/uuid"
)

type fakeProber struct {
	metadata entity.VideoMetadata
	err      error
	entered  chan struct{}
	release  chan struct{}
}

func (p *fakeProber) Probe(ctx context.Context, videoPath string) (entity.VideoMetadata, error) {
	if p.entered != nil {
		close(p.entered)
		<-p.release
	}
	if p.err != nil {
		return entity.VideoMetadata{}, &entity.ProbeError{Path: videoPath, Err: p.err}
	}
	return p.metadata, nil
}

type fakeSampler struct {
	err      error
	requests []port.FrameRequest
}

func (s *fakeSampler) Extract(_ context.Context, req port.FrameRequest) ([]entity.Frame, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, &entity.ExtractionError{JobID: req.JobID, Err: s.err}
	}
	frames := make([]entity.Frame, req.Count)
	for i := range req.Count {
		frames[i] = entity.Frame{Index: i + 1, Data: []byte{0xff, 0xd8, byte(i)}, Path: "/frames/frame.jpg"}
	}
	return frames, nil
}

// scriptedClassifier answers call i with scores[i]; a negative score means the call fails.
type scriptedClassifier struct {
	mu     sync.Mutex
	scores []float64
	calls  int
}

func (c *scriptedClassifier) Classify(context.Context, []byte) (entity.ClassificationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.calls
	c.calls++
	if i >= len(c.scores) || c.scores[i] < 0 {
		return entity.ClassificationResult{}, errors.New("classifier unreachable")
	}
	return entity.ClassificationResult{NsfwScore: c.scores[i], NormalScore: 1 - c.scores[i]}, nil
}

func (c *scriptedClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []entity.ProgressEvent
}

func (b *recordingBroadcaster) Publish(_ context.Context, event entity.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) Events() []entity.ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entity.ProgressEvent(nil), b.events...)
}

type recordingReview struct {
	jobs []uuid.UUID
	err  error
}

func (r *recordingReview) Publish(_ context.Context, jobID uuid.UUID, frames []entity.Frame) (string, error) {
	r.jobs = append(r.jobs, jobID)
	return "review/" + jobID.String(), r.err
}

type recordingDLQ struct {
	mu      sync.Mutex
	reasons []string
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
	return nil
}

func (d *recordingDLQ) Reasons() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.reasons...)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, userEmail, _, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, userEmail)
	return nil
}

func (n *recordingNotifier) Sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}
