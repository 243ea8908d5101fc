// Package memory is an in-process job store for local runs and tests. It follows
// the same conditional-update rules as the Postgres repository.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/google/uuid"
)

type JobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]entity.VideoJob
}

func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[uuid.UUID]entity.VideoJob)}
}

func (r *JobRepository) Create(_ context.Context, job *entity.VideoJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("insert job: job %s already exists", job.ID)
	}
	r.jobs[job.ID] = clone(*job)
	return nil
}

func (r *JobRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.VideoJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("find job by id %s: %w", id, entity.ErrJobNotFound)
	}
	out := clone(job)
	return &out, nil
}

func (r *JobRepository) MarkProcessing(_ context.Context, id uuid.UUID) error {
	return r.mutate(id, func(j *entity.VideoJob) error { return j.MarkProcessing() })
}

func (r *JobRepository) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	return r.mutate(id, func(j *entity.VideoJob) error {
		j.AdvanceProgress(progress)
		return nil
	})
}

func (r *JobRepository) MarkCompleted(_ context.Context, id uuid.UUID, metadata entity.VideoMetadata, verdict entity.Verdict, at time.Time) error {
	return r.mutate(id, func(j *entity.VideoJob) error { return j.MarkCompleted(metadata, verdict, at) })
}

func (r *JobRepository) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, at time.Time) error {
	return r.mutate(id, func(j *entity.VideoJob) error { return j.MarkFailed(errMsg, at) })
}

func (r *JobRepository) mutate(id uuid.UUID, fn func(*entity.VideoJob) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("update job %s: %w", id, entity.ErrJobNotFound)
	}
	if err := fn(&job); err != nil {
		return err
	}
	r.jobs[id] = job
	return nil
}

// clone copies the pointer fields so callers never share state with the map.
func clone(j entity.VideoJob) entity.VideoJob {
	if j.Metadata != nil {
		md := *j.Metadata
		j.Metadata = &md
	}
	if j.Analysis != nil {
		v := *j.Analysis
		v.DetectedIssues = append([]string(nil), v.DetectedIssues...)
		j.Analysis = &v
	}
	if j.ProcessedAt != nil {
		t := *j.ProcessedAt
		j.ProcessedAt = &t
	}
	return j
}
