package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRepository stores video jobs in the video_jobs table. metadata and
// analysis are JSONB documents; every update is a single conditional statement.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.VideoJob) error {
	query := `
		INSERT INTO video_jobs (
			id, user_id, video_path, video_key, status, process_progress,
			sensitivity_flag, error_message, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoPath, job.VideoKey, string(job.Status),
		job.ProcessProgress, string(job.SensitivityFlag), job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.VideoJob, error) {
	query := `
		SELECT id, user_id, video_path, video_key, status, process_progress,
			sensitivity_flag, metadata, analysis, error_message,
			created_at, updated_at, processed_at
		FROM video_jobs WHERE id=$1`

	job := &entity.VideoJob{}
	var (
		status, flag       string
		metadata, analysis []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoPath, &job.VideoKey, &status, &job.ProcessProgress,
		&flag, &metadata, &analysis, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.ProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find job by id %s: %w", id, entity.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}

	job.Status = entity.JobStatus(status)
	job.SensitivityFlag = entity.SensitivityFlag(flag)
	if len(metadata) > 0 {
		job.Metadata = &entity.VideoMetadata{}
		if err := json.Unmarshal(metadata, job.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(analysis) > 0 {
		job.Analysis = &entity.Verdict{}
		if err := json.Unmarshal(analysis, job.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}
	return job, nil
}

func (r *JobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE video_jobs SET status=$2, process_progress=0, updated_at=$3
		WHERE id=$1 AND status=$4`

	tag, err := r.pool.Exec(ctx, query, id,
		string(entity.JobStatusProcessing), time.Now().UTC(), string(entity.JobStatusPending))
	if err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, id, entity.JobStatusProcessing)
	}
	return nil
}

// UpdateProgress never lowers the stored value and is ignored once the job left processing.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE video_jobs
		SET process_progress=GREATEST(process_progress, LEAST(GREATEST($2, 0), 100)), updated_at=$3
		WHERE id=$1 AND status=$4`

	_, err := r.pool.Exec(ctx, query, id, progress, time.Now().UTC(), string(entity.JobStatusProcessing))
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, metadata entity.VideoMetadata, verdict entity.Verdict, at time.Time) error {
	mdJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	query := `
		UPDATE video_jobs SET
			status=$2, process_progress=100, sensitivity_flag=$3,
			metadata=$4, analysis=$5, error_message='', updated_at=$6, processed_at=$6
		WHERE id=$1 AND status=$7`

	tag, err := r.pool.Exec(ctx, query, id,
		string(entity.JobStatusCompleted), string(verdict.SensitivityFlag),
		mdJSON, verdictJSON, at.UTC(), string(entity.JobStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, id, entity.JobStatusCompleted)
	}
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error {
	query := `
		UPDATE video_jobs SET status=$2, error_message=$3, updated_at=$4, processed_at=$4
		WHERE id=$1 AND status=$5`

	tag, err := r.pool.Exec(ctx, query, id,
		string(entity.JobStatusFailed), errMsg, at.UTC(), string(entity.JobStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, id, entity.JobStatusFailed)
	}
	return nil
}

// transitionError explains why a conditional update matched no row.
func (r *JobRepository) transitionError(ctx context.Context, id uuid.UUID, to entity.JobStatus) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM video_jobs WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update job %s: %w", id, entity.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("load job status: %w", err)
	}
	return &entity.TransitionError{JobID: id, From: entity.JobStatus(status), To: to}
}
