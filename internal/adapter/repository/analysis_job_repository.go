package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talkscope-team/talkscope/internal/domain/entities"
)

// AnalysisJobRepository handles analysis job data operations
type AnalysisJobRepository struct {
	db *gorm.DB
}

// NewAnalysisJobRepository creates a new analysis job repository
func NewAnalysisJobRepository(db *gorm.DB) *AnalysisJobRepository {
	return &AnalysisJobRepository{db: db}
}

// CreateJob creates a new analysis job
func (r *AnalysisJobRepository) CreateJob(ctx context.Context, job *entities.AnalysisJob) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetJobByID retrieves an analysis job by ID
func (r *AnalysisJobRepository) GetJobByID(ctx context.Context, jobID uuid.UUID) (*entities.AnalysisJob, error) {
	var job entities.AnalysisJob
	if err := r.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// GetJobByExternalID retrieves an analysis job by external job ID (Hume batch job ID)
func (r *AnalysisJobRepository) GetJobByExternalID(ctx context.Context, externalID string) (*entities.AnalysisJob, error) {
	var job entities.AnalysisJob
	if err := r.db.WithContext(ctx).Where("external_job_id = ?", externalID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs retrieves the most recent analysis jobs
func (r *AnalysisJobRepository) ListJobs(ctx context.Context, limit int) ([]entities.AnalysisJob, error) {
	var jobs []entities.AnalysisJob
	if limit == 0 {
		limit = 100
	}
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListJobsByStatus retrieves all analysis jobs with a specific status
func (r *AnalysisJobRepository) ListJobsByStatus(ctx context.Context, status entities.AnalysisStatus, limit int) ([]entities.AnalysisJob, error) {
	var jobs []entities.AnalysisJob
	if limit == 0 {
		limit = 100
	}
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateJob updates an analysis job
func (r *AnalysisJobRepository) UpdateJob(ctx context.Context, job *entities.AnalysisJob) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	return r.db.WithContext(ctx).
		Model(&entities.AnalysisJob{}).
		Where("id = ?", job.ID).
		Save(job).Error
}

// ClaimJob atomically moves a job from an expected status to a new status.
// Returns false when another worker already claimed it.
func (r *AnalysisJobRepository) ClaimJob(ctx context.Context, jobID uuid.UUID, from []entities.AnalysisStatus, to entities.AnalysisStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.AnalysisJob{}).
		Where("id = ? AND status IN ?", jobID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkJobAsSubmitted marks a job as submitted with its Hume job ID
func (r *AnalysisJobRepository) MarkJobAsSubmitted(ctx context.Context, jobID uuid.UUID, externalID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entities.AnalysisJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":          entities.AnalysisStatusSubmitted,
			"external_job_id": externalID,
			"started_at":      now,
			"updated_at":      now,
		}).Error
}

// MarkJobAsCompleted marks a job as completed with its artifact keys and metadata
func (r *AnalysisJobRepository) MarkJobAsCompleted(ctx context.Context, jobID uuid.UUID, reportKey, tableKey string, metadata entities.AnalysisMetadata) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entities.AnalysisJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       entities.AnalysisStatusCompleted,
			"report_key":   reportKey,
			"table_key":    tableKey,
			"metadata":     metadata,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

// MarkJobAsFailed marks a job as failed with error message
func (r *AnalysisJobRepository) MarkJobAsFailed(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entities.AnalysisJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     entities.AnalysisStatusFailed,
			"last_error": errMsg,
			"updated_at": now,
		}).Error
}

// SetPredictionsKey records the storage key of the raw predictions artifact
func (r *AnalysisJobRepository) SetPredictionsKey(ctx context.Context, jobID uuid.UUID, key string) error {
	return r.db.WithContext(ctx).
		Model(&entities.AnalysisJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"predictions_key": key,
			"updated_at":      time.Now(),
		}).Error
}

// IncrementRetryCount increments the retry count
func (r *AnalysisJobRepository) IncrementRetryCount(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entities.AnalysisJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"status":      entities.AnalysisStatusRetrying,
			"last_error":  errMsg,
			"updated_at":  now,
		}).Error
}

// GetFailedJobs retrieves jobs that failed and can be retried
func (r *AnalysisJobRepository) GetFailedJobs(ctx context.Context, limit int) ([]entities.AnalysisJob, error) {
	var jobs []entities.AnalysisJob
	if limit == 0 {
		limit = 10
	}
	if err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < max_retries", entities.AnalysisStatusFailed).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJobsForProcessing retrieves jobs that are ready for processing
func (r *AnalysisJobRepository) GetJobsForProcessing(ctx context.Context, limit int) ([]entities.AnalysisJob, error) {
	var jobs []entities.AnalysisJob
	if limit == 0 {
		limit = 10
	}
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []entities.AnalysisStatus{entities.AnalysisStatusPending, entities.AnalysisStatusRetrying}).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetStuckJobs retrieves jobs stuck in a transient status for longer than cutoff
func (r *AnalysisJobRepository) GetStuckJobs(ctx context.Context, cutoff time.Time, limit int) ([]entities.AnalysisJob, error) {
	var jobs []entities.AnalysisJob
	if limit == 0 {
		limit = 10
	}
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]entities.AnalysisStatus{entities.AnalysisStatusSubmitted, entities.AnalysisStatusAnalyzing}, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
