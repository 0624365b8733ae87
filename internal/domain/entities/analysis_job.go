package entities

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus represents the status of an analysis job
type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "pending"   // Waiting to be submitted to Hume
	AnalysisStatusSubmitted AnalysisStatus = "submitted" // Submitted to Hume, waiting for predictions
	AnalysisStatusAnalyzing AnalysisStatus = "analyzing" // Predictions retrieved, running quintile analysis
	AnalysisStatusCompleted AnalysisStatus = "completed" // All processing done
	AnalysisStatusFailed    AnalysisStatus = "failed"    // Processing failed
	AnalysisStatusRetrying  AnalysisStatus = "retrying"  // Retrying after failure
)

// AnalysisJob represents one conversation analysis run over an uploaded
// audio file
type AnalysisJob struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Status        AnalysisStatus `json:"status" gorm:"type:varchar(50);not null;index;default:'pending'"`
	ExternalJobID *string        `json:"external_job_id,omitempty" gorm:"type:varchar(255);index"` // Hume batch job ID (nullable)
	AudioKey      string         `json:"audio_key" gorm:"type:text;not null"`
	Filename      string         `json:"filename" gorm:"type:varchar(255)"`

	// Artifact keys in object storage, set as the pipeline produces them
	PredictionsKey *string `json:"predictions_key,omitempty" gorm:"type:text"`
	ReportKey      *string `json:"report_key,omitempty" gorm:"type:text"`
	TableKey       *string `json:"table_key,omitempty" gorm:"type:text"`

	// Processing details
	StartedAt   *time.Time `json:"started_at,omitempty" gorm:"type:timestamp"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"type:timestamp"`
	RetryCount  int        `json:"retry_count" gorm:"type:integer;default:0"`
	MaxRetries  int        `json:"max_retries" gorm:"type:integer;default:3"`
	LastError   *string    `json:"last_error,omitempty" gorm:"type:text"`

	// Metadata
	Metadata AnalysisMetadata `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// AnalysisMetadata stores additional metadata for analysis jobs
type AnalysisMetadata struct {
	ConversationLength float64                `json:"conversation_length_seconds,omitempty"`
	SpeakerCount       int                    `json:"speaker_count,omitempty"`
	SegmentCount       int                    `json:"segment_count,omitempty"`
	SkippedSpans       int                    `json:"skipped_spans,omitempty"`
	DroppedDuplicates  int                    `json:"dropped_duplicates,omitempty"`
	ProcessingTimeMs   int64                  `json:"processing_time_ms,omitempty"`
	ErrorDetails       map[string]interface{} `json:"error_details,omitempty"`
}

// Scan implements sql.Scanner interface for GORM
func (m *AnalysisMetadata) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, &m)
}

// Value implements driver.Valuer interface for GORM
func (m AnalysisMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// NewAnalysisJob creates a new analysis job for an uploaded audio file
func NewAnalysisJob(audioKey, filename string) *AnalysisJob {
	return &AnalysisJob{
		ID:         uuid.New(),
		Status:     AnalysisStatusPending,
		AudioKey:   audioKey,
		Filename:   filename,
		RetryCount: 0,
		MaxRetries: 3,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// IsRetryable checks if job can be retried
func (j *AnalysisJob) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries && j.Status == AnalysisStatusFailed
}

// MarkAsSubmitted marks job as submitted to Hume
func (j *AnalysisJob) MarkAsSubmitted(externalJobID string) {
	j.Status = AnalysisStatusSubmitted
	j.ExternalJobID = &externalJobID
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkAsAnalyzing marks job as running the quintile analysis
func (j *AnalysisJob) MarkAsAnalyzing() {
	j.Status = AnalysisStatusAnalyzing
	j.UpdatedAt = time.Now()
}

// MarkAsCompleted marks job as completed with its artifact keys
func (j *AnalysisJob) MarkAsCompleted(reportKey, tableKey string) {
	j.Status = AnalysisStatusCompleted
	j.ReportKey = &reportKey
	j.TableKey = &tableKey
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkAsFailed marks job as failed with error message
func (j *AnalysisJob) MarkAsFailed(errMsg string) {
	j.Status = AnalysisStatusFailed
	j.LastError = &errMsg
	j.UpdatedAt = time.Now()
}

// IncrementRetry increments retry count and marks for retry
func (j *AnalysisJob) IncrementRetry(errMsg string) {
	j.RetryCount++
	j.Status = AnalysisStatusRetrying
	j.LastError = &errMsg
	j.UpdatedAt = time.Now()
}

// TableName specifies the table name for GORM
func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}
