package analysis

import (
	"time"

	"github.com/talkscope-team/talkscope/internal/domain/entities"
)

// JobResponse represents an analysis job in responses
type JobResponse struct {
	ID             string                     `json:"id"`
	Status         string                     `json:"status"`
	Filename       string                     `json:"filename"`
	ExternalJobID  string                     `json:"external_job_id,omitempty"`
	RetryCount     int                        `json:"retry_count"`
	LastError      string                     `json:"last_error,omitempty"`
	Metadata       *entities.AnalysisMetadata `json:"metadata,omitempty"`
	ReportURL      string                     `json:"report_url,omitempty"`
	TableURL       string                     `json:"table_url,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
	CompletedAt    *time.Time                 `json:"completed_at,omitempty"`
}

// FromEntity builds a JobResponse from an analysis job entity
func FromEntity(job *entities.AnalysisJob) *JobResponse {
	resp := &JobResponse{
		ID:          job.ID.String(),
		Status:      string(job.Status),
		Filename:    job.Filename,
		RetryCount:  job.RetryCount,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.ExternalJobID != nil {
		resp.ExternalJobID = *job.ExternalJobID
	}
	if job.LastError != nil {
		resp.LastError = *job.LastError
	}
	if job.Status == entities.AnalysisStatusCompleted {
		resp.Metadata = &job.Metadata
		resp.ReportURL = "/v1/analyses/" + resp.ID + "/report"
		resp.TableURL = "/v1/analyses/" + resp.ID + "/table"
	}
	return resp
}

// ListJobsResponse represents a list of analysis jobs
type ListJobsResponse struct {
	Jobs  []*JobResponse `json:"jobs"`
	Count int            `json:"count"`
}
