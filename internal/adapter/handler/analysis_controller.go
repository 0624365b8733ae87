package handler

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/talkscope-team/talkscope/errors"
	analysisdto "github.com/talkscope-team/talkscope/internal/adapter/dto/analysis"
	"github.com/talkscope-team/talkscope/internal/domain/entities"
	"github.com/talkscope-team/talkscope/internal/usecase/pipeline"
)

// maxUploadSize caps the accepted audio upload at 200MB
const maxUploadSize = 200 << 20

// AnalysisController handles the conversation analysis endpoints
type AnalysisController struct {
	svc    pipeline.Service
	logger *zap.Logger
}

// NewAnalysisController creates a new analysis controller
func NewAnalysisController(svc pipeline.Service, logger *zap.Logger) *AnalysisController {
	return &AnalysisController{svc: svc, logger: logger}
}

// CreateAnalysis accepts an audio upload and queues an analysis job
// @Summary      Analyze an audio conversation
// @Description  Uploads an audio file and queues it for emotion quintile analysis
// @Tags         Analysis
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Audio file"
// @Success      202   {object}  map[string]interface{}  "Job queued"
// @Failure      400   {object}  map[string]interface{}  "Missing or invalid audio file"
// @Failure      500   {object}  map[string]interface{}  "Failed to queue job"
// @Router       /analyses [post]
func (ac *AnalysisController) CreateAnalysis(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return HandleError(ac.logger, c, errors.ErrMissingAudio())
	}
	if fileHeader.Size > maxUploadSize {
		return HandleError(ac.logger, c, errors.ErrInvalidArgument("audio file exceeds the upload size limit"))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return HandleError(ac.logger, c, errors.ErrInvalidPayload())
	}
	defer src.Close()

	job, err := ac.svc.StartAnalysis(c.Request().Context(), fileHeader.Filename, src, fileHeader.Size)
	if err != nil {
		if ac.logger != nil {
			ac.logger.Error("failed to queue analysis", zap.Error(err))
		}
		return HandleError(ac.logger, c, err)
	}

	return HandleAccepted(ac.logger, c, analysisdto.FromEntity(job))
}

// AnalyzePredictions runs the quintile analysis synchronously on a raw
// prediction payload
// @Summary      Analyze a raw prediction payload
// @Description  Runs the quintile analysis directly on a vendor prediction payload and returns the report
// @Tags         Analysis
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "Quintile report"
// @Failure      422  {object}  map[string]interface{}  "Malformed payload or no segments"
// @Router       /analyses/predictions [post]
func (ac *AnalysisController) AnalyzePredictions(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxUploadSize))
	if err != nil {
		return HandleError(ac.logger, c, errors.ErrInvalidPayload())
	}
	if len(payload) == 0 {
		return HandleError(ac.logger, c, errors.ErrInvalidPayload())
	}

	report, err := ac.svc.AnalyzePredictions(c.Request().Context(), payload)
	if err != nil {
		return HandleError(ac.logger, c, err)
	}

	return c.JSONBlob(http.StatusOK, report)
}

// GetAnalysis returns the state of one analysis job
// @Summary      Get analysis job
// @Tags         Analysis
// @Produce      json
// @Param        id   path      string  true  "Job ID (UUID)"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Job not found"
// @Router       /analyses/{id} [get]
func (ac *AnalysisController) GetAnalysis(c echo.Context) error {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return HandleError(ac.logger, c, errors.ErrInvalidArgument("analysis id must be a UUID"))
	}

	job, err := ac.svc.GetJob(c.Request().Context(), jobID)
	if err != nil {
		return HandleError(ac.logger, c, err)
	}

	return HandleSuccess(ac.logger, c, analysisdto.FromEntity(job))
}

// ListAnalyses returns recent analysis jobs
// @Summary      List analysis jobs
// @Tags         Analysis
// @Produce      json
// @Param        limit  query     int  false  "Max jobs to return"
// @Success      200    {object}  map[string]interface{}
// @Router       /analyses [get]
func (ac *AnalysisController) ListAnalyses(c echo.Context) error {
	var req analysisdto.ListJobsRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(ac.logger, c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(ac.logger, c, errors.ErrInvalidArgument(err.Error()))
	}
	if req.Limit == 0 {
		req.Limit = 50
	}

	var jobs []entities.AnalysisJob
	var err error
	if req.Status != "" {
		jobs, err = ac.svc.ListJobsByStatus(c.Request().Context(), entities.AnalysisStatus(req.Status), req.Limit)
	} else {
		jobs, err = ac.svc.ListJobs(c.Request().Context(), req.Limit)
	}
	if err != nil {
		return HandleError(ac.logger, c, err)
	}

	resp := analysisdto.ListJobsResponse{Jobs: make([]*analysisdto.JobResponse, 0, len(jobs))}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, analysisdto.FromEntity(&jobs[i]))
	}
	resp.Count = len(resp.Jobs)

	return HandleSuccess(ac.logger, c, resp)
}

// GetReport streams the quintile report of a completed job
// @Summary      Download quintile report
// @Tags         Analysis
// @Produce      json
// @Param        id   path  string  true  "Job ID (UUID)"
// @Success      200  {object}  map[string]interface{}  "Quintile report JSON"
// @Failure      409  {object}  map[string]interface{}  "Analysis not finished"
// @Router       /analyses/{id}/report [get]
func (ac *AnalysisController) GetReport(c echo.Context) error {
	return ac.streamArtifact(c, func(job *entities.AnalysisJob) *string { return job.ReportKey }, "application/json")
}

// GetTable streams the flat segment table of a completed job as CSV
// @Summary      Download segment table
// @Tags         Analysis
// @Produce      text/csv
// @Param        id   path  string  true  "Job ID (UUID)"
// @Success      200  {string}  string  "Segment table CSV"
// @Failure      409  {object}  map[string]interface{}  "Analysis not finished"
// @Router       /analyses/{id}/table [get]
func (ac *AnalysisController) GetTable(c echo.Context) error {
	return ac.streamArtifact(c, func(job *entities.AnalysisJob) *string { return job.TableKey }, "text/csv")
}

// streamArtifact resolves the job, checks it is completed and streams the
// selected artifact from object storage
func (ac *AnalysisController) streamArtifact(c echo.Context, selectKey func(*entities.AnalysisJob) *string, contentType string) error {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return HandleError(ac.logger, c, errors.ErrInvalidArgument("analysis id must be a UUID"))
	}

	job, err := ac.svc.GetJob(c.Request().Context(), jobID)
	if err != nil {
		return HandleError(ac.logger, c, err)
	}

	key := selectKey(job)
	if job.Status != entities.AnalysisStatusCompleted || key == nil {
		return HandleError(ac.logger, c, errors.ErrReportNotReady(job.ID.String(), string(job.Status)))
	}

	rc, err := ac.svc.OpenArtifact(c.Request().Context(), *key)
	if err != nil {
		return HandleError(ac.logger, c, err)
	}
	defer rc.Close()

	return c.Stream(http.StatusOK, contentType, rc)
}
