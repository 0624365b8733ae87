package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/talkscope-team/talkscope/errors"
	"github.com/talkscope-team/talkscope/internal/adapter/repository"
	"github.com/talkscope-team/talkscope/internal/domain/entities"
	"github.com/talkscope-team/talkscope/internal/infrastructure/cache"
	"github.com/talkscope-team/talkscope/internal/infrastructure/storage"
	"github.com/talkscope-team/talkscope/internal/usecase/quintile"
	"github.com/talkscope-team/talkscope/pkg/config"
	"github.com/talkscope-team/talkscope/pkg/hume"
	"github.com/talkscope-team/talkscope/pkg/jobcontext"
)

// Service defines analysis orchestration methods
type Service interface {
	StartAnalysis(ctx context.Context, filename string, audio io.Reader, size int64) (*entities.AnalysisJob, error)
	AnalyzePredictions(ctx context.Context, payload []byte) (json.RawMessage, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*entities.AnalysisJob, error)
	ListJobs(ctx context.Context, limit int) ([]entities.AnalysisJob, error)
	ListJobsByStatus(ctx context.Context, status entities.AnalysisStatus, limit int) ([]entities.AnalysisJob, error)
	OpenArtifact(ctx context.Context, key string) (io.ReadCloser, error)
	StartWorkerPool(ctx context.Context, workerCount int) error
	StopWorkerPool() error
}

type pipelineService struct {
	jobRepo             *repository.AnalysisJobRepository
	store               storage.ArtifactStore
	humeClient          *hume.Client
	engine              *quintile.Engine
	resultCache         *cache.ResultCache
	cfg                 *config.Config
	logger              *zap.Logger
	submitSemaphore     chan struct{} // limit concurrent Hume submissions
	workerStopChan      chan struct{} // Signal workers to stop
	workerWg            sync.WaitGroup
	isWorkerPoolRunning bool
	workerMutex         sync.Mutex
}

// NewService constructs the analysis pipeline service
func NewService(
	jobRepo *repository.AnalysisJobRepository,
	store storage.ArtifactStore,
	humeClient *hume.Client,
	resultCache *cache.ResultCache,
	cfg *config.Config,
	logger *zap.Logger,
) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pipelineService{
		jobRepo:             jobRepo,
		store:               store,
		humeClient:          humeClient,
		engine:              quintile.NewEngine(logger),
		resultCache:         resultCache,
		cfg:                 cfg,
		logger:              logger,
		submitSemaphore:     make(chan struct{}, 2), // Max 2 concurrent submissions
		workerStopChan:      make(chan struct{}),
		isWorkerPoolRunning: false,
	}
}

// Artifact keys for one job
func audioKey(jobID uuid.UUID, filename string) string {
	return fmt.Sprintf("jobs/%s/audio/%s", jobID, filename)
}

func predictionsKey(jobID uuid.UUID) string {
	return fmt.Sprintf("jobs/%s/predictions.json", jobID)
}

func reportKey(jobID uuid.UUID) string {
	return fmt.Sprintf("jobs/%s/report.json", jobID)
}

func tableKey(jobID uuid.UUID) string {
	return fmt.Sprintf("jobs/%s/table.csv", jobID)
}

// StartAnalysis stores the uploaded audio and creates a pending job for the
// worker pool to pick up.
func (s *pipelineService) StartAnalysis(ctx context.Context, filename string, audio io.Reader, size int64) (*entities.AnalysisJob, error) {
	if filename == "" {
		filename = "audio"
	}
	filename = strings.ReplaceAll(filename, "/", "_")

	job := entities.NewAnalysisJob("", filename)
	key := audioKey(job.ID, filename)
	job.AudioKey = key

	if err := s.store.Put(ctx, key, audio, size, "application/octet-stream"); err != nil {
		return nil, apperrors.ErrStorageFailed("upload audio", err)
	}

	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		return nil, apperrors.ErrDBQueryFailed("create analysis job", err)
	}

	s.logger.Info("📥 Analysis job created",
		zap.String("job_id", job.ID.String()),
		zap.String("filename", filename),
	)

	return job, nil
}

// syncAnalysisResult is the response body of a synchronous analysis run.
type syncAnalysisResult struct {
	Report     *entities.QuintileReport `json:"report"`
	Vocabulary []string                 `json:"vocabulary"`
}

// AnalyzePredictions runs the quintile engine synchronously over a raw
// prediction payload. Results are cached by payload digest so an identical
// payload submitted twice is computed once.
func (s *pipelineService) AnalyzePredictions(ctx context.Context, payload []byte) (json.RawMessage, error) {
	digest := sha256.Sum256(payload)
	key := hex.EncodeToString(digest[:])

	if s.resultCache != nil {
		if cached, ok := s.resultCache.Get(key); ok {
			s.logger.Debug("result cache hit", zap.String("digest", key))
			return cached, nil
		}
	}

	result, err := s.engine.Analyze(payload)
	if err != nil {
		if errors.Is(err, quintile.ErrMalformedPayload) {
			return nil, apperrors.ErrMalformedPayload(err)
		}
		if errors.Is(err, quintile.ErrNoSegments) {
			return nil, apperrors.ErrNoSegments()
		}
		return nil, apperrors.ErrAnalysisFailed(err)
	}

	body, err := json.Marshal(syncAnalysisResult{
		Report:     result.Report,
		Vocabulary: result.Vocabulary,
	})
	if err != nil {
		return nil, apperrors.ErrInternal(err)
	}

	if s.resultCache != nil {
		ttl := time.Hour
		if s.cfg != nil && s.cfg.Worker.ResultCacheTTL > 0 {
			ttl = s.cfg.Worker.ResultCacheTTL
		}
		s.resultCache.Set(key, body, ttl)
	}

	return body, nil
}

// GetJob retrieves a job by ID
func (s *pipelineService) GetJob(ctx context.Context, jobID uuid.UUID) (*entities.AnalysisJob, error) {
	job, err := s.jobRepo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("get analysis job", err)
	}
	if job == nil {
		return nil, apperrors.ErrAnalysisNotFound(jobID.String())
	}
	return job, nil
}

// ListJobs retrieves recent jobs
func (s *pipelineService) ListJobs(ctx context.Context, limit int) ([]entities.AnalysisJob, error) {
	jobs, err := s.jobRepo.ListJobs(ctx, limit)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("list analysis jobs", err)
	}
	return jobs, nil
}

// ListJobsByStatus retrieves recent jobs in a given status
func (s *pipelineService) ListJobsByStatus(ctx context.Context, status entities.AnalysisStatus, limit int) ([]entities.AnalysisJob, error) {
	jobs, err := s.jobRepo.ListJobsByStatus(ctx, status, limit)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("list analysis jobs by status", err)
	}
	return jobs, nil
}

// OpenArtifact opens a stored artifact for streaming to the client
func (s *pipelineService) OpenArtifact(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, apperrors.ErrStorageFailed("open artifact", err)
	}
	return rc, nil
}

// StartWorkerPool starts background workers to process analysis jobs
func (s *pipelineService) StartWorkerPool(ctx context.Context, workerCount int) error {
	s.workerMutex.Lock()
	defer s.workerMutex.Unlock()

	if s.isWorkerPoolRunning {
		return fmt.Errorf("worker pool already running")
	}

	s.isWorkerPoolRunning = true
	s.workerStopChan = make(chan struct{})

	s.logger.Info("🚀 Starting analysis worker pool",
		zap.Int("worker_count", workerCount),
	)

	// Start worker goroutines
	for i := 0; i < workerCount; i++ {
		s.workerWg.Add(1)
		go s.analysisWorker(ctx, i)
	}

	// Start cleanup routine for stuck jobs
	s.workerWg.Add(1)
	go s.stuckJobWorker(ctx)

	// Start worker that reports permanently failed jobs
	s.workerWg.Add(1)
	go s.deadJobWorker(ctx)

	return nil
}

// StopWorkerPool gracefully stops all worker goroutines
func (s *pipelineService) StopWorkerPool() error {
	s.workerMutex.Lock()
	defer s.workerMutex.Unlock()

	if !s.isWorkerPoolRunning {
		return fmt.Errorf("worker pool not running")
	}

	s.logger.Info("🛑 Stopping analysis worker pool...")

	close(s.workerStopChan)
	s.workerWg.Wait()
	s.isWorkerPoolRunning = false

	s.logger.Info("✅ Analysis worker pool stopped")

	return nil
}

// analysisWorker polls for pending/retrying jobs and runs the full pipeline
func (s *pipelineService) analysisWorker(parentCtx context.Context, workerID int) {
	defer s.workerWg.Done()

	interval := 10 * time.Second
	if s.cfg != nil && s.cfg.Worker.PollInterval > 0 {
		interval = s.cfg.Worker.PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("👷 Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-s.workerStopChan:
			s.logger.Info("👷 Worker stopping", zap.Int("worker_id", workerID))
			return

		case <-ticker.C:
			jobs, err := s.jobRepo.GetJobsForProcessing(parentCtx, 5)
			if err != nil {
				s.logger.Error("❌ Failed to poll jobs",
					zap.Int("worker_id", workerID),
					zap.Error(err),
				)
				continue
			}

			for _, job := range jobs {
				// Atomically claim the job so only one worker runs it
				claimed, err := s.jobRepo.ClaimJob(parentCtx, job.ID,
					[]entities.AnalysisStatus{entities.AnalysisStatusPending, entities.AnalysisStatusRetrying},
					entities.AnalysisStatusSubmitted)
				if err != nil {
					s.logger.Error("❌ Failed to claim job",
						zap.String("job_id", job.ID.String()),
						zap.Error(err),
					)
					continue
				}
				if !claimed {
					s.logger.Info("⏭️ Job already claimed by another worker",
						zap.String("job_id", job.ID.String()),
					)
					continue
				}

				s.logger.Info("👷 Worker claimed job",
					zap.Int("worker_id", workerID),
					zap.String("job_id", job.ID.String()),
					zap.Int("retry_count", job.RetryCount),
				)

				timeout := 20 * time.Minute
				if s.cfg != nil && s.cfg.Hume.PollTimeout > 0 {
					timeout = s.cfg.Hume.PollTimeout + 5*time.Minute
				}
				jobCtx, cancel := jobcontext.JobBegin(parentCtx, job.ID, workerID, timeout)

				err = jobcontext.JobEnd(jobCtx, func(ctx context.Context) error {
					return s.processJob(ctx, &job)
				})

				cancel()

				if err != nil {
					s.logger.Error("❌ Job failed after retries",
						zap.String("job_id", job.ID.String()),
						zap.Error(err),
					)
					s.jobRepo.MarkJobAsFailed(parentCtx, job.ID, err.Error())
				} else {
					s.logger.Info("✅ Job completed successfully",
						zap.String("job_id", job.ID.String()),
					)
				}
			}
		}
	}
}

// processJob runs the full pipeline for one claimed job: obtain predictions
// (reusing a stored payload from an earlier attempt when present), run the
// quintile analysis, persist the artifacts and mark the job completed.
func (s *pipelineService) processJob(ctx context.Context, job *entities.AnalysisJob) error {
	startTime := time.Now()

	predsKey := predictionsKey(job.ID)
	raw, err := s.loadStoredPredictions(ctx, predsKey)
	if err != nil {
		return err
	}

	if raw == nil {
		raw, err = s.fetchPredictions(ctx, job)
		if err != nil {
			return err
		}

		if err := s.store.PutBytes(ctx, predsKey, raw, "application/json"); err != nil {
			return fmt.Errorf("failed to store predictions: %w", err)
		}
		if err := s.jobRepo.SetPredictionsKey(ctx, job.ID, predsKey); err != nil {
			s.logger.Warn("⚠️ Failed to record predictions key", zap.Error(err))
		}
	} else {
		s.logger.Info("♻️ Reusing stored predictions",
			zap.String("job_id", job.ID.String()),
			zap.String("key", predsKey),
		)
	}

	// A retry attempt may re-enter with the job already analyzing, so
	// both states are accepted here
	if claimed, err := s.jobRepo.ClaimJob(ctx, job.ID,
		[]entities.AnalysisStatus{entities.AnalysisStatusSubmitted, entities.AnalysisStatusAnalyzing},
		entities.AnalysisStatusAnalyzing); err != nil {
		return fmt.Errorf("failed to move job to analyzing: %w", err)
	} else if !claimed {
		return fmt.Errorf("job %s left submitted state unexpectedly", job.ID)
	}

	result, err := s.engine.Analyze(raw)
	if err != nil {
		// Both engine failure states depend on the payload, retrying
		// will not change the outcome
		return fmt.Errorf("malformed or empty predictions: %w", err)
	}

	reportJSON, err := json.MarshalIndent(result.Report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := s.store.PutBytes(ctx, reportKey(job.ID), reportJSON, "application/json"); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	var csvBuf strings.Builder
	if err := quintile.WriteCSV(&csvBuf, result.Table); err != nil {
		return fmt.Errorf("failed to encode table: %w", err)
	}
	if err := s.store.PutBytes(ctx, tableKey(job.ID), []byte(csvBuf.String()), "text/csv"); err != nil {
		return fmt.Errorf("failed to store table: %w", err)
	}

	metadata := entities.AnalysisMetadata{
		ConversationLength: result.Segments.ConversationLength,
		SpeakerCount:       len(result.Report.Speakers),
		SegmentCount:       len(result.Segments.Segments),
		SkippedSpans:       result.Segments.SkippedSpans,
		DroppedDuplicates:  result.Segments.DroppedDuplicates,
		ProcessingTimeMs:   time.Since(startTime).Milliseconds(),
	}
	if err := s.jobRepo.MarkJobAsCompleted(ctx, job.ID, reportKey(job.ID), tableKey(job.ID), metadata); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	return nil
}

// loadStoredPredictions returns the stored payload of an earlier attempt, or
// nil when none exists.
func (s *pipelineService) loadStoredPredictions(ctx context.Context, key string) ([]byte, error) {
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check stored predictions: %w", err)
	}
	if !exists {
		return nil, nil
	}

	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored predictions: %w", err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// fetchPredictions submits the job's audio to Hume, waits for completion and
// downloads the prediction payload.
func (s *pipelineService) fetchPredictions(ctx context.Context, job *entities.AnalysisJob) ([]byte, error) {
	// Acquire submission slot, blocks if too many uploads already running
	s.submitSemaphore <- struct{}{}
	defer func() { <-s.submitSemaphore }()

	var externalID string
	submitFn := func() error {
		audio, err := s.store.Get(ctx, job.AudioKey)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to open audio: %w", err))
		}
		defer audio.Close()

		s.logger.Info("📤 Submitting audio to Hume",
			zap.String("job_id", job.ID.String()),
			zap.String("audio_key", job.AudioKey),
		)

		externalID, err = s.humeClient.SubmitJob(ctx, job.Filename, audio)
		if err != nil {
			return err
		}

		// Record the external id immediately so a crash between submit
		// and completion can be reconciled later
		if err := s.jobRepo.MarkJobAsSubmitted(ctx, job.ID, externalID); err != nil {
			return fmt.Errorf("failed to record external job id: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxElapsedTime = 30 * time.Second
	bo.MaxInterval = 10 * time.Second

	if err := backoff.Retry(submitFn, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("failed to submit to Hume after retries: %w", err)
	}

	s.logger.Info("✅ Submitted to Hume, waiting for predictions",
		zap.String("job_id", job.ID.String()),
		zap.String("hume_job_id", externalID),
	)

	pollInterval := 5 * time.Second
	pollTimeout := 15 * time.Minute
	if s.cfg != nil {
		if s.cfg.Hume.PollInterval > 0 {
			pollInterval = s.cfg.Hume.PollInterval
		}
		if s.cfg.Hume.PollTimeout > 0 {
			pollTimeout = s.cfg.Hume.PollTimeout
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	status, err := s.humeClient.WaitForCompletion(waitCtx, externalID, pollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for Hume job: %w", err)
	}
	if status != hume.StatusCompleted {
		return nil, fmt.Errorf("hume job %s ended in state %s", externalID, status)
	}

	raw, err := s.humeClient.GetJobPredictions(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to download predictions: %w", err)
	}

	return raw, nil
}

// stuckJobWorker retries or fails jobs stuck in a transient status
func (s *pipelineService) stuckJobWorker(parentCtx context.Context) {
	defer s.workerWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	maxAge := 30 * time.Minute
	if s.cfg != nil && s.cfg.Worker.StuckJobAge > 0 {
		maxAge = s.cfg.Worker.StuckJobAge
	}

	for {
		select {
		case <-s.workerStopChan:
			return

		case <-ticker.C:
			cutoff := time.Now().Add(-maxAge)
			jobs, err := s.jobRepo.GetStuckJobs(parentCtx, cutoff, 20)
			if err != nil {
				continue
			}

			for _, job := range jobs {
				s.logger.Warn("🧹 Cleaning up stuck job",
					zap.String("job_id", job.ID.String()),
					zap.String("status", string(job.Status)),
					zap.Time("updated_at", job.UpdatedAt),
				)

				if job.RetryCount < job.MaxRetries {
					s.jobRepo.IncrementRetryCount(parentCtx, job.ID, "job stuck, scheduling retry")
				} else {
					s.jobRepo.MarkJobAsFailed(parentCtx, job.ID, "job stuck with no retries left")
				}
			}
		}
	}
}

// deadJobWorker periodically reports permanently failed jobs
func (s *pipelineService) deadJobWorker(parentCtx context.Context) {
	defer s.workerWg.Done()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.workerStopChan:
			return

		case <-ticker.C:
			jobs, err := s.jobRepo.ListJobsByStatus(parentCtx, entities.AnalysisStatusFailed, 50)
			if err != nil {
				continue
			}

			for _, job := range jobs {
				if job.RetryCount < job.MaxRetries {
					continue
				}
				errorMsg := ""
				if job.LastError != nil {
					errorMsg = *job.LastError
				}
				s.logger.Warn("💀 Dead job",
					zap.String("job_id", job.ID.String()),
					zap.Int("retry_count", job.RetryCount),
					zap.String("last_error", errorMsg),
				)
			}
		}
	}
}
