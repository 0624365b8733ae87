package hume

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/talkscope-team/talkscope/pkg/config"
)

// Job statuses reported by the batch API
const (
	StatusQueued     = "QUEUED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Client is a minimal Hume expression measurement batch client
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a Hume client using the provided config.
// If cfg is nil, falls back to environment variables.
func NewClient(cfg *config.HumeConfig) *Client {
	var apiKey, baseURL string
	if cfg != nil {
		apiKey = cfg.APIKey
		baseURL = cfg.BaseURL
	}
	if apiKey == "" {
		apiKey = os.Getenv("HUME_API_KEY")
	}
	if baseURL == "" {
		baseURL = "https://api.hume.ai/v0/batch/jobs"
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// jobConfig is the model configuration submitted with every job: prosody
// with speaker identification over a 4s window stepped by 1s, plus
// sentence-level language sentiment.
type jobConfig struct {
	Models models `json:"models"`
}

type models struct {
	Prosody  prosodyModel  `json:"prosody"`
	Language languageModel `json:"language"`
}

type prosodyModel struct {
	IdentifySpeakers bool   `json:"identify_speakers"`
	Window           window `json:"window"`
}

type window struct {
	Length float64 `json:"length"`
	Step   float64 `json:"step"`
}

type languageModel struct {
	IdentifySpeakers bool           `json:"identify_speakers"`
	Sentiment        map[string]any `json:"sentiment"`
	Granularity      string         `json:"granularity"`
}

func defaultJobConfig() jobConfig {
	return jobConfig{
		Models: models{
			Prosody: prosodyModel{
				IdentifySpeakers: true,
				Window:           window{Length: 4, Step: 1},
			},
			Language: languageModel{
				IdentifySpeakers: true,
				Sentiment:        map[string]any{},
				Granularity:      "sentence",
			},
		},
	}
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	State struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"state"`
}

// SubmitJob uploads an audio file and starts a batch measurement job.
// Returns the vendor job id on success.
func (c *Client) SubmitJob(ctx context.Context, filename string, audio io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, audio); err != nil {
			pw.CloseWithError(err)
			return
		}
		cfgJSON, err := json.Marshal(defaultJobConfig())
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := mw.WriteField("json", string(cfgJSON)); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Hume-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("hume returned status %d", resp.StatusCode)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", err
	}
	if sr.JobID == "" {
		return "", fmt.Errorf("hume returned empty job id")
	}
	return sr.JobID, nil
}

// GetJobStatus returns the current status string of a batch job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/"+jobID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Hume-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("hume returned status %d", resp.StatusCode)
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", err
	}
	return sr.State.Status, nil
}

// GetJobPredictions downloads the raw predictions payload of a completed job.
func (c *Client) GetJobPredictions(ctx context.Context, jobID string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/"+jobID+"/predictions", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Hume-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("hume returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// WaitForCompletion polls the job until it reaches a terminal state or the
// context is done. Returns the terminal status.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string, pollInterval time.Duration) (string, error) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.GetJobStatus(ctx, jobID)
		if err != nil {
			return "", err
		}
		if status == StatusCompleted || status == StatusFailed {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
