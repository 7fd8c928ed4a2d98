package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/refbatch/refbatch/internal/models"
)

// ErrNoLog means the job has produced no output yet and no artifact exists.
var ErrNoLog = errors.New("no log available")

// Client talks to the refbatch API.
type Client struct {
	http    *http.Client
	baseURL string
}

// New creates a client for the API at baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Submit sends a job request and returns the accepted job's ID and queue.
func (c *Client) Submit(ctx context.Context, req models.JobRequest) (*models.SubmitResponse, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/jobs", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return nil, apiError(resp)
	}

	var out models.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Job fetches the current state of one job.
func (c *Client) Job(ctx context.Context, id string) (*models.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrJobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Cancel asks the server to cancel a queued or running job.
func (c *Client) Cancel(ctx context.Context, id string) (*models.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/jobs/"+id+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, models.ErrJobNotFound
	case http.StatusConflict:
		return nil, models.ErrJobFinished
	case http.StatusOK:
	default:
		return nil, apiError(resp)
	}

	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitForTerminal polls the job until it reaches a terminal state. Each
// observed transition is reported through onTransition, starting from
// "queued". Deadlines and cancellation come from ctx.
func (c *Client) WaitForTerminal(ctx context.Context, id string, interval time.Duration, onTransition func(from, to models.JobStatus)) (*models.Job, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	last := models.JobQueued
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status != last {
			if onTransition != nil {
				onTransition(last, job.Status)
			}
			last = job.Status
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Log fetches the job's output: the durable artifact when one exists,
// otherwise the live buffer. ErrNoLog means there is nothing yet.
func (c *Client) Log(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+id+"/log", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoLog
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

// DownloadLog writes the job's output to path. The file is written whatever
// the job's outcome was, so failed runs keep their logs too.
func (c *Client) DownloadLog(ctx context.Context, id, path string) error {
	content, err := c.Log(ctx, id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	const max = 2048
	if len(body) > max {
		body = body[:max]
	}
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return fmt.Errorf("refbatch: %s: %s", resp.Status, e.Error)
	}
	return fmt.Errorf("refbatch: unexpected status %s: %s", resp.Status, string(body))
}
