package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/refbatch/refbatch/internal/infrastructure/objectstore"
	"github.com/refbatch/refbatch/internal/models"
	"github.com/refbatch/refbatch/internal/services"
)

// Cancel flags outlive any reasonable queue wait.
const cancelFlagTTL = 24 * time.Hour

type JobHandler struct {
	jobs  *services.JobService
	queue *services.QueueService
	store *objectstore.Store // nil when no artifact store is configured
}

func NewJobHandler(jobs *services.JobService, queue *services.QueueService, store *objectstore.Store) *JobHandler {
	return &JobHandler{jobs: jobs, queue: queue, store: store}
}

// SubmitJob handles POST /api/jobs
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req models.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Region == "" {
		req.Region = models.DefaultRegion
	}
	if req.JobType == "" {
		req.JobType = models.DefaultJobType
	}
	if req.WorkDir == "" {
		req.WorkDir = "."
	}

	class, err := models.LookupInstanceClass(req.JobType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     fmt.Sprintf("unknown job type %q", req.JobType),
			"job_types": models.InstanceClassNames(),
		})
		return
	}

	job := &models.Job{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Region:     req.Region,
		JobType:    req.JobType,
		SourceRef:  req.SourceRef,
		WorkDir:    req.WorkDir,
		RemoteURL:  req.RemoteURL,
		Command:    req.Command,
		Env:        req.Env,
		Queue:      class.Queue,
		Status:     models.JobQueued,
		TimeoutSec: req.TimeoutSec,
		CreatedAt:  time.Now().UTC(),
	}
	if job.Name == "" {
		job.Name = "job-" + job.ID[:8]
	}

	if err := h.jobs.CreateJob(c, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit job"})
		return
	}
	if err := h.queue.Enqueue(c, job); err != nil {
		// Don't leave a record no worker will ever pick up.
		reason := fmt.Sprintf("enqueue failed: %v", err)
		_ = h.jobs.MarkTerminal(c, job.ID, models.JobFailed, nil, reason, "", time.Now().UTC())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit job"})
		return
	}

	c.JSON(http.StatusAccepted, models.SubmitResponse{
		JobID:  job.ID,
		Queue:  job.Queue,
		Status: job.Status,
	})
}

// GetJob handles GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.GetJob(c, id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	status := c.Query("status")

	if status != "" && !models.JobStatus(status).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", status)})
		return
	}

	jobs, total, err := h.jobs.ListJobs(c, limit, offset, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"jobs":   jobs,
	})
}

// CancelJob handles POST /api/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.CancelJob(c, id, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, models.ErrJobFinished):
			c.JSON(http.StatusConflict, gin.H{"error": "Job already finished", "job": job})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	// Flag the job for any worker that already holds it, and tell watchers.
	if err := h.queue.RequestCancel(c, id, cancelFlagTTL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_ = h.queue.PublishEvent(c, models.JobEvent{
		Type:   models.EventStatus,
		JobID:  id,
		Status: models.JobCancelled,
		At:     time.Now().UTC(),
	})

	c.JSON(http.StatusOK, job)
}

// GetJobLog handles GET /api/jobs/:id/log. It prefers the durable artifact
// and falls back to the live Redis buffer while the job is still running.
func (h *JobHandler) GetJobLog(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.GetJob(c, id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if job.LogKey != "" && h.store != nil {
		content, err := h.store.Get(c, job.LogKey)
		if err == nil {
			c.Data(http.StatusOK, "text/plain; charset=utf-8", content)
			return
		}
		if !errors.Is(err, objectstore.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load log artifact: %v", err)})
			return
		}
	}

	lines, err := h.queue.LogLines(c, id, 0, -1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(lines) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No log available yet"})
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(strings.Join(lines, "\n")+"\n"))
}

// GetQueueDepths handles GET /api/queues
func (h *JobHandler) GetQueueDepths(c *gin.Context) {
	region := c.DefaultQuery("region", models.DefaultRegion)

	depths := gin.H{}
	for _, queue := range []string{models.QueueGPU, models.QueueCPU} {
		n, err := h.queue.QueueDepth(c, region, queue)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		depths[queue] = n
	}

	c.JSON(http.StatusOK, gin.H{
		"region": region,
		"queues": depths,
	})
}

// HealthCheck handles GET /health
func (h *JobHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  "1.0.0",
		"database": "postgresql",
		"queue":    "redis",
	})
}
