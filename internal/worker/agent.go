package worker

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/refbatch/refbatch/internal/config"
	"github.com/refbatch/refbatch/internal/infrastructure/objectstore"
	"github.com/refbatch/refbatch/internal/models"
	"github.com/refbatch/refbatch/internal/services"
)

const (
	// How long the Redis log buffer survives once the artifact is stored.
	logBufferTTL = 24 * time.Hour
	// How often a running job checks for a cancel request.
	cancelPollInterval = 2 * time.Second
)

// Agent pulls jobs off the region queues and executes them. It talks only to
// Redis and the artifact store; job records are updated by the server-side
// persister from the events the agent publishes.
type Agent struct {
	cfg   *config.WorkerConfig
	queue *services.QueueService
	store *objectstore.Store // nil when no artifact store is configured

	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

func NewAgent(cfg *config.WorkerConfig, queue *services.QueueService, store *objectstore.Store) *Agent {
	return &Agent{
		cfg:        cfg,
		queue:      queue,
		store:      store,
		shutdownCh: make(chan struct{}),
	}
}

// Start launches the configured number of executor slots.
func (a *Agent) Start() {
	for i := 0; i < a.cfg.Concurrency; i++ {
		a.wg.Add(1)
		go a.runLoop(i)
	}
	log.Printf("Worker %s: %d slot(s) polling %s queues %v", a.cfg.WorkerID, a.cfg.Concurrency, a.cfg.Region, a.cfg.Queues)
}

// Stop drains the slots. Jobs already running finish first.
func (a *Agent) Stop() {
	close(a.shutdownCh)
	a.wg.Wait()
}

func (a *Agent) runLoop(slot int) {
	defer a.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-a.shutdownCh:
			return
		default:
		}

		job, err := a.queue.Pop(ctx, a.cfg.Region, a.cfg.Queues, a.cfg.PollTimeout())
		if err != nil {
			log.Printf("Worker %s[%d]: poll failed: %v", a.cfg.WorkerID, slot, err)
			time.Sleep(a.cfg.RetryBackoff())
			continue
		}
		if job == nil {
			continue
		}
		a.process(ctx, slot, job)
	}
}

func (a *Agent) process(ctx context.Context, slot int, job *models.Job) {
	log.Printf("Worker %s[%d]: picked up job %s (%s)", a.cfg.WorkerID, slot, job.ID, job.Name)

	if cancelled, err := a.queue.CancelRequested(ctx, job.ID); err != nil {
		log.Printf("Worker %s[%d]: cancel check failed: %v", a.cfg.WorkerID, slot, err)
	} else if cancelled {
		a.finish(ctx, job, models.JobCancelled, nil, "cancelled before start", nil)
		return
	}

	attempt := job.Attempts + 1
	a.publish(ctx, models.JobEvent{
		Type:     models.EventStatus,
		JobID:    job.ID,
		Status:   models.JobRunning,
		WorkerID: a.cfg.WorkerID,
		Attempt:  attempt,
		At:       time.Now().UTC(),
	})

	ws, err := PrepareWorkspace(ctx, a.cfg.WorkspaceRoot, job)
	if err != nil {
		a.retryOrFail(ctx, job, attempt, fmt.Errorf("workspace: %w", err), nil)
		return
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Printf("Worker %s[%d]: cleanup failed for job %s: %v", a.cfg.WorkerID, slot, job.ID, err)
		}
	}()

	collector := newLogCollector(a.queue, job.ID)

	runCtx, cancelRun := context.WithCancel(ctx)
	watch := a.watchCancel(runCtx, cancelRun, job.ID)

	res, err := Run(runCtx, RunSpec{
		Dir:     ws.Dir,
		Command: job.Command,
		Env:     jobEnv(job),
		Timeout: time.Duration(job.TimeoutSec) * time.Second,
	}, collector.Log)

	watch.stop()
	cancelRun()

	switch {
	case watch.requested():
		a.finish(ctx, job, models.JobCancelled, nil, "cancelled while running", collector)
	case err != nil:
		a.retryOrFail(ctx, job, attempt, fmt.Errorf("exec: %w", err), collector)
	case res.TimedOut:
		msg := fmt.Sprintf("timed out after %ds", job.TimeoutSec)
		a.finish(ctx, job, models.JobTimedOut, nil, msg, collector)
	case res.ExitCode == 0:
		code := 0
		a.finish(ctx, job, models.JobSucceeded, &code, "", collector)
	default:
		code := res.ExitCode
		msg := fmt.Sprintf("command exited with status %d", res.ExitCode)
		a.finish(ctx, job, models.JobFailed, &code, msg, collector)
	}
}

// retryOrFail handles infrastructure failures: the job goes back on its queue
// until the attempt budget is spent. Command failures never come here.
func (a *Agent) retryOrFail(ctx context.Context, job *models.Job, attempt int, cause error, collector *logCollector) {
	if attempt <= a.cfg.MaxRetries {
		log.Printf("Worker %s: job %s attempt %d failed, requeueing: %v", a.cfg.WorkerID, job.ID, attempt, cause)
		a.publish(ctx, models.JobEvent{
			Type:     models.EventStatus,
			JobID:    job.ID,
			Status:   models.JobQueued,
			WorkerID: a.cfg.WorkerID,
			Attempt:  attempt,
			Error:    cause.Error(),
			At:       time.Now().UTC(),
		})
		time.Sleep(a.cfg.RetryBackoff() * time.Duration(attempt))
		requeued := *job
		requeued.Attempts = attempt
		if err := a.queue.Enqueue(ctx, &requeued); err != nil {
			log.Printf("Worker %s: requeue failed for job %s: %v", a.cfg.WorkerID, job.ID, err)
			a.finish(ctx, job, models.JobFailed, nil, fmt.Sprintf("requeue failed: %v", err), collector)
		}
		return
	}
	a.finish(ctx, job, models.JobFailed, nil, cause.Error(), collector)
}

// finish uploads the log artifact, reports the terminal status and clears any
// cancel flag. The artifact is written for every outcome, success or not.
func (a *Agent) finish(ctx context.Context, job *models.Job, status models.JobStatus, exitCode *int, errMsg string, collector *logCollector) {
	logKey := ""
	if a.store != nil && collector != nil {
		key := objectstore.LogObjectKey(job.ID)
		if err := a.store.Put(ctx, key, []byte(collector.Content())); err != nil {
			log.Printf("Worker %s: artifact upload failed for job %s: %v", a.cfg.WorkerID, job.ID, err)
		} else {
			logKey = key
			if err := a.queue.ExpireLog(ctx, job.ID, logBufferTTL); err != nil {
				log.Printf("Worker %s: failed to expire log buffer for job %s: %v", a.cfg.WorkerID, job.ID, err)
			}
		}
	}

	a.publish(ctx, models.JobEvent{
		Type:     models.EventStatus,
		JobID:    job.ID,
		Status:   status,
		WorkerID: a.cfg.WorkerID,
		Attempt:  job.Attempts + 1,
		ExitCode: exitCode,
		Error:    errMsg,
		LogKey:   logKey,
		At:       time.Now().UTC(),
	})

	if status == models.JobCancelled {
		if err := a.queue.ClearCancel(ctx, job.ID); err != nil {
			log.Printf("Worker %s: failed to clear cancel flag for job %s: %v", a.cfg.WorkerID, job.ID, err)
		}
	}

	if exitCode != nil {
		log.Printf("Worker %s: job %s finished: %s (exit %d)", a.cfg.WorkerID, job.ID, status, *exitCode)
	} else {
		log.Printf("Worker %s: job %s finished: %s", a.cfg.WorkerID, job.ID, status)
	}
}

func (a *Agent) publish(ctx context.Context, event models.JobEvent) {
	if err := a.queue.PublishEvent(ctx, event); err != nil {
		log.Printf("Worker %s: failed to publish %s event for job %s: %v", a.cfg.WorkerID, event.Status, event.JobID, err)
	}
}

// cancelWatch polls the cancel flag while a job runs and kills the run when
// it appears.
type cancelWatch struct {
	stopCh chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	hit    bool
}

func (a *Agent) watchCancel(ctx context.Context, cancelRun context.CancelFunc, jobID string) *cancelWatch {
	w := &cancelWatch{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				cancelled, err := a.queue.CancelRequested(ctx, jobID)
				if err != nil {
					log.Printf("Worker %s: cancel check failed for job %s: %v", a.cfg.WorkerID, jobID, err)
					continue
				}
				if cancelled {
					w.mu.Lock()
					w.hit = true
					w.mu.Unlock()
					cancelRun()
					return
				}
			}
		}
	}()
	return w
}

func (w *cancelWatch) stop() {
	close(w.stopCh)
	<-w.done
}

func (w *cancelWatch) requested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hit
}

// logCollector keeps the full output for the artifact while forwarding each
// line to the live buffer. The lock also serializes the Redis appends so the
// artifact and the buffer agree on line order.
type logCollector struct {
	queue *services.QueueService
	jobID string

	mu        sync.Mutex
	lines     []string
	appendErr bool
}

func newLogCollector(queue *services.QueueService, jobID string) *logCollector {
	return &logCollector{queue: queue, jobID: jobID}
}

func (c *logCollector) Log(stream, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	if _, err := c.queue.AppendLog(context.Background(), c.jobID, stream, line); err != nil && !c.appendErr {
		log.Printf("Worker: failed to append log line for job %s: %v", c.jobID, err)
		c.appendErr = true
	}
}

// Content renders the collected output as the artifact body.
func (c *logCollector) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return ""
	}
	return strings.Join(c.lines, "\n") + "\n"
}

// jobEnv builds the extra environment for the command: the job's identity
// variables, then the submission's own env entries in sorted order.
func jobEnv(job *models.Job) []string {
	env := []string{
		"REFBATCH_JOB_ID=" + job.ID,
		"REFBATCH_JOB_NAME=" + job.Name,
		"REFBATCH_REGION=" + job.Region,
		"REFBATCH_JOB_TYPE=" + job.JobType,
		"REFBATCH_SOURCE_REF=" + job.SourceRef,
		"REFBATCH_REMOTE=" + job.RemoteURL,
		"REFBATCH_WORK_DIR=" + job.WorkDir,
	}

	keys := make([]string, 0, len(job.Env))
	for k := range job.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+job.Env[k])
	}
	return env
}
