package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/refbatch/refbatch/internal/models"
)

// EventPersister mirrors worker-reported status transitions from the events
// channel into PostgreSQL. It is the only path by which worker activity
// reaches the database.
type EventPersister struct {
	redis      *redis.Client
	jobService *JobService
}

func NewEventPersister(rdb *redis.Client, js *JobService) *EventPersister {
	return &EventPersister{
		redis:      rdb,
		jobService: js,
	}
}

func (p *EventPersister) Start() {
	go p.listenLoop()
}

func (p *EventPersister) listenLoop() {
	ctx := context.Background()
	queue := NewQueueService(p.redis)
	pubsub := queue.Subscribe(ctx)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for msg := range ch {
		var event models.JobEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("Persister: failed to unmarshal msg: %v", err)
			continue
		}
		if event.Type != models.EventStatus {
			continue
		}
		p.handleStatus(ctx, event)
	}
}

func (p *EventPersister) handleStatus(ctx context.Context, event models.JobEvent) {
	var err error
	switch {
	case event.Status == models.JobRunning:
		err = p.jobService.MarkRunning(ctx, event.JobID, event.WorkerID, event.Attempt, event.At)
	case event.Status == models.JobQueued:
		// A worker put the job back after an infrastructure failure.
		err = p.jobService.MarkRequeued(ctx, event.JobID, event.Attempt, event.Error)
	case event.Status.Terminal():
		err = p.jobService.MarkTerminal(ctx, event.JobID, event.Status, event.ExitCode, event.Error, event.LogKey, event.At)
	default:
		log.Printf("Persister: ignoring unknown status %q for job %s", event.Status, event.JobID)
		return
	}

	if err != nil {
		log.Printf("Persister: failed to persist %s for job %s: %v", event.Status, event.JobID, err)
		return
	}
	log.Printf("Persister: job %s -> %s", event.JobID, event.Status)
}
