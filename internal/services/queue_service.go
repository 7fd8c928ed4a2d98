package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisinfra "github.com/refbatch/refbatch/internal/infrastructure/redis"
	"github.com/refbatch/refbatch/internal/models"
)

// QueueService is the Redis side of the job pipeline: the per-region work
// queues, the per-job log buffers and the shared events channel. The server
// uses the producer half, workers use the consumer half.
type QueueService struct {
	redis *redis.Client
}

func NewQueueService(rdb *redis.Client) *QueueService {
	return &QueueService{redis: rdb}
}

// Enqueue pushes the full job record onto its region/queue list. Workers get
// everything they need from the payload and never read the database.
func (s *QueueService) Enqueue(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}
	key := redisinfra.QueueKey(job.Region, job.Queue)
	if err := s.redis.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to push job to redis: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next job on any of the given queues.
// Returns (nil, nil) when the timeout passes with nothing to do.
func (s *QueueService) Pop(ctx context.Context, region string, queues []string, timeout time.Duration) (*models.Job, error) {
	keys := make([]string, 0, len(queues))
	for _, q := range queues {
		keys = append(keys, redisinfra.QueueKey(region, q))
	}

	res, err := s.redis.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop job from redis: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}

	var job models.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	return &job, nil
}

// AppendLog stores one output line in the job's log buffer and publishes it
// on the events channel. The returned sequence number is the line's 1-based
// position in the buffer.
func (s *QueueService) AppendLog(ctx context.Context, jobID, stream, line string) (int64, error) {
	seq, err := s.redis.RPush(ctx, redisinfra.LogKey(jobID), line).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to append log line: %w", err)
	}

	event := models.JobEvent{
		Type:   models.EventLog,
		JobID:  jobID,
		Stream: stream,
		Line:   line,
		Seq:    seq,
		At:     time.Now().UTC(),
	}
	if err := s.PublishEvent(ctx, event); err != nil {
		return seq, err
	}
	return seq, nil
}

// LogLines returns the buffered log lines in [start, stop] (LRANGE semantics,
// so 0/-1 means everything).
func (s *QueueService) LogLines(ctx context.Context, jobID string, start, stop int64) ([]string, error) {
	lines, err := s.redis.LRange(ctx, redisinfra.LogKey(jobID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log lines: %w", err)
	}
	return lines, nil
}

// ExpireLog puts a TTL on the log buffer once the durable artifact exists.
func (s *QueueService) ExpireLog(ctx context.Context, jobID string, ttl time.Duration) error {
	if err := s.redis.Expire(ctx, redisinfra.LogKey(jobID), ttl).Err(); err != nil {
		return fmt.Errorf("failed to expire log buffer: %w", err)
	}
	return nil
}

// PublishEvent broadcasts a status or log event to every subscriber.
func (s *QueueService) PublishEvent(ctx context.Context, event models.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.redis.Publish(ctx, redisinfra.EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe opens a subscription on the events channel. The caller owns the
// returned PubSub and must Close it.
func (s *QueueService) Subscribe(ctx context.Context) *redis.PubSub {
	return s.redis.Subscribe(ctx, redisinfra.EventsChannel)
}

// RequestCancel sets the cancel flag a worker checks before and during a run.
// The flag carries a TTL so abandoned jobs do not leak keys.
func (s *QueueService) RequestCancel(ctx context.Context, jobID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, redisinfra.CancelKey(jobID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	return nil
}

// CancelRequested reports whether a cancel flag is set for the job.
func (s *QueueService) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	n, err := s.redis.Exists(ctx, redisinfra.CancelKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cancel flag: %w", err)
	}
	return n > 0, nil
}

// ClearCancel removes the cancel flag after the worker acted on it.
func (s *QueueService) ClearCancel(ctx context.Context, jobID string) error {
	if err := s.redis.Del(ctx, redisinfra.CancelKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cancel flag: %w", err)
	}
	return nil
}

// QueueDepth returns the number of jobs waiting on one region/queue list.
func (s *QueueService) QueueDepth(ctx context.Context, region, queue string) (int64, error) {
	n, err := s.redis.LLen(ctx, redisinfra.QueueKey(region, queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return n, nil
}
