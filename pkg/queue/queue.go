package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueActivations is the Redis list key for banner activation jobs.
	QueueActivations = "worker:activations"
	// QueueSettlements is the Redis list key for payout/refund settlement jobs.
	QueueSettlements = "worker:settlements"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeBannerActivation JobType = "banner_activation"
	JobTypeSettlement       JobType = "settlement"
)

// BannerActivationPayload is the payload for banner activation jobs,
// enqueued when the owner approves a rental.
type BannerActivationPayload struct {
	RentalID uuid.UUID `json:"rental_id"`
}

// SettlementPayload is the payload for payout/refund settlement jobs.
type SettlementPayload struct {
	PayoutID uuid.UUID `json:"payout_id"`
	RentalID uuid.UUID `json:"rental_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueBannerActivation enqueues a banner activation job.
func (q *Queue) EnqueueBannerActivation(ctx context.Context, payload BannerActivationPayload) error {
	job, raw, err := newJob(JobTypeBannerActivation, payload)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueActivations, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued banner activation job",
		zap.String("job_id", job.ID), zap.String("rental_id", payload.RentalID.String()))
	return nil
}

// EnqueueSettlement enqueues a payout/refund settlement job.
func (q *Queue) EnqueueSettlement(ctx context.Context, payload SettlementPayload) error {
	job, raw, err := newJob(JobTypeSettlement, payload)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueSettlements, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued settlement job",
		zap.String("job_id", job.ID), zap.String("payout_id", payload.PayoutID.String()))
	return nil
}

func newJob(t JobType, payload interface{}) (*Job, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job: %w", err)
	}
	return job, raw, nil
}

// Dequeue blocks until a job is available or ctx is done. Returns job and key (queue name).
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, 0, QueueActivations, QueueSettlements).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job, key string) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if key == "" {
		key = QueueActivations
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
