// Package worker consumes background jobs: banner activations after rental
// approval and payout settlements after verification runs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akashbiswas0/Avenger/internal/models"
	"github.com/akashbiswas0/Avenger/internal/payments"
	"github.com/akashbiswas0/Avenger/pkg/queue"
)

// JobSource is the queue slice the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job, key string) error
}

// BannerPublisher pushes an approved creative to the owner's profile.
type BannerPublisher interface {
	Publish(ctx context.Context, rentalID uuid.UUID) error
}

// PayoutStore is the payout slice the processor needs.
type PayoutStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	MarkSettled(ctx context.Context, id uuid.UUID, status, txHash string) error
}

// Processor consumes and executes queued jobs.
type Processor struct {
	jobs      JobSource
	publisher BannerPublisher
	payouts   PayoutStore
	settler   payments.Settler
	logger    *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(jobs JobSource, publisher BannerPublisher, payouts PayoutStore, settler payments.Settler, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{jobs: jobs, publisher: publisher, payouts: payouts, settler: settler, logger: logger}
}

// Run consumes jobs until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("job processor started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("job processor stopped")
			return
		default:
		}

		job, key, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			p.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed",
				zap.String("job_id", job.ID), zap.String("type", string(job.Type)),
				zap.Int("attempt", job.Attempt), zap.Error(err))
			if rerr := p.jobs.Retry(ctx, job, key); rerr != nil {
				p.logger.Error("job retry failed", zap.String("job_id", job.ID), zap.Error(rerr))
			}
			continue
		}
		p.logger.Debug("job done", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	}
}

// Process executes a single job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeBannerActivation:
		var payload queue.BannerActivationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode activation payload: %w", err)
		}
		return p.publisher.Publish(ctx, payload.RentalID)

	case queue.JobTypeSettlement:
		var payload queue.SettlementPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode settlement payload: %w", err)
		}
		return p.settle(ctx, payload)

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (p *Processor) settle(ctx context.Context, payload queue.SettlementPayload) error {
	payout, err := p.payouts.GetByID(ctx, payload.PayoutID)
	if err != nil {
		return fmt.Errorf("load payout: %w", err)
	}
	if payout.Status != models.PayoutStatusPending {
		// A retried job found the intent already settled.
		p.logger.Debug("payout already settled",
			zap.String("payout_id", payout.ID.String()), zap.String("status", payout.Status))
		return nil
	}

	status, txHash, err := p.settler.Settle(ctx, payout)
	if err != nil {
		return fmt.Errorf("settle payout %s: %w", payout.ID, err)
	}
	if err := p.payouts.MarkSettled(ctx, payout.ID, status, txHash); err != nil {
		return fmt.Errorf("mark payout settled: %w", err)
	}

	p.logger.Info("payout settled",
		zap.String("payout_id", payout.ID.String()), zap.String("kind", payout.Kind),
		zap.String("status", status), zap.Float64("amount", payout.Amount))
	return nil
}
