package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akashbiswas0/Avenger/internal/models"
	"github.com/akashbiswas0/Avenger/pkg/queue"
)

// Dispatcher is the slice of the job queue the trigger needs.
type Dispatcher interface {
	EnqueueSettlement(ctx context.Context, payload queue.SettlementPayload) error
}

// Trigger records payout/refund intents and hands them to the settlement
// queue. It never moves value itself.
type Trigger struct {
	repo   *Repository
	queue  Dispatcher
	logger *zap.Logger
}

// NewTrigger creates a payout trigger.
func NewTrigger(repo *Repository, q Dispatcher, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{repo: repo, queue: q, logger: logger}
}

// PayCreator records a daily payout intent for one verified period.
func (t *Trigger) PayCreator(ctx context.Context, rentalID uuid.UUID, to string, amount float64) error {
	return t.record(ctx, rentalID, models.PayoutKindDaily, to, amount)
}

// RefundAdvertiser records a refund intent for the unserved remainder.
func (t *Trigger) RefundAdvertiser(ctx context.Context, rentalID uuid.UUID, to string, amount float64) error {
	return t.record(ctx, rentalID, models.PayoutKindRefund, to, amount)
}

func (t *Trigger) record(ctx context.Context, rentalID uuid.UUID, kind, to string, amount float64) error {
	p := &models.Payout{
		RentalID:  rentalID,
		Kind:      kind,
		Recipient: to,
		Amount:    amount,
		Status:    models.PayoutStatusPending,
	}
	if err := t.repo.Create(ctx, p); err != nil {
		return fmt.Errorf("record %s intent: %w", kind, err)
	}
	if err := t.queue.EnqueueSettlement(ctx, queue.SettlementPayload{PayoutID: p.ID, RentalID: rentalID}); err != nil {
		// The intent row survives; settlement can be re-driven from it.
		t.logger.Error("enqueue settlement failed",
			zap.Error(err), zap.String("payout_id", p.ID.String()), zap.String("kind", kind))
	}
	return nil
}
