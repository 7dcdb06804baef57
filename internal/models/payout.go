package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutKind distinguishes daily creator payouts from advertiser refunds.
const (
	PayoutKindDaily  = "daily_payout"
	PayoutKindRefund = "refund"
)

// PayoutStatus for settlement intents.
const (
	PayoutStatusPending  = "pending"
	PayoutStatusRecorded = "recorded" // intent kept, no facilitator configured
	PayoutStatusSent     = "sent"
	PayoutStatusFailed   = "failed"
)

// Payout is a value-movement intent produced by the verification cycle.
// The service computes amounts and records intent; settlement is external.
type Payout struct {
	ID        uuid.UUID `json:"id"`
	RentalID  uuid.UUID `json:"rental_id"`
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	TxHash    string    `json:"tx_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
