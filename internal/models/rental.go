package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus for rentals. Set once at creation from the payment proof; never reverts.
const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// ApprovalStatus for rentals. One-shot owner decision.
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// RentalStatus is the operational lifecycle.
const (
	RentalStatusPending   = "pending"
	RentalStatusActive    = "active"
	RentalStatusCompleted = "completed"
	RentalStatusRejected  = "rejected"
	RentalStatusFailed    = "failed"
)

// Rental represents a paid banner rental on a listing.
type Rental struct {
	ID                 uuid.UUID  `json:"id"`
	ListingID          uuid.UUID  `json:"listing_id"`
	AdvertiserWallet   string     `json:"advertiser_wallet"`
	AdImageURL         string     `json:"ad_image_url"`
	AdFingerprint      []byte     `json:"-"` // computed once at approval
	DurationDays       int        `json:"duration_days"`
	TotalPrice         float64    `json:"total_price"`
	PaymentTxHash      string     `json:"payment_tx_hash,omitempty"`
	PaymentStatus      string     `json:"payment_status"`
	ApprovalStatus     string     `json:"approval_status"`
	Status             string     `json:"status"`
	DaysPaid           int        `json:"days_paid"`
	VerificationFailed bool       `json:"verification_failed"`
	RefundAmount       *float64   `json:"refund_amount,omitempty"`
	LastVerificationAt *time.Time `json:"last_verification_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	BannerPublishedAt  *time.Time `json:"banner_published_at,omitempty"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            time.Time  `json:"end_date"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// VerificationCandidate is a rental eligible for an integrity check,
// joined with the listing fields the verifier needs.
type VerificationCandidate struct {
	RentalID           uuid.UUID
	ListingID          uuid.UUID
	ScreenName         string
	CreatorWallet      string
	AdvertiserWallet   string
	AdFingerprint      []byte
	DaysPaid           int
	DurationDays       int
	PricePerDay        float64
	LastVerificationAt *time.Time
}
