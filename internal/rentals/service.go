package rentals

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // creative decode support
	_ "image/png"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akashbiswas0/Avenger/config"
	"github.com/akashbiswas0/Avenger/internal/fingerprint"
	"github.com/akashbiswas0/Avenger/internal/models"
	"github.com/akashbiswas0/Avenger/internal/payments"
	"github.com/akashbiswas0/Avenger/pkg/queue"
)

// PriceTolerance is the allowed rounding drift between the agreed total and
// price-per-day x duration.
const PriceTolerance = 0.01

// Boundary errors surfaced synchronously to callers.
var (
	ErrListingNotFound     = errors.New("listing not found")
	ErrListingInactive     = errors.New("listing is not active")
	ErrMinDuration         = errors.New("duration below listing minimum")
	ErrPriceMismatch       = errors.New("price mismatch")
	ErrRentalNotFound      = errors.New("rental not found")
	ErrAlreadyProcessed    = errors.New("rental already processed")
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	ErrInvalidDecision     = errors.New("invalid decision")
)

// Store is the rental persistence the state machine needs.
type Store interface {
	Create(ctx context.Context, rental *models.Rental) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rental, error)
	Approve(ctx context.Context, id uuid.UUID, fp []byte, at time.Time) (bool, error)
	Reject(ctx context.Context, id uuid.UUID) (bool, error)
}

// ListingStore resolves the listing a rental targets.
type ListingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

// Dispatcher is the slice of the job queue used for the fire-and-forget
// activation side effect.
type Dispatcher interface {
	EnqueueBannerActivation(ctx context.Context, payload queue.BannerActivationPayload) error
}

// AssetFetcher loads the original ad creative for fingerprinting.
type AssetFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Service owns the rental state machine: creation with payment challenge,
// the one-shot owner decision, and the activation trigger.
type Service struct {
	store      Store
	listings   ListingStore
	dispatcher Dispatcher
	fetcher    AssetFetcher
	payment    config.PaymentConfig
	logger     *zap.Logger
}

// NewService creates the rental service.
func NewService(store Store, listings ListingStore, dispatcher Dispatcher, fetcher AssetFetcher, payment config.PaymentConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		listings:   listings,
		dispatcher: dispatcher,
		fetcher:    fetcher,
		payment:    payment,
		logger:     logger,
	}
}

// CreateParams are the inputs to rental creation.
type CreateParams struct {
	ListingID        uuid.UUID
	DurationDays     int
	TotalPrice       float64
	AdImage          string // data URI, http(s) URL, or s3:// ref
	AdvertiserWallet string
	PaymentProof     string // opaque X-PAYMENT header value; empty means not yet paid
	Resource         string // URL of this operation, echoed in the challenge
}

// Create validates the request against the listing and either returns an
// x402 challenge (no proof attached, nothing persisted) or inserts the
// rental as paid and pending approval. The banner is not activated here.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Rental, *payments.Challenge, error) {
	listing, err := s.listings.GetByID(ctx, p.ListingID)
	if err != nil {
		return nil, nil, fmt.Errorf("load listing: %w", err)
	}
	if listing == nil {
		return nil, nil, ErrListingNotFound
	}
	if !listing.Active {
		return nil, nil, ErrListingInactive
	}
	if p.DurationDays < listing.MinDays {
		return nil, nil, ErrMinDuration
	}
	expected := listing.PricePerDay * float64(p.DurationDays)
	if math.Abs(p.TotalPrice-expected) > PriceTolerance {
		return nil, nil, ErrPriceMismatch
	}

	if p.PaymentProof == "" {
		challenge := payments.NewChallenge(s.payment, p.Resource, p.TotalPrice, p.DurationDays)
		return nil, &challenge, nil
	}

	now := time.Now().UTC()
	rental := &models.Rental{
		ListingID:        p.ListingID,
		AdvertiserWallet: p.AdvertiserWallet,
		AdImageURL:       p.AdImage,
		DurationDays:     p.DurationDays,
		TotalPrice:       p.TotalPrice,
		PaymentTxHash:    payments.ExtractTxHash(p.PaymentProof),
		PaymentStatus:    models.PaymentStatusPaid,
		ApprovalStatus:   models.ApprovalStatusPending,
		Status:           models.RentalStatusPending,
		StartDate:        now,
		EndDate:          now.AddDate(0, 0, p.DurationDays),
	}
	if err := s.store.Create(ctx, rental); err != nil {
		return nil, nil, fmt.Errorf("create rental: %w", err)
	}
	s.logger.Info("rental created",
		zap.String("rental_id", rental.ID.String()),
		zap.String("listing_id", p.ListingID.String()),
		zap.Int("duration_days", p.DurationDays))
	return rental, nil, nil
}

// Decide applies the one-shot owner decision. The transition is guarded,
// not idempotent: a second call on a decided rental fails with
// ErrAlreadyProcessed. Approval computes and stores the creative's
// fingerprint and fires the banner activation asynchronously; an activation
// enqueue failure is logged and never rolls back the approval.
func (s *Service) Decide(ctx context.Context, rentalID uuid.UUID, decision string) (*models.Rental, error) {
	if decision != models.ApprovalStatusApproved && decision != models.ApprovalStatusRejected {
		return nil, ErrInvalidDecision
	}

	rental, err := s.store.GetByID(ctx, rentalID)
	if err != nil {
		return nil, fmt.Errorf("load rental: %w", err)
	}
	if rental == nil {
		return nil, ErrRentalNotFound
	}
	if rental.ApprovalStatus != models.ApprovalStatusPending {
		return nil, ErrAlreadyProcessed
	}
	if rental.PaymentStatus != models.PaymentStatusPaid {
		return nil, ErrPaymentNotConfirmed
	}

	if decision == models.ApprovalStatusRejected {
		applied, err := s.store.Reject(ctx, rentalID)
		if err != nil {
			return nil, fmt.Errorf("reject rental: %w", err)
		}
		if !applied {
			return nil, ErrAlreadyProcessed
		}
		return s.store.GetByID(ctx, rentalID)
	}

	fp := s.fingerprintCreative(ctx, rental)
	applied, err := s.store.Approve(ctx, rentalID, fp, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("approve rental: %w", err)
	}
	if !applied {
		return nil, ErrAlreadyProcessed
	}

	if err := s.dispatcher.EnqueueBannerActivation(ctx, queue.BannerActivationPayload{RentalID: rentalID}); err != nil {
		s.logger.Error("banner activation enqueue failed",
			zap.Error(err), zap.String("rental_id", rentalID.String()))
	}
	return s.store.GetByID(ctx, rentalID)
}

// fingerprintCreative computes the reference fingerprint of the original ad.
// A creative that cannot be fetched or decoded yields no fingerprint; the
// verifier skips such rentals rather than failing them.
func (s *Service) fingerprintCreative(ctx context.Context, rental *models.Rental) []byte {
	data, err := s.fetcher.Fetch(ctx, rental.AdImageURL)
	if err != nil {
		s.logger.Warn("ad creative fetch failed, approving without fingerprint",
			zap.Error(err), zap.String("rental_id", rental.ID.String()))
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("ad creative decode failed, approving without fingerprint",
			zap.Error(err), zap.String("rental_id", rental.ID.String()))
		return nil
	}
	return fingerprint.Compute(img).Bytes()
}
