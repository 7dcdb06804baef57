package rentals

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/akashbiswas0/Avenger/internal/listings"
	"github.com/akashbiswas0/Avenger/internal/middleware"
	"github.com/akashbiswas0/Avenger/internal/payments"
	"github.com/akashbiswas0/Avenger/pkg/response"
)

// CreateRequest is the body for POST /rentals.
type CreateRequest struct {
	ListingID     uuid.UUID `json:"listing_id" binding:"required"`
	Duration      int       `json:"duration" binding:"required,gt=0"`
	TotalPrice    float64   `json:"total_price" binding:"required,gt=0"`
	AdImage       string    `json:"ad_image" binding:"required"`
	WalletAddress string    `json:"wallet_address" binding:"required"`
}

// DecideRequest is the body for POST /rentals/approve.
type DecideRequest struct {
	RentalID uuid.UUID `json:"rental_id" binding:"required"`
	Action   string    `json:"action" binding:"required"`
}

// Handler handles rental HTTP endpoints.
type Handler struct {
	service     *Service
	repo        *Repository
	listingRepo *listings.Repository
	baseURL     string
}

// NewHandler creates a rentals handler.
func NewHandler(service *Service, repo *Repository, listingRepo *listings.Repository, baseURL string) *Handler {
	return &Handler{service: service, repo: repo, listingRepo: listingRepo, baseURL: baseURL}
}

// Create handles POST /rentals. Without an X-PAYMENT proof it answers 402
// with the x402 challenge; with one it creates the rental pending approval.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	rental, challenge, err := h.service.Create(c.Request.Context(), CreateParams{
		ListingID:        req.ListingID,
		DurationDays:     req.Duration,
		TotalPrice:       req.TotalPrice,
		AdImage:          req.AdImage,
		AdvertiserWallet: req.WalletAddress,
		PaymentProof:     c.GetHeader(payments.PaymentHeader),
		Resource:         h.baseURL + c.Request.URL.Path,
	})
	switch {
	case errors.Is(err, ErrListingNotFound):
		response.NotFound(c, err.Error())
		return
	case errors.Is(err, ErrListingInactive), errors.Is(err, ErrMinDuration), errors.Is(err, ErrPriceMismatch):
		response.BadRequest(c, err.Error())
		return
	case err != nil:
		response.Internal(c, "failed to create rental")
		return
	}

	if challenge != nil {
		req0 := challenge.Accepts[0]
		c.Header("X-402-Payment-Required", "true")
		c.Header("X-402-Amount", fmt.Sprintf("%g", req.TotalPrice))
		c.Header("X-402-Currency", "USDC")
		c.Header("X-402-Recipient", req0.PayTo)
		c.Header("X-402-Network", req0.Network)
		response.PaymentRequired(c, challenge)
		return
	}
	response.Created(c, rental)
}

// Decide handles POST /rentals/approve (owner only).
func (h *Handler) Decide(c *gin.Context) {
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	accountID := c.MustGet(middleware.ContextAccountID).(uuid.UUID)

	rental, err := h.repo.GetByID(c.Request.Context(), req.RentalID)
	if err != nil {
		response.Internal(c, "failed to load rental")
		return
	}
	if rental == nil {
		response.NotFound(c, "rental not found")
		return
	}
	listing, err := h.listingRepo.GetByID(c.Request.Context(), rental.ListingID)
	if err != nil || listing == nil {
		response.Internal(c, "failed to load listing")
		return
	}
	if listing.XAccountID != accountID {
		response.Forbidden(c, "only the listing owner can decide this rental")
		return
	}

	updated, err := h.service.Decide(c.Request.Context(), req.RentalID, req.Action)
	switch {
	case errors.Is(err, ErrInvalidDecision):
		response.BadRequest(c, "action must be \"approved\" or \"rejected\"")
		return
	case errors.Is(err, ErrRentalNotFound):
		response.NotFound(c, "rental not found")
		return
	case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrPaymentNotConfirmed):
		response.BadRequest(c, err.Error())
		return
	case err != nil:
		response.Internal(c, "failed to update rental")
		return
	}
	response.OK(c, updated)
}

// GetByID handles GET /rentals/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid rental id")
		return
	}
	rental, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load rental")
		return
	}
	if rental == nil {
		response.NotFound(c, "rental not found")
		return
	}
	response.OK(c, rental)
}

// ListByWallet handles GET /rentals?wallet= for advertisers.
func (h *Handler) ListByWallet(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		response.BadRequest(c, "missing wallet parameter")
		return
	}
	list, err := h.repo.ListByAdvertiser(c.Request.Context(), wallet)
	if err != nil {
		response.Internal(c, "failed to list rentals")
		return
	}
	response.OK(c, list)
}

// ListMine handles GET /my/rentals: rentals against the owner's listings.
func (h *Handler) ListMine(c *gin.Context) {
	accountID := c.MustGet(middleware.ContextAccountID).(uuid.UUID)
	list, err := h.repo.ListByOwner(c.Request.Context(), accountID)
	if err != nil {
		response.Internal(c, "failed to list rentals")
		return
	}
	response.OK(c, list)
}
