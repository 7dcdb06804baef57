package listings

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/akashbiswas0/Avenger/internal/middleware"
	"github.com/akashbiswas0/Avenger/internal/models"
	"github.com/akashbiswas0/Avenger/pkg/response"
)

// CreateRequest is the body for POST /listings.
type CreateRequest struct {
	WalletAddress string  `json:"wallet_address" binding:"required"`
	PricePerDay   float64 `json:"price_per_day" binding:"required,gt=0"`
	MinDays       int     `json:"min_days" binding:"required,gt=0"`
	Pitch         string  `json:"pitch"`
}

// Handler handles listing HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a listings handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /listings (connected owners only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	accountID := c.MustGet(middleware.ContextAccountID).(uuid.UUID)
	screenName := c.MustGet(middleware.ContextScreenName).(string)

	l := &models.Listing{
		XAccountID:    accountID,
		ScreenName:    screenName,
		WalletAddress: req.WalletAddress,
		PricePerDay:   req.PricePerDay,
		MinDays:       req.MinDays,
		Pitch:         req.Pitch,
	}
	if err := h.repo.Create(c.Request.Context(), l); err != nil {
		response.Internal(c, "failed to create listing")
		return
	}
	response.Created(c, l)
}

// List handles GET /listings: the public marketplace.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListActive(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list listings")
		return
	}
	response.OK(c, list)
}

// ListMine handles GET /my/listings.
func (h *Handler) ListMine(c *gin.Context) {
	accountID := c.MustGet(middleware.ContextAccountID).(uuid.UUID)
	list, err := h.repo.ListByAccount(c.Request.Context(), accountID)
	if err != nil {
		response.Internal(c, "failed to list listings")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /listings/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid listing id")
		return
	}
	l, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load listing")
		return
	}
	if l == nil {
		response.NotFound(c, "listing not found")
		return
	}
	response.OK(c, l)
}

// Deactivate handles PATCH /listings/:id/deactivate (owner only).
func (h *Handler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid listing id")
		return
	}
	accountID := c.MustGet(middleware.ContextAccountID).(uuid.UUID)

	applied, err := h.repo.Deactivate(c.Request.Context(), id, accountID)
	if err != nil {
		response.Internal(c, "failed to deactivate listing")
		return
	}
	if !applied {
		response.NotFound(c, "listing not found or already inactive")
		return
	}
	response.OK(c, gin.H{"id": id, "active": false})
}
