package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing represents a banner slot a profile owner offers for rent.
// Listings are deactivated, never deleted, once rentals reference them.
type Listing struct {
	ID            uuid.UUID `json:"id"`
	XAccountID    uuid.UUID `json:"x_account_id"`
	ScreenName    string    `json:"screen_name"`
	WalletAddress string    `json:"wallet_address"`
	PricePerDay   float64   `json:"price_per_day"`
	MinDays       int       `json:"min_days"`
	Pitch         string    `json:"pitch,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
