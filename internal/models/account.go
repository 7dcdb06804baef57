package models

import (
	"time"

	"github.com/google/uuid"
)

// XAccount is a connected X (Twitter) account. OAuth 1.0a tokens are stored
// AES-GCM encrypted; the banner publish API needs both token and secret.
type XAccount struct {
	ID                   uuid.UUID `json:"id"`
	XUserID              string    `json:"x_user_id"`
	ScreenName           string    `json:"screen_name"`
	EncryptedAccessToken string    `json:"-"`
	EncryptedTokenSecret string    `json:"-"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
