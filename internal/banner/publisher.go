// Package banner publishes approved ad creatives to the owner's X profile
// banner via the OAuth 1.0a media API.
package banner

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akashbiswas0/Avenger/internal/accounts"
	"github.com/akashbiswas0/Avenger/internal/models"
)

const updateBannerURL = "https://api.twitter.com/1.1/account/update_profile_banner.json"

// RentalStore is the rental slice the publisher needs.
type RentalStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rental, error)
	StampBannerPublished(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ListingStore resolves the listing a rental targets.
type ListingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

// AccountStore resolves the listing owner's connected X account.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.XAccount, error)
}

// AssetFetcher loads the ad creative bytes.
type AssetFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Publisher pushes a rental's creative to the owner's profile banner.
type Publisher struct {
	rentals     RentalStore
	listings    ListingStore
	accounts    AccountStore
	assets      AssetFetcher
	cipher      *accounts.TokenCipher
	oauthConfig *oauth1.Config
	endpoint    string
	logger      *zap.Logger
}

// NewPublisher creates a banner publisher.
func NewPublisher(rentals RentalStore, listings ListingStore, accountStore AccountStore,
	assets AssetFetcher, cipher *accounts.TokenCipher, apiKey, apiSecret string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		rentals:     rentals,
		listings:    listings,
		accounts:    accountStore,
		assets:      assets,
		cipher:      cipher,
		oauthConfig: oauth1.NewConfig(apiKey, apiSecret),
		endpoint:    updateBannerURL,
		logger:      logger,
	}
}

// Publish uploads the rental's creative as the listing owner's banner.
// Called from the activation job after approval; errors bubble to the queue
// for retry.
func (p *Publisher) Publish(ctx context.Context, rentalID uuid.UUID) error {
	rental, err := p.rentals.GetByID(ctx, rentalID)
	if err != nil {
		return fmt.Errorf("load rental: %w", err)
	}
	if rental == nil {
		return fmt.Errorf("rental %s not found", rentalID)
	}
	if rental.ApprovalStatus != models.ApprovalStatusApproved || rental.Status != models.RentalStatusActive {
		// Approval was reversed or the rental already ended between enqueue
		// and processing. Nothing to publish.
		p.logger.Warn("skipping banner publish, rental no longer active",
			zap.String("rental_id", rentalID.String()), zap.String("status", rental.Status))
		return nil
	}

	listing, err := p.listings.GetByID(ctx, rental.ListingID)
	if err != nil {
		return fmt.Errorf("load listing: %w", err)
	}
	if listing == nil {
		return fmt.Errorf("listing %s not found", rental.ListingID)
	}

	account, err := p.accounts.GetByID(ctx, listing.XAccountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return fmt.Errorf("x account %s not found", listing.XAccountID)
	}

	accessToken, err := p.cipher.Decrypt(account.EncryptedAccessToken)
	if err != nil {
		return fmt.Errorf("decrypt access token: %w", err)
	}
	accessSecret, err := p.cipher.Decrypt(account.EncryptedTokenSecret)
	if err != nil {
		return fmt.Errorf("decrypt token secret: %w", err)
	}

	creative, err := p.assets.Fetch(ctx, rental.AdImageURL)
	if err != nil {
		return fmt.Errorf("fetch creative: %w", err)
	}

	if err := p.upload(ctx, accessToken, accessSecret, creative); err != nil {
		return fmt.Errorf("upload banner: %w", err)
	}

	now := time.Now().UTC()
	if err := p.rentals.StampBannerPublished(ctx, rentalID, now); err != nil {
		// The banner is live; losing the stamp only costs observability.
		p.logger.Error("stamp banner publish failed",
			zap.String("rental_id", rentalID.String()), zap.Error(err))
	}

	p.logger.Info("banner published",
		zap.String("rental_id", rentalID.String()), zap.String("screen_name", account.ScreenName))
	return nil
}

func (p *Publisher) upload(ctx context.Context, accessToken, accessSecret string, creative []byte) error {
	form := url.Values{}
	form.Set("banner", base64.StdEncoding.EncodeToString(creative))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := p.oauthConfig.Client(ctx, oauth1.NewToken(accessToken, accessSecret))
	client.Timeout = 30 * time.Second
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("banner API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
