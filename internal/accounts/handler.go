package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
	twauth "github.com/dghubble/oauth1/twitter"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akashbiswas0/Avenger/internal/auth"
	"github.com/akashbiswas0/Avenger/internal/middleware"
	"github.com/akashbiswas0/Avenger/internal/models"
	"github.com/akashbiswas0/Avenger/pkg/response"
)

const verifyCredentialsURL = "https://api.twitter.com/1.1/account/verify_credentials.json"

// ListingDeactivator withdraws a disconnecting owner's listings.
type ListingDeactivator interface {
	DeactivateByAccount(ctx context.Context, accountID uuid.UUID) error
}

// Handler handles the X OAuth 1.0a connect flow and account endpoints.
type Handler struct {
	oauthConfig *oauth1.Config
	states      *OAuthStateStore
	repo        *Repository
	cipher      *TokenCipher
	jwtService  *auth.JWTService
	listings    ListingDeactivator
	logger      *zap.Logger
}

// NewHandler creates an accounts handler.
func NewHandler(apiKey, apiSecret, callbackURL string, states *OAuthStateStore, repo *Repository,
	cipher *TokenCipher, jwtService *auth.JWTService, listings ListingDeactivator, logger *zap.Logger) *Handler {
	return &Handler{
		oauthConfig: &oauth1.Config{
			ConsumerKey:    apiKey,
			ConsumerSecret: apiSecret,
			CallbackURL:    callbackURL,
			Endpoint:       twauth.AuthorizeEndpoint,
		},
		states:     states,
		repo:       repo,
		cipher:     cipher,
		jwtService: jwtService,
		listings:   listings,
		logger:     logger,
	}
}

// Initiate handles POST /x-oauth/initiate: starts the handshake and returns
// the authorization URL the browser should open.
func (h *Handler) Initiate(c *gin.Context) {
	requestToken, requestSecret, err := h.oauthConfig.RequestToken()
	if err != nil {
		h.logger.Error("oauth request token failed", zap.Error(err))
		response.Internal(c, "failed to start X authorization")
		return
	}
	if err := h.states.Save(c.Request.Context(), requestToken, requestSecret); err != nil {
		h.logger.Error("oauth state save failed", zap.Error(err))
		response.Internal(c, "failed to start X authorization")
		return
	}
	authURL, err := h.oauthConfig.AuthorizationURL(requestToken)
	if err != nil {
		response.Internal(c, "failed to build authorization URL")
		return
	}
	response.OK(c, gin.H{"authorization_url": authURL.String()})
}

// Callback handles GET /x-oauth/callback: exchanges the verifier for access
// tokens, stores them encrypted, and issues a dashboard session token.
func (h *Handler) Callback(c *gin.Context) {
	requestToken := c.Query("oauth_token")
	verifier := c.Query("oauth_verifier")
	if requestToken == "" || verifier == "" {
		response.BadRequest(c, "missing oauth_token or oauth_verifier")
		return
	}

	requestSecret, err := h.states.Take(c.Request.Context(), requestToken)
	if errors.Is(err, ErrStateNotFound) {
		response.BadRequest(c, "authorization expired, restart the connect flow")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load authorization state")
		return
	}

	accessToken, accessSecret, err := h.oauthConfig.AccessToken(requestToken, requestSecret, verifier)
	if err != nil {
		h.logger.Error("oauth access token exchange failed", zap.Error(err))
		response.BadRequest(c, "X authorization failed")
		return
	}

	xUserID, screenName, err := h.verifyCredentials(c.Request.Context(), accessToken, accessSecret)
	if err != nil {
		h.logger.Error("verify credentials failed", zap.Error(err))
		response.Internal(c, "failed to verify X account")
		return
	}

	encToken, err := h.cipher.Encrypt(accessToken)
	if err != nil {
		response.Internal(c, "failed to store credentials")
		return
	}
	encSecret, err := h.cipher.Encrypt(accessSecret)
	if err != nil {
		response.Internal(c, "failed to store credentials")
		return
	}

	account := &models.XAccount{
		XUserID:              xUserID,
		ScreenName:           screenName,
		EncryptedAccessToken: encToken,
		EncryptedTokenSecret: encSecret,
	}
	if err := h.repo.Upsert(c.Request.Context(), account); err != nil {
		h.logger.Error("account upsert failed", zap.Error(err))
		response.Internal(c, "failed to save X account")
		return
	}

	sessionToken, err := h.jwtService.Generate(account.ID, account.ScreenName)
	if err != nil {
		response.Internal(c, "failed to create session")
		return
	}

	h.logger.Info("X account connected",
		zap.String("account_id", account.ID.String()), zap.String("screen_name", screenName))
	response.OK(c, gin.H{"token": sessionToken, "account": account})
}

// Me handles GET /x-account.
func (h *Handler) Me(c *gin.Context) {
	accountID := c.MustGet(middleware.ContextAccountID).(uuid.UUID)
	account, err := h.repo.GetByID(c.Request.Context(), accountID)
	if err != nil {
		response.Internal(c, "failed to load account")
		return
	}
	if account == nil {
		response.NotFound(c, "account not found")
		return
	}
	response.OK(c, account)
}

// Disconnect handles DELETE /x-account: drops the stored tokens and
// withdraws the owner's listings so nobody rents a banner we can no longer
// publish to.
func (h *Handler) Disconnect(c *gin.Context) {
	accountID := c.MustGet(middleware.ContextAccountID).(uuid.UUID)

	if err := h.listings.DeactivateByAccount(c.Request.Context(), accountID); err != nil {
		response.Internal(c, "failed to deactivate listings")
		return
	}
	deleted, err := h.repo.Delete(c.Request.Context(), accountID)
	if err != nil {
		response.Internal(c, "failed to disconnect account")
		return
	}
	if !deleted {
		response.NotFound(c, "account not found")
		return
	}
	h.logger.Info("X account disconnected", zap.String("account_id", accountID.String()))
	response.OK(c, gin.H{"disconnected": true})
}

func (h *Handler) verifyCredentials(ctx context.Context, accessToken, accessSecret string) (string, string, error) {
	client := h.oauthConfig.Client(ctx, oauth1.NewToken(accessToken, accessSecret))
	client.Timeout = 15 * time.Second

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, verifyCredentialsURL, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("verify credentials: status %d", resp.StatusCode)
	}

	var body struct {
		IDStr      string `json:"id_str"`
		ScreenName string `json:"screen_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", err
	}
	if body.IDStr == "" || body.ScreenName == "" {
		return "", "", errors.New("verify credentials: empty identity")
	}
	return body.IDStr, body.ScreenName, nil
}
