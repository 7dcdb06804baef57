package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akashbiswas0/Avenger/internal/auth"
	"github.com/akashbiswas0/Avenger/pkg/response"
)

const (
	// ContextAccountID is the key for the connected X account ID in gin context.
	ContextAccountID = "account_id"
	// ContextScreenName is the key for the connected X screen name in gin context.
	ContextScreenName = "screen_name"
)

// JWT returns a middleware that validates the dashboard session token and
// sets the account claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextAccountID, claims.AccountID)
		c.Set(ContextScreenName, claims.ScreenName)
		c.Next()
	}
}
