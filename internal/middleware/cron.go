package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/akashbiswas0/Avenger/pkg/response"
)

// CronAuth guards the recurring verification trigger with a shared bearer
// secret presented by the invoker. An empty secret disables the check,
// which is only acceptable in local development.
func CronAuth(secret string) gin.HandlerFunc {
	expected := "Bearer " + secret
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if subtle.ConstantTimeCompare([]byte(header), []byte(expected)) != 1 {
			response.Unauthorized(c, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}
