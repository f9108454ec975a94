package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/demonflare/fallowl/internal/auth"
	"github.com/demonflare/fallowl/pkg/response"
)

const (
	// ContextUserID is the key for the operator's user ID in gin context.
	ContextUserID = "user_id"
	// ContextAccountID is the key for the operator's account ID.
	ContextAccountID = "account_id"
	// ContextRole is the key for the operator's role.
	ContextRole = "role"
)

// JWT returns a middleware that validates the bearer token and sets the
// operator claims in context.
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
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextAccountID, claims.AccountID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}
