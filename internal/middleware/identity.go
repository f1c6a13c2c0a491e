package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/colon-app/backend/internal/auth"
	"github.com/colon-app/backend/pkg/response"
)

const (
	// ContextUserID is the key for the caller's user id in gin context.
	ContextUserID = "user_id"
	// ContextClaims is the key for the caller's identity claims in gin context.
	ContextClaims = "claims"
)

// TokenValidator turns a bearer token into identity claims.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Identity returns a middleware that requires a bearer token and stores the caller's claims in context.
func Identity(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "Missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "Invalid authorization header")
			c.Abort()
			return
		}
		claims, err := validator.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// UserID returns the authenticated caller's id, or "" outside the Identity middleware.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// Claims returns the authenticated caller's claims, or nil outside the Identity middleware.
func Claims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}
