package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/israelseleshi/building-management-system-sub000/pkg/jwt"
	"github.com/israelseleshi/building-management-system-sub000/pkg/response"
)

const (
	ParticipantIDKey = "participant_id"
	DisplayNameKey   = "display_name"
	RolesKey         = "roles"
	AuthHeaderKey    = "Authorization"
	BearerPrefix     = "Bearer "
)

// TokenValidator validates access tokens. *jwt.Manager satisfies it.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware validates bearer tokens issued by the identity system.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth returns a Gin middleware that rejects requests without a valid token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		claims, err := m.validator.ValidateToken(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "token has expired"
			}
			response.Unauthorized(c, msg)
			c.Abort()
			return
		}

		c.Set(ParticipantIDKey, claims.ParticipantID)
		c.Set(DisplayNameKey, claims.DisplayName)
		c.Set(RolesKey, claims.Roles)

		c.Next()
	}
}

// GetParticipantID extracts the authenticated participant ID from Gin context.
func GetParticipantID(c *gin.Context) string {
	return c.GetString(ParticipantIDKey)
}

// GetDisplayName extracts the display name from Gin context.
func GetDisplayName(c *gin.Context) string {
	return c.GetString(DisplayNameKey)
}

// GetRoles extracts roles from Gin context.
func GetRoles(c *gin.Context) []string {
	return c.GetStringSlice(RolesKey)
}
