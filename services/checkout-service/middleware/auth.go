package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bmr-suspension/storefront-backend/services/common/auth"
)

const (
	UserContextKey = "userID"
	RoleContextKey = "role"

	// ServiceTokenHeader carries the shared secret of service-to-service calls.
	ServiceTokenHeader = "X-Service-Token"
)

// OptionalAuth attaches the caller's identity when a valid bearer token is
// sent. Guests and callers with unusable tokens continue as guests.
func OptionalAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			if id, err := verifier.Parse(header, "access"); err == nil {
				setIdentity(c, id)
			}
		}
		c.Next()
	}
}

// RequireAdmin rejects requests without a valid admin token.
func RequireAdmin(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
			return
		}
		id, err := verifier.Parse(header, "access")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
			return
		}
		if !id.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Admin access required"})
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// RequireServiceToken admits only callers presenting the shared service
// token. With no token configured every request is rejected.
func RequireServiceToken(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(ServiceTokenHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, id *auth.Identity) {
	c.Set(UserContextKey, id.UserID)
	c.Set(RoleContextKey, id.Role)
}

// GetUserID returns the authenticated user id, or "" for guests.
func GetUserID(c *gin.Context) string {
	if val, ok := c.Get(UserContextKey); ok {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}
