package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/taskhive/backend/auth"
	"github.com/taskhive/backend/models"
)

// ContextUserKey is where Protect stores the authenticated user for
// downstream handlers and predicates.
const ContextUserKey = "authUser"

// Protect validates the bearer access token and attaches the resolved user
// to the request context. Failures map onto the auth error taxonomy:
// malformed/expired/stale tokens are 401, a deleted subject is 404, a
// deactivated account is 403.
func Protect(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized to access this route"})
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		user, err := svc.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has expired"})
			case errors.Is(err, auth.ErrPasswordChanged):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "password changed recently, please log in again"})
			case errors.Is(err, auth.ErrUserNotFound):
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user no longer exists"})
			case errors.Is(err, auth.ErrAccountDisabled):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account deactivated"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			}
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user attached by Protect.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// RequireRole gates a route on the authenticated user's role. It must run
// after Protect.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || user.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

// RequireVerifiedEmail gates a route on the email-verified flag. It must
// run after Protect.
func RequireVerifiedEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.EmailVerified {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "please verify your email to access this resource"})
			return
		}
		c.Next()
	}
}
