package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/taskhive/backend/auth"
	"github.com/taskhive/backend/dto"
)

// SetUserStatus activates or deactivates an account. Deactivated users fail
// login with 403 and their refresh tokens are revoked immediately.
// Mounted behind Protect + RequireRole(admin).
func SetUserStatus(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := bson.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		var body dto.UserStatusDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := svc.SetUserStatus(c.Request.Context(), id, *body.IsActive, c.ClientIP())
		if err != nil {
			writeAuthError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":       user.ID.Hex(),
			"email":    user.Email,
			"role":     user.Role,
			"isActive": user.IsActive,
		})
	}
}
