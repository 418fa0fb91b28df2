package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"selah/internal/shared/utils"
)

// UserContext resolves the authenticated user for client-facing routes.
// Authentication itself lives in the API gateway in front of this service;
// the gateway strips any inbound X-User-ID and injects the verified one, so
// the header is trusted here. Webhook routes do not use this middleware.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
			c.Abort()
			return
		}

		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || userID == 0 {
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid user identity")
			c.Abort()
			return
		}

		c.Set("user_id", uint(userID))
		c.Next()
	}
}
