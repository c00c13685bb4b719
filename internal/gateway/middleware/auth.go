package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/utils"
)

// JWTAuth validates the Bearer token and installs the caller identity into
// the request context for the service layer.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authorization header required",
			})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authorization header must be a Bearer token",
			})
			return
		}

		claims, err := utils.ParseToken(secret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
			})
			return
		}

		ident := auth.Identity{UserID: claims.UserId, Role: auth.Role(claims.Role)}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), ident))
		c.Next()
	}
}
