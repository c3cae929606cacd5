package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tablestack/internal/utils"
)

const ClaimsKey = "staff_claims"

func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "missing bearer token",
			})
			return
		}

		claims, err := utils.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "invalid token",
			})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
