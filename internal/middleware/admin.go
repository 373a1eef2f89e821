package middleware

import (
	"net/http"

	"dukasell/internal/domain"

	"github.com/gin-gonic/gin"
)

// AdminRequired checks that the authenticated subject has the ADMIN role.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// UserRequired keeps admin tokens off customer routes; admin ids live in a
// different table.
func UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != domain.RoleUser {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user access required"})
			return
		}
		c.Next()
	}
}
