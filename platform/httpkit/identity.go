// Package httpkit provides HTTP utilities including caller identity extraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Caller is the authenticated operator making the request.
type Caller struct {
	UserID uuid.UUID
	Roles  []string
}

// HasRole checks if the caller has a specific role.
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CallerFrom extracts the authenticated caller from a Gin context.
func CallerFrom(c *gin.Context) (Caller, bool) {
	userID, ok := c.Get(ContextUserIDKey)
	if !ok {
		return Caller{}, false
	}
	uid, ok := userID.(uuid.UUID)
	if !ok {
		return Caller{}, false
	}

	var roleList []string
	if roles, ok := c.Get(ContextRolesKey); ok {
		roleList, _ = roles.([]string)
	}

	return Caller{UserID: uid, Roles: roleList}, true
}

// MustCaller extracts the caller or aborts with 401 Unauthorized.
// The returned bool tells the handler whether to continue.
func MustCaller(c *gin.Context) (Caller, bool) {
	caller, ok := CallerFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return Caller{}, false
	}
	return caller, true
}
