package http

import (
	"github.com/gin-gonic/gin"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/httpkit"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the shared groups.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared route groups and middleware for module
// route registration.
type RouterContext struct {
	// V1 is the /api/v1 route group with only global middleware applied.
	V1 *gin.RouterGroup
	// Protected is the staff group under /api/v1: JWT auth plus the ops
	// rate limit.
	Protected *gin.RouterGroup
	// Admin is the admin-role group under /api/v1/admin.
	Admin *gin.RouterGroup
	// WebhookLimiter is the looser per-IP limiter for provider intake
	// routes, which burst on provider reconnect.
	WebhookLimiter *httpkit.WebhookRateLimiter
}
