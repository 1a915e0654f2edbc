// Package router assembles the Gin engine: global middleware, health
// endpoints and module route registration.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apphttp "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/http"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/httpkit"
)

const readyTimeout = 2 * time.Second

// New builds the HTTP engine from the composed application. Modules mount
// their own routes through the RouterContext groups.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(corsMiddleware(app.Config))

	registerHealth(engine, app.Health)

	v1 := engine.Group("/api/v1")

	opsLimiter := httpkit.NewIPRateLimiter(rate.Limit(20), 40, app.Logger)
	protected := v1.Group("")
	protected.Use(opsLimiter.RateLimit(), httpkit.AuthRequired(app.Config))

	admin := protected.Group("/admin")
	admin.Use(httpkit.RequireRole("admin"))

	ctx := &apphttp.RouterContext{
		V1:             v1,
		Protected:      protected,
		Admin:          admin,
		WebhookLimiter: httpkit.NewWebhookRateLimiter(app.Logger),
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(ctx)
		app.Logger.Info("module routes registered", "module", m.Name())
	}

	return engine
}

func registerHealth(engine *gin.Engine, health apphttp.HealthChecker) {
	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/api/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		if err := health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

func corsMiddleware(cfg apphttp.RouterConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Webhook-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	origins := cfg.GetCORSOrigins()
	if cfg.GetCORSAllowAll() || len(origins) == 0 {
		// Credentials stay off whenever every origin is allowed.
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = cfg.GetCORSAllowCreds()
	}
	return cors.New(corsCfg)
}
