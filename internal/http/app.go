// Package http provides the HTTP server skeleton: the application container
// built by the composition root and the module registry the router mounts.
package http

import (
	"context"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/config"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// RouterConfig combines the config interfaces the HTTP layer needs.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies. main.go
// populates it and hands it to router.New.
type App struct {
	// Config holds the router configuration (HTTP and JWT settings only).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness checks (DB ping).
	Health HealthChecker
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
