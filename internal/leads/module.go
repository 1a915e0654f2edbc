// Package leads provides the lead bounded context: one lead per service
// request, resolved from inbound messages and advanced through the funnel.
package leads

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/http"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/handler"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/service"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	svc     *service.Service
	repo    *repository.Repository
}

// NewModule wires the leads repository, service, and staff endpoints.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, log)
	h := handler.New(svc, val)

	return &Module{handler: h, svc: svc, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service exposes lead resolution to the messaging pipeline.
func (m *Module) Service() *service.Service {
	return m.svc
}

// Repository exposes direct lead access to flows that hold their state in
// the lead data document.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// All leads routes require authentication
	leadsGroup := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leadsGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
