package tasks

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	apphttp "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/http"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// Module is the tasks bounded context: the idempotent staff work queue that
// every automated flow writes into.
type Module struct {
	handler *Handler
	svc     *Service
}

func NewModule(pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	svc := NewService(repo, bus, log)
	return &Module{handler: NewHandler(svc), svc: svc}
}

func (m *Module) Name() string {
	return "tasks"
}

// Service exposes task creation to the other contexts.
func (m *Module) Service() *Service {
	return m.svc
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	tasksGroup := ctx.Protected.Group("/tasks")
	m.handler.RegisterRoutes(tasksGroup)
}

var _ apphttp.Module = (*Module)(nil)
