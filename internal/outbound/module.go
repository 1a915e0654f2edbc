package outbound

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	apphttp "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/http"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// Module is the outbound bounded context: the durable job queue between
// "we decided to message this customer" and "the provider accepted it".
// The HTTP surface is the ops view; the Processor that drains the queue is
// wired separately in the worker.
type Module struct {
	handler *Handler
	svc     *Service
	repo    *Repository
	locks   *LockRepository
}

func NewModule(pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	locks := NewLockRepository(pool)
	svc := NewService(repo, locks, bus, log)
	return &Module{handler: NewHandler(svc, nil), svc: svc, repo: repo, locks: locks}
}

func (m *Module) Name() string {
	return "outbound"
}

// Service exposes enqueueing to the inbound pipeline and the renewal engine.
func (m *Module) Service() *Service {
	return m.svc
}

// Repository exposes the job store for the worker-side Processor.
func (m *Module) Repository() *Repository {
	return m.repo
}

// Locks exposes the send-lock store for the worker-side Processor.
func (m *Module) Locks() *LockRepository {
	return m.locks
}

// SetQueueRunner injects a processor after construction so the ops surface
// can run synchronous queue passes. The processor needs collaborators from
// modules built after this one.
func (m *Module) SetQueueRunner(runner QueueRunner) {
	m.handler.runner = runner
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/outbound")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
