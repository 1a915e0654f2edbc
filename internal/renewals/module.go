package renewals

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	apphttp "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/http"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/config"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/validator"
)

// ModuleDeps wires the renewal engine to its collaborators. Conversations
// comes from the messaging module, Queue from outbound, Tasks from tasks.
type ModuleDeps struct {
	Conversations ConversationResolver
	Queue         StagedQueue
	Tasks         TaskCreator
	RunLog        ActionLog
	Config        config.RenewalConfig
	CompanyName   string
	Bus           events.Bus
	Validator     *validator.Validator
	Logger        *logger.Logger
}

type Module struct {
	handler *Handler
	repo    *Repository
	engine  *Engine
}

// NewModule loads the template catalog and business-hours window, then
// assembles repository, engine and handler. A broken catalog or timezone
// fails startup rather than the first sweep.
func NewModule(pool *pgxpool.Pool, deps ModuleDeps) (*Module, error) {
	catalog, err := LoadCatalog(deps.Config.GetRenewalTemplatesPath())
	if err != nil {
		return nil, err
	}
	hours, err := NewHours(deps.Config)
	if err != nil {
		return nil, err
	}

	repo := NewRepository(pool)
	engine := NewEngine(EngineDeps{
		Items:         repo,
		Conversations: deps.Conversations,
		Queue:         deps.Queue,
		Tasks:         deps.Tasks,
		RunLog:        deps.RunLog,
		Catalog:       catalog,
		Hours:         hours,
		StageDays:     deps.Config.GetRenewalStageDays(),
		MinInterval:   deps.Config.GetRenewalMinInterval(),
		WindowDays:    deps.Config.GetRenewalWindowDays(),
		CompanyName:   deps.CompanyName,
		Bus:           deps.Bus,
		Logger:        deps.Logger,
	})
	handler := NewHandler(engine, repo, deps.Validator, deps.Logger)

	return &Module{handler: handler, repo: repo, engine: engine}, nil
}

func (m *Module) Name() string {
	return "renewals"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/renewals"))
}

// Repository exposes the expiry store. The messaging pipeline records
// extracted dates through it.
func (m *Module) Repository() *Repository {
	return m.repo
}

// Engine exposes the sweep for the scheduled worker.
func (m *Module) Engine() *Engine {
	return m.engine
}

var _ apphttp.Module = (*Module)(nil)
