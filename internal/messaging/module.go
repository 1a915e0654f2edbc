// Package messaging provides the inbound message bounded context: webhook
// intake, deduplication, contact and conversation resolution, and the
// pipeline that fans one customer message out into tasks and reply jobs.
package messaging

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	apphttp "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/http"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/validator"
)

// ModuleDeps carries the cross-context collaborators the pipeline needs.
// Scheduler, Qualifier, Media and Presign are optional; without them the
// pipeline degrades to periodic queue passes, no qualification and
// text-only intake.
type ModuleDeps struct {
	Leads      LeadResolver
	Tasks      TaskCreator
	Expiries   ExpiryRecorder
	Queue      ReplyQueue
	Scheduler  JobScheduler
	Qualifier  Qualifier
	Media      MediaStore
	Presign    Presigner
	Bus        events.Bus
	Validator  *validator.Validator
	Logger     *logger.Logger
	ReplyDelay time.Duration
}

// Module is the messaging bounded context module implementing http.Module.
type Module struct {
	handler       *Handler
	pipeline      *Pipeline
	contacts      *ContactRepository
	conversations *ConversationRepository
	messages      *MessageRepository
	apiKeys       *APIKeyRepository
}

// NewModule creates and initializes the messaging module with all its
// dependencies.
func NewModule(pool *pgxpool.Pool, deps ModuleDeps) *Module {
	contacts := NewContactRepository(pool)
	conversations := NewConversationRepository(pool)
	messages := NewMessageRepository(pool)
	dedup := NewDedupRepository(pool)
	apiKeys := NewAPIKeyRepository(pool)

	pipeline := NewPipeline(PipelineDeps{
		Contacts:      contacts,
		Conversations: conversations,
		Messages:      messages,
		Dedup:         dedup,
		Leads:         deps.Leads,
		Tasks:         deps.Tasks,
		Expiries:      deps.Expiries,
		Queue:         deps.Queue,
		Scheduler:     deps.Scheduler,
		Qualifier:     deps.Qualifier,
		Media:         deps.Media,
		Bus:           deps.Bus,
		Log:           deps.Logger,
		ReplyDelay:    deps.ReplyDelay,
	})
	handler := NewHandler(pipeline, conversations, messages, apiKeys, deps.Queue, deps.Scheduler, deps.Presign, deps.Validator, deps.Logger)

	return &Module{
		handler:       handler,
		pipeline:      pipeline,
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		apiKeys:       apiKeys,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "messaging"
}

// RegisterRoutes mounts messaging routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Provider-facing intake (API key auth, no JWT)
	channels := ctx.V1.Group("/channels")
	channels.Use(ctx.WebhookLimiter.RateLimit(), APIKeyAuthMiddleware(m.apiKeys))
	m.handler.RegisterWebhookRoutes(channels)

	// Staff inbox (JWT auth)
	m.handler.RegisterOpsRoutes(ctx.Protected.Group("/conversations"))

	// API key management (JWT auth + admin role)
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/webhook/keys"))
}

// SetExpiryRecorder injects the renewals store after construction. The
// renewals module needs this module's conversation repository, so the two
// cannot be built in one pass.
func (m *Module) SetExpiryRecorder(rec ExpiryRecorder) {
	m.pipeline.deps.Expiries = rec
}

// Pipeline exposes the inbound pipeline for non-HTTP entry points.
func (m *Module) Pipeline() *Pipeline {
	return m.pipeline
}

// Contacts exposes the contact repository for sibling modules.
func (m *Module) Contacts() *ContactRepository {
	return m.contacts
}

// Conversations exposes the conversation repository. The outbound worker
// uses it to resolve recipients and record sends.
func (m *Module) Conversations() *ConversationRepository {
	return m.conversations
}

// Messages exposes the message repository. The reply generator reads
// recent transcript context through it.
func (m *Module) Messages() *MessageRepository {
	return m.messages
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
