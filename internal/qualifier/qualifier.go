// Package qualifier runs per-service question flows over inbound messages.
// Each flow is a small state machine that fills answer slots from customer
// text, asks at most one clarifying question per reply, and decides when a
// lead is worth a human's time. Flow progress lives inside the lead data
// document under the flow's own key, so it survives worker restarts and
// never collides with extracted facts.
package qualifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/extract"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/tasks"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// Step is a flow's verdict for one inbound message. The messaging pipeline
// forwards QuestionKey and Objective to the reply job; everything else is
// handled by the engine before the step is returned.
type Step struct {
	Flow        string         // flow key, "" when no flow applied
	Ask         bool           // the reply should pose QuestionKey
	QuestionKey string         // stable question identifier, part of the send lock
	Objective   string         // instruction for the reply generator
	Escalate    bool           // eligibility heuristic passed and the timeline is urgent
	Reason      string         // why the lead escalated
	Summary     string         // set on the turn the flow stops asking
	Progress    map[string]any // updated flow state, persisted by the engine
	AdvanceTo   string         // proposed lead stage, guarded by the engine
}

// Flow is one per-service state machine. Advance ingests the customer's
// text into the progress document and decides the next move; it owns the
// document's shape entirely.
type Flow interface {
	Key() string
	DataKey() string
	Applies(lead repository.Lead) bool
	Advance(progress map[string]any, ext extract.Extraction, text string) Step
}

// LeadStore is the slice of the leads service the engine needs.
type LeadStore interface {
	SetDataField(ctx context.Context, id uuid.UUID, key string, value any) error
	AdvanceStage(ctx context.Context, id uuid.UUID, from, to string) error
}

// TaskCreator creates idempotent staff tasks.
type TaskCreator interface {
	CreateIfAbsent(ctx context.Context, params tasks.CreateParams) (tasks.Task, bool, error)
}

// Engine owns the flow registry and applies a flow's verdict: persist
// progress, move the lead stage forward, raise the escalation task.
type Engine struct {
	flows map[string]Flow
	leads LeadStore
	tasks TaskCreator
	bus   events.Bus
	log   *logger.Logger
}

func NewEngine(leadStore LeadStore, taskCreator TaskCreator, bus events.Bus, log *logger.Logger) *Engine {
	return &Engine{
		flows: map[string]Flow{},
		leads: leadStore,
		tasks: taskCreator,
		bus:   bus,
		log:   log,
	}
}

// Register adds a flow for a service type. Later registrations for the same
// service type replace earlier ones.
func (e *Engine) Register(serviceType string, flow Flow) {
	e.flows[serviceType] = flow
}

// Advance runs the flow registered for the lead's service type, if any, and
// applies its verdict. A zero Step with nil error means no flow applied.
func (e *Engine) Advance(ctx context.Context, lead repository.Lead, conversationID uuid.UUID, ext extract.Extraction, text string) (Step, error) {
	flow, ok := e.flows[lead.ServiceType]
	if !ok || !flow.Applies(lead) {
		return Step{}, nil
	}

	progress := domain.Namespace(lead.Data, flow.DataKey())
	step := flow.Advance(progress, ext, text)

	if step.Progress != nil {
		if err := e.leads.SetDataField(ctx, lead.ID, flow.DataKey(), step.Progress); err != nil {
			return Step{}, fmt.Errorf("persist %s progress: %w", flow.Key(), err)
		}
	}

	if step.AdvanceTo != "" && domain.CanAdvanceStage(lead.Stage, step.AdvanceTo) {
		err := e.leads.AdvanceStage(ctx, lead.ID, lead.Stage, step.AdvanceTo)
		switch {
		case errors.Is(err, repository.ErrStageConflict):
			// Another worker moved the lead first.
		case err != nil:
			return Step{}, fmt.Errorf("advance lead stage: %w", err)
		}
	}

	if step.Escalate {
		task, created, err := e.tasks.CreateIfAbsent(ctx, tasks.CreateParams{
			IdempotencyKey: tasks.EscalationKey(lead.ID, flow.Key()),
			LeadID:         &lead.ID,
			ConversationID: &conversationID,
			Kind:           tasks.KindEscalation,
			Title:          "Qualified lead ready for handover",
			Detail:         step.Reason,
		})
		if err != nil {
			return Step{}, fmt.Errorf("create escalation task: %w", err)
		}
		if created {
			e.log.Info("lead escalated",
				"lead_id", lead.ID,
				"flow", flow.Key(),
				"task_id", task.ID,
				"reason", step.Reason,
			)
			e.bus.Publish(ctx, events.LeadEscalated{
				BaseEvent:      events.NewBaseEvent(),
				LeadID:         lead.ID,
				ConversationID: conversationID,
				Flow:           flow.Key(),
				Reason:         step.Reason,
			})
		}
	}

	return step, nil
}
