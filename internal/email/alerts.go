package email

import (
	"context"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// Alerts forwards pipeline trouble to the operators' inbox. Every send is
// best-effort: a failed alert is logged and dropped, pipeline outcomes never
// depend on mail.
type Alerts struct {
	sender Sender
	to     string
	log    *logger.Logger
}

func NewAlerts(sender Sender, toEmail string, log *logger.Logger) *Alerts {
	return &Alerts{sender: sender, to: toEmail, log: log}
}

// RegisterHandlers subscribes the alert mailer to the events it reports on.
// Without an alerts address nothing is registered.
func (a *Alerts) RegisterHandlers(bus events.Bus) {
	if a.to == "" {
		a.log.Info("alert mail disabled, no alerts address configured")
		return
	}

	bus.Subscribe(events.LeadEscalated{}.EventName(), a)
	bus.Subscribe(events.OutboundJobFailed{}.EventName(), a)
	bus.Subscribe(events.ExpiryHintDetected{}.EventName(), a)
}

// Handle routes events to the matching alert mail.
func (a *Alerts) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadEscalated:
		a.handleLeadEscalated(ctx, e)
	case events.OutboundJobFailed:
		a.handleJobFailed(ctx, e)
	case events.ExpiryHintDetected:
		a.handleExpiryHint(ctx, e)
	}
	return nil
}

func (a *Alerts) handleLeadEscalated(ctx context.Context, e events.LeadEscalated) {
	err := a.sender.SendEscalationAlert(ctx, a.to, e.LeadID.String(), e.ConversationID.String(), e.Flow, e.Reason)
	if err != nil {
		a.log.Error("escalation alert mail failed", "error", err, "lead_id", e.LeadID)
	}
}

func (a *Alerts) handleJobFailed(ctx context.Context, e events.OutboundJobFailed) {
	err := a.sender.SendJobFailedAlert(ctx, a.to, e.JobID.String(), e.ConversationID.String(), e.Kind, e.Reason, e.Attempts)
	if err != nil {
		a.log.Error("job failure alert mail failed", "error", err, "job_id", e.JobID)
	}
}

func (a *Alerts) handleExpiryHint(ctx context.Context, e events.ExpiryHintDetected) {
	err := a.sender.SendExpiryHintAlert(ctx, a.to, e.TaskID.String(), e.DocumentType, e.HintText)
	if err != nil {
		a.log.Error("expiry hint alert mail failed", "error", err, "task_id", e.TaskID)
	}
}
