package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

type alertCall struct {
	method string
	to     string
	args   []string
}

type fakeSender struct {
	calls []alertCall
	err   error
}

func (f *fakeSender) SendEscalationAlert(_ context.Context, toEmail, leadID, conversationID, flow, reason string) error {
	f.calls = append(f.calls, alertCall{method: "escalation", to: toEmail, args: []string{leadID, conversationID, flow, reason}})
	return f.err
}

func (f *fakeSender) SendJobFailedAlert(_ context.Context, toEmail, jobID, conversationID, kind, reason string, attempts int) error {
	f.calls = append(f.calls, alertCall{method: "job_failed", to: toEmail, args: []string{jobID, kind, reason}})
	return f.err
}

func (f *fakeSender) SendExpiryHintAlert(_ context.Context, toEmail, taskID, documentType, hintText string) error {
	f.calls = append(f.calls, alertCall{method: "expiry_hint", to: toEmail, args: []string{taskID, documentType, hintText}})
	return f.err
}

type recordingBus struct {
	subscribed []string
}

func (b *recordingBus) Publish(_ context.Context, _ events.Event) {}

func (b *recordingBus) PublishSync(_ context.Context, _ events.Event) error {
	return nil
}

func (b *recordingBus) Subscribe(eventName string, _ events.Handler) {
	b.subscribed = append(b.subscribed, eventName)
}

func TestRegisterHandlersSubscribesAlertEvents(t *testing.T) {
	bus := &recordingBus{}
	alerts := NewAlerts(&fakeSender{}, "ops@alainbcenter.com", logger.New("development"))

	alerts.RegisterHandlers(bus)

	want := []string{"qualifier.lead.escalated", "outbound.job.failed", "messaging.expiry_hint.detected"}
	if len(bus.subscribed) != len(want) {
		t.Fatalf("subscribed to %v, want %v", bus.subscribed, want)
	}
	for i, name := range want {
		if bus.subscribed[i] != name {
			t.Errorf("subscription %d = %q, want %q", i, bus.subscribed[i], name)
		}
	}
}

func TestRegisterHandlersWithoutAddressSubscribesNothing(t *testing.T) {
	bus := &recordingBus{}
	alerts := NewAlerts(&fakeSender{}, "", logger.New("development"))

	alerts.RegisterHandlers(bus)

	if len(bus.subscribed) != 0 {
		t.Errorf("subscribed to %v, want none without an alerts address", bus.subscribed)
	}
}

func TestHandleLeadEscalatedSendsAlert(t *testing.T) {
	sender := &fakeSender{}
	alerts := NewAlerts(sender, "ops@alainbcenter.com", logger.New("development"))

	leadID := uuid.New()
	err := alerts.Handle(context.Background(), events.LeadEscalated{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         leadID,
		ConversationID: uuid.New(),
		Flow:           "golden_visa",
		Reason:         "eligibility confirmed, wants a call",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("sender called %d times, want 1", len(sender.calls))
	}
	call := sender.calls[0]
	if call.method != "escalation" || call.to != "ops@alainbcenter.com" {
		t.Errorf("call %+v", call)
	}
	if call.args[0] != leadID.String() || call.args[2] != "golden_visa" {
		t.Errorf("call args %v", call.args)
	}
}

func TestHandleJobFailedSendsAlert(t *testing.T) {
	sender := &fakeSender{}
	alerts := NewAlerts(sender, "ops@alainbcenter.com", logger.New("development"))

	err := alerts.Handle(context.Background(), events.OutboundJobFailed{
		BaseEvent:      events.NewBaseEvent(),
		JobID:          uuid.New(),
		ConversationID: uuid.New(),
		Kind:           "reply",
		Attempts:       5,
		Reason:         "attempts_exceeded: send: gateway timeout",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.calls) != 1 || sender.calls[0].method != "job_failed" {
		t.Fatalf("calls %+v", sender.calls)
	}
}

func TestHandleExpiryHintSendsAlert(t *testing.T) {
	sender := &fakeSender{}
	alerts := NewAlerts(sender, "ops@alainbcenter.com", logger.New("development"))

	err := alerts.Handle(context.Background(), events.ExpiryHintDetected{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       uuid.New(),
		ContactID:    uuid.New(),
		TaskID:       uuid.New(),
		DocumentType: "residence_visa",
		HintText:     "my visa expires soon",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.calls) != 1 || sender.calls[0].method != "expiry_hint" {
		t.Fatalf("calls %+v", sender.calls)
	}
	if sender.calls[0].args[2] != "my visa expires soon" {
		t.Errorf("hint text %q", sender.calls[0].args[2])
	}
}

func TestHandleSwallowsSenderFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	alerts := NewAlerts(sender, "ops@alainbcenter.com", logger.New("development"))

	err := alerts.Handle(context.Background(), events.LeadEscalated{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         uuid.New(),
		ConversationID: uuid.New(),
		Flow:           "golden_visa",
		Reason:         "wants a call",
	})
	if err != nil {
		t.Errorf("alert mail failure must not propagate, got %v", err)
	}
}

func TestAlertTemplatesRender(t *testing.T) {
	escalation, err := renderEmailTemplate("escalation_alert.html", escalationAlertData{
		baseEmailData:  baseEmailData{Title: "Lead escalated", Heading: "Lead escalated", Subheading: "A qualifier flow wants a human."},
		LeadID:         "lead-42",
		ConversationID: "conv-42",
		Flow:           "golden_visa",
		Reason:         "budget confirmed",
	})
	if err != nil {
		t.Fatalf("render escalation: %v", err)
	}
	if !strings.Contains(escalation, "<html") || !strings.Contains(escalation, "golden_visa") || !strings.Contains(escalation, "budget confirmed") {
		t.Errorf("escalation content missing fields:\n%s", escalation)
	}

	jobFailed, err := renderEmailTemplate("job_failed_alert.html", jobFailedAlertData{
		baseEmailData:  baseEmailData{Title: "Outbound message failed", Heading: "Outbound message failed"},
		JobID:          "job-7",
		ConversationID: "conv-7",
		Kind:           "reply",
		Attempts:       5,
		Reason:         "send lock already held",
	})
	if err != nil {
		t.Fatalf("render job failed: %v", err)
	}
	if !strings.Contains(jobFailed, "job-7") || !strings.Contains(jobFailed, "send lock already held") {
		t.Errorf("job failed content missing fields:\n%s", jobFailed)
	}

	hint, err := renderEmailTemplate("expiry_hint_alert.html", expiryHintAlertData{
		baseEmailData: baseEmailData{Title: "Expiry mention", Heading: "Expiry mention"},
		TaskID:        "task-9",
		DocumentType:  "trade_license",
		HintText:      "license renewal is coming up",
	})
	if err != nil {
		t.Fatalf("render expiry hint: %v", err)
	}
	if !strings.Contains(hint, "trade_license") || !strings.Contains(hint, "license renewal is coming up") {
		t.Errorf("expiry hint content missing fields:\n%s", hint)
	}
}
