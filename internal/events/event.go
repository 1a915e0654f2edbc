// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent  = events.NewBaseEvent
	SubscribeFunc = events.SubscribeFunc
)

// =============================================================================
// Messaging Domain Events
// =============================================================================

// InboundMessageReceived is published after an inbound message passed dedup
// and was fully resolved into contact, conversation and lead.
type InboundMessageReceived struct {
	BaseEvent
	MessageID         uuid.UUID `json:"messageId"`
	ConversationID    uuid.UUID `json:"conversationId"`
	ContactID         uuid.UUID `json:"contactId"`
	LeadID            uuid.UUID `json:"leadId"`
	Channel           string    `json:"channel"`
	ProviderMessageID string    `json:"providerMessageId"`
	HumanOwned        bool      `json:"humanOwned"`
}

func (e InboundMessageReceived) EventName() string { return "messaging.inbound.received" }

// ExpiryHintDetected is published when an inbound message mentioned a document
// expiry without an explicit calendar date, so a confirm task was created
// instead of storing a date.
type ExpiryHintDetected struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	ContactID    uuid.UUID `json:"contactId"`
	TaskID       uuid.UUID `json:"taskId"`
	DocumentType string    `json:"documentType"`
	HintText     string    `json:"hintText"`
}

func (e ExpiryHintDetected) EventName() string { return "messaging.expiry_hint.detected" }

// =============================================================================
// Task Domain Events
// =============================================================================

// TaskCreated is published when a new task row was inserted. Idempotent
// replays of an existing key do not publish.
type TaskCreated struct {
	BaseEvent
	TaskID         uuid.UUID  `json:"taskId"`
	Kind           string     `json:"kind"`
	IdempotencyKey string     `json:"idempotencyKey"`
	LeadID         *uuid.UUID `json:"leadId,omitempty"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	Title          string     `json:"title"`
}

func (e TaskCreated) EventName() string { return "tasks.task.created" }

// =============================================================================
// Outbound Domain Events
// =============================================================================

// ReplyJobQueued is published when a reply job was enqueued for a conversation.
type ReplyJobQueued struct {
	BaseEvent
	JobID            uuid.UUID `json:"jobId"`
	ConversationID   uuid.UUID `json:"conversationId"`
	TriggerMessageID string    `json:"triggerMessageId"`
	RunAt            time.Time `json:"runAt"`
}

func (e ReplyJobQueued) EventName() string { return "outbound.job.queued" }

// OutboundMessageSent is published after a successful physical send.
type OutboundMessageSent struct {
	BaseEvent
	JobID             uuid.UUID `json:"jobId"`
	ConversationID    uuid.UUID `json:"conversationId"`
	MessageID         uuid.UUID `json:"messageId"`
	ProviderMessageID string    `json:"providerMessageId"`
	Kind              string    `json:"kind"`
}

func (e OutboundMessageSent) EventName() string { return "outbound.message.sent" }

// OutboundJobFailed is published when a job exhausted its attempts or hit a
// terminal error. The reply task for the triggering message remains open.
type OutboundJobFailed struct {
	BaseEvent
	JobID          uuid.UUID `json:"jobId"`
	ConversationID uuid.UUID `json:"conversationId"`
	Kind           string    `json:"kind"`
	Attempts       int       `json:"attempts"`
	Reason         string    `json:"reason"`
}

func (e OutboundJobFailed) EventName() string { return "outbound.job.failed" }

// =============================================================================
// Qualifier Domain Events
// =============================================================================

// LeadEscalated is published when a qualifier flow decided a lead deserves a
// human follow-up now.
type LeadEscalated struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	ConversationID uuid.UUID `json:"conversationId"`
	Flow           string    `json:"flow"`
	Reason         string    `json:"reason"`
}

func (e LeadEscalated) EventName() string { return "qualifier.lead.escalated" }

// =============================================================================
// Renewal Domain Events
// =============================================================================

// RenewalReminderQueued is published when a renewal stage passed all
// guardrails and its outbound job was staged.
type RenewalReminderQueued struct {
	BaseEvent
	ExpiryItemID uuid.UUID `json:"expiryItemId"`
	ContactID    uuid.UUID `json:"contactId"`
	Stage        string    `json:"stage"`
	JobID        uuid.UUID `json:"jobId"`
}

func (e RenewalReminderQueued) EventName() string { return "renewals.reminder.queued" }
