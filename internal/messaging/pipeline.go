package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/extract"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	leadsvc "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/service"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/qualifier"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/tasks"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/apperr"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/phone"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/sanitize"
)

// Store slices the pipeline needs from this package's repositories.
type (
	ContactStore interface {
		FindByPhone(ctx context.Context, rawPhone string) (Contact, error)
		FindByEmail(ctx context.Context, email string) (Contact, error)
		Create(ctx context.Context, params CreateContactParams) (Contact, error)
		AdoptPhone(ctx context.Context, id uuid.UUID, rawPhone string) (Contact, error)
		FillIdentity(ctx context.Context, id uuid.UUID, patch IdentityPatch) (Contact, error)
	}

	ConversationStore interface {
		GetOrCreate(ctx context.Context, contactID uuid.UUID, channel string) (Conversation, error)
		TouchInbound(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	MessageStore interface {
		InsertInbound(ctx context.Context, params InsertInboundParams) (Message, bool, error)
		FindInbound(ctx context.Context, conversationID uuid.UUID, providerMessageID string) (Message, error)
	}

	DedupStore interface {
		TryInsert(ctx context.Context, channel, key string) (bool, error)
		Remove(ctx context.Context, channel, key string) error
	}
)

// Collaborators from the other contexts.
type (
	// LeadResolver attaches inbound activity to leads and folds extracted
	// facts into them.
	LeadResolver interface {
		Resolve(ctx context.Context, contactID uuid.UUID, detectedServiceType string, now time.Time) (leadsvc.Resolution, error)
		Get(ctx context.Context, id uuid.UUID) (repository.Lead, error)
		MergeExtractedData(ctx context.Context, leadID uuid.UUID, patch map[string]any) (map[string]any, error)
	}

	// TaskCreator creates idempotent staff tasks.
	TaskCreator interface {
		CreateIfAbsent(ctx context.Context, params tasks.CreateParams) (tasks.Task, bool, error)
	}

	// ExpiryRecorder stores explicit expiry dates for the renewal engine.
	ExpiryRecorder interface {
		RecordFromExtraction(ctx context.Context, contactID uuid.UUID, leadID *uuid.UUID, dates []extract.ExpiryDate) (int, error)
	}

	// ReplyQueue enqueues the automated reply job.
	ReplyQueue interface {
		EnqueueReply(ctx context.Context, params outbound.ReplyParams) (outbound.Job, bool, error)
	}

	// JobScheduler arms a timer so the job runs at its due time instead of
	// waiting for the next periodic queue pass.
	JobScheduler interface {
		ScheduleJobDue(ctx context.Context, jobID uuid.UUID, runAt time.Time) error
	}

	// Qualifier advances the per-service question flow for the lead.
	Qualifier interface {
		Advance(ctx context.Context, lead repository.Lead, conversationID uuid.UUID, ext extract.Extraction, text string) (qualifier.Step, error)
	}

	// MediaStore persists inbound attachments.
	MediaStore interface {
		Upload(ctx context.Context, objectKey string, data []byte, contentType string) error
	}
)

// InboundMessage is one normalized provider delivery.
type InboundMessage struct {
	Channel           string
	From              string
	ContactName       string
	Body              string
	ProviderMessageID string
	Media             []byte
	MediaContentType  string
	ReceivedAt        time.Time
}

// SubmitResult reports what one delivery produced. Duplicate means the
// delivery was seen before and nothing else in the result is set.
type SubmitResult struct {
	Duplicate      bool       `json:"duplicate"`
	ContactID      uuid.UUID  `json:"contactId"`
	ConversationID uuid.UUID  `json:"conversationId"`
	LeadID         uuid.UUID  `json:"leadId"`
	MessageID      uuid.UUID  `json:"messageId"`
	TasksCreated   []string   `json:"tasksCreated"`
	JobID          *uuid.UUID `json:"jobId,omitempty"`
}

// PipelineDeps wires the pipeline's collaborators. Scheduler, Qualifier and
// Media are optional; the pipeline degrades gracefully without them.
type PipelineDeps struct {
	Contacts      ContactStore
	Conversations ConversationStore
	Messages      MessageStore
	Dedup         DedupStore
	Leads         LeadResolver
	Tasks         TaskCreator
	Expiries      ExpiryRecorder
	Queue         ReplyQueue
	Scheduler     JobScheduler
	Qualifier     Qualifier
	Media         MediaStore
	Bus           events.Bus
	Log           *logger.Logger
	ReplyDelay    time.Duration
}

// Pipeline turns one raw provider delivery into contact, conversation, lead,
// message, tasks and a queued reply. Every stage past the dedup claim is
// idempotent, so a replay after a mid-pipeline failure converges on the same
// rows instead of duplicating them.
type Pipeline struct {
	deps PipelineDeps
	log  *logger.Logger
	now  func() time.Time
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{deps: deps, log: deps.Log, now: time.Now}
}

// SubmitInboundMessage runs the full inbound pipeline for one delivery.
// Duplicates return early with no side effects. On a mid-pipeline error the
// dedup claim is released so the provider's retry gets to run again.
func (p *Pipeline) SubmitInboundMessage(ctx context.Context, msg InboundMessage) (SubmitResult, error) {
	if !IsKnownChannel(msg.Channel) {
		return SubmitResult{}, apperr.Validation(fmt.Sprintf("unknown channel %q", msg.Channel))
	}
	normalized := phone.NormalizeE164(msg.From)
	if normalized == "" {
		return SubmitResult{}, apperr.Validation("sender phone is required")
	}
	body := sanitize.MessageBody(msg.Body)
	if body == "" && len(msg.Media) == 0 {
		return SubmitResult{}, apperr.Validation("message has no body and no media")
	}
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}

	dedupKey := msg.ProviderMessageID
	if dedupKey == "" {
		dedupKey = FallbackDedupKey(msg.Channel, normalized, body, receivedAt)
	}
	claimed, err := p.deps.Dedup.TryInsert(ctx, msg.Channel, dedupKey)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("claim delivery: %w", err)
	}
	if !claimed {
		p.log.Info("duplicate delivery ignored", "channel", msg.Channel, "dedup_key", dedupKey)
		return SubmitResult{Duplicate: true}, nil
	}

	result, err := p.run(ctx, msg, normalized, body, dedupKey, receivedAt)
	if err != nil {
		if rmErr := p.deps.Dedup.Remove(ctx, msg.Channel, dedupKey); rmErr != nil {
			p.log.Anomaly("dedup_release", dedupKey, rmErr.Error())
		}
		return SubmitResult{}, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, msg InboundMessage, normalized, body, dedupKey string, receivedAt time.Time) (SubmitResult, error) {
	now := p.now()
	ext := extract.FromMessage(body)

	// The trigger id threads through the reply task, the job and the send
	// lock, so replays of this delivery always hit the same rows.
	triggerID := msg.ProviderMessageID
	if triggerID == "" {
		triggerID = dedupKey
	}

	contact, err := p.resolveContact(ctx, msg, ext)
	if err != nil {
		return SubmitResult{}, err
	}

	conv, err := p.deps.Conversations.GetOrCreate(ctx, contact.ID, msg.Channel)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("resolve conversation: %w", err)
	}
	if err := p.deps.Conversations.TouchInbound(ctx, conv.ID, receivedAt); err != nil {
		return SubmitResult{}, fmt.Errorf("touch conversation: %w", err)
	}

	lead, err := p.resolveLead(ctx, contact.ID, conv.ID, msg.ProviderMessageID, ext.ServiceType, now)
	if err != nil {
		return SubmitResult{}, err
	}

	mediaKey := p.storeMedia(ctx, conv.ID, triggerID, msg)

	insert := InsertInboundParams{
		ConversationID:    conv.ID,
		LeadID:            &lead.ID,
		Body:              body,
		MediaObjectKey:    mediaKey,
		MediaContentType:  optional(msg.MediaContentType),
		ProviderMessageID: optional(msg.ProviderMessageID),
	}
	message, created, err := p.deps.Messages.InsertInbound(ctx, insert)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("persist message: %w", err)
	}
	if !created {
		p.log.Info("message row already present, replaying downstream stages",
			"message_id", message.ID, "conversation_id", conv.ID)
	}

	if patch := ext.DataPatch(); len(patch) > 0 {
		merged, err := p.deps.Leads.MergeExtractedData(ctx, lead.ID, patch)
		if err != nil {
			// A broken merge must not block the rest of the pipeline.
			p.log.Warn("extraction merge failed", "lead_id", lead.ID, "error", err)
		} else {
			lead.Data = merged
		}
	}

	tasksCreated := p.recordExpiries(ctx, contact.ID, lead, conv.ID, ext)

	replyTask, taskCreated, err := p.deps.Tasks.CreateIfAbsent(ctx, tasks.CreateParams{
		IdempotencyKey: tasks.ReplyKey(lead.ID, triggerID),
		LeadID:         &lead.ID,
		ConversationID: &conv.ID,
		Kind:           tasks.KindReply,
		Title:          "Reply to customer message",
		Detail:         messagePreview(body),
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create reply task: %w", err)
	}
	if taskCreated {
		tasksCreated = append(tasksCreated, replyTask.IdempotencyKey)
	}

	var step qualifier.Step
	if p.deps.Qualifier != nil {
		step, err = p.deps.Qualifier.Advance(ctx, lead, conv.ID, ext, body)
		if err != nil {
			p.log.Warn("qualifier advance failed", "lead_id", lead.ID, "error", err)
			step = qualifier.Step{}
		}
	}

	var jobID *uuid.UUID
	if conv.HumanOwned() {
		p.log.Info("automated reply suppressed, conversation human-owned",
			"conversation_id", conv.ID, "assigned_user_id", conv.AssignedUserID)
	} else {
		job, _, err := p.deps.Queue.EnqueueReply(ctx, outbound.ReplyParams{
			ConversationID:   conv.ID,
			LeadID:           &lead.ID,
			TriggerMessageID: triggerID,
			QuestionKey:      step.QuestionKey,
			Objective:        step.Objective,
			Delay:            p.deps.ReplyDelay,
		})
		if err != nil {
			return SubmitResult{}, fmt.Errorf("enqueue reply: %w", err)
		}
		jobID = &job.ID
		if p.deps.Scheduler != nil {
			if err := p.deps.Scheduler.ScheduleJobDue(ctx, job.ID, job.RunAt); err != nil {
				p.log.Warn("job timer not armed, periodic pass will pick it up",
					"job_id", job.ID, "error", err)
			}
		}
	}

	p.deps.Bus.Publish(ctx, events.InboundMessageReceived{
		BaseEvent:         events.NewBaseEvent(),
		MessageID:         message.ID,
		ConversationID:    conv.ID,
		ContactID:         contact.ID,
		LeadID:            lead.ID,
		Channel:           msg.Channel,
		ProviderMessageID: msg.ProviderMessageID,
		HumanOwned:        conv.HumanOwned(),
	})

	p.log.Info("inbound message processed",
		"channel", msg.Channel,
		"conversation_id", conv.ID,
		"lead_id", lead.ID,
		"message_id", message.ID,
		"tasks_created", len(tasksCreated),
		"reply_queued", jobID != nil,
	)

	return SubmitResult{
		ContactID:      contact.ID,
		ConversationID: conv.ID,
		LeadID:         lead.ID,
		MessageID:      message.ID,
		TasksCreated:   tasksCreated,
		JobID:          jobID,
	}, nil
}

// resolveContact finds or creates the sender and fills identity gaps from
// the channel profile and the extraction. Existing identity always wins.
func (p *Pipeline) resolveContact(ctx context.Context, msg InboundMessage, ext extract.Extraction) (Contact, error) {
	contact, err := p.deps.Contacts.FindByPhone(ctx, msg.From)
	switch {
	case errors.Is(err, ErrContactNotFound):
		contact, err = p.createOrAdoptContact(ctx, msg, ext)
		if errors.Is(err, ErrContactExists) {
			contact, err = p.deps.Contacts.FindByPhone(ctx, msg.From)
		}
		if err != nil {
			return Contact{}, fmt.Errorf("create contact: %w", err)
		}
	case err != nil:
		return Contact{}, fmt.Errorf("find contact: %w", err)
	}

	patch := IdentityPatch{
		Email:       ext.Email,
		FullName:    ext.FullName,
		Nationality: ext.Nationality,
	}
	if patch.FullName == "" {
		patch.FullName = msg.ContactName
	}
	if patch.Empty() {
		return contact, nil
	}
	filled, err := p.deps.Contacts.FillIdentity(ctx, contact.ID, patch)
	if err != nil {
		p.log.Warn("identity fill failed", "contact_id", contact.ID, "error", err)
		return contact, nil
	}
	return filled, nil
}

// createOrAdoptContact backs a sender whose number is not on file yet. When
// the message carries an email we already know and that contact has no phone,
// the contact adopts this number, so replies route to where the customer is
// actually writing from. An email match that owns a different number stays
// untouched and the new number gets its own contact.
func (p *Pipeline) createOrAdoptContact(ctx context.Context, msg InboundMessage, ext extract.Extraction) (Contact, error) {
	if ext.Email != "" {
		existing, err := p.deps.Contacts.FindByEmail(ctx, ext.Email)
		switch {
		case err == nil && existing.PhoneNormalized == nil:
			return p.deps.Contacts.AdoptPhone(ctx, existing.ID, msg.From)
		case err != nil && !errors.Is(err, ErrContactNotFound):
			return Contact{}, fmt.Errorf("find contact by email: %w", err)
		}
	}
	return p.deps.Contacts.Create(ctx, CreateContactParams{
		Phone:    msg.From,
		FullName: msg.ContactName,
	})
}

// resolveLead prefers the lead already linked to this exact message, which
// covers replays whose dedup claim was released. Otherwise the open-lead
// reuse rule decides.
func (p *Pipeline) resolveLead(ctx context.Context, contactID, conversationID uuid.UUID, providerMessageID, detectedServiceType string, now time.Time) (repository.Lead, error) {
	if providerMessageID != "" {
		if existing, err := p.deps.Messages.FindInbound(ctx, conversationID, providerMessageID); err == nil && existing.LeadID != nil {
			if lead, err := p.deps.Leads.Get(ctx, *existing.LeadID); err == nil {
				return lead, nil
			}
		}
	}
	res, err := p.deps.Leads.Resolve(ctx, contactID, detectedServiceType, now)
	if err != nil {
		return repository.Lead{}, fmt.Errorf("resolve lead: %w", err)
	}
	return res.Lead, nil
}

// storeMedia uploads the attachment under a deterministic key so a replay
// overwrites the same object. Failure costs the attachment, not the message.
func (p *Pipeline) storeMedia(ctx context.Context, conversationID uuid.UUID, triggerID string, msg InboundMessage) *string {
	if len(msg.Media) == 0 || p.deps.Media == nil {
		return nil
	}
	key := fmt.Sprintf("inbound/%s/%s", conversationID, triggerID)
	if err := p.deps.Media.Upload(ctx, key, msg.Media, msg.MediaContentType); err != nil {
		p.log.Warn("media upload failed, storing message without attachment",
			"conversation_id", conversationID, "error", err)
		return nil
	}
	return &key
}

// recordExpiries stores explicit dates and turns vague mentions into
// confirm tasks. All of it is best-effort; a failure is logged and the
// message keeps flowing.
func (p *Pipeline) recordExpiries(ctx context.Context, contactID uuid.UUID, lead repository.Lead, conversationID uuid.UUID, ext extract.Extraction) []string {
	var tasksCreated []string

	if len(ext.ExpiryDates) > 0 && p.deps.Expiries != nil {
		dates := make([]extract.ExpiryDate, 0, len(ext.ExpiryDates))
		for _, d := range ext.ExpiryDates {
			if d.DocumentType == "" {
				d.DocumentType = domain.DocumentForServiceType(lead.ServiceType)
			}
			if d.DocumentType == "" {
				// No way to tell what expires; route it through a confirm task.
				ext.ExpiryHints = append(ext.ExpiryHints, extract.ExpiryHint{Text: d.Verbatim})
				continue
			}
			dates = append(dates, d)
		}
		if len(dates) > 0 {
			if n, err := p.deps.Expiries.RecordFromExtraction(ctx, contactID, &lead.ID, dates); err != nil {
				p.log.Warn("expiry recording failed", "lead_id", lead.ID, "error", err)
			} else if n > 0 {
				p.log.Info("expiry dates recorded", "lead_id", lead.ID, "count", n)
			}
		}
	}

	for _, hint := range ext.ExpiryHints {
		docType := hint.DocumentType
		if docType == "" {
			docType = domain.DocumentForServiceType(lead.ServiceType)
		}
		label := docType
		if label == "" {
			label = "document"
		}
		task, created, err := p.deps.Tasks.CreateIfAbsent(ctx, tasks.CreateParams{
			IdempotencyKey: tasks.ConfirmExpiryKey(lead.ID, hint.Text),
			LeadID:         &lead.ID,
			ConversationID: &conversationID,
			Kind:           tasks.KindConfirmExpiry,
			Title:          "Confirm expiry date with customer",
			Detail:         fmt.Sprintf("Customer mentioned a %s expiry without a usable date: %q", strings.ReplaceAll(label, "_", " "), hint.Text),
		})
		if err != nil {
			p.log.Warn("confirm-expiry task failed", "lead_id", lead.ID, "error", err)
			continue
		}
		if !created {
			continue
		}
		tasksCreated = append(tasksCreated, task.IdempotencyKey)
		p.deps.Bus.Publish(ctx, events.ExpiryHintDetected{
			BaseEvent:    events.NewBaseEvent(),
			LeadID:       lead.ID,
			ContactID:    contactID,
			TaskID:       task.ID,
			DocumentType: docType,
			HintText:     hint.Text,
		})
	}
	return tasksCreated
}

func messagePreview(body string) string {
	if body == "" {
		return "(media message)"
	}
	const max = 140
	if len(body) <= max {
		return body
	}
	return body[:max] + "…"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
