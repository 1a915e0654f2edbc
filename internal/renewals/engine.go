package renewals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/messaging"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/tasks"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/phone"
)

// StageExpired is the ladder rung for items already past their date. The
// other rungs derive from the configured thresholds: "d90", "d60", "d30",
// "d7" for the defaults.
const StageExpired = "expired"

// RuleRenewalReminder is the run-log rule name for staged reminders.
const RuleRenewalReminder = "renewal_reminder"

// Skip reasons, stable strings for the sweep report.
const (
	SkipNotDue             = "not_due"
	SkipAlreadyActioned    = "already_actioned"
	SkipRemindedRecently   = "reminded_recently"
	SkipNoTemplate         = "no_template"
	SkipVarsUnresolved     = "template_vars_unresolved"
	SkipPhoneUndeliverable = "phone_undeliverable"
	SkipOutsideHours       = "outside_business_hours"
	SkipError              = "error"
)

type (
	// ItemStore is the slice of the repository the sweep uses.
	ItemStore interface {
		ListDue(ctx context.Context, until time.Time) ([]DueItem, error)
		StampReminder(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	// ConversationResolver finds or creates the conversation a staged
	// reminder goes out on.
	ConversationResolver interface {
		GetOrCreate(ctx context.Context, contactID uuid.UUID, channel string) (messaging.Conversation, error)
	}

	// StagedQueue inserts ready_to_send outbound jobs.
	StagedQueue interface {
		EnqueueStaged(ctx context.Context, params outbound.StagedParams) (outbound.Job, bool, error)
	}

	// TaskCreator creates the staff-visible renewal task.
	TaskCreator interface {
		CreateIfAbsent(ctx context.Context, params tasks.CreateParams) (tasks.Task, bool, error)
	}

	// ActionLog is the shared idempotency ledger for automated actions.
	ActionLog interface {
		TryMark(ctx context.Context, rule, subjectID, action, actionKey string) (bool, error)
		Seen(ctx context.Context, actionKey string) (bool, error)
	}
)

// Candidate is one expiry item the sweep considered. Send reports whether a
// reminder was staged (or would be, on a dry run); otherwise SkipReason
// names the guard that stopped it.
type Candidate struct {
	ItemID       uuid.UUID  `json:"itemId"`
	ContactID    uuid.UUID  `json:"contactId"`
	LeadID       *uuid.UUID `json:"leadId,omitempty"`
	DocumentType string     `json:"documentType"`
	ExpiryDate   time.Time  `json:"expiryDate"`
	DaysLeft     int        `json:"daysLeft"`
	Stage        string     `json:"stage,omitempty"`
	Send         bool       `json:"send"`
	SkipReason   string     `json:"skipReason,omitempty"`
	JobID        *uuid.UUID `json:"jobId,omitempty"`
}

type EngineDeps struct {
	Items         ItemStore
	Conversations ConversationResolver
	Queue         StagedQueue
	Tasks         TaskCreator
	RunLog        ActionLog
	Catalog       *Catalog
	Hours         Hours
	StageDays     []int
	MinInterval   time.Duration
	WindowDays    int
	CompanyName   string
	Bus           events.Bus
	Logger        *logger.Logger
}

// Engine runs the renewal reminder sweep: one ladder stage per item per
// day, guarded so that a reminder goes out at most once per stage, not too
// soon after the previous one, only with a complete template, only to a
// deliverable phone, and only inside business hours.
type Engine struct {
	deps EngineDeps
	log  *logger.Logger
	now  func() time.Time
}

func NewEngine(deps EngineDeps) *Engine {
	return &Engine{deps: deps, log: deps.Logger, now: time.Now}
}

// Sweep evaluates every active item expiring inside the window and stages a
// reminder for each one that passes all guards. With dryRun the same
// decisions are made but nothing is written; the returned candidates are
// the preview. A windowDays of zero or less uses the configured default.
func (e *Engine) Sweep(ctx context.Context, dryRun bool, windowDays int) ([]Candidate, error) {
	if windowDays <= 0 {
		windowDays = e.deps.WindowDays
	}
	now := e.now()
	local := now.In(e.deps.Hours.Location())
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, windowDays)

	items, err := e.deps.Items.ListDue(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list due expiry items: %w", err)
	}

	candidates := make([]Candidate, 0, len(items))
	staged := 0
	for _, item := range items {
		c := e.evaluate(ctx, item, now, dryRun)
		if c.Send {
			staged++
		}
		candidates = append(candidates, c)
	}
	e.log.Info("renewal sweep finished",
		"dry_run", dryRun, "window_days", windowDays,
		"considered", len(candidates), "staged", staged)
	return candidates, nil
}

func (e *Engine) evaluate(ctx context.Context, item DueItem, now time.Time, dryRun bool) Candidate {
	c := Candidate{
		ItemID:       item.ID,
		ContactID:    item.ContactID,
		LeadID:       item.LeadID,
		DocumentType: item.DocumentType,
		ExpiryDate:   item.ExpiryDate,
		DaysLeft:     daysUntil(item.ExpiryDate, now, e.deps.Hours.Location()),
	}
	c.Stage = e.stageFor(c.DaysLeft)
	if c.Stage == "" {
		c.SkipReason = SkipNotDue
		return c
	}

	actionKey := tasks.RenewalKey(item.ID, c.Stage)
	seen, err := e.deps.RunLog.Seen(ctx, actionKey)
	if err != nil {
		return e.failed(c, "run log lookup", err)
	}
	if seen {
		c.SkipReason = SkipAlreadyActioned
		return c
	}

	if item.LastReminderAt != nil && now.Sub(*item.LastReminderAt) < e.deps.MinInterval {
		c.SkipReason = SkipRemindedRecently
		return c
	}

	if !e.deps.Catalog.Has(item.DocumentType, c.Stage) {
		c.SkipReason = SkipNoTemplate
		return c
	}

	body, err := e.deps.Catalog.Render(item.DocumentType, c.Stage, e.templateVars(item, c.DaysLeft))
	if err != nil {
		c.SkipReason = SkipVarsUnresolved
		return c
	}

	if !phone.IsDeliverable(item.ContactPhone) {
		c.SkipReason = SkipPhoneUndeliverable
		return c
	}

	if !e.deps.Hours.Contains(now) {
		c.SkipReason = SkipOutsideHours
		return c
	}

	c.Send = true
	if dryRun {
		return c
	}
	return e.stageReminder(ctx, item, c, actionKey, body, now)
}

// stageReminder performs the live writes in order: claim the run-log key,
// create the staff task, stage the outbound job, stamp the item, publish.
// The task comes before the job so a failed job insert still leaves a
// staff-visible trace of the claimed stage.
func (e *Engine) stageReminder(ctx context.Context, item DueItem, c Candidate, actionKey, body string, now time.Time) Candidate {
	conv, err := e.deps.Conversations.GetOrCreate(ctx, item.ContactID, messaging.ChannelWhatsApp)
	if err != nil {
		return e.failed(c, "resolve conversation", err)
	}

	claimed, err := e.deps.RunLog.TryMark(ctx, RuleRenewalReminder, item.ID.String(), c.Stage, actionKey)
	if err != nil {
		return e.failed(c, "claim run log", err)
	}
	if !claimed {
		// A concurrent sweep won the key between the guard check and here.
		c.Send = false
		c.SkipReason = SkipAlreadyActioned
		return c
	}

	label := strings.ReplaceAll(item.DocumentType, "_", " ")
	_, _, err = e.deps.Tasks.CreateIfAbsent(ctx, tasks.CreateParams{
		IdempotencyKey: actionKey,
		LeadID:         item.LeadID,
		ConversationID: &conv.ID,
		Kind:           tasks.KindRenewal,
		Title:          "Renewal reminder: " + label,
		Detail: fmt.Sprintf("%s expires on %s (%d days left), %s reminder staged.",
			label, item.ExpiryDate.Format("02 Jan 2006"), c.DaysLeft, c.Stage),
	})
	if err != nil {
		return e.failed(c, "create renewal task", err)
	}

	job, _, err := e.deps.Queue.EnqueueStaged(ctx, outbound.StagedParams{
		ConversationID:   conv.ID,
		LeadID:           item.LeadID,
		Kind:             outbound.KindRenewal,
		TriggerMessageID: actionKey,
		Content:          body,
		RunAt:            now,
	})
	if err != nil {
		return e.failed(c, "stage outbound job", err)
	}
	c.JobID = &job.ID

	if err := e.deps.Items.StampReminder(ctx, item.ID, now); err != nil {
		e.log.Error("reminder stamp failed", "item_id", item.ID, "error", err)
	}

	e.deps.Bus.Publish(ctx, events.RenewalReminderQueued{
		BaseEvent:    events.NewBaseEvent(),
		ExpiryItemID: item.ID,
		ContactID:    item.ContactID,
		Stage:        c.Stage,
		JobID:        job.ID,
	})

	e.log.Info("renewal reminder staged",
		"item_id", item.ID, "stage", c.Stage, "job_id", job.ID, "days_left", c.DaysLeft)
	return c
}

func (e *Engine) failed(c Candidate, step string, err error) Candidate {
	e.log.Error("renewal sweep item failed", "step", step, "item_id", c.ItemID, "error", err)
	c.Send = false
	c.SkipReason = SkipError
	return c
}

// stageFor maps days-until-expiry onto the tightest configured threshold.
// Thresholds are validated descending at config load, so the last match is
// the smallest one that still covers daysLeft.
func (e *Engine) stageFor(daysLeft int) string {
	if daysLeft < 0 {
		return StageExpired
	}
	stage := ""
	for _, threshold := range e.deps.StageDays {
		if daysLeft <= threshold {
			stage = fmt.Sprintf("d%d", threshold)
		}
	}
	return stage
}

func (e *Engine) templateVars(item DueItem, daysLeft int) map[string]any {
	name := strings.TrimSpace(item.ContactName)
	if name == "" {
		name = "there"
	}
	return map[string]any{
		"Name":       name,
		"Document":   strings.ReplaceAll(item.DocumentType, "_", " "),
		"ExpiryDate": item.ExpiryDate.Format("02 Jan 2006"),
		"DaysLeft":   daysLeft,
		"Company":    e.deps.CompanyName,
	}
}

// daysUntil counts whole calendar days from today in the business timezone
// to the expiry date. Expiry dates are DATE columns, so only their calendar
// fields matter.
func daysUntil(expiry, now time.Time, loc *time.Location) int {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	return int(day.Sub(today).Hours() / 24)
}
