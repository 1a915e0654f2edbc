package outbound

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/tasks"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/apperr"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// JobStore is the slice of the repository the processor drives jobs through.
type JobStore interface {
	RecoverStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]Job, error)
	MarkGenerating(ctx context.Context, id uuid.UUID) (bool, error)
	StageContent(ctx context.Context, id uuid.UUID, content string) (bool, error)
	RecordSent(ctx context.Context, job Job, body, providerMessageID, sentBy string) (uuid.UUID, error)
	RetryLater(ctx context.Context, id uuid.UUID, runAt time.Time, reason string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// LockStore guards the physical send.
type LockStore interface {
	TryAcquire(ctx context.Context, conversationID uuid.UUID, triggerMessageID, questionKey string) (bool, error)
	Release(ctx context.Context, conversationID uuid.UUID, triggerMessageID, questionKey string) error
}

// Recipient is everything the processor needs to know about where a job
// would send.
type Recipient struct {
	ConversationID uuid.UUID
	ContactID      uuid.UUID
	Channel        string
	Phone          string // E.164, empty when the contact has no usable number
	ContactName    string
	HumanOwned     bool
	LastInboundAt  *time.Time
}

type RecipientResolver interface {
	Recipient(ctx context.Context, conversationID uuid.UUID) (Recipient, error)
}

// Generator produces reply text for a claimed job.
type Generator interface {
	GenerateReply(ctx context.Context, job Job, rcpt Recipient) (string, error)
}

// Sender performs the provider call and returns the provider message id.
// Free-form texts ride the open session; templates are for business-initiated
// sends outside it.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendTemplate(ctx context.Context, to, body string) (string, error)
}

type TaskCreator interface {
	CreateIfAbsent(ctx context.Context, params tasks.CreateParams) (tasks.Task, bool, error)
	CompleteByKey(ctx context.Context, key string) error
}

type ProcessorConfig struct {
	BatchSize      int
	Concurrency    int
	SessionWindow  time.Duration // how long after the last inbound a free-form send is allowed
	Lease          time.Duration // how long a claim may sit before recovery returns it
	SendsPerSecond float64
	SendBurst      int
}

// Processor claims due jobs and walks each through generate, guard, lock,
// send, record. Every terminal failure leaves a machine-readable reason on
// the job and a staff task behind it; nothing fails silently.
type Processor struct {
	jobs    JobStore
	locks   LockStore
	rcpts   RecipientResolver
	gen     Generator
	sender  Sender
	tasks   TaskCreator
	bus     events.Bus
	log     *logger.Logger
	limiter *rate.Limiter
	cfg     ProcessorConfig

	now func() time.Time
}

func NewProcessor(
	jobs JobStore,
	locks LockStore,
	rcpts RecipientResolver,
	gen Generator,
	sender Sender,
	taskCreator TaskCreator,
	bus events.Bus,
	log *logger.Logger,
	cfg ProcessorConfig,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = 24 * time.Hour
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.SendsPerSecond <= 0 {
		cfg.SendsPerSecond = 5
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = int(cfg.SendsPerSecond) + 1
	}
	return &Processor{
		jobs:    jobs,
		locks:   locks,
		rcpts:   rcpts,
		gen:     gen,
		sender:  sender,
		tasks:   taskCreator,
		bus:     bus,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), cfg.SendBurst),
		cfg:     cfg,
		now:     time.Now,
	}
}

// PassResult reports one queue pass.
type PassResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Recovered int `json:"recovered"`
}

// ProcessQueueOnce recovers stale claims, then claims one batch and
// processes it. Per-job errors are counted and handled inside Process; the
// pass itself only fails when recovery or the claim does.
func (p *Processor) ProcessQueueOnce(ctx context.Context, maxJobs int) (PassResult, error) {
	if maxJobs <= 0 {
		maxJobs = p.cfg.BatchSize
	}
	var res PassResult

	recovered, err := p.jobs.RecoverStale(ctx, p.now().Add(-p.cfg.Lease))
	if err != nil {
		return res, fmt.Errorf("recover stale jobs: %w", err)
	}
	res.Recovered = int(recovered)
	if recovered > 0 {
		p.log.Info("stale outbound claims recovered", "count", recovered)
	}

	claimed, err := p.jobs.ClaimDue(ctx, maxJobs, p.now())
	if err != nil {
		return res, fmt.Errorf("claim due jobs: %w", err)
	}
	res.Processed = len(claimed)
	if len(claimed) == 0 {
		return res, nil
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, job := range claimed {
		job := job
		g.Go(func() error {
			if err := p.Process(gctx, job); err != nil {
				failed.Add(1)
				p.log.Error("outbound job pass failed", "error", err, "job_id", job.ID)
			}
			return nil
		})
	}
	_ = g.Wait()
	res.Failed = int(failed.Load())
	return res, nil
}

// Process runs one claimed job to its next resting state.
func (p *Processor) Process(ctx context.Context, job Job) error {
	p.log.JobEvent(job.ID.String(), job.Status, job.Attempts)

	rcpt, err := p.rcpts.Recipient(ctx, job.ConversationID)
	if err != nil {
		return p.retryOrFail(ctx, job, fmt.Sprintf("resolve recipient: %v", err))
	}

	// A human owns the conversation: automation stands down. The takeover
	// task points the owner at the message that went unanswered.
	if job.Kind == KindReply && rcpt.HumanOwned {
		if err := p.jobs.MarkFailed(ctx, job.ID, ReasonHumanOwned); err != nil {
			return err
		}
		p.log.Info("reply skipped, conversation human-owned", "job_id", job.ID, "conversation_id", job.ConversationID)
		convID := job.ConversationID
		if _, _, err := p.tasks.CreateIfAbsent(ctx, tasks.CreateParams{
			IdempotencyKey: tasks.TakeoverKey(job.ConversationID, job.TriggerMessageID),
			LeadID:         job.LeadID,
			ConversationID: &convID,
			Kind:           tasks.KindTakeover,
			Title:          "Customer message waiting on assigned agent",
			Detail:         fmt.Sprintf("Automation stood down for message %s because the conversation is assigned. The customer is waiting for a human reply.", job.TriggerMessageID),
		}); err != nil {
			p.log.Error("takeover task creation failed", "error", err, "job_id", job.ID)
		}
		p.publishFailed(ctx, job, ReasonHumanOwned)
		return nil
	}

	if rcpt.Phone == "" {
		return p.fail(ctx, job, "contact has no sendable phone number", true)
	}

	// Stage content if it is not there yet. Jobs recovered after a crash or
	// staged by the renewal engine keep their content and skip this.
	body := ""
	if job.HasContent() {
		body = *job.Content
	}
	if body == "" {
		if job.Status != StatusPending {
			return p.fail(ctx, job, fmt.Sprintf("no content in status %s", job.Status), true)
		}
		ok, err := p.jobs.MarkGenerating(ctx, job.ID)
		if err != nil {
			return err
		}
		if !ok {
			// Another worker has it. Let go quietly.
			return nil
		}
		body, err = p.gen.GenerateReply(ctx, job, rcpt)
		if err != nil {
			return p.retryOrFail(ctx, job, fmt.Sprintf("generate: %v", err))
		}
		if body == "" {
			return p.retryOrFail(ctx, job, "generate: empty reply after safety filter")
		}
		if _, err := p.jobs.StageContent(ctx, job.ID, body); err != nil {
			return err
		}
	} else if job.Status == StatusPending {
		// Recovered job with staged text: move it back through the machine
		// without another model call.
		ok, err := p.jobs.MarkGenerating(ctx, job.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := p.jobs.StageContent(ctx, job.ID, body); err != nil {
			return err
		}
	}

	// Free-form replies only work inside the provider session window. Fail
	// fast instead of burning a send attempt that cannot succeed.
	if job.Kind == KindReply && !p.withinSessionWindow(rcpt) {
		return p.fail(ctx, job, ReasonSessionWindow, true)
	}

	// At-most-once gate. If the lock is already held a previous attempt
	// reached the provider and we cannot know what happened; never resend.
	acquired, err := p.locks.TryAcquire(ctx, job.ConversationID, job.TriggerMessageID, job.QuestionKey)
	if err != nil {
		return p.retryOrFail(ctx, job, fmt.Sprintf("acquire send lock: %v", err))
	}
	if !acquired {
		p.log.Anomaly("outbound.send", job.ID.String(), "send lock already held; previous attempt reached the provider with unknown outcome")
		return p.fail(ctx, job, ReasonLockHeld, true)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		// Shutdown mid-batch. Nothing was sent, release and retry later.
		_ = p.locks.Release(ctx, job.ConversationID, job.TriggerMessageID, job.QuestionKey)
		return p.retryOrFail(ctx, job, fmt.Sprintf("rate limiter: %v", err))
	}

	providerID, sendErr := p.send(ctx, job.Kind, rcpt.Phone, body)
	if sendErr != nil {
		return p.handleSendFailure(ctx, job, sendErr)
	}

	sentBy := "ai"
	if job.Kind == KindRenewal {
		sentBy = "system"
	}
	messageID, err := p.jobs.RecordSent(ctx, job, body, providerID, sentBy)
	if err != nil {
		// The provider accepted the message but we could not record it. The
		// lock stays, so no duplicate can follow; surface loudly.
		p.log.Anomaly("outbound.record", job.ID.String(), fmt.Sprintf("send succeeded but recording failed: %v", err))
		return err
	}

	p.log.Info("outbound message sent",
		"job_id", job.ID,
		"conversation_id", job.ConversationID,
		"provider_message_id", providerID,
		"kind", job.Kind,
	)

	// The send is verified, so the obligation to answer this inbound is met.
	if job.Kind == KindReply && job.LeadID != nil {
		if err := p.tasks.CompleteByKey(ctx, tasks.ReplyKey(*job.LeadID, job.TriggerMessageID)); err != nil {
			p.log.Error("reply task close failed", "error", err, "job_id", job.ID)
		}
	}

	p.bus.Publish(ctx, events.OutboundMessageSent{
		BaseEvent:         events.NewBaseEvent(),
		JobID:             job.ID,
		ConversationID:    job.ConversationID,
		MessageID:         messageID,
		ProviderMessageID: providerID,
		Kind:              job.Kind,
	})
	return nil
}

func (p *Processor) send(ctx context.Context, kind, to, body string) (string, error) {
	if kind == KindRenewal {
		return p.sender.SendTemplate(ctx, to, body)
	}
	return p.sender.SendText(ctx, to, body)
}

func (p *Processor) withinSessionWindow(rcpt Recipient) bool {
	if rcpt.LastInboundAt == nil {
		return false
	}
	return p.now().Sub(*rcpt.LastInboundAt) < p.cfg.SessionWindow
}

// handleSendFailure sorts a provider error into one of three buckets:
// definite rejection (release lock, park the job), transient refusal
// (release lock, retry with backoff), or ambiguous transport failure (keep
// the lock, park the job, shout).
func (p *Processor) handleSendFailure(ctx context.Context, job Job, sendErr error) error {
	kind := apperr.GetKind(sendErr)
	switch {
	case kind == apperr.KindValidation || kind == apperr.KindBadRequest:
		// Provider said no and nothing left the building.
		_ = p.locks.Release(ctx, job.ConversationID, job.TriggerMessageID, job.QuestionKey)
		return p.fail(ctx, job, fmt.Sprintf("%s: %v", ReasonSendRejected, sendErr), true)

	case kind == apperr.KindTransient:
		// Provider refused it for now; safe to retry.
		_ = p.locks.Release(ctx, job.ConversationID, job.TriggerMessageID, job.QuestionKey)
		return p.retryOrFail(ctx, job, fmt.Sprintf("send: %v", sendErr))

	default:
		// Timeout or transport error: the message may or may not have
		// arrived. The lock stays so nothing ever doubles.
		p.log.Anomaly("outbound.send", job.ID.String(), fmt.Sprintf("ambiguous send outcome: %v", sendErr))
		return p.fail(ctx, job, fmt.Sprintf("%s: %v", ReasonSendAmbiguous, sendErr), true)
	}
}

// retryOrFail reschedules the job with exponential backoff, or parks it
// when the attempt budget is gone.
func (p *Processor) retryOrFail(ctx context.Context, job Job, reason string) error {
	if job.Attempts >= job.MaxAttempts {
		return p.fail(ctx, job, fmt.Sprintf("%s: %s", ReasonAttemptsExceeded, reason), true)
	}
	runAt := p.now().Add(RetryDelay(job.Attempts))
	if err := p.jobs.RetryLater(ctx, job.ID, runAt, reason); err != nil {
		return err
	}
	p.log.Info("outbound job rescheduled",
		"job_id", job.ID,
		"attempt", job.Attempts,
		"run_at", runAt,
		"reason", reason,
	)
	return nil
}

// fail parks the job with a reason. withTask additionally leaves a staff
// task so a customer is never left hanging without anyone knowing.
func (p *Processor) fail(ctx context.Context, job Job, reason string, withTask bool) error {
	if err := p.jobs.MarkFailed(ctx, job.ID, reason); err != nil {
		return err
	}
	p.log.Error("outbound job failed", "job_id", job.ID, "reason", reason)

	if withTask {
		convID := job.ConversationID
		_, _, err := p.tasks.CreateIfAbsent(ctx, tasks.CreateParams{
			IdempotencyKey: tasks.JobFailedKey(job.ID),
			LeadID:         job.LeadID,
			ConversationID: &convID,
			Kind:           tasks.KindJobFailed,
			Title:          "Automated message was not sent",
			Detail:         fmt.Sprintf("Job %s (%s) failed: %s. The customer has not received a response.", job.ID, job.Kind, reason),
		})
		if err != nil {
			p.log.Error("job failure task creation failed", "error", err, "job_id", job.ID)
		}
	}

	p.publishFailed(ctx, job, reason)
	return nil
}

func (p *Processor) publishFailed(ctx context.Context, job Job, reason string) {
	p.bus.Publish(ctx, events.OutboundJobFailed{
		BaseEvent:      events.NewBaseEvent(),
		JobID:          job.ID,
		ConversationID: job.ConversationID,
		Kind:           job.Kind,
		Attempts:       job.Attempts,
		Reason:         reason,
	})
}
