package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// Service is the enqueue-side API. The inbound pipeline and the renewal
// engine put jobs on the queue through it; the Processor drains them.
type Service struct {
	repo        *Repository
	locks       *LockRepository
	bus         events.Bus
	log         *logger.Logger
	maxAttempts int
}

func NewService(repo *Repository, locks *LockRepository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, locks: locks, bus: bus, log: log}
}

// SetMaxAttempts overrides the attempt budget new jobs are enqueued with.
// Zero keeps the store default.
func (s *Service) SetMaxAttempts(n int) {
	s.maxAttempts = n
}

// ReplyParams describes a reply job keyed to the inbound message that
// triggered it.
type ReplyParams struct {
	ConversationID   uuid.UUID
	LeadID           *uuid.UUID
	TriggerMessageID string
	QuestionKey      string
	Objective        string
	Delay            time.Duration
}

// EnqueueReply queues a pending reply job for an inbound message. Calling it
// twice for the same trigger returns the existing job; webhook replays never
// produce a second reply.
func (s *Service) EnqueueReply(ctx context.Context, params ReplyParams) (Job, bool, error) {
	job, created, err := s.repo.Enqueue(ctx, EnqueueParams{
		ConversationID:   params.ConversationID,
		LeadID:           params.LeadID,
		Kind:             KindReply,
		TriggerMessageID: params.TriggerMessageID,
		QuestionKey:      params.QuestionKey,
		Objective:        params.Objective,
		Status:           StatusPending,
		RunAt:            time.Now().Add(params.Delay),
		MaxAttempts:      s.maxAttempts,
	})
	if err != nil {
		return Job{}, false, fmt.Errorf("enqueue reply job: %w", err)
	}
	if created {
		s.log.Info("reply job queued",
			"job_id", job.ID,
			"conversation_id", job.ConversationID,
			"trigger_message_id", job.TriggerMessageID,
			"run_at", job.RunAt,
		)
		s.bus.Publish(ctx, events.ReplyJobQueued{
			BaseEvent:        events.NewBaseEvent(),
			JobID:            job.ID,
			ConversationID:   job.ConversationID,
			TriggerMessageID: job.TriggerMessageID,
			RunAt:            job.RunAt,
		})
	}
	return job, created, nil
}

// StagedParams describes a job whose text is already final, so the processor
// skips generation and goes straight to the send gates.
type StagedParams struct {
	ConversationID   uuid.UUID
	LeadID           *uuid.UUID
	Kind             string
	TriggerMessageID string
	QuestionKey      string
	Content          string
	RunAt            time.Time
}

// EnqueueStaged queues a ready_to_send job with pre-rendered content. The
// renewal engine uses this for template reminders.
func (s *Service) EnqueueStaged(ctx context.Context, params StagedParams) (Job, bool, error) {
	if params.Content == "" {
		return Job{}, false, fmt.Errorf("staged job needs content")
	}
	job, created, err := s.repo.Enqueue(ctx, EnqueueParams{
		ConversationID:   params.ConversationID,
		LeadID:           params.LeadID,
		Kind:             params.Kind,
		TriggerMessageID: params.TriggerMessageID,
		QuestionKey:      params.QuestionKey,
		Content:          &params.Content,
		Status:           StatusReadyToSend,
		RunAt:            params.RunAt,
		MaxAttempts:      s.maxAttempts,
	})
	if err != nil {
		return Job{}, false, fmt.Errorf("enqueue staged job: %w", err)
	}
	if created {
		s.log.Info("staged job queued",
			"job_id", job.ID,
			"conversation_id", job.ConversationID,
			"kind", job.Kind,
			"run_at", job.RunAt,
		)
	}
	return job, created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params ListParams) ([]Job, error) {
	return s.repo.List(ctx, params)
}

// Retry puts a failed job back on the queue with a fresh attempt budget.
// This is a staff action: by retrying they assert the message did not reach
// the customer, so the send lock for the trigger is released first.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.Status != StatusFailed {
		return Job{}, ErrNotFailed
	}
	if err := s.locks.Release(ctx, job.ConversationID, job.TriggerMessageID, job.QuestionKey); err != nil {
		return Job{}, fmt.Errorf("release send lock: %w", err)
	}
	retried, err := s.repo.ResetForRetry(ctx, id, time.Now())
	if err != nil {
		return Job{}, err
	}
	s.log.Info("failed job manually retried", "job_id", id, "conversation_id", retried.ConversationID)
	return retried, nil
}

// RecoverStale returns crashed claims to the queue. Runs periodically from
// the scheduler.
func (s *Service) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	n, err := s.repo.RecoverStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	if n > 0 {
		s.log.Info("stale outbound jobs recovered", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (s *Service) DueCount(ctx context.Context) (int, error) {
	return s.repo.DueCount(ctx, time.Now())
}
