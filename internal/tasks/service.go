package tasks

import (
	"context"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// Service wraps the repository with event publication. Creating a task that
// already exists is a silent no-op; only genuinely new tasks make noise.
type Service struct {
	repo *Repository
	bus  events.Bus
	log  *logger.Logger
}

func NewService(repo *Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

func (s *Service) CreateIfAbsent(ctx context.Context, params CreateParams) (Task, bool, error) {
	task, created, err := s.repo.CreateIfAbsent(ctx, params)
	if err != nil {
		return Task{}, false, err
	}
	if created {
		s.log.Info("task created",
			"task_id", task.ID,
			"kind", task.Kind,
			"key", task.IdempotencyKey,
		)
		s.bus.Publish(ctx, events.TaskCreated{
			BaseEvent:      events.NewBaseEvent(),
			TaskID:         task.ID,
			Kind:           task.Kind,
			IdempotencyKey: task.IdempotencyKey,
			LeadID:         task.LeadID,
			ConversationID: task.ConversationID,
			Title:          task.Title,
		})
	}
	return task, created, nil
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (Task, error) {
	return s.repo.Complete(ctx, id)
}

func (s *Service) Dismiss(ctx context.Context, id uuid.UUID) (Task, error) {
	return s.repo.Dismiss(ctx, id)
}

// CompleteByKey opportunistically closes a task automation no longer needs,
// like a confirm-expiry task after the contact sent the real date.
func (s *Service) CompleteByKey(ctx context.Context, key string) error {
	return s.repo.CompleteByKey(ctx, key)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params ListParams) ([]Task, error) {
	return s.repo.List(ctx, params)
}
