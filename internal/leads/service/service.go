package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

var ErrLeadNotFound = errors.New("lead not found")

type Service struct {
	repo *repository.Repository
	log  *logger.Logger
}

func New(repo *repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Resolution describes how an inbound message was attached to a lead.
type Resolution struct {
	Lead    repository.Lead
	Created bool
}

// Resolve attaches inbound activity to an open lead of the contact, or opens
// a new one. An open lead qualifies when its stage is not terminal and it was
// touched inside the reuse window; the most recently touched one wins.
// Reused leads get their activity bumped, and a catch-all service type is
// upgraded when classification found a concrete one.
func (s *Service) Resolve(ctx context.Context, contactID uuid.UUID, detectedServiceType string, now time.Time) (Resolution, error) {
	since := now.Add(-domain.ReuseWindow)

	lead, err := s.repo.FindOpenByContact(ctx, contactID, since)
	switch {
	case err == nil:
		if err := s.repo.Touch(ctx, lead.ID, now); err != nil {
			return Resolution{}, err
		}
		lead.LastActivityAt = now
		if lead.ServiceType == domain.ServiceTypeGeneral &&
			detectedServiceType != "" && detectedServiceType != domain.ServiceTypeGeneral {
			upgraded, err := s.repo.UpgradeServiceType(ctx, lead.ID, detectedServiceType)
			if err != nil {
				return Resolution{}, err
			}
			if upgraded {
				lead.ServiceType = detectedServiceType
			}
		}
		return Resolution{Lead: lead, Created: false}, nil

	case errors.Is(err, repository.ErrNotFound):
		serviceType := detectedServiceType
		if serviceType == "" {
			serviceType = domain.ServiceTypeGeneral
		}
		created, err := s.repo.Create(ctx, repository.CreateParams{
			ContactID:   contactID,
			ServiceType: serviceType,
			Stage:       domain.StageNew,
		})
		if err != nil {
			return Resolution{}, err
		}
		s.log.Info("lead opened",
			"lead_id", created.ID,
			"contact_id", contactID,
			"service_type", created.ServiceType,
		)
		return Resolution{Lead: created, Created: true}, nil

	default:
		return Resolution{}, err
	}
}

// MergeExtractedData folds newly extracted facts into the lead data document.
func (s *Service) MergeExtractedData(ctx context.Context, leadID uuid.UUID, patch map[string]any) (map[string]any, error) {
	merged, err := s.repo.MergeData(ctx, leadID, patch)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLeadNotFound
	}
	return merged, err
}

// SetDataField overwrites one top-level data key. Qualifier flows use this
// for the progress state they own; extracted facts go through
// MergeExtractedData and its append-only rules.
func (s *Service) SetDataField(ctx context.Context, id uuid.UUID, key string, value any) error {
	err := s.repo.SetDataField(ctx, id, key, value)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrLeadNotFound
	}
	return err
}

// AdvanceStage moves a lead forward only when it is still in the stage the
// caller observed.
func (s *Service) AdvanceStage(ctx context.Context, id uuid.UUID, from, to string) error {
	return s.repo.AdvanceStage(ctx, id, from, to)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, ErrLeadNotFound
	}
	return lead, err
}

func (s *Service) List(ctx context.Context, params repository.ListParams) ([]repository.Lead, error) {
	return s.repo.List(ctx, params)
}

// SetStage is the staff override for moving a lead anywhere in the funnel.
func (s *Service) SetStage(ctx context.Context, id uuid.UUID, stage string) (repository.Lead, error) {
	lead, err := s.repo.UpdateStage(ctx, id, stage)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, ErrLeadNotFound
	}
	return lead, err
}
