package transport

import (
	"time"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
)

type UpdateStageRequest struct {
	Stage string `json:"stage" validate:"required,oneof=new qualifying qualified in_progress won lost abandoned"`
}

type LeadResponse struct {
	ID             uuid.UUID      `json:"id"`
	ContactID      uuid.UUID      `json:"contactId"`
	ServiceType    string         `json:"serviceType"`
	Stage          string         `json:"stage"`
	Data           map[string]any `json:"data"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func FromLead(lead repository.Lead) LeadResponse {
	return LeadResponse{
		ID:             lead.ID,
		ContactID:      lead.ContactID,
		ServiceType:    lead.ServiceType,
		Stage:          lead.Stage,
		Data:           lead.Data,
		LastActivityAt: lead.LastActivityAt,
		CreatedAt:      lead.CreatedAt,
		UpdatedAt:      lead.UpdatedAt,
	}
}

func FromLeads(leads []repository.Lead) []LeadResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, lead := range leads {
		out = append(out, FromLead(lead))
	}
	return out
}
