package tasks

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/httpkit"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/complete", h.Complete)
	rg.POST("/:id/dismiss", h.Dismiss)
}

type taskResponse struct {
	ID             uuid.UUID  `json:"id"`
	IdempotencyKey string     `json:"idempotencyKey"`
	LeadID         *uuid.UUID `json:"leadId,omitempty"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	Kind           string     `json:"kind"`
	Title          string     `json:"title"`
	Detail         string     `json:"detail"`
	Status         string     `json:"status"`
	DueAt          *time.Time `json:"dueAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

func toTaskResponse(t Task) taskResponse {
	return taskResponse{
		ID:             t.ID,
		IdempotencyKey: t.IdempotencyKey,
		LeadID:         t.LeadID,
		ConversationID: t.ConversationID,
		Kind:           t.Kind,
		Title:          t.Title,
		Detail:         t.Detail,
		Status:         t.Status,
		DueAt:          t.DueAt,
		CreatedAt:      t.CreatedAt,
		CompletedAt:    t.CompletedAt,
	}
}

// List returns the staff work queue. Defaults to open tasks, newest first.
// GET /api/v1/tasks?status=&kind=&lead_id=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	params := ListParams{
		Status: c.DefaultQuery("status", StatusOpen),
		Kind:   c.Query("kind"),
	}
	if params.Status == "all" {
		params.Status = ""
	}
	if v := c.Query("lead_id"); v != "" {
		leadID, err := uuid.Parse(v)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid lead_id", nil)
			return
		}
		params.LeadID = &leadID
	}
	if v := c.Query("limit"); v != "" {
		params.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("offset"); v != "" {
		params.Offset, _ = strconv.Atoi(v)
	}

	items, err := h.svc.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]taskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toTaskResponse(t))
	}
	httpkit.OK(c, out)
}

// GetByID returns one task.
// GET /api/v1/tasks/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}
	task, err := h.svc.Get(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "task not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toTaskResponse(task))
}

// Complete marks a task done.
// POST /api/v1/tasks/:id/complete
func (h *Handler) Complete(c *gin.Context) {
	h.close(c, h.svc.Complete)
}

// Dismiss closes a task without doing it.
// POST /api/v1/tasks/:id/dismiss
func (h *Handler) Dismiss(c *gin.Context) {
	h.close(c, h.svc.Dismiss)
}

func (h *Handler) close(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (Task, error)) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}
	task, err := fn(c.Request.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		httpkit.Error(c, http.StatusNotFound, "task not found", nil)
	case errors.Is(err, ErrAlreadyClosed):
		httpkit.Error(c, http.StatusConflict, "task already closed", nil)
	case httpkit.HandleError(c, err):
	default:
		httpkit.OK(c, toTaskResponse(task))
	}
}

func (h *Handler) taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid task id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}
