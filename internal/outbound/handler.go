package outbound

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/httpkit"
)

// QueueRunner runs one synchronous queue pass on staff request.
type QueueRunner interface {
	ProcessQueueOnce(ctx context.Context, maxJobs int) (PassResult, error)
}

type Handler struct {
	svc    *Service
	runner QueueRunner
}

func NewHandler(svc *Service, runner QueueRunner) *Handler {
	return &Handler{svc: svc, runner: runner}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/jobs", h.List)
	rg.GET("/jobs/:id", h.GetByID)
	rg.POST("/jobs/:id/retry", h.Retry)
	rg.POST("/queue/process", h.ProcessQueue)
}

type jobResponse struct {
	ID               uuid.UUID  `json:"id"`
	ConversationID   uuid.UUID  `json:"conversationId"`
	LeadID           *uuid.UUID `json:"leadId,omitempty"`
	Kind             string     `json:"kind"`
	TriggerMessageID string     `json:"triggerMessageId"`
	QuestionKey      string     `json:"questionKey,omitempty"`
	Objective        string     `json:"objective,omitempty"`
	Content          *string    `json:"content,omitempty"`
	Status           string     `json:"status"`
	Attempts         int        `json:"attempts"`
	MaxAttempts      int        `json:"maxAttempts"`
	RunAt            time.Time  `json:"runAt"`
	LastAttemptAt    *time.Time `json:"lastAttemptAt,omitempty"`
	LastError        *string    `json:"lastError,omitempty"`
	SentMessageID    *uuid.UUID `json:"sentMessageId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func toJobResponse(j Job) jobResponse {
	return jobResponse{
		ID:               j.ID,
		ConversationID:   j.ConversationID,
		LeadID:           j.LeadID,
		Kind:             j.Kind,
		TriggerMessageID: j.TriggerMessageID,
		QuestionKey:      j.QuestionKey,
		Objective:        j.Objective,
		Content:          j.Content,
		Status:           j.Status,
		Attempts:         j.Attempts,
		MaxAttempts:      j.MaxAttempts,
		RunAt:            j.RunAt,
		LastAttemptAt:    j.LastAttemptAt,
		LastError:        j.LastError,
		SentMessageID:    j.SentMessageID,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

// List returns the job queue for the ops view.
// GET /api/v1/outbound/jobs?status=&kind=&conversation_id=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	params := ListParams{
		Status: c.Query("status"),
		Kind:   c.Query("kind"),
	}
	if v := c.Query("conversation_id"); v != "" {
		convID, err := uuid.Parse(v)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid conversation_id", nil)
			return
		}
		params.ConversationID = &convID
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

	out := make([]jobResponse, 0, len(items))
	for _, j := range items {
		out = append(out, toJobResponse(j))
	}
	httpkit.OK(c, out)
}

// GetByID returns one job with its full error history fields.
// GET /api/v1/outbound/jobs/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.svc.Get(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "job not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toJobResponse(job))
}

// Retry requeues a failed job after a human confirmed the message never
// arrived.
// POST /api/v1/outbound/jobs/:id/retry
func (h *Handler) Retry(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.svc.Retry(c.Request.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		httpkit.Error(c, http.StatusNotFound, "job not found", nil)
	case errors.Is(err, ErrNotFailed):
		httpkit.Error(c, http.StatusConflict, "only failed jobs can be retried", nil)
	case httpkit.HandleError(c, err):
	default:
		httpkit.OK(c, toJobResponse(job))
	}
}

type processQueueRequest struct {
	MaxJobs int `json:"maxJobs"`
}

// ProcessQueue runs one queue pass right now instead of waiting for the
// scheduler, and reports what the pass did. An empty body uses the
// configured batch size.
// POST /api/v1/outbound/queue/process
func (h *Handler) ProcessQueue(c *gin.Context) {
	if h.runner == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "queue processing is not wired in this process", nil)
		return
	}
	var req processQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	res, err := h.runner.ProcessQueueOnce(c.Request.Context(), req.MaxJobs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

func (h *Handler) jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid job id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}
