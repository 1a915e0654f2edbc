package renewals

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/httpkit"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/validator"
)

type Handler struct {
	engine *Engine
	items  *Repository
	val    *validator.Validator
	log    *logger.Logger
}

func NewHandler(engine *Engine, items *Repository, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{engine: engine, items: items, val: val, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sweep", h.Sweep)
	rg.GET("/items", h.ListItems)
	rg.POST("/items/:id/status", h.SetItemStatus)
}

type sweepRequest struct {
	DryRun     bool `json:"dryRun"`
	WindowDays int  `json:"windowDays" validate:"omitempty,min=1,max=730"`
}

// Sweep runs the renewal sweep synchronously and returns the per-item
// decisions. An empty body means a live sweep over the default window.
func (h *Handler) Sweep(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	candidates, err := h.engine.Sweep(c.Request.Context(), req.DryRun, req.WindowDays)
	if err != nil {
		h.log.Error("renewal sweep failed", "error", err)
		httpkit.Error(c, http.StatusInternalServerError, "sweep failed", nil)
		return
	}

	staged := 0
	for _, cand := range candidates {
		if cand.Send {
			staged++
		}
	}
	httpkit.OK(c, gin.H{
		"dryRun":     req.DryRun,
		"considered": len(candidates),
		"staged":     staged,
		"candidates": candidates,
	})
}

type itemResponse struct {
	ID             uuid.UUID  `json:"id"`
	ContactID      uuid.UUID  `json:"contactId"`
	LeadID         *uuid.UUID `json:"leadId,omitempty"`
	DocumentType   string     `json:"documentType"`
	ExpiryDate     string     `json:"expiryDate"`
	Status         string     `json:"status"`
	LastReminderAt *time.Time `json:"lastReminderAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func toItemResponse(it Item) itemResponse {
	return itemResponse{
		ID:             it.ID,
		ContactID:      it.ContactID,
		LeadID:         it.LeadID,
		DocumentType:   it.DocumentType,
		ExpiryDate:     it.ExpiryDate.Format("2006-01-02"),
		Status:         it.Status,
		LastReminderAt: it.LastReminderAt,
		CreatedAt:      it.CreatedAt,
	}
}

// ListItems returns every tracked expiry for one contact.
func (h *Handler) ListItems(c *gin.Context) {
	contactID, err := uuid.Parse(c.Query("contact_id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid contact_id", nil)
		return
	}
	items, err := h.items.ListByContact(c.Request.Context(), contactID)
	if err != nil {
		h.log.Error("expiry item list failed", "contact_id", contactID, "error", err)
		httpkit.Error(c, http.StatusInternalServerError, "could not list expiry items", nil)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	httpkit.OK(c, gin.H{"items": out})
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active in_progress renewed dismissed"`
}

// SetItemStatus moves an item between its lifecycle states. Marking an item
// in_progress pauses reminders while the renewal is being handled; renewed
// and dismissed stop them for good.
func (h *Handler) SetItemStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid expiry item id", nil)
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	item, err := h.items.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			httpkit.Error(c, http.StatusNotFound, "expiry item not found", nil)
			return
		}
		h.log.Error("expiry status change failed", "item_id", id, "error", err)
		httpkit.Error(c, http.StatusInternalServerError, "could not update expiry item", nil)
		return
	}
	h.log.Info("expiry item status changed", "item_id", id, "status", req.Status)
	httpkit.OK(c, toItemResponse(item))
}
