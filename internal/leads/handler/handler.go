package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/service"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/transport"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/httpkit"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/validator"
)

const (
	errInvalidRequest = "invalid request"
	errValidation     = "validation failed"
	errInvalidLeadID  = "invalid lead id"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id/stage", h.UpdateStage)
}

// List returns leads for the staff pipeline view, newest activity first.
// GET /api/v1/leads?stage=&service_type=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	params := repository.ListParams{
		Stage:       c.Query("stage"),
		ServiceType: c.Query("service_type"),
	}
	if v := c.Query("limit"); v != "" {
		params.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("offset"); v != "" {
		params.Offset, _ = strconv.Atoi(v)
	}

	leads, err := h.svc.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromLeads(leads))
}

// GetByID returns a single lead with its merged data document.
// GET /api/v1/leads/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), id)
	if errors.Is(err, service.ErrLeadNotFound) {
		httpkit.Error(c, http.StatusNotFound, "lead not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromLead(lead))
}

// UpdateStage moves a lead to any stage. This is the staff override; the
// automated flows only ever move leads forward.
// PATCH /api/v1/leads/:id/stage
func (h *Handler) UpdateStage(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.UpdateStageRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	lead, err := h.svc.SetStage(c.Request.Context(), id, req.Stage)
	if errors.Is(err, service.ErrLeadNotFound) {
		httpkit.Error(c, http.StatusNotFound, "lead not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromLead(lead))
}

func (h *Handler) leadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidLeadID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}
