package messaging

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/adapters/storage"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/apperr"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/httpkit"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/validator"
)

const (
	errInvalidRequest        = "invalid request"
	errValidation            = "validation failed"
	errInvalidConversationID = "invalid conversation id"
)

// Presigner mints short-lived download links for stored attachments.
type Presigner interface {
	PresignedGetURL(ctx context.Context, objectKey string) (*storage.PresignedURL, error)
}

type Handler struct {
	pipeline      *Pipeline
	conversations *ConversationRepository
	messages      *MessageRepository
	apiKeys       *APIKeyRepository
	queue         ReplyQueue
	timers        JobScheduler
	media         Presigner
	val           *validator.Validator
	log           *logger.Logger
}

func NewHandler(pipeline *Pipeline, conversations *ConversationRepository, messages *MessageRepository, apiKeys *APIKeyRepository, queue ReplyQueue, timers JobScheduler, media Presigner, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{
		pipeline:      pipeline,
		conversations: conversations,
		messages:      messages,
		apiKeys:       apiKeys,
		queue:         queue,
		timers:        timers,
		media:         media,
		val:           val,
		log:           log,
	}
}

// RegisterWebhookRoutes mounts the provider-facing event intake. These
// routes authenticate with API keys, not staff JWTs.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/:channel/events", h.SubmitEvent)
}

// RegisterOpsRoutes mounts the staff-facing conversation endpoints.
func (h *Handler) RegisterOpsRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListConversations)
	rg.GET("/:id", h.GetConversation)
	rg.GET("/:id/messages", h.ListMessages)
	rg.GET("/:id/messages/:messageId/media", h.GetMessageMedia)
	rg.POST("/:id/assign", h.Assign)
	rg.POST("/:id/reply", h.EnqueueReply)
}

// RegisterAdminRoutes mounts webhook API key management.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.CreateAPIKey)
	rg.GET("", h.ListAPIKeys)
	rg.DELETE("/:id", h.RevokeAPIKey)
}

type inboundEventRequest struct {
	From              string `json:"from" validate:"required,min=5,max=32"`
	Body              string `json:"body" validate:"max=8000"`
	ContactName       string `json:"contactName" validate:"max=200"`
	ProviderMessageID string `json:"providerMessageId" validate:"max=256"`
	MediaBase64       string `json:"mediaBase64"`
	MediaContentType  string `json:"mediaContentType" validate:"max=100"`
	Timestamp         int64  `json:"timestamp"`
}

// SubmitEvent ingests one provider delivery. Duplicates are acknowledged
// with duplicate=true so providers stop redelivering; processing failures
// return 500 so they redeliver later.
// POST /api/v1/channels/:channel/events
func (h *Handler) SubmitEvent(c *gin.Context) {
	var req inboundEventRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	var media []byte
	if req.MediaBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.MediaBase64)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "mediaBase64 is not valid base64", nil)
			return
		}
		media = decoded
	}
	var receivedAt time.Time
	if req.Timestamp > 0 {
		receivedAt = time.Unix(req.Timestamp, 0).UTC()
	}

	result, err := h.pipeline.SubmitInboundMessage(c.Request.Context(), InboundMessage{
		Channel:           c.Param("channel"),
		From:              req.From,
		ContactName:       req.ContactName,
		Body:              req.Body,
		ProviderMessageID: req.ProviderMessageID,
		Media:             media,
		MediaContentType:  req.MediaContentType,
		ReceivedAt:        receivedAt,
	})
	if err != nil {
		switch apperr.GetKind(err) {
		case apperr.KindValidation, apperr.KindBadRequest:
			httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		default:
			// 5xx tells the provider to redeliver; the dedup claim was
			// already released so the retry will run.
			h.log.Error("inbound pipeline failed",
				"channel", c.Param("channel"), "error", err)
			httpkit.Error(c, http.StatusInternalServerError, "event processing failed", nil)
		}
		return
	}
	httpkit.OK(c, result)
}

type conversationResponse struct {
	ID             uuid.UUID  `json:"id"`
	ContactID      uuid.UUID  `json:"contactId"`
	Channel        string     `json:"channel"`
	AssignedUserID *uuid.UUID `json:"assignedUserId,omitempty"`
	HumanOwned     bool       `json:"humanOwned"`
	LastInboundAt  *time.Time `json:"lastInboundAt,omitempty"`
	LastOutboundAt *time.Time `json:"lastOutboundAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func toConversationResponse(conv Conversation) conversationResponse {
	return conversationResponse{
		ID:             conv.ID,
		ContactID:      conv.ContactID,
		Channel:        conv.Channel,
		AssignedUserID: conv.AssignedUserID,
		HumanOwned:     conv.HumanOwned(),
		LastInboundAt:  conv.LastInboundAt,
		LastOutboundAt: conv.LastOutboundAt,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}
}

// ListConversations returns conversations for the inbox view, most recent
// inbound first.
// GET /api/v1/conversations?contact_id=&channel=&limit=&offset=
func (h *Handler) ListConversations(c *gin.Context) {
	params := ListConversationsParams{Channel: c.Query("channel")}
	if v := c.Query("contact_id"); v != "" {
		contactID, err := uuid.Parse(v)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid contact_id", nil)
			return
		}
		params.ContactID = &contactID
	}
	if v := c.Query("limit"); v != "" {
		params.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("offset"); v != "" {
		params.Offset, _ = strconv.Atoi(v)
	}

	items, err := h.conversations.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]conversationResponse, 0, len(items))
	for _, conv := range items {
		out = append(out, toConversationResponse(conv))
	}
	httpkit.OK(c, out)
}

// GetConversation returns one conversation.
// GET /api/v1/conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	conv, err := h.conversations.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrConversationNotFound) {
		httpkit.Error(c, http.StatusNotFound, "conversation not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toConversationResponse(conv))
}

type messageResponse struct {
	ID                uuid.UUID  `json:"id"`
	ConversationID    uuid.UUID  `json:"conversationId"`
	LeadID            *uuid.UUID `json:"leadId,omitempty"`
	Direction         string     `json:"direction"`
	Body              string     `json:"body"`
	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	MediaObjectKey    *string    `json:"mediaObjectKey,omitempty"`
	MediaContentType  *string    `json:"mediaContentType,omitempty"`
	SentBy            string     `json:"sentBy"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func toMessageResponse(m Message) messageResponse {
	return messageResponse{
		ID:                m.ID,
		ConversationID:    m.ConversationID,
		LeadID:            m.LeadID,
		Direction:         m.Direction,
		Body:              m.Body,
		ProviderMessageID: m.ProviderMessageID,
		MediaObjectKey:    m.MediaObjectKey,
		MediaContentType:  m.MediaContentType,
		SentBy:            m.SentBy,
		CreatedAt:         m.CreatedAt,
	}
}

// ListMessages returns the transcript of one conversation, oldest first.
// GET /api/v1/conversations/:id/messages?limit=&offset=
func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	items, err := h.messages.ListByConversation(c.Request.Context(), id, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]messageResponse, 0, len(items))
	for _, m := range items {
		out = append(out, toMessageResponse(m))
	}
	httpkit.OK(c, out)
}

// GetMessageMedia returns a short-lived download link for a message
// attachment. The browser fetches the object from storage directly.
// GET /api/v1/conversations/:id/messages/:messageId/media
func (h *Handler) GetMessageMedia(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid message id", nil)
		return
	}
	if h.media == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "media storage is not configured", nil)
		return
	}

	msg, err := h.messages.GetByID(c.Request.Context(), messageID)
	if errors.Is(err, ErrMessageNotFound) || (err == nil && msg.ConversationID != id) {
		httpkit.Error(c, http.StatusNotFound, "message not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	if msg.MediaObjectKey == nil {
		httpkit.Error(c, http.StatusNotFound, "message has no attachment", nil)
		return
	}

	link, err := h.media.PresignedGetURL(c.Request.Context(), *msg.MediaObjectKey)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, link)
}

type assignRequest struct {
	// UserID empty or absent releases the conversation back to automation.
	UserID *uuid.UUID `json:"userId"`
}

// Assign hands a conversation to a staff member, which stops automated
// replies, or releases it back to automation.
// POST /api/v1/conversations/:id/assign
func (h *Handler) Assign(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}
	userID := uuid.Nil
	if req.UserID != nil {
		userID = *req.UserID
	}

	conv, err := h.conversations.Assign(c.Request.Context(), id, userID)
	if errors.Is(err, ErrConversationNotFound) {
		httpkit.Error(c, http.StatusNotFound, "conversation not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	h.log.Info("conversation assignment changed",
		"conversation_id", conv.ID, "assigned_user_id", conv.AssignedUserID)
	httpkit.OK(c, toConversationResponse(conv))
}

type enqueueReplyRequest struct {
	Objective    string `json:"objective" validate:"max=500"`
	DelaySeconds int    `json:"delaySeconds" validate:"min=0,max=86400"`
}

// EnqueueReply queues a one-off AI reply for a conversation on staff
// request. Each call makes a fresh job; it is not deduplicated against
// inbound-triggered replies.
// POST /api/v1/conversations/:id/reply
func (h *Handler) EnqueueReply(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	var req enqueueReplyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	conv, err := h.conversations.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrConversationNotFound) {
		httpkit.Error(c, http.StatusNotFound, "conversation not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}

	job, _, err := h.queue.EnqueueReply(c.Request.Context(), outbound.ReplyParams{
		ConversationID:   conv.ID,
		TriggerMessageID: "manual:" + uuid.NewString(),
		Objective:        req.Objective,
		Delay:            time.Duration(req.DelaySeconds) * time.Second,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	if h.timers != nil {
		if err := h.timers.ScheduleJobDue(c.Request.Context(), job.ID, job.RunAt); err != nil {
			h.log.Warn("job timer not armed, periodic pass will pick it up",
				"job_id", job.ID, "error", err)
		}
	}
	httpkit.JSON(c, http.StatusAccepted, gin.H{"jobId": job.ID, "runAt": job.RunAt})
}

type createAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=3,max=100"`
}

type apiKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type createAPIKeyResponse struct {
	apiKeyResponse
	// Key is the plaintext API key, shown only in this response.
	Key string `json:"key"`
}

// CreateAPIKey mints a webhook API key. The plaintext appears once, here.
// POST /api/v1/admin/webhook/keys
func (h *Handler) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if httpkit.HandleError(c, err) {
		return
	}
	key, err := h.apiKeys.Create(c.Request.Context(), req.Name, hash, prefix)
	if httpkit.HandleError(c, err) {
		return
	}
	h.log.Info("webhook API key created", "key_id", key.ID, "name", key.Name)
	httpkit.JSON(c, http.StatusCreated, createAPIKeyResponse{
		apiKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// ListAPIKeys returns all keys, active and revoked, without hashes.
// GET /api/v1/admin/webhook/keys
func (h *Handler) ListAPIKeys(c *gin.Context) {
	keys, err := h.apiKeys.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]apiKeyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, toAPIKeyResponse(key))
	}
	httpkit.OK(c, out)
}

// RevokeAPIKey deactivates a key immediately.
// DELETE /api/v1/admin/webhook/keys/:id
func (h *Handler) RevokeAPIKey(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key id", nil)
		return
	}
	err = h.apiKeys.Revoke(c.Request.Context(), id)
	if errors.Is(err, ErrAPIKeyNotFound) {
		httpkit.Error(c, http.StatusNotFound, "API key not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	h.log.Info("webhook API key revoked", "key_id", id)
	httpkit.OK(c, gin.H{"revoked": true})
}

func toAPIKeyResponse(key APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		IsActive:  key.IsActive,
		CreatedAt: key.CreatedAt,
	}
}

func (h *Handler) conversationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidConversationID, nil)
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
