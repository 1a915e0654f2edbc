package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/apperr"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/config"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/phone"
)

// ErrRequiresTemplate marks a session send the gateway refused because the
// customer's 24 hour window is closed. Only an approved template can reopen
// the thread.
var ErrRequiresTemplate = errors.New("session window closed, template message required")

// codeSessionExpired is the gateway error code for sends outside the window.
const codeSessionExpired = "session_expired"

type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      *logger.Logger
}

type textRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type templateRequest struct {
	Phone    string   `json:"phone"`
	Template string   `json:"template"`
	Params   []string `json:"params"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sendResponse struct {
	MessageID string    `json:"messageId"`
	Error     *apiError `json:"error"`
}

// NewClient returns nil when no gateway is configured. A nil client fails
// sends with a validation error instead of pretending they went out.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if !cfg.IsWhatsAppEnabled() {
		return nil
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppAPIURL(), "/"),
		username: cfg.GetWhatsAppAPIUsername(),
		password: cfg.GetWhatsAppAPIPassword(),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// SendText sends a free-form session message and returns the provider
// message id. Outside the session window the gateway rejects it with an
// error carrying ErrRequiresTemplate.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	if c == nil {
		return "", apperr.Validation("whatsapp gateway not configured")
	}

	normalized := wirePhone(to)
	id, err := c.post(ctx, "/send/message", textRequest{Phone: normalized, Message: body})
	if err != nil {
		return "", err
	}

	c.log.Info("whatsapp text sent", "phone", normalized, "provider_message_id", id)
	return id, nil
}

// SendTemplate sends an approved template with positional parameters and
// returns the provider message id.
func (c *Client) SendTemplate(ctx context.Context, to, templateName string, params []string) (string, error) {
	if c == nil {
		return "", apperr.Validation("whatsapp gateway not configured")
	}

	normalized := wirePhone(to)
	id, err := c.post(ctx, "/send/template", templateRequest{Phone: normalized, Template: templateName, Params: params})
	if err != nil {
		return "", err
	}

	c.log.Info("whatsapp template sent", "phone", normalized, "template", templateName, "provider_message_id", id)
	return id, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The message may or may not have reached the gateway. Left untyped
		// so callers treat the outcome as unknown.
		return "", fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read whatsapp response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", mapSendError(resp.StatusCode, data)
	}

	var out sendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode whatsapp response: %w", err)
	}
	return out.MessageID, nil
}

// mapSendError sorts a non-2xx gateway response: 4xx means the message was
// rejected before anything left, 429 and 5xx are worth a retry. The session
// window code additionally carries ErrRequiresTemplate.
func mapSendError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var out sendResponse
	if err := json.Unmarshal(body, &out); err == nil && out.Error != nil {
		if out.Error.Message != "" {
			msg = out.Error.Message
		}
		if out.Error.Code == codeSessionExpired {
			return apperr.Wrap(apperr.KindValidation, msg, ErrRequiresTemplate)
		}
	}

	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return apperr.Transient(fmt.Sprintf("whatsapp gateway returned %d: %s", status, msg))
	}
	return apperr.Validation(fmt.Sprintf("whatsapp gateway returned %d: %s", status, msg))
}

// wirePhone normalizes to E.164 and strips the plus; the gateway wants bare
// digits in its phone field.
func wirePhone(input string) string {
	return strings.TrimPrefix(phone.NormalizeE164(input), "+")
}
