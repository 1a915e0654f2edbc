package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/apperr"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

type waConfig struct {
	url      string
	username string
	password string
	template string
}

func (c waConfig) GetWhatsAppAPIURL() string       { return c.url }
func (c waConfig) GetWhatsAppAPIUsername() string  { return c.username }
func (c waConfig) GetWhatsAppAPIPassword() string  { return c.password }
func (c waConfig) GetWhatsAppTemplateName() string { return c.template }
func (c waConfig) IsWhatsAppEnabled() bool         { return c.url != "" }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(waConfig{url: srv.URL, username: "ops", password: "secret"}, logger.New("development"))
}

func TestSendTextPostsSessionMessage(t *testing.T) {
	var got textRequest
	var path, user, pass string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		user, pass, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(sendResponse{MessageID: "wamid.abc"})
	})

	id, err := client.SendText(context.Background(), "+971 50 123 4567", "Thanks for reaching out!")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if id != "wamid.abc" {
		t.Errorf("provider id %q, want wamid.abc", id)
	}
	if path != "/send/message" {
		t.Errorf("path %q, want /send/message", path)
	}
	if user != "ops" || pass != "secret" {
		t.Errorf("basic auth %q/%q", user, pass)
	}
	if got.Phone != "971501234567" {
		t.Errorf("wire phone %q, want bare E.164 digits", got.Phone)
	}
	if got.Message != "Thanks for reaching out!" {
		t.Errorf("message %q", got.Message)
	}
}

func TestSendTemplatePostsTemplatePayload(t *testing.T) {
	var got templateRequest
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(sendResponse{MessageID: "wamid.tpl"})
	})

	id, err := client.SendTemplate(context.Background(), "+971501234567", "renewal_reminder", []string{"Ahmed", "24 Sep 2026"})
	if err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
	if id != "wamid.tpl" {
		t.Errorf("provider id %q, want wamid.tpl", id)
	}
	if path != "/send/template" {
		t.Errorf("path %q, want /send/template", path)
	}
	if got.Template != "renewal_reminder" {
		t.Errorf("template %q", got.Template)
	}
	if len(got.Params) != 2 || got.Params[0] != "Ahmed" {
		t.Errorf("params %v", got.Params)
	}
}

func TestSendTextSessionExpiredRequiresTemplate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(sendResponse{Error: &apiError{
			Code:    codeSessionExpired,
			Message: "customer session closed more than 24h ago",
		}})
	})

	_, err := client.SendText(context.Background(), "+971501234567", "hello again")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrRequiresTemplate) {
		t.Errorf("error %v does not carry ErrRequiresTemplate", err)
	}
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Errorf("kind %v, want validation so the job parks instead of retrying", apperr.GetKind(err))
	}
}

func TestSendTextRejectionIsValidation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "recipient is not a whatsapp user", http.StatusBadRequest)
	})

	_, err := client.SendText(context.Background(), "+971501234567", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Errorf("kind %v, want validation", apperr.GetKind(err))
	}
	if errors.Is(err, ErrRequiresTemplate) {
		t.Error("plain rejection must not demand a template")
	}
}

func TestSendTextGatewayTroubleIsTransient(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		_, err := client.SendText(context.Background(), "+971501234567", "hello")
		if apperr.GetKind(err) != apperr.KindTransient {
			t.Errorf("status %d: kind %v, want transient", status, apperr.GetKind(err))
		}
	}
}

func TestSendTextTransportFailureStaysUntyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient(waConfig{url: srv.URL}, logger.New("development"))
	srv.Close()

	_, err := client.SendText(context.Background(), "+971501234567", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.GetKind(err) != apperr.KindUnknown {
		t.Errorf("kind %v, want unknown: the send outcome is ambiguous", apperr.GetKind(err))
	}
}

func TestNilClientFailsClosed(t *testing.T) {
	client := NewClient(waConfig{}, logger.New("development"))
	if client != nil {
		t.Fatal("client without gateway url should be nil")
	}

	id, err := client.SendText(context.Background(), "+971501234567", "hello")
	if err == nil || id != "" {
		t.Fatalf("nil client returned (%q, %v), want validation error", id, err)
	}
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Errorf("kind %v, want validation", apperr.GetKind(err))
	}
}

func TestGatewayWrapsBodyInConfiguredTemplate(t *testing.T) {
	var got templateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(sendResponse{MessageID: "wamid.gw"})
	})
	gw := NewGateway(client, "customer_update")

	id, err := gw.SendTemplate(context.Background(), "+971501234567", "Your visa expires in 30 days.")
	if err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
	if id != "wamid.gw" {
		t.Errorf("provider id %q", id)
	}
	if got.Template != "customer_update" {
		t.Errorf("template %q, want customer_update", got.Template)
	}
	if len(got.Params) != 1 || got.Params[0] != "Your visa expires in 30 days." {
		t.Errorf("params %v, want the rendered body as the single parameter", got.Params)
	}
}
