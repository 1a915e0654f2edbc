package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/config"
)

// SMTPSender implements Sender over the business's own SMTP server via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSender picks the configured transport: SMTP when email is enabled,
// otherwise a noop that drops alerts.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}

	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendEscalationAlert(ctx context.Context, toEmail, leadID, conversationID, flow, reason string) error {
	content, err := renderEmailTemplate("escalation_alert.html", escalationAlertData{
		baseEmailData: baseEmailData{
			Title:      "Lead escalated",
			Heading:    "Lead escalated",
			Subheading: "A qualifier flow wants a human on this conversation.",
		},
		LeadID:         leadID,
		ConversationID: conversationID,
		Flow:           flow,
		Reason:         reason,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectEscalationAlert, content)
}

func (s *SMTPSender) SendJobFailedAlert(ctx context.Context, toEmail, jobID, conversationID, kind, reason string, attempts int) error {
	content, err := renderEmailTemplate("job_failed_alert.html", jobFailedAlertData{
		baseEmailData: baseEmailData{
			Title:   "Outbound message failed",
			Heading: "Outbound message failed",
		},
		JobID:          jobID,
		ConversationID: conversationID,
		Kind:           kind,
		Attempts:       attempts,
		Reason:         reason,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectJobFailedFmt, kind), content)
}

func (s *SMTPSender) SendExpiryHintAlert(ctx context.Context, toEmail, taskID, documentType, hintText string) error {
	content, err := renderEmailTemplate("expiry_hint_alert.html", expiryHintAlertData{
		baseEmailData: baseEmailData{
			Title:   "Expiry mention needs confirmation",
			Heading: "Expiry mention needs confirmation",
		},
		TaskID:       taskID,
		DocumentType: documentType,
		HintText:     hintText,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectExpiryHintAlert, content)
}
