package email

import "context"

// Sender delivers operator alert mail. Implementations render the HTML
// templates in this package and deliver via the configured transport.
type Sender interface {
	SendEscalationAlert(ctx context.Context, toEmail, leadID, conversationID, flow, reason string) error
	SendJobFailedAlert(ctx context.Context, toEmail, jobID, conversationID, kind, reason string, attempts int) error
	SendExpiryHintAlert(ctx context.Context, toEmail, taskID, documentType, hintText string) error
}

// NoopSender drops every alert. Used when no SMTP server is configured.
type NoopSender struct{}

func (NoopSender) SendEscalationAlert(ctx context.Context, toEmail, leadID, conversationID, flow, reason string) error {
	return nil
}

func (NoopSender) SendJobFailedAlert(ctx context.Context, toEmail, jobID, conversationID, kind, reason string, attempts int) error {
	return nil
}

func (NoopSender) SendExpiryHintAlert(ctx context.Context, toEmail, taskID, documentType, hintText string) error {
	return nil
}
