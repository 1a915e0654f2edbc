package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
}

type escalationAlertData struct {
	baseEmailData
	LeadID         string
	ConversationID string
	Flow           string
	Reason         string
}

type jobFailedAlertData struct {
	baseEmailData
	JobID          string
	ConversationID string
	Kind           string
	Attempts       int
	Reason         string
}

type expiryHintAlertData struct {
	baseEmailData
	TaskID       string
	DocumentType string
	HintText     string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
