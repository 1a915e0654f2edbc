package replies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/messaging"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
)

// buildReplyPrompt assembles the per-job user prompt: transcript, lead
// facts, then the task. The system prompt already carries the company
// profile and style rules.
func buildReplyPrompt(job outbound.Job, rcpt outbound.Recipient, transcript []messaging.Message, lead *repository.Lead) string {
	var b strings.Builder

	b.WriteString("Conversation so far, oldest first:\n")
	if len(transcript) == 0 {
		b.WriteString("(no prior messages)\n")
	}
	for _, m := range transcript {
		speaker := "Customer"
		if m.Direction == messaging.DirectionOut {
			speaker = "Us"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Body)
	}

	if rcpt.ContactName != "" {
		fmt.Fprintf(&b, "\nCustomer name: %s\n", rcpt.ContactName)
	}

	if lead != nil {
		b.WriteString("\nKnown facts about this enquiry:\n")
		fmt.Fprintf(&b, "- service type: %s\n", lead.ServiceType)
		fmt.Fprintf(&b, "- stage: %s\n", lead.Stage)
		for _, line := range leadFactLines(lead.Data) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nTask:\n")
	switch {
	case job.Kind == outbound.KindRenewal:
		b.WriteString("Write a friendly renewal reminder.\n")
	case job.QuestionKey != "":
		b.WriteString("Reply to the last customer message, then ask exactly one question.\n")
		fmt.Fprintf(&b, "The question to ask: %s\n", job.Objective)
	case job.Objective != "":
		b.WriteString("Reply to the last customer message.\n")
		fmt.Fprintf(&b, "Objective: %s\n", job.Objective)
	default:
		b.WriteString("Reply to the last customer message. Answer what you can and ask how we can help.\n")
	}
	b.WriteString("Do not ask more than one question. Output only the reply text.")

	return b.String()
}

// leadFactLines renders the scalar fields of the lead data document, sorted
// for a stable prompt. Nested structures are flow bookkeeping and stay out
// of the model's view.
func leadFactLines(data map[string]any) []string {
	var lines []string
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if v != "" {
				lines = append(lines, fmt.Sprintf("- %s: %s", key, v))
			}
		case bool:
			lines = append(lines, fmt.Sprintf("- %s: %t", key, v))
		case int:
			lines = append(lines, fmt.Sprintf("- %s: %d", key, v))
		case int64:
			lines = append(lines, fmt.Sprintf("- %s: %d", key, v))
		case float64:
			lines = append(lines, fmt.Sprintf("- %s: %g", key, v))
		}
	}
	sort.Strings(lines)
	return lines
}
