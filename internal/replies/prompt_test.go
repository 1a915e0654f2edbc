package replies

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/messaging"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
)

func promptFixture() ([]messaging.Message, *repository.Lead) {
	transcript := []messaging.Message{
		{Direction: messaging.DirectionIn, Body: "hi, I need a golden visa"},
		{Direction: messaging.DirectionOut, Body: "Happy to help! Are you applying as an investor?"},
		{Direction: messaging.DirectionIn, Body: "yes, an investor"},
	}
	lead := &repository.Lead{
		ID:          uuid.New(),
		ServiceType: "golden_visa",
		Stage:       "qualifying",
		Data: map[string]any{
			"nationality":    "indian",
			"passportNumber": "Z1234567",
			"goldenVisa":     map[string]any{"asked": 2, "category": "investor"},
		},
	}
	return transcript, lead
}

func TestBuildReplyPromptIncludesTranscriptInOrder(t *testing.T) {
	transcript, lead := promptFixture()
	prompt := buildReplyPrompt(outbound.Job{Kind: outbound.KindReply}, outbound.Recipient{}, transcript, lead)

	first := strings.Index(prompt, "Customer: hi, I need a golden visa")
	second := strings.Index(prompt, "Us: Happy to help!")
	third := strings.Index(prompt, "Customer: yes, an investor")
	if first == -1 || second == -1 || third == -1 {
		t.Fatalf("transcript lines missing:\n%s", prompt)
	}
	if !(first < second && second < third) {
		t.Fatalf("transcript out of order:\n%s", prompt)
	}
}

func TestBuildReplyPromptQuestionMode(t *testing.T) {
	transcript, lead := promptFixture()
	job := outbound.Job{
		Kind:        outbound.KindReply,
		QuestionKey: "timeline",
		Objective:   "ask when they want to start: right away, within 1-3 months, or no rush",
	}
	prompt := buildReplyPrompt(job, outbound.Recipient{}, transcript, lead)

	if !strings.Contains(prompt, "ask exactly one question") {
		t.Fatalf("question instruction missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "right away, within 1-3 months, or no rush") {
		t.Fatalf("objective missing:\n%s", prompt)
	}
}

func TestBuildReplyPromptRendersScalarFactsOnly(t *testing.T) {
	transcript, lead := promptFixture()
	prompt := buildReplyPrompt(outbound.Job{Kind: outbound.KindReply}, outbound.Recipient{}, transcript, lead)

	if !strings.Contains(prompt, "- nationality: indian") {
		t.Fatalf("scalar fact missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "- service type: golden_visa") {
		t.Fatalf("service type missing:\n%s", prompt)
	}
	if strings.Contains(prompt, "goldenVisa") || strings.Contains(prompt, "asked") {
		t.Fatalf("flow bookkeeping leaked into the prompt:\n%s", prompt)
	}
}

func TestBuildReplyPromptWithoutLeadOrHistory(t *testing.T) {
	prompt := buildReplyPrompt(outbound.Job{Kind: outbound.KindReply}, outbound.Recipient{ContactName: "Fatima"}, nil, nil)

	if !strings.Contains(prompt, "(no prior messages)") {
		t.Fatalf("empty-transcript marker missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Customer name: Fatima") {
		t.Fatalf("contact name missing:\n%s", prompt)
	}
	if strings.Contains(prompt, "Known facts") {
		t.Fatalf("facts section should be absent without a lead:\n%s", prompt)
	}
	if !strings.Contains(prompt, "ask how we can help") {
		t.Fatalf("default objective missing:\n%s", prompt)
	}
}

func TestBuildReplyPromptRenewalMode(t *testing.T) {
	prompt := buildReplyPrompt(outbound.Job{Kind: outbound.KindRenewal}, outbound.Recipient{}, nil, nil)
	if !strings.Contains(prompt, "renewal reminder") {
		t.Fatalf("renewal instruction missing:\n%s", prompt)
	}
}
