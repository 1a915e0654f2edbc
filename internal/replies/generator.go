// Package replies generates outbound reply text with an LLM agent. The
// generator is deliberately narrow: it turns one claimed job plus
// conversation context into plain text, and everything it produces passes
// through the safety filter before anyone sees it.
package replies

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/messaging"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/ai/chatmodel"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/apperr"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

const (
	appName = "reply-generator"

	// transcriptWindow is how many recent messages ride along as context.
	transcriptWindow = 12
)

// TranscriptReader loads recent conversation history for prompt context.
type TranscriptReader interface {
	RecentByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]messaging.Message, error)
}

// LeadReader loads the lead whose facts season the prompt.
type LeadReader interface {
	Get(ctx context.Context, id uuid.UUID) (repository.Lead, error)
}

// BusinessProfile is the fixed company context every reply is written from.
type BusinessProfile struct {
	Name    string
	Profile string
}

// Generator produces reply text for outbound jobs. It implements the
// outbound processor's Generator interface.
type Generator struct {
	runner         *runner.Runner
	sessionService session.Service
	messages       TranscriptReader
	leads          LeadReader
	log            *logger.Logger
	runMu          sync.Mutex
}

// NewGenerator creates a reply generation agent without tools.
func NewGenerator(cfg chatmodel.Config, profile BusinessProfile, messages TranscriptReader, leads LeadReader, log *logger.Logger) (*Generator, error) {
	model := chatmodel.NewModel(cfg)

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "ReplyGenerator",
		Model:       model,
		Description: "Writes short customer-facing WhatsApp replies for a business services company.",
		Instruction: replySystemPrompt(profile),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reply agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reply runner: %w", err)
	}

	return &Generator{
		runner:         r,
		sessionService: sessionService,
		messages:       messages,
		leads:          leads,
		log:            log,
	}, nil
}

// GenerateReply renders one reply for a claimed job. The returned text has
// already been through the safety filter; empty output means the whole reply
// was filtered away and the caller should treat the attempt as failed.
func (g *Generator) GenerateReply(ctx context.Context, job outbound.Job, rcpt outbound.Recipient) (string, error) {
	transcript, err := g.messages.RecentByConversation(ctx, job.ConversationID, transcriptWindow)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, "load conversation context", err)
	}

	var lead *repository.Lead
	if job.LeadID != nil {
		if l, err := g.leads.Get(ctx, *job.LeadID); err == nil {
			lead = &l
		} else {
			// Facts are seasoning, not a dependency.
			g.log.Warn("lead facts unavailable for reply", "lead_id", *job.LeadID, "error", err)
		}
	}

	promptText := buildReplyPrompt(job, rcpt, transcript, lead)
	raw, err := g.run(ctx, job.ConversationID, promptText)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, "reply generation", err)
	}

	return FilterReply(raw), nil
}

// run executes one single-turn agent session. Sessions are throwaway; the
// transcript in the prompt is the only memory.
func (g *Generator) run(ctx context.Context, conversationID uuid.UUID, promptText string) (string, error) {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	sessionID := uuid.New().String()
	userID := "reply-" + conversationID.String()

	_, err := g.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = g.sessionService.Delete(ctx, &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	userMessage := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{{
			Text: promptText,
		}},
	}

	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}

	var outputText strings.Builder
	for event, err := range g.runner.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return "", fmt.Errorf("run failed: %w", err)
		}
		if event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			outputText.WriteString(part.Text)
		}
	}

	return strings.TrimSpace(outputText.String()), nil
}

func replySystemPrompt(profile BusinessProfile) string {
	name := profile.Name
	if name == "" {
		name = "the company"
	}
	return fmt.Sprintf(`You write WhatsApp replies on behalf of %s.
Company profile: %s

Style rules:
- Short, warm and professional. Two to four sentences.
- Plain text only: no markdown, no bullet lists, no emoji runs.
- Write in the customer's language when obvious, otherwise English.
- Never promise outcomes, never quote government fees as waivable, never
  claim special access to authorities. State what the company can do and
  what the next step is.
- Never invent prices, processing times or legal requirements.`, name, profile.Profile)
}
