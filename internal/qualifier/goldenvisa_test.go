package qualifier

import (
	"strings"
	"testing"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/extract"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
)

func turn(t *testing.T, p map[string]any, text string) Step {
	t.Helper()
	return NewGoldenVisaFlow().Advance(p, extract.Extraction{}, text)
}

func TestGoldenVisaAsksCategoryFirst(t *testing.T) {
	p := map[string]any{}
	step := turn(t, p, "hello, I would like a golden visa")

	if !step.Ask || step.QuestionKey != QuestionCategory {
		t.Fatalf("expected category question, got ask=%v key=%q", step.Ask, step.QuestionKey)
	}
	if intField(p, "asked") != 1 {
		t.Fatalf("expected 1 question asked, got %d", intField(p, "asked"))
	}
	if step.AdvanceTo != domain.StageQualifying {
		t.Fatalf("expected stage proposal %q, got %q", domain.StageQualifying, step.AdvanceTo)
	}
	if step.Escalate {
		t.Fatal("expected no escalation on the first turn")
	}
}

func TestGoldenVisaFullPathEscalates(t *testing.T) {
	p := map[string]any{}

	step := turn(t, p, "hi, golden visa please")
	if step.QuestionKey != QuestionCategory {
		t.Fatalf("turn 1: expected category question, got %q", step.QuestionKey)
	}

	step = turn(t, p, "I am an investor")
	if step.QuestionKey != QuestionInvestment {
		t.Fatalf("turn 2: expected investment question, got %q", step.QuestionKey)
	}

	step = turn(t, p, "yes, above 2 million")
	if step.QuestionKey != QuestionTimeline {
		t.Fatalf("turn 3: expected timeline question, got %q", step.QuestionKey)
	}
	if stringField(p, "proof") != "yes" {
		t.Fatalf("expected proof slot filled, got %q", stringField(p, "proof"))
	}
	if !listContains(p, "signals", "investment_capital_2m") {
		t.Fatalf("expected investment signal recorded, got %v", p["signals"])
	}

	step = turn(t, p, "right away please")
	if step.Ask {
		t.Fatalf("turn 4: expected no further question, still asking %q", step.QuestionKey)
	}
	if step.Summary == "" {
		t.Fatal("expected a summary once the flow stopped asking")
	}
	if !step.Escalate {
		t.Fatal("expected escalation for an eligible, urgent lead")
	}
	if !strings.Contains(step.Reason, "investor") {
		t.Fatalf("expected reason to name the category, got %q", step.Reason)
	}
	if step.AdvanceTo != domain.StageQualified {
		t.Fatalf("expected stage proposal %q, got %q", domain.StageQualified, step.AdvanceTo)
	}
}

func TestGoldenVisaNoRushNeverEscalates(t *testing.T) {
	p := map[string]any{}

	step := turn(t, p, "golden visa as an investor, but no rush at all")
	if step.QuestionKey != QuestionInvestment {
		t.Fatalf("expected investment question after volunteered slots, got %q", step.QuestionKey)
	}
	if stringField(p, "timeline") != TimelineNoRush {
		t.Fatalf("expected volunteered timeline recorded, got %q", stringField(p, "timeline"))
	}

	step = turn(t, p, "yes, over 2 million dirhams")
	if step.Escalate {
		t.Fatal("eligible but unhurried lead must not escalate")
	}
	if step.Summary == "" {
		t.Fatal("expected flow to summarize once all slots filled")
	}
	if step.AdvanceTo != domain.StageQualifying {
		t.Fatalf("expected stage to stay at %q, got proposal %q", domain.StageQualifying, step.AdvanceTo)
	}
}

func TestGoldenVisaReasksOnceThenSettles(t *testing.T) {
	p := map[string]any{}

	turn(t, p, "hello")
	step := turn(t, p, "potato")
	if !step.Ask || step.QuestionKey != QuestionCategory {
		t.Fatalf("expected category re-ask, got ask=%v key=%q", step.Ask, step.QuestionKey)
	}
	if !strings.Contains(step.Objective, "investor, property owner, or specialized talent") {
		t.Fatalf("expected re-ask objective to list the fixed options, got %q", step.Objective)
	}
	if intField(p, "asked") != 2 {
		t.Fatalf("expected re-ask to count against the cap, asked=%d", intField(p, "asked"))
	}

	step = turn(t, p, "banana")
	if stringField(p, "category") != CategoryUnsure {
		t.Fatalf("expected category settled as unsure after second miss, got %q", stringField(p, "category"))
	}
	if step.QuestionKey != QuestionTimeline {
		t.Fatalf("expected flow to move on to timeline, got %q", step.QuestionKey)
	}
}

func TestGoldenVisaQuestionCapStopsAsking(t *testing.T) {
	p := map[string]any{}

	turn(t, p, "hello")          // ask category
	turn(t, p, "gibberish")      // re-ask category
	turn(t, p, "more gibberish") // settle unsure, ask timeline
	turn(t, p, "huh?")           // re-ask timeline, cap reached

	if intField(p, "asked") != maxQuestions {
		t.Fatalf("expected %d questions asked, got %d", maxQuestions, intField(p, "asked"))
	}

	step := turn(t, p, "what do you mean?")
	if step.Ask {
		t.Fatalf("expected no question past the cap, got %q", step.QuestionKey)
	}
	if step.Summary == "" {
		t.Fatal("expected summary once the flow gave up asking")
	}

	step = turn(t, p, "still here")
	if step.Ask || step.Summary != "" {
		t.Fatalf("expected quiet turn after summarizing, got ask=%v summary=%q", step.Ask, step.Summary)
	}
	if intField(p, "asked") != maxQuestions {
		t.Fatalf("asked count moved past the cap: %d", intField(p, "asked"))
	}
}

func TestGoldenVisaVolunteeredAnswersSkipQuestions(t *testing.T) {
	p := map[string]any{}
	step := turn(t, p, "I am an investor and want to start immediately")

	if step.QuestionKey != QuestionInvestment {
		t.Fatalf("expected only the proof question left, got %q", step.QuestionKey)
	}
	if stringField(p, "category") != CategoryInvestor {
		t.Fatalf("expected volunteered category, got %q", stringField(p, "category"))
	}
	if stringField(p, "timeline") != TimelineReadyNow {
		t.Fatalf("expected volunteered timeline, got %q", stringField(p, "timeline"))
	}
}

func TestGoldenVisaProgressSurvivesJSONNumbers(t *testing.T) {
	// Progress loaded from jsonb carries float64 numbers and []any lists.
	p := map[string]any{
		"asked":        float64(4),
		"category":     CategoryInvestor,
		"proof":        "yes",
		"lastQuestion": "",
		"reasked":      []any{"category"},
		"signals":      []any{"investment_capital_2m"},
	}
	step := turn(t, p, "any update?")
	if step.Ask {
		t.Fatalf("expected cap from persisted count to hold, got question %q", step.QuestionKey)
	}
}

func TestGoldenVisaApplies(t *testing.T) {
	flow := NewGoldenVisaFlow()
	cases := []struct {
		name string
		lead repository.Lead
		want bool
	}{
		{"golden visa new", repository.Lead{ServiceType: domain.ServiceTypeGoldenVisa, Stage: domain.StageNew}, true},
		{"golden visa qualifying", repository.Lead{ServiceType: domain.ServiceTypeGoldenVisa, Stage: domain.StageQualifying}, true},
		{"golden visa won", repository.Lead{ServiceType: domain.ServiceTypeGoldenVisa, Stage: domain.StageWon}, false},
		{"other service", repository.Lead{ServiceType: domain.ServiceTypeResidenceVisa, Stage: domain.StageNew}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := flow.Applies(tc.lead); got != tc.want {
				t.Fatalf("expected applies=%v, got %v", tc.want, got)
			}
		})
	}
}

func TestParseTimelineBuckets(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"right away", TimelineReadyNow},
		{"ASAP please", TimelineReadyNow},
		{"within two months", TimelineOneToThree},
		{"sometime soon", TimelineOneToThree},
		{"no rush really", TimelineNoRush},
		{"maybe next year", TimelineNoRush},
		{"whenever", ""},
	}
	for _, tc := range cases {
		if got := parseTimeline(strings.ToLower(tc.text)); got != tc.want {
			t.Errorf("parseTimeline(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestParseYesNoHedges(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"yes", "yes"},
		{"Yeah, above 2 million", "yes"},
		{"no, not yet", "no"},
		{"it is under that", "no"},
		{"not sure", ""},
		{"maybe", ""},
	}
	for _, tc := range cases {
		if got := parseYesNo(strings.ToLower(tc.text)); got != tc.want {
			t.Errorf("parseYesNo(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
