package qualifier

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/extract"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
)

// Golden Visa categories a customer can qualify under.
const (
	CategoryInvestor          = "investor"
	CategoryProperty          = "property"
	CategorySpecializedTalent = "specialized_talent"
	CategoryUnsure            = "unsure"
)

// Desired start timelines. Escalation never fires on TimelineNoRush.
const (
	TimelineReadyNow   = "ready_now"
	TimelineOneToThree = "one_to_three_months"
	TimelineNoRush     = "no_rush"
)

// Question keys. They key the send lock, so they must stay stable.
const (
	QuestionCategory   = "category"
	QuestionInvestment = "investment_level"
	QuestionProperty   = "property_value"
	QuestionTalent     = "talent_proof"
	QuestionTimeline   = "timeline"
)

// maxQuestions caps how many questions the flow asks in total, re-asks
// included. Past the cap the flow summarizes and goes quiet.
const maxQuestions = 4

// answerUnknown marks a slot whose answer the customer would not give even
// after a re-ask. It keeps the slot off the question list without
// pretending we learned anything.
const answerUnknown = "unknown"

// GoldenVisaFlow qualifies golden visa leads: which category, whether the
// category's proof threshold is met, and how soon they want to start.
// Slots fill once and are never overwritten; a correction is a staff action.
type GoldenVisaFlow struct{}

func NewGoldenVisaFlow() *GoldenVisaFlow { return &GoldenVisaFlow{} }

func (f *GoldenVisaFlow) Key() string     { return "goldenvisa" }
func (f *GoldenVisaFlow) DataKey() string { return "goldenVisa" }

func (f *GoldenVisaFlow) Applies(lead repository.Lead) bool {
	return lead.ServiceType == domain.ServiceTypeGoldenVisa && !domain.IsTerminalStage(lead.Stage)
}

func (f *GoldenVisaFlow) Advance(progress map[string]any, _ extract.Extraction, text string) Step {
	p := progress
	if p == nil {
		p = map[string]any{}
	}
	step := Step{Flow: f.Key(), Progress: p}
	lower := strings.ToLower(text)

	// Ingest the answer to whatever we asked last turn.
	pending := stringField(p, "lastQuestion")
	recognized := false
	if pending != "" {
		recognized = ingestAnswer(p, pending, lower)
	}

	// Volunteered facts fill empty slots even when nobody asked.
	if stringField(p, "category") == "" {
		if c := parseCategory(lower); c != "" {
			p["category"] = c
		}
	}
	if stringField(p, "timeline") == "" {
		if t := parseTimeline(lower); t != "" {
			p["timeline"] = t
		}
	}

	// An unrecognized answer earns one re-ask with the fixed option set.
	// A second miss settles the slot as unknown and the flow moves on.
	if pending != "" && !recognized && slotEmpty(p, pending) {
		if !listContains(p, "reasked", pending) && intField(p, "asked") < maxQuestions {
			listAppend(p, "reasked", pending)
			ask(p, &step, pending, reaskObjective(pending))
			f.finish(p, &step)
			return step
		}
		settleUnknown(p, pending)
	}

	next := nextQuestion(p)
	done := boolField(p, "done")
	switch {
	case next == "" || intField(p, "asked") >= maxQuestions:
		p["lastQuestion"] = ""
		if !done {
			p["done"] = true
			step.Summary = buildSummary(p)
			step.Objective = "Thank them, summarize what we know so far, and let them know a Golden Visa specialist will take it from here: " + step.Summary
		}
	default:
		ask(p, &step, next, objectiveFor(next))
	}

	f.finish(p, &step)
	return step
}

// finish computes eligibility, escalation and the proposed stage from the
// current slots. Runs on every turn so a late answer can still escalate.
func (f *GoldenVisaFlow) finish(p map[string]any, step *Step) {
	category := stringField(p, "category")
	timeline := stringField(p, "timeline")
	eligible := category != "" && category != CategoryUnsure && category != answerUnknown &&
		stringField(p, "proof") == "yes"
	urgent := timeline == TimelineReadyNow || timeline == TimelineOneToThree

	step.AdvanceTo = domain.StageQualifying
	if eligible && urgent {
		step.Escalate = true
		step.Reason = fmt.Sprintf("golden visa %s candidate, proof threshold met, wants to start %s",
			category, strings.ReplaceAll(timeline, "_", " "))
		step.AdvanceTo = domain.StageQualified
	}
}

func ask(p map[string]any, step *Step, question, objective string) {
	p["asked"] = intField(p, "asked") + 1
	p["lastQuestion"] = question
	step.Ask = true
	step.QuestionKey = question
	step.Objective = objective
}

// ingestAnswer parses the reply to one specific question. Returns false when
// the text does not answer it.
func ingestAnswer(p map[string]any, question, lower string) bool {
	switch question {
	case QuestionCategory:
		if c := parseCategory(lower); c != "" {
			p["category"] = c
			return true
		}
	case QuestionInvestment, QuestionProperty, QuestionTalent:
		if yn := parseYesNo(lower); yn != "" {
			p["proof"] = yn
			if yn == "yes" {
				listAppend(p, "signals", proofSignal(question))
			}
			return true
		}
	case QuestionTimeline:
		if t := parseTimeline(lower); t != "" {
			p["timeline"] = t
			return true
		}
	}
	return false
}

func slotEmpty(p map[string]any, question string) bool {
	switch question {
	case QuestionCategory:
		return stringField(p, "category") == ""
	case QuestionInvestment, QuestionProperty, QuestionTalent:
		return stringField(p, "proof") == ""
	case QuestionTimeline:
		return stringField(p, "timeline") == ""
	}
	return false
}

func settleUnknown(p map[string]any, question string) {
	switch question {
	case QuestionCategory:
		p["category"] = CategoryUnsure
	case QuestionInvestment, QuestionProperty, QuestionTalent:
		p["proof"] = answerUnknown
	case QuestionTimeline:
		p["timeline"] = answerUnknown
	}
}

// nextQuestion picks the first unfilled slot in flow order. The proof
// question depends on the category; an unsure category has none.
func nextQuestion(p map[string]any) string {
	category := stringField(p, "category")
	if category == "" {
		return QuestionCategory
	}
	if stringField(p, "proof") == "" {
		switch category {
		case CategoryInvestor:
			return QuestionInvestment
		case CategoryProperty:
			return QuestionProperty
		case CategorySpecializedTalent:
			return QuestionTalent
		}
	}
	if stringField(p, "timeline") == "" {
		return QuestionTimeline
	}
	return ""
}

func proofSignal(question string) string {
	switch question {
	case QuestionInvestment:
		return "investment_capital_2m"
	case QuestionProperty:
		return "property_value_2m"
	case QuestionTalent:
		return "talent_credentials"
	}
	return ""
}

func objectiveFor(question string) string {
	switch question {
	case QuestionCategory:
		return "Ask which Golden Visa route fits them best and offer exactly these options: investor, property owner, or specialized talent."
	case QuestionInvestment:
		return "Ask whether their planned investment in the UAE reaches AED 2 million."
	case QuestionProperty:
		return "Ask whether the property they own or plan to buy is worth at least AED 2 million."
	case QuestionTalent:
		return "Ask whether they hold a PhD, a specialist license, or a recognized award in their field."
	case QuestionTimeline:
		return "Ask when they want to start: right away, within one to three months, or no rush."
	}
	return ""
}

func reaskObjective(question string) string {
	return "Their last answer did not match the options. Politely repeat the question and list the options exactly: " + optionsFor(question) + "."
}

func optionsFor(question string) string {
	switch question {
	case QuestionCategory:
		return "investor, property owner, or specialized talent"
	case QuestionTimeline:
		return "right away, within one to three months, or no rush"
	default:
		return "yes or no"
	}
}

func buildSummary(p map[string]any) string {
	category := stringField(p, "category")
	if category == "" {
		category = "not stated"
	}
	proof := stringField(p, "proof")
	if proof == "" {
		proof = "not stated"
	}
	timeline := stringField(p, "timeline")
	if timeline == "" {
		timeline = "not stated"
	}
	return fmt.Sprintf("category %s, proof threshold %s, timeline %s",
		category, proof, strings.ReplaceAll(timeline, "_", " "))
}

func parseCategory(lower string) string {
	switch {
	case strings.Contains(lower, "not sure"), strings.Contains(lower, "unsure"),
		strings.Contains(lower, "don't know"), strings.Contains(lower, "dont know"),
		strings.Contains(lower, "no idea"):
		return CategoryUnsure
	case strings.Contains(lower, "invest"):
		return CategoryInvestor
	case strings.Contains(lower, "property"), strings.Contains(lower, "real estate"),
		strings.Contains(lower, "apartment"), strings.Contains(lower, "villa"):
		return CategoryProperty
	case strings.Contains(lower, "talent"), strings.Contains(lower, "phd"),
		strings.Contains(lower, "doctorate"), strings.Contains(lower, "scientist"),
		strings.Contains(lower, "researcher"), strings.Contains(lower, "specialist license"),
		strings.Contains(lower, "award"):
		return CategorySpecializedTalent
	}
	return ""
}

func parseTimeline(lower string) string {
	switch {
	case strings.Contains(lower, "no rush"), strings.Contains(lower, "no hurry"),
		strings.Contains(lower, "not urgent"), strings.Contains(lower, "just exploring"),
		strings.Contains(lower, "just looking"), strings.Contains(lower, "next year"),
		strings.Contains(lower, "someday"):
		return TimelineNoRush
	case strings.Contains(lower, "right away"), strings.Contains(lower, "immediately"),
		strings.Contains(lower, "asap"), strings.Contains(lower, "as soon as"),
		strings.Contains(lower, "right now"), strings.Contains(lower, "urgent"),
		strings.Contains(lower, "this week"), strings.Contains(lower, "today"):
		return TimelineReadyNow
	case strings.Contains(lower, "month"), strings.Contains(lower, "soon"),
		strings.Contains(lower, "quarter"), strings.Contains(lower, "few weeks"):
		return TimelineOneToThree
	}
	return ""
}

// parseYesNo reads an answer to a proof question. Hedged answers stay
// unrecognized so the re-ask can offer the options again.
func parseYesNo(lower string) string {
	if strings.Contains(lower, "not sure") || strings.Contains(lower, "unsure") ||
		strings.Contains(lower, "don't know") || strings.Contains(lower, "dont know") ||
		strings.Contains(lower, "maybe") {
		return ""
	}
	for _, w := range tokenize(lower) {
		switch w {
		case "yes", "yeah", "yep", "correct", "definitely", "absolutely", "indeed":
			return "yes"
		case "no", "nope", "negative":
			return "no"
		}
	}
	switch {
	case strings.Contains(lower, "more than"), strings.Contains(lower, "above"),
		strings.Contains(lower, "at least"), strings.Contains(lower, "over"):
		return "yes"
	case strings.Contains(lower, "less than"), strings.Contains(lower, "below"),
		strings.Contains(lower, "under"), strings.Contains(lower, "not yet"):
		return "no"
	}
	return ""
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
