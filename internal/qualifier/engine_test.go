package qualifier

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/extract"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/tasks"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

type stubLeadStore struct {
	setKeys  []string
	advances []string
	advErr   error
}

func (s *stubLeadStore) SetDataField(_ context.Context, _ uuid.UUID, key string, _ any) error {
	s.setKeys = append(s.setKeys, key)
	return nil
}

func (s *stubLeadStore) AdvanceStage(_ context.Context, _ uuid.UUID, from, to string) error {
	if s.advErr != nil {
		return s.advErr
	}
	s.advances = append(s.advances, from+">"+to)
	return nil
}

type stubTaskCreator struct {
	created []tasks.CreateParams
	seen    map[string]bool
}

func (s *stubTaskCreator) CreateIfAbsent(_ context.Context, params tasks.CreateParams) (tasks.Task, bool, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[params.IdempotencyKey] {
		return tasks.Task{ID: uuid.New(), IdempotencyKey: params.IdempotencyKey}, false, nil
	}
	s.seen[params.IdempotencyKey] = true
	s.created = append(s.created, params)
	return tasks.Task{ID: uuid.New(), IdempotencyKey: params.IdempotencyKey}, true, nil
}

type captureBus struct {
	published []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) { b.published = append(b.published, e) }
func (b *captureBus) PublishSync(_ context.Context, e events.Event) error {
	b.published = append(b.published, e)
	return nil
}
func (b *captureBus) Subscribe(string, events.Handler) {}

func newEngineFixture() (*Engine, *stubLeadStore, *stubTaskCreator, *captureBus) {
	leadStore := &stubLeadStore{}
	taskCreator := &stubTaskCreator{}
	bus := &captureBus{}
	engine := NewEngine(leadStore, taskCreator, bus, logger.New("development"))
	engine.Register(domain.ServiceTypeGoldenVisa, NewGoldenVisaFlow())
	return engine, leadStore, taskCreator, bus
}

func goldenVisaLead(stage string, data map[string]any) repository.Lead {
	if data == nil {
		data = map[string]any{}
	}
	return repository.Lead{
		ID:          uuid.New(),
		ContactID:   uuid.New(),
		ServiceType: domain.ServiceTypeGoldenVisa,
		Stage:       stage,
		Data:        data,
	}
}

func TestEngineIgnoresLeadsWithoutFlow(t *testing.T) {
	engine, leadStore, taskCreator, _ := newEngineFixture()
	lead := repository.Lead{
		ID:          uuid.New(),
		ServiceType: domain.ServiceTypeGeneral,
		Stage:       domain.StageNew,
		Data:        map[string]any{},
	}

	step, err := engine.Advance(context.Background(), lead, uuid.New(), extract.Extraction{}, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Flow != "" {
		t.Fatalf("expected no flow to apply, got %q", step.Flow)
	}
	if len(leadStore.setKeys) != 0 || len(taskCreator.created) != 0 {
		t.Fatal("expected no writes when no flow applies")
	}
}

func TestEnginePersistsProgressAndAdvancesStage(t *testing.T) {
	engine, leadStore, _, _ := newEngineFixture()
	lead := goldenVisaLead(domain.StageNew, nil)

	step, err := engine.Advance(context.Background(), lead, uuid.New(), extract.Extraction{}, "golden visa please")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.Ask {
		t.Fatal("expected the flow to ask its first question")
	}
	if len(leadStore.setKeys) != 1 || leadStore.setKeys[0] != "goldenVisa" {
		t.Fatalf("expected progress persisted under goldenVisa, got %v", leadStore.setKeys)
	}
	if len(leadStore.advances) != 1 || leadStore.advances[0] != domain.StageNew+">"+domain.StageQualifying {
		t.Fatalf("expected stage advance new to qualifying, got %v", leadStore.advances)
	}
}

func TestEngineSkipsImpossibleStageMove(t *testing.T) {
	engine, leadStore, _, _ := newEngineFixture()
	lead := goldenVisaLead(domain.StageQualifying, nil)

	_, err := engine.Advance(context.Background(), lead, uuid.New(), extract.Extraction{}, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leadStore.advances) != 0 {
		t.Fatalf("expected no stage call for a same-rank move, got %v", leadStore.advances)
	}
}

func TestEngineToleratesStageConflict(t *testing.T) {
	engine, leadStore, _, _ := newEngineFixture()
	leadStore.advErr = repository.ErrStageConflict
	lead := goldenVisaLead(domain.StageNew, nil)

	if _, err := engine.Advance(context.Background(), lead, uuid.New(), extract.Extraction{}, "hello"); err != nil {
		t.Fatalf("expected stage conflict to be tolerated, got %v", err)
	}
}

func TestEngineEscalatesExactlyOnce(t *testing.T) {
	engine, _, taskCreator, bus := newEngineFixture()
	data := map[string]any{
		"goldenVisa": map[string]any{
			"category": CategoryInvestor,
			"proof":    "yes",
			"asked":    float64(3),
		},
	}
	lead := goldenVisaLead(domain.StageQualifying, data)
	conversationID := uuid.New()

	step, err := engine.Advance(context.Background(), lead, conversationID, extract.Extraction{}, "I want to start right away")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.Escalate {
		t.Fatal("expected escalation for eligible lead with urgent timeline")
	}
	if len(taskCreator.created) != 1 {
		t.Fatalf("expected one escalation task, got %d", len(taskCreator.created))
	}
	created := taskCreator.created[0]
	if created.IdempotencyKey != tasks.EscalationKey(lead.ID, "goldenvisa") {
		t.Fatalf("unexpected task key %q", created.IdempotencyKey)
	}
	if created.Kind != tasks.KindEscalation {
		t.Fatalf("expected escalation kind, got %q", created.Kind)
	}
	if len(bus.published) != 1 || bus.published[0].EventName() != "qualifier.lead.escalated" {
		t.Fatalf("expected one escalation event, got %v", bus.published)
	}

	// A later message from the same lead must not raise a second task or event.
	lead.Data = map[string]any{"goldenVisa": step.Progress}
	if _, err := engine.Advance(context.Background(), lead, conversationID, extract.Extraction{}, "thanks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(taskCreator.created) != 1 {
		t.Fatalf("expected still one escalation task, got %d", len(taskCreator.created))
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected still one event, got %d", len(bus.published))
	}
}
