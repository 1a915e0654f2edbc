package renewals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/messaging"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/tasks"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// Tuesday, mid-morning UTC.
var sweepNow = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

const engineTestCatalog = `
templates:
  residence_visa:
    d30: "Hi {{.Name}}, your visa expires {{.ExpiryDate}} ({{.DaysLeft}} days)."
  labour_card:
    d7: "Hi {{.Name}}, {{.Missing}} expires soon."
  default:
    d90: "{{.Document}} expires {{.ExpiryDate}}."
    d30: "{{.Document}} expires {{.ExpiryDate}}."
    d7: "{{.Document}} expires {{.ExpiryDate}}, {{.DaysLeft}} days left."
    expired: "{{.Document}} expired {{.ExpiryDate}}. Contact {{.Company}}."
`

type fakeItems struct {
	due     []DueItem
	until   time.Time
	stamped []uuid.UUID
}

func (f *fakeItems) ListDue(_ context.Context, until time.Time) ([]DueItem, error) {
	f.until = until
	return f.due, nil
}

func (f *fakeItems) StampReminder(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.stamped = append(f.stamped, id)
	return nil
}

type fakeConvs struct {
	conv  messaging.Conversation
	calls int
}

func (f *fakeConvs) GetOrCreate(_ context.Context, contactID uuid.UUID, channel string) (messaging.Conversation, error) {
	f.calls++
	f.conv.ContactID = contactID
	f.conv.Channel = channel
	return f.conv, nil
}

type fakeStagedQueue struct {
	staged    []outbound.StagedParams
	jobID     uuid.UUID
	calls     int
	failFirst bool
}

func (f *fakeStagedQueue) EnqueueStaged(_ context.Context, params outbound.StagedParams) (outbound.Job, bool, error) {
	f.calls++
	if f.failFirst && f.calls == 1 {
		return outbound.Job{}, false, errors.New("insert failed")
	}
	f.staged = append(f.staged, params)
	return outbound.Job{ID: f.jobID, ConversationID: params.ConversationID, Kind: params.Kind}, true, nil
}

type fakeTaskCreator struct {
	created []tasks.CreateParams
}

func (f *fakeTaskCreator) CreateIfAbsent(_ context.Context, params tasks.CreateParams) (tasks.Task, bool, error) {
	f.created = append(f.created, params)
	return tasks.Task{ID: uuid.New()}, true, nil
}

type fakeRunLog struct {
	seen     map[string]bool
	marked   []string
	denyMark bool
}

func newFakeRunLog() *fakeRunLog {
	return &fakeRunLog{seen: make(map[string]bool)}
}

func (f *fakeRunLog) TryMark(_ context.Context, _, _, _, actionKey string) (bool, error) {
	if f.denyMark || f.seen[actionKey] {
		return false, nil
	}
	f.seen[actionKey] = true
	f.marked = append(f.marked, actionKey)
	return true, nil
}

func (f *fakeRunLog) Seen(_ context.Context, actionKey string) (bool, error) {
	if f.denyMark {
		return false, nil
	}
	return f.seen[actionKey], nil
}

type captureBus struct {
	published []events.Event
}

func (b *captureBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *captureBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *captureBus) Subscribe(_ string, _ events.Handler) {}

func (b *captureBus) names() []string {
	out := make([]string, 0, len(b.published))
	for _, e := range b.published {
		out = append(out, e.EventName())
	}
	return out
}

func allWeek() map[time.Weekday]bool {
	days := make(map[time.Weekday]bool, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		days[d] = true
	}
	return days
}

type engineFixture struct {
	engine *Engine
	items  *fakeItems
	convs  *fakeConvs
	queue  *fakeStagedQueue
	tasks  *fakeTaskCreator
	runlog *fakeRunLog
	bus    *captureBus
}

func newEngineFixture(t *testing.T, due ...DueItem) *engineFixture {
	t.Helper()
	catalog, err := ParseCatalog([]byte(engineTestCatalog))
	if err != nil {
		t.Fatalf("parse test catalog: %v", err)
	}

	f := &engineFixture{
		items:  &fakeItems{due: due},
		convs:  &fakeConvs{conv: messaging.Conversation{ID: uuid.New()}},
		queue:  &fakeStagedQueue{jobID: uuid.New()},
		tasks:  &fakeTaskCreator{},
		runlog: newFakeRunLog(),
		bus:    &captureBus{},
	}
	f.engine = NewEngine(EngineDeps{
		Items:         f.items,
		Conversations: f.convs,
		Queue:         f.queue,
		Tasks:         f.tasks,
		RunLog:        f.runlog,
		Catalog:       catalog,
		Hours:         Hours{loc: time.UTC, start: 0, end: 24 * 60, days: allWeek()},
		StageDays:     []int{90, 60, 30, 7},
		MinInterval:   24 * time.Hour,
		WindowDays:    120,
		CompanyName:   "Al Ain Business Center",
		Bus:           f.bus,
		Logger:        logger.New("development"),
	})
	f.engine.now = func() time.Time { return sweepNow }
	return f
}

func dueIn(days int, documentType string) DueItem {
	return DueItem{
		Item: Item{
			ID:           uuid.New(),
			ContactID:    uuid.New(),
			DocumentType: documentType,
			ExpiryDate:   sweepNow.AddDate(0, 0, days),
			Status:       StatusActive,
		},
		ContactName:  "Ahmed",
		ContactPhone: "+971501234567",
	}
}

func TestStageForLadder(t *testing.T) {
	f := newEngineFixture(t)
	cases := []struct {
		daysLeft int
		want     string
	}{
		{120, ""},
		{91, ""},
		{90, "d90"},
		{61, "d90"},
		{60, "d60"},
		{31, "d60"},
		{30, "d30"},
		{8, "d30"},
		{7, "d7"},
		{1, "d7"},
		{0, "d7"},
		{-1, "expired"},
		{-45, "expired"},
	}
	for _, tc := range cases {
		if got := f.engine.stageFor(tc.daysLeft); got != tc.want {
			t.Errorf("stageFor(%d) = %q, want %q", tc.daysLeft, got, tc.want)
		}
	}
}

func TestSweepStagesDueReminder(t *testing.T) {
	item := dueIn(30, "residence_visa")
	f := newEngineFixture(t, item)

	candidates, err := f.engine.Sweep(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	c := candidates[0]
	if !c.Send || c.SkipReason != "" {
		t.Fatalf("candidate not staged: send=%v skip=%q", c.Send, c.SkipReason)
	}
	if c.Stage != "d30" || c.DaysLeft != 30 {
		t.Errorf("stage=%q daysLeft=%d, want d30/30", c.Stage, c.DaysLeft)
	}
	if c.JobID == nil || *c.JobID != f.queue.jobID {
		t.Error("candidate missing staged job id")
	}

	wantKey := "renewal:" + item.ID.String() + ":d30"
	if len(f.runlog.marked) != 1 || f.runlog.marked[0] != wantKey {
		t.Errorf("run log marked %v, want [%s]", f.runlog.marked, wantKey)
	}
	if len(f.tasks.created) != 1 {
		t.Fatalf("got %d tasks, want 1", len(f.tasks.created))
	}
	task := f.tasks.created[0]
	if task.IdempotencyKey != wantKey || task.Kind != tasks.KindRenewal {
		t.Errorf("task key=%q kind=%q", task.IdempotencyKey, task.Kind)
	}
	if task.ConversationID == nil || *task.ConversationID != f.convs.conv.ID {
		t.Error("task not linked to the reminder conversation")
	}
	if len(f.queue.staged) != 1 {
		t.Fatalf("got %d staged jobs, want 1", len(f.queue.staged))
	}
	staged := f.queue.staged[0]
	if staged.Kind != outbound.KindRenewal || staged.TriggerMessageID != wantKey {
		t.Errorf("staged kind=%q trigger=%q", staged.Kind, staged.TriggerMessageID)
	}
	wantBody := "Hi Ahmed, your visa expires 24 Sep 2026 (30 days)."
	if staged.Content != wantBody {
		t.Errorf("staged content %q, want %q", staged.Content, wantBody)
	}
	if len(f.items.stamped) != 1 || f.items.stamped[0] != item.ID {
		t.Error("last_reminder_at not stamped")
	}
	names := f.bus.names()
	if len(names) != 1 || names[0] != "renewals.reminder.queued" {
		t.Errorf("published %v, want [renewals.reminder.queued]", names)
	}
}

func TestSweepDryRunWritesNothing(t *testing.T) {
	f := newEngineFixture(t, dueIn(30, "residence_visa"))

	candidates, err := f.engine.Sweep(context.Background(), true, 0)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	c := candidates[0]
	if !c.Send {
		t.Fatalf("dry run should still report send, got skip=%q", c.SkipReason)
	}
	if c.JobID != nil {
		t.Error("dry run staged a job")
	}
	if len(f.runlog.marked) != 0 || len(f.tasks.created) != 0 || len(f.queue.staged) != 0 {
		t.Error("dry run performed writes")
	}
	if len(f.items.stamped) != 0 || len(f.bus.published) != 0 {
		t.Error("dry run stamped or published")
	}
}

func TestSweepSkipsAlreadyActionedStage(t *testing.T) {
	item := dueIn(30, "residence_visa")
	f := newEngineFixture(t, item)
	f.runlog.seen["renewal:"+item.ID.String()+":d30"] = true

	candidates, _ := f.engine.Sweep(context.Background(), false, 0)
	if candidates[0].Send || candidates[0].SkipReason != SkipAlreadyActioned {
		t.Fatalf("got send=%v skip=%q, want already_actioned", candidates[0].Send, candidates[0].SkipReason)
	}
	if len(f.queue.staged) != 0 {
		t.Error("skipped item was staged anyway")
	}
}

func TestSweepSkipsRecentReminder(t *testing.T) {
	item := dueIn(30, "residence_visa")
	recent := sweepNow.Add(-2 * time.Hour)
	item.LastReminderAt = &recent
	f := newEngineFixture(t, item)

	candidates, _ := f.engine.Sweep(context.Background(), false, 0)
	if candidates[0].SkipReason != SkipRemindedRecently {
		t.Fatalf("skip=%q, want reminded_recently", candidates[0].SkipReason)
	}
}

func TestSweepSkipsMissingTemplate(t *testing.T) {
	// 45 days out lands on the d60 stage, which no catalog entry covers.
	f := newEngineFixture(t, dueIn(45, "residence_visa"))

	candidates, _ := f.engine.Sweep(context.Background(), false, 0)
	if candidates[0].Stage != "d60" || candidates[0].SkipReason != SkipNoTemplate {
		t.Fatalf("stage=%q skip=%q, want d60/no_template", candidates[0].Stage, candidates[0].SkipReason)
	}
}

func TestSweepSkipsUnresolvableTemplateVars(t *testing.T) {
	// The labour_card d7 template references a variable the sweep never
	// supplies, so the render probe fails before anything is written.
	f := newEngineFixture(t, dueIn(7, "labour_card"))

	candidates, _ := f.engine.Sweep(context.Background(), false, 0)
	if candidates[0].SkipReason != SkipVarsUnresolved {
		t.Fatalf("skip=%q, want template_vars_unresolved", candidates[0].SkipReason)
	}
	if len(f.runlog.marked) != 0 || len(f.queue.staged) != 0 {
		t.Error("unresolvable template still produced writes")
	}
}

func TestSweepSkipsUndeliverablePhone(t *testing.T) {
	item := dueIn(30, "residence_visa")
	item.ContactPhone = ""
	f := newEngineFixture(t, item)

	candidates, _ := f.engine.Sweep(context.Background(), false, 0)
	if candidates[0].SkipReason != SkipPhoneUndeliverable {
		t.Fatalf("skip=%q, want phone_undeliverable", candidates[0].SkipReason)
	}
}

func TestSweepSkipsOutsideBusinessHours(t *testing.T) {
	f := newEngineFixture(t, dueIn(30, "residence_visa"))
	// Window opens at 11:00; the sweep runs at 10:00.
	f.engine.deps.Hours = Hours{loc: time.UTC, start: 11 * 60, end: 18 * 60, days: allWeek()}

	candidates, _ := f.engine.Sweep(context.Background(), false, 0)
	if candidates[0].SkipReason != SkipOutsideHours {
		t.Fatalf("skip=%q, want outside_business_hours", candidates[0].SkipReason)
	}
	if len(f.queue.staged) != 0 {
		t.Error("out-of-hours item was staged")
	}
}

func TestSweepRunLogRaceFallsBackToSkip(t *testing.T) {
	// Seen misses but TryMark loses: a concurrent sweep claimed the key in
	// between. The item is reported as already actioned, nothing staged.
	f := newEngineFixture(t, dueIn(30, "residence_visa"))
	f.runlog.denyMark = true

	candidates, _ := f.engine.Sweep(context.Background(), false, 0)
	if candidates[0].Send || candidates[0].SkipReason != SkipAlreadyActioned {
		t.Fatalf("send=%v skip=%q, want already_actioned", candidates[0].Send, candidates[0].SkipReason)
	}
	if len(f.tasks.created) != 0 || len(f.queue.staged) != 0 || len(f.items.stamped) != 0 {
		t.Error("lost race still produced writes")
	}
}

func TestSweepContinuesPastFailedItem(t *testing.T) {
	first := dueIn(30, "residence_visa")
	second := dueIn(7, "passport")
	f := newEngineFixture(t, first, second)
	f.queue.failFirst = true

	candidates, err := f.engine.Sweep(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Send || candidates[0].SkipReason != SkipError {
		t.Errorf("first candidate send=%v skip=%q, want error skip", candidates[0].Send, candidates[0].SkipReason)
	}
	if !candidates[1].Send {
		t.Errorf("second candidate skipped: %q", candidates[1].SkipReason)
	}
	if len(f.queue.staged) != 1 || f.queue.staged[0].TriggerMessageID != "renewal:"+second.ID.String()+":d7" {
		t.Error("second item not staged after first failed")
	}
	if len(f.items.stamped) != 1 || f.items.stamped[0] != second.ID {
		t.Error("stamp applied to the wrong item")
	}
}

func TestSweepExpiredItemUsesExpiredStage(t *testing.T) {
	item := dueIn(-2, "residence_visa")
	f := newEngineFixture(t, item)

	candidates, _ := f.engine.Sweep(context.Background(), false, 0)
	c := candidates[0]
	if c.Stage != StageExpired || !c.Send {
		t.Fatalf("stage=%q send=%v, want expired/true", c.Stage, c.Send)
	}
	wantBody := "residence visa expired 23 Aug 2026. Contact Al Ain Business Center."
	if f.queue.staged[0].Content != wantBody {
		t.Errorf("content %q, want %q", f.queue.staged[0].Content, wantBody)
	}
}

func TestSweepNotDueAboveLadder(t *testing.T) {
	f := newEngineFixture(t, dueIn(120, "residence_visa"))

	candidates, _ := f.engine.Sweep(context.Background(), false, 0)
	if candidates[0].SkipReason != SkipNotDue {
		t.Fatalf("skip=%q, want not_due", candidates[0].SkipReason)
	}
}

func TestSweepWindowDefaultsFromConfig(t *testing.T) {
	f := newEngineFixture(t)

	if _, err := f.engine.Sweep(context.Background(), true, 0); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	want := time.Date(2026, 12, 23, 0, 0, 0, 0, time.UTC)
	if !f.items.until.Equal(want) {
		t.Errorf("list cutoff %v, want %v", f.items.until, want)
	}
}
