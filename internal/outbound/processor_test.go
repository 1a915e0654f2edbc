package outbound

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/tasks"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/apperr"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type sentRecord struct {
	jobID      uuid.UUID
	body       string
	providerID string
	sentBy     string
}

type retryRecord struct {
	id     uuid.UUID
	runAt  time.Time
	reason string
}

type failRecord struct {
	id     uuid.UUID
	reason string
}

type stubJobs struct {
	claimed  []Job
	claimErr error

	denyGenerating bool
	staleCount     int64

	recoverBefore time.Time
	generating    []uuid.UUID
	staged        map[uuid.UUID]string
	sent          []sentRecord
	retries       []retryRecord
	failures      []failRecord
}

func (s *stubJobs) RecoverStale(_ context.Context, claimedBefore time.Time) (int64, error) {
	s.recoverBefore = claimedBefore
	return s.staleCount, nil
}

func (s *stubJobs) ClaimDue(_ context.Context, _ int, _ time.Time) ([]Job, error) {
	return s.claimed, s.claimErr
}

func (s *stubJobs) MarkGenerating(_ context.Context, id uuid.UUID) (bool, error) {
	if s.denyGenerating {
		return false, nil
	}
	s.generating = append(s.generating, id)
	return true, nil
}

func (s *stubJobs) StageContent(_ context.Context, id uuid.UUID, content string) (bool, error) {
	if s.staged == nil {
		s.staged = map[uuid.UUID]string{}
	}
	s.staged[id] = content
	return true, nil
}

func (s *stubJobs) RecordSent(_ context.Context, job Job, body, providerMessageID, sentBy string) (uuid.UUID, error) {
	s.sent = append(s.sent, sentRecord{jobID: job.ID, body: body, providerID: providerMessageID, sentBy: sentBy})
	return uuid.New(), nil
}

func (s *stubJobs) RetryLater(_ context.Context, id uuid.UUID, runAt time.Time, reason string) error {
	s.retries = append(s.retries, retryRecord{id: id, runAt: runAt, reason: reason})
	return nil
}

func (s *stubJobs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.failures = append(s.failures, failRecord{id: id, reason: reason})
	return nil
}

type stubLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func lockKey(conversationID uuid.UUID, triggerMessageID, questionKey string) string {
	return conversationID.String() + "|" + triggerMessageID + "|" + questionKey
}

func (s *stubLocks) TryAcquire(_ context.Context, conversationID uuid.UUID, triggerMessageID, questionKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil {
		s.held = map[string]bool{}
	}
	key := lockKey(conversationID, triggerMessageID, questionKey)
	if s.held[key] {
		return false, nil
	}
	s.held[key] = true
	return true, nil
}

func (s *stubLocks) Release(_ context.Context, conversationID uuid.UUID, triggerMessageID, questionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := lockKey(conversationID, triggerMessageID, questionKey)
	delete(s.held, key)
	s.released = append(s.released, key)
	return nil
}

func (s *stubLocks) heldFor(job Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held[lockKey(job.ConversationID, job.TriggerMessageID, job.QuestionKey)]
}

type stubResolver struct {
	rcpt Recipient
	err  error
}

func (s stubResolver) Recipient(context.Context, uuid.UUID) (Recipient, error) {
	return s.rcpt, s.err
}

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (s *stubGenerator) GenerateReply(context.Context, Job, Recipient) (string, error) {
	s.calls++
	return s.text, s.err
}

type sendCall struct {
	to   string
	body string
}

type stubSender struct {
	textErr   error
	tmplErr   error
	textCalls []sendCall
	tmplCalls []sendCall
}

func (s *stubSender) SendText(_ context.Context, to, body string) (string, error) {
	s.textCalls = append(s.textCalls, sendCall{to: to, body: body})
	if s.textErr != nil {
		return "", s.textErr
	}
	return "wamid.provider-text", nil
}

func (s *stubSender) SendTemplate(_ context.Context, to, body string) (string, error) {
	s.tmplCalls = append(s.tmplCalls, sendCall{to: to, body: body})
	if s.tmplErr != nil {
		return "", s.tmplErr
	}
	return "wamid.provider-tmpl", nil
}

type stubTasks struct {
	created   []tasks.CreateParams
	completed []string
}

func (s *stubTasks) CreateIfAbsent(_ context.Context, params tasks.CreateParams) (tasks.Task, bool, error) {
	s.created = append(s.created, params)
	return tasks.Task{}, true, nil
}

func (s *stubTasks) CompleteByKey(_ context.Context, key string) error {
	s.completed = append(s.completed, key)
	return nil
}

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

type processorFixture struct {
	jobs   *stubJobs
	locks  *stubLocks
	gen    *stubGenerator
	sender *stubSender
	tasks  *stubTasks
	bus    *captureBus
	proc   *Processor
}

func newProcessorFixture(rcpt Recipient) *processorFixture {
	f := &processorFixture{
		jobs:   &stubJobs{},
		locks:  &stubLocks{},
		gen:    &stubGenerator{text: "Thank you, we will get back to you shortly."},
		sender: &stubSender{},
		tasks:  &stubTasks{},
		bus:    &captureBus{},
	}
	f.proc = NewProcessor(f.jobs, f.locks, stubResolver{rcpt: rcpt}, f.gen, f.sender, f.tasks, f.bus, logger.New("development"), ProcessorConfig{
		BatchSize:      10,
		Concurrency:    1,
		SessionWindow:  23 * time.Hour,
		SendsPerSecond: 1000,
	})
	f.proc.now = func() time.Time { return testNow }
	return f
}

func replyJob(attempts int) Job {
	leadID := uuid.New()
	return Job{
		ID:               uuid.New(),
		ConversationID:   uuid.New(),
		LeadID:           &leadID,
		Kind:             KindReply,
		TriggerMessageID: "wamid.inbound-1",
		QuestionKey:      "initial",
		Status:           StatusPending,
		Attempts:         attempts,
		MaxAttempts:      5,
	}
}

func stagedJob(kind, content string) Job {
	job := replyJob(1)
	job.Kind = kind
	job.Status = StatusReadyToSend
	job.Content = &content
	return job
}

func okRecipient() Recipient {
	lastInbound := testNow.Add(-time.Hour)
	return Recipient{
		ConversationID: uuid.New(),
		ContactID:      uuid.New(),
		Channel:        "whatsapp",
		Phone:          "+971501234567",
		ContactName:    "Ayesha",
		LastInboundAt:  &lastInbound,
	}
}

func TestProcessGeneratesAndSendsReply(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	job := replyJob(1)

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if f.gen.calls != 1 {
		t.Fatalf("expected one generation call, got %d", f.gen.calls)
	}
	if got := f.jobs.staged[job.ID]; got != f.gen.text {
		t.Fatalf("staged content = %q, want %q", got, f.gen.text)
	}
	if len(f.sender.textCalls) != 1 {
		t.Fatalf("expected one text send, got %d", len(f.sender.textCalls))
	}
	if f.sender.textCalls[0].to != rcpt.Phone {
		t.Errorf("sent to %q, want %q", f.sender.textCalls[0].to, rcpt.Phone)
	}
	if len(f.jobs.sent) != 1 {
		t.Fatalf("expected one sent record, got %d", len(f.jobs.sent))
	}
	if f.jobs.sent[0].sentBy != "ai" {
		t.Errorf("sentBy = %q, want ai", f.jobs.sent[0].sentBy)
	}
	if f.jobs.sent[0].providerID != "wamid.provider-text" {
		t.Errorf("providerID = %q, want wamid.provider-text", f.jobs.sent[0].providerID)
	}
	if len(f.jobs.failures) != 0 || len(f.jobs.retries) != 0 {
		t.Fatalf("unexpected failures %v or retries %v", f.jobs.failures, f.jobs.retries)
	}
	if names := f.bus.names(); len(names) != 1 || names[0] != "outbound.message.sent" {
		t.Fatalf("published events = %v, want [outbound.message.sent]", names)
	}
	if len(f.tasks.created) != 0 {
		t.Fatalf("expected no staff tasks on success, got %d", len(f.tasks.created))
	}
	wantKey := tasks.ReplyKey(*job.LeadID, job.TriggerMessageID)
	if len(f.tasks.completed) != 1 || f.tasks.completed[0] != wantKey {
		t.Fatalf("completed task keys = %v, want [%s]", f.tasks.completed, wantKey)
	}
}

func TestProcessSkipsReplyWhenHumanOwnsConversation(t *testing.T) {
	rcpt := okRecipient()
	rcpt.HumanOwned = true
	f := newProcessorFixture(rcpt)
	job := replyJob(1)

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if f.gen.calls != 0 {
		t.Errorf("expected no generation for human-owned conversation, got %d calls", f.gen.calls)
	}
	if len(f.sender.textCalls)+len(f.sender.tmplCalls) != 0 {
		t.Fatal("expected no send for human-owned conversation")
	}
	if len(f.jobs.failures) != 1 || f.jobs.failures[0].reason != ReasonHumanOwned {
		t.Fatalf("failures = %v, want one with reason %q", f.jobs.failures, ReasonHumanOwned)
	}
	if len(f.tasks.created) != 1 || f.tasks.created[0].Kind != tasks.KindTakeover {
		t.Fatalf("tasks = %v, want one takeover task", f.tasks.created)
	}
	wantKey := tasks.TakeoverKey(job.ConversationID, job.TriggerMessageID)
	if f.tasks.created[0].IdempotencyKey != wantKey {
		t.Errorf("takeover task key = %q, want %q", f.tasks.created[0].IdempotencyKey, wantKey)
	}
	if names := f.bus.names(); len(names) != 1 || names[0] != "outbound.job.failed" {
		t.Fatalf("published events = %v, want [outbound.job.failed]", names)
	}
}

func TestProcessFailsReplyOutsideSessionWindow(t *testing.T) {
	rcpt := okRecipient()
	stale := testNow.Add(-24 * time.Hour)
	rcpt.LastInboundAt = &stale
	f := newProcessorFixture(rcpt)
	job := replyJob(1)

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(f.sender.textCalls)+len(f.sender.tmplCalls) != 0 {
		t.Fatal("expected no send outside the session window")
	}
	if len(f.jobs.failures) != 1 || f.jobs.failures[0].reason != ReasonSessionWindow {
		t.Fatalf("failures = %v, want one with reason %q", f.jobs.failures, ReasonSessionWindow)
	}
	if len(f.tasks.created) != 1 {
		t.Fatalf("expected a staff task, got %d", len(f.tasks.created))
	}
	if f.tasks.created[0].Kind != tasks.KindJobFailed {
		t.Errorf("task kind = %q, want %q", f.tasks.created[0].Kind, tasks.KindJobFailed)
	}
}

func TestProcessNeverSendsWhenLockAlreadyHeld(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	job := stagedJob(KindReply, "Your documents are ready for collection.")

	if _, err := f.locks.TryAcquire(context.Background(), job.ConversationID, job.TriggerMessageID, job.QuestionKey); err != nil {
		t.Fatalf("seeding lock: %v", err)
	}

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(f.sender.textCalls)+len(f.sender.tmplCalls) != 0 {
		t.Fatal("expected no send while the lock is held")
	}
	if len(f.jobs.failures) != 1 || f.jobs.failures[0].reason != ReasonLockHeld {
		t.Fatalf("failures = %v, want one with reason %q", f.jobs.failures, ReasonLockHeld)
	}
	if !f.locks.heldFor(job) {
		t.Fatal("lock must stay held after an ambiguous previous attempt")
	}
	if len(f.tasks.created) != 1 {
		t.Fatalf("expected a staff task, got %d", len(f.tasks.created))
	}
}

func TestProcessReleasesLockAndParksJobOnProviderRejection(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	f.sender.textErr = apperr.Validation("recipient not on whatsapp")
	job := stagedJob(KindReply, "Hello")

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if f.locks.heldFor(job) {
		t.Fatal("definite rejection must release the lock")
	}
	if len(f.jobs.failures) != 1 || !strings.HasPrefix(f.jobs.failures[0].reason, ReasonSendRejected) {
		t.Fatalf("failures = %v, want one with prefix %q", f.jobs.failures, ReasonSendRejected)
	}
	if len(f.jobs.retries) != 0 {
		t.Fatalf("rejections must not be retried, got %v", f.jobs.retries)
	}
	if len(f.tasks.created) != 1 {
		t.Fatalf("expected a staff task, got %d", len(f.tasks.created))
	}
}

func TestProcessRetriesWithBackoffOnTransientSendFailure(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	f.sender.textErr = apperr.Transient("provider returned 503")
	job := stagedJob(KindReply, "Hello")
	job.Attempts = 2

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if f.locks.heldFor(job) {
		t.Fatal("transient refusal must release the lock")
	}
	if len(f.jobs.retries) != 1 {
		t.Fatalf("expected one retry, got %v", f.jobs.retries)
	}
	wantRunAt := testNow.Add(RetryDelay(2))
	if !f.jobs.retries[0].runAt.Equal(wantRunAt) {
		t.Errorf("retry run_at = %v, want %v", f.jobs.retries[0].runAt, wantRunAt)
	}
	if len(f.jobs.failures) != 0 {
		t.Fatalf("expected no terminal failure, got %v", f.jobs.failures)
	}
}

func TestProcessKeepsLockOnAmbiguousSendFailure(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	f.sender.textErr = errors.New("context deadline exceeded")
	job := stagedJob(KindReply, "Hello")

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if !f.locks.heldFor(job) {
		t.Fatal("ambiguous outcome must keep the lock so nothing ever doubles")
	}
	if len(f.jobs.failures) != 1 || !strings.HasPrefix(f.jobs.failures[0].reason, ReasonSendAmbiguous) {
		t.Fatalf("failures = %v, want one with prefix %q", f.jobs.failures, ReasonSendAmbiguous)
	}
	if len(f.jobs.retries) != 0 {
		t.Fatalf("ambiguous outcomes must never auto-retry, got %v", f.jobs.retries)
	}
	if len(f.tasks.created) != 1 {
		t.Fatalf("expected a staff task, got %d", len(f.tasks.created))
	}
}

func TestProcessRetriesGenerationFailure(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	f.gen.err = errors.New("model temporarily unavailable")
	job := replyJob(1)

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(f.jobs.retries) != 1 {
		t.Fatalf("expected one retry, got %v", f.jobs.retries)
	}
	wantRunAt := testNow.Add(RetryDelay(1))
	if !f.jobs.retries[0].runAt.Equal(wantRunAt) {
		t.Errorf("retry run_at = %v, want %v", f.jobs.retries[0].runAt, wantRunAt)
	}
	if len(f.sender.textCalls) != 0 {
		t.Fatal("expected no send after generation failure")
	}
}

func TestProcessParksJobWhenAttemptBudgetExhausted(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	f.gen.err = errors.New("model temporarily unavailable")
	job := replyJob(5)

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(f.jobs.retries) != 0 {
		t.Fatalf("expected no retry at the attempt ceiling, got %v", f.jobs.retries)
	}
	if len(f.jobs.failures) != 1 || !strings.HasPrefix(f.jobs.failures[0].reason, ReasonAttemptsExceeded) {
		t.Fatalf("failures = %v, want one with prefix %q", f.jobs.failures, ReasonAttemptsExceeded)
	}
	if len(f.tasks.created) != 1 {
		t.Fatalf("expected a staff task, got %d", len(f.tasks.created))
	}
}

func TestProcessRetriesEmptyGeneration(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	f.gen.text = ""
	job := replyJob(1)

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(f.jobs.retries) != 1 {
		t.Fatalf("expected empty generation to be retried, got %v", f.jobs.retries)
	}
	if len(f.sender.textCalls) != 0 {
		t.Fatal("expected no send for empty content")
	}
}

func TestProcessStandsDownWhenAnotherWorkerHoldsJob(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	f.jobs.denyGenerating = true
	job := replyJob(1)

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if f.gen.calls != 0 {
		t.Errorf("expected no generation, got %d calls", f.gen.calls)
	}
	if len(f.jobs.failures)+len(f.jobs.retries)+len(f.jobs.sent) != 0 {
		t.Fatal("losing the status race must leave the job untouched")
	}
}

func TestProcessSendsStagedRenewalAsTemplate(t *testing.T) {
	rcpt := okRecipient()
	rcpt.HumanOwned = true // renewals are scheduled outreach, ownership does not gate them
	rcpt.LastInboundAt = nil
	f := newProcessorFixture(rcpt)
	job := stagedJob(KindRenewal, "Your residence visa expires on 12/05/2026. Reply here to start the renewal.")

	if err := f.proc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if f.gen.calls != 0 {
		t.Errorf("staged content must not be regenerated, got %d calls", f.gen.calls)
	}
	if len(f.sender.tmplCalls) != 1 {
		t.Fatalf("expected one template send, got %d", len(f.sender.tmplCalls))
	}
	if len(f.sender.textCalls) != 0 {
		t.Fatal("renewals must go out as templates, not free-form texts")
	}
	if len(f.jobs.sent) != 1 || f.jobs.sent[0].sentBy != "system" {
		t.Fatalf("sent = %v, want one record with sentBy system", f.jobs.sent)
	}
}

func TestProcessQueueOnceRunsWholeBatch(t *testing.T) {
	rcpt := okRecipient()
	f := newProcessorFixture(rcpt)
	f.jobs.staleCount = 2
	f.jobs.claimed = []Job{
		stagedJob(KindReply, "one"),
		stagedJob(KindReply, "two"),
		stagedJob(KindReply, "three"),
	}

	res, err := f.proc.ProcessQueueOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessQueueOnce returned error: %v", err)
	}
	if res.Processed != 3 || res.Recovered != 2 || res.Failed != 0 {
		t.Fatalf("pass = %+v, want processed 3, recovered 2, failed 0", res)
	}
	if len(f.jobs.sent) != 3 {
		t.Fatalf("expected all three jobs sent, got %d", len(f.jobs.sent))
	}
}

func TestProcessQueueOnceRecoversBeforeClaiming(t *testing.T) {
	f := newProcessorFixture(okRecipient())

	if _, err := f.proc.ProcessQueueOnce(context.Background(), 5); err != nil {
		t.Fatalf("ProcessQueueOnce: %v", err)
	}
	want := testNow.Add(-5 * time.Minute)
	if !f.jobs.recoverBefore.Equal(want) {
		t.Fatalf("recover cutoff %v, want lease ago %v", f.jobs.recoverBefore, want)
	}
}
