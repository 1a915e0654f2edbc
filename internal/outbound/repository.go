package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("outbound job not found")
	ErrNotFailed = errors.New("job is not failed")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Job struct {
	ID               uuid.UUID
	ConversationID   uuid.UUID
	LeadID           *uuid.UUID
	Kind             string
	TriggerMessageID string
	QuestionKey      string
	Objective        string
	Content          *string
	Status           string
	Attempts         int
	MaxAttempts      int
	RunAt            time.Time
	ClaimedAt        *time.Time
	LastAttemptAt    *time.Time
	LastError        *string
	SentMessageID    *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasContent reports whether generated or pre-staged text is already on the
// job, meaning the generation step can be skipped.
func (j Job) HasContent() bool {
	return j.Content != nil && *j.Content != ""
}

const jobColumns = `id, conversation_id, lead_id, kind, trigger_message_id, question_key, objective,
	content, status, attempts, max_attempts, run_at, claimed_at, last_attempt_at, last_error,
	sent_message_id, created_at, updated_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.ConversationID, &j.LeadID, &j.Kind, &j.TriggerMessageID, &j.QuestionKey, &j.Objective,
		&j.Content, &j.Status, &j.Attempts, &j.MaxAttempts, &j.RunAt, &j.ClaimedAt, &j.LastAttemptAt, &j.LastError,
		&j.SentMessageID, &j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}

type EnqueueParams struct {
	ConversationID   uuid.UUID
	LeadID           *uuid.UUID
	Kind             string
	TriggerMessageID string
	QuestionKey      string
	Objective        string
	Content          *string // pre-staged text; nil means generate at claim time
	Status           string  // pending or ready_to_send
	RunAt            time.Time
	MaxAttempts      int
}

// Enqueue inserts a job unless one already exists for the same
// (conversation, trigger, kind). The unique constraint is what makes reply
// enqueueing idempotent under webhook replays; the existing row is returned
// untouched with created=false.
func (r *Repository) Enqueue(ctx context.Context, params EnqueueParams) (Job, bool, error) {
	if params.Kind == "" {
		params.Kind = KindReply
	}
	if params.Status == "" {
		params.Status = StatusPending
	}
	if params.Status != StatusPending && params.Status != StatusReadyToSend {
		return Job{}, false, fmt.Errorf("cannot enqueue job in status %q", params.Status)
	}
	if params.Status == StatusReadyToSend && (params.Content == nil || *params.Content == "") {
		return Job{}, false, errors.New("ready_to_send job needs content")
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = 5
	}
	if params.RunAt.IsZero() {
		params.RunAt = time.Now()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO outbound_jobs (conversation_id, lead_id, kind, trigger_message_id, question_key,
			objective, content, status, run_at, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (conversation_id, trigger_message_id, kind) DO NOTHING
		RETURNING `+jobColumns+`
	`, params.ConversationID, params.LeadID, params.Kind, params.TriggerMessageID, params.QuestionKey,
		params.Objective, params.Content, params.Status, params.RunAt, params.MaxAttempts)

	job, err := scanJob(row)
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Job{}, false, err
	}

	existing, err := r.GetByTrigger(ctx, params.ConversationID, params.TriggerMessageID, params.Kind)
	if err != nil {
		return Job{}, false, err
	}
	return existing, false, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM outbound_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return job, err
}

func (r *Repository) GetByTrigger(ctx context.Context, conversationID uuid.UUID, triggerMessageID, kind string) (Job, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM outbound_jobs
		WHERE conversation_id = $1 AND trigger_message_id = $2 AND kind = $3
	`, conversationID, triggerMessageID, kind)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return job, err
}

// ClaimDue claims up to limit due jobs for this worker. Staged jobs go
// before ungenerated ones, oldest run_at first within each group. Claiming
// stamps claimed_at and counts an attempt; SKIP LOCKED keeps concurrent
// workers off each other's rows.
func (r *Repository) ClaimDue(ctx context.Context, limit int, now time.Time) ([]Job, error) {
	if limit < 1 {
		limit = 20
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM outbound_jobs
		WHERE status IN ('pending', 'ready_to_send')
		  AND run_at <= $2
		  AND attempts < max_attempts
		ORDER BY CASE WHEN status = 'ready_to_send' THEN 0 ELSE 1 END, run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE outbound_jobs j
	SET claimed_at = $2, last_attempt_at = $2, attempts = j.attempts + 1, updated_at = now()
	FROM cte
	WHERE j.id = cte.id
	RETURNING `+prefixedJobColumns("j")+``, limit, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return jobs, nil
}

func prefixedJobColumns(alias string) string {
	return alias + `.id, ` + alias + `.conversation_id, ` + alias + `.lead_id, ` + alias + `.kind, ` +
		alias + `.trigger_message_id, ` + alias + `.question_key, ` + alias + `.objective, ` +
		alias + `.content, ` + alias + `.status, ` + alias + `.attempts, ` + alias + `.max_attempts, ` +
		alias + `.run_at, ` + alias + `.claimed_at, ` + alias + `.last_attempt_at, ` + alias + `.last_error, ` +
		alias + `.sent_message_id, ` + alias + `.created_at, ` + alias + `.updated_at`
}

// MarkGenerating moves a claimed pending job into generation. A false
// return means another worker beat us to it.
func (r *Repository) MarkGenerating(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbound_jobs
		SET status = 'generating', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// StageContent stores generated text and marks the job sendable.
func (r *Repository) StageContent(ctx context.Context, id uuid.UUID, content string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbound_jobs
		SET status = 'ready_to_send', content = $2, updated_at = now()
		WHERE id = $1 AND status = 'generating'
	`, id, content)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordSent writes the outbound message row and closes the job in one
// transaction, so a job marked sent always has its message and vice versa.
func (r *Repository) RecordSent(ctx context.Context, job Job, body, providerMessageID, sentBy string) (uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.UUID{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var messageID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, lead_id, direction, body, provider_message_id, sent_by)
		VALUES ($1, $2, 'out', $3, $4, $5)
		RETURNING id
	`, job.ConversationID, job.LeadID, body, providerMessageID, sentBy).Scan(&messageID)
	if err != nil {
		return uuid.UUID{}, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE outbound_jobs
		SET status = 'sent', sent_message_id = $2, claimed_at = NULL, last_error = NULL, updated_at = now()
		WHERE id = $1 AND status = 'ready_to_send'
	`, job.ID, messageID)
	if err != nil {
		return uuid.UUID{}, err
	}
	if tag.RowsAffected() == 0 {
		return uuid.UUID{}, fmt.Errorf("job %s not in ready_to_send while recording send", job.ID)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET last_outbound_at = now(), updated_at = now() WHERE id = $1
	`, job.ConversationID)
	if err != nil {
		return uuid.UUID{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.UUID{}, err
	}
	return messageID, nil
}

// RetryLater returns a claimed job to the queue with a new run time. The
// staged content stays on the row so the retry can skip regeneration.
func (r *Repository) RetryLater(ctx context.Context, id uuid.UUID, runAt time.Time, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbound_jobs
		SET status = 'pending', run_at = $2, last_error = $3, claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'generating', 'ready_to_send')
	`, id, runAt, reason)
	return err
}

// MarkFailed parks the job permanently with a machine-readable reason.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbound_jobs
		SET status = 'failed', last_error = $2, claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'generating', 'ready_to_send')
	`, id, reason)
	return err
}

// RecoverStale returns jobs whose worker died mid-flight to the queue:
// claimed longer ago than the lease and still not terminal. Content is
// preserved; the next claim picks up where the dead worker left off.
func (r *Repository) RecoverStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbound_jobs
		SET status = 'pending', claimed_at = NULL, updated_at = now()
		WHERE status IN ('generating', 'ready_to_send')
		  AND claimed_at IS NOT NULL
		  AND claimed_at < $1
	`, claimedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ResetForRetry is the staff override for a failed job: back to pending with
// a fresh attempt budget.
func (r *Repository) ResetForRetry(ctx context.Context, id uuid.UUID, runAt time.Time) (Job, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE outbound_jobs
		SET status = 'pending', attempts = 0, run_at = $2, claimed_at = NULL, last_error = NULL, updated_at = now()
		WHERE id = $1 AND status = 'failed'
		RETURNING `+jobColumns+`
	`, id, runAt)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return Job{}, getErr
		}
		return Job{}, ErrNotFailed
	}
	return job, err
}

type ListParams struct {
	Status         string
	Kind           string
	ConversationID *uuid.UUID
	Limit          int
	Offset         int
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]Job, error) {
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 50
	}

	query := `
		SELECT ` + jobColumns + `
		FROM outbound_jobs
		WHERE 1=1`
	args := []any{}
	argn := 0
	if params.Status != "" {
		argn++
		query += fmt.Sprintf(" AND status = $%d", argn)
		args = append(args, params.Status)
	}
	if params.Kind != "" {
		argn++
		query += fmt.Sprintf(" AND kind = $%d", argn)
		args = append(args, params.Kind)
	}
	if params.ConversationID != nil {
		argn++
		query += fmt.Sprintf(" AND conversation_id = $%d", argn)
		args = append(args, *params.ConversationID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argn+1, argn+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, job)
	}
	return items, rows.Err()
}

// DueCount reports how many jobs are currently claimable, for the periodic
// queue pass to decide whether to bother.
func (r *Repository) DueCount(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM outbound_jobs
		WHERE status IN ('pending', 'ready_to_send')
		  AND run_at <= $1
		  AND attempts < max_attempts
	`, now).Scan(&n)
	return n, err
}
