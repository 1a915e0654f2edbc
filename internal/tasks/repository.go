package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("task not found")

// ErrAlreadyClosed is returned when completing or dismissing a task that is
// no longer open.
var ErrAlreadyClosed = errors.New("task already closed")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Task struct {
	ID             uuid.UUID
	IdempotencyKey string
	LeadID         *uuid.UUID
	ConversationID *uuid.UUID
	Kind           string
	Title          string
	Detail         string
	Status         string
	DueAt          *time.Time
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

const taskColumns = `id, idempotency_key, lead_id, conversation_id, kind, title, detail, status, due_at, created_at, completed_at`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.IdempotencyKey, &t.LeadID, &t.ConversationID, &t.Kind,
		&t.Title, &t.Detail, &t.Status, &t.DueAt, &t.CreatedAt, &t.CompletedAt,
	)
	return t, err
}

type CreateParams struct {
	IdempotencyKey string
	LeadID         *uuid.UUID
	ConversationID *uuid.UUID
	Kind           string
	Title          string
	Detail         string
	DueAt          *time.Time
}

// CreateIfAbsent inserts the task unless its idempotency key already exists,
// in which case the existing row is returned untouched. The bool reports
// whether a new row was created.
func (r *Repository) CreateIfAbsent(ctx context.Context, params CreateParams) (Task, bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (idempotency_key, lead_id, conversation_id, kind, title, detail, due_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING `+taskColumns+`
	`, params.IdempotencyKey, params.LeadID, params.ConversationID, params.Kind,
		params.Title, params.Detail, params.DueAt)

	task, err := scanTask(row)
	if err == nil {
		return task, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Task{}, false, err
	}

	existing, err := r.GetByKey(ctx, params.IdempotencyKey)
	if err != nil {
		return Task{}, false, err
	}
	return existing, false, nil
}

func (r *Repository) GetByKey(ctx context.Context, key string) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE idempotency_key = $1
	`, key)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return task, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = $1
	`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return task, err
}

// setStatus closes an open task. Closing an already closed task reports
// ErrAlreadyClosed so callers can treat repeats as no-ops.
func (r *Repository) setStatus(ctx context.Context, id uuid.UUID, status string) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = $2, completed_at = now()
		WHERE id = $1 AND status = 'open'
		RETURNING `+taskColumns+`
	`, id, status)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return Task{}, getErr
		}
		return Task{}, ErrAlreadyClosed
	}
	return task, err
}

func (r *Repository) Complete(ctx context.Context, id uuid.UUID) (Task, error) {
	return r.setStatus(ctx, id, StatusDone)
}

func (r *Repository) Dismiss(ctx context.Context, id uuid.UUID) (Task, error) {
	return r.setStatus(ctx, id, StatusDismissed)
}

// CompleteByKey closes an open task by its idempotency key. Missing or
// already closed tasks are fine; automation calls this opportunistically.
func (r *Repository) CompleteByKey(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = 'done', completed_at = now()
		WHERE idempotency_key = $1 AND status = 'open'
	`, key)
	return err
}

type ListParams struct {
	Status string
	Kind   string
	LeadID *uuid.UUID
	Limit  int
	Offset int
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]Task, error) {
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 50
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
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
	if params.LeadID != nil {
		argn++
		query += fmt.Sprintf(" AND lead_id = $%d", argn)
		args = append(args, *params.LeadID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argn+1, argn+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, task)
	}
	return items, rows.Err()
}
