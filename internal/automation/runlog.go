// Package automation records which automated actions already ran so that
// repeated sweeps, crash-retried jobs and concurrent workers never perform
// the same action twice. The action key is the whole contract: whoever
// inserts it first owns the action.
package automation

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunLog is the append-only record of performed automation actions, backed
// by the automation_run_log table and its unique action_key constraint.
type RunLog struct {
	pool *pgxpool.Pool
}

func NewRunLog(pool *pgxpool.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// TryMark claims the action key. It returns true when this call inserted the
// row and the caller should perform the action, false when another run
// already did.
func (r *RunLog) TryMark(ctx context.Context, rule, subjectID, action, actionKey string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO automation_run_log (rule, subject_id, action, action_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (action_key) DO NOTHING
	`, rule, subjectID, action, actionKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Seen reports whether the action key was already claimed. Dry runs use this
// instead of TryMark so that previewing a sweep writes nothing.
func (r *RunLog) Seen(ctx context.Context, actionKey string) (bool, error) {
	var seen bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM automation_run_log WHERE action_key = $1)
	`, actionKey).Scan(&seen)
	if err != nil {
		return false, err
	}
	return seen, nil
}
