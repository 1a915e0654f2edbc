package outbound

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockRepository owns send_locks, the at-most-once guard for physical
// sends. A row is taken right before the provider call and only removed
// when we know for certain nothing was delivered.
type LockRepository struct {
	pool *pgxpool.Pool
}

func NewLockRepository(pool *pgxpool.Pool) *LockRepository {
	return &LockRepository{pool: pool}
}

// TryAcquire inserts the lock row. False means some attempt already got to
// the send step for this trigger, now or in a previous life.
func (r *LockRepository) TryAcquire(ctx context.Context, conversationID uuid.UUID, triggerMessageID, questionKey string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO send_locks (conversation_id, trigger_message_id, question_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, trigger_message_id, question_key) DO NOTHING
	`, conversationID, triggerMessageID, questionKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Release removes the lock. Only callers that know the provider definitely
// rejected the send may do this.
func (r *LockRepository) Release(ctx context.Context, conversationID uuid.UUID, triggerMessageID, questionKey string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM send_locks
		WHERE conversation_id = $1 AND trigger_message_id = $2 AND question_key = $3
	`, conversationID, triggerMessageID, questionKey)
	return err
}

// Held reports whether the lock row exists.
func (r *LockRepository) Held(ctx context.Context, conversationID uuid.UUID, triggerMessageID, questionKey string) (bool, error) {
	var held bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM send_locks
			WHERE conversation_id = $1 AND trigger_message_id = $2 AND question_key = $3
		)
	`, conversationID, triggerMessageID, questionKey).Scan(&held)
	return held, err
}
