package messaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DedupRepository claims inbound deliveries so each one runs the pipeline
// exactly once. Providers redeliver webhooks on slow acks; the primary key
// on (channel, dedup_key) makes the second delivery bounce.
type DedupRepository struct {
	pool *pgxpool.Pool
}

func NewDedupRepository(pool *pgxpool.Pool) *DedupRepository {
	return &DedupRepository{pool: pool}
}

// TryInsert claims a delivery. Returns false when the key was already
// claimed, meaning this delivery is a duplicate.
func (r *DedupRepository) TryInsert(ctx context.Context, channel, key string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO inbound_dedup (channel, dedup_key)
		VALUES ($1, $2)
		ON CONFLICT (channel, dedup_key) DO NOTHING
	`, channel, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Remove releases a claim. The pipeline calls this when processing fails
// after the claim, so the provider's retry is not swallowed as a duplicate.
func (r *DedupRepository) Remove(ctx context.Context, channel, key string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM inbound_dedup WHERE channel = $1 AND dedup_key = $2
	`, channel, key)
	return err
}

// FallbackDedupKey builds a dedup key for deliveries that carry no provider
// message id. Identical text from the same sender inside a five second
// window collapses to one key, which is how channel simulators and some SMS
// gateways behave on retry.
func FallbackDedupKey(channel, phone, body string, receivedAt time.Time) string {
	sum := sha256.Sum256([]byte(body))
	bucket := receivedAt.Unix() - (receivedAt.Unix() % 5)
	return fmt.Sprintf("fb:%s:%s:%s:%d", channel, phone, hex.EncodeToString(sum[:])[:16], bucket)
}
