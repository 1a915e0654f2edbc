package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMessageNotFound is returned when a message lookup matches nothing.
var ErrMessageNotFound = errors.New("message not found")

// Message directions. Inbound rows come from the webhook pipeline,
// outbound rows are written by the job processor when a send is confirmed.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message is one entry in a conversation transcript.
type Message struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	LeadID            *uuid.UUID
	Direction         string
	Body              string
	ProviderMessageID *string
	MediaObjectKey    *string
	MediaContentType  *string
	SentBy            string
	CreatedAt         time.Time
}

// MessageRepository persists conversation transcripts.
type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageColumns = `id, conversation_id, lead_id, direction, body,
	provider_message_id, media_object_key, media_content_type, sent_by, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.LeadID, &m.Direction, &m.Body,
		&m.ProviderMessageID, &m.MediaObjectKey, &m.MediaContentType, &m.SentBy, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// InsertInboundParams describes an inbound message row.
type InsertInboundParams struct {
	ConversationID    uuid.UUID
	LeadID            *uuid.UUID
	Body              string
	ProviderMessageID *string
	MediaObjectKey    *string
	MediaContentType  *string
}

// InsertInbound writes an inbound message. Rows carrying a provider message
// id are unique per conversation, so a provider redelivery that slipped past
// the dedup table lands on the existing row and created is false.
func (r *MessageRepository) InsertInbound(ctx context.Context, params InsertInboundParams) (Message, bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, lead_id, direction, body,
			provider_message_id, media_object_key, media_content_type, sent_by)
		VALUES ($1, $2, 'in', $3, $4, $5, $6, 'customer')
		ON CONFLICT (conversation_id, provider_message_id) WHERE provider_message_id IS NOT NULL DO NOTHING
		RETURNING `+messageColumns+`
	`, params.ConversationID, params.LeadID, params.Body,
		params.ProviderMessageID, params.MediaObjectKey, params.MediaContentType)

	msg, err := scanMessage(row)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, ErrMessageNotFound) {
		return Message{}, false, err
	}
	if params.ProviderMessageID == nil {
		return Message{}, false, errors.New("inbound insert returned no row without a provider conflict")
	}

	existing, err := r.FindInbound(ctx, params.ConversationID, *params.ProviderMessageID)
	if err != nil {
		return Message{}, false, err
	}
	return existing, false, nil
}

// FindInbound looks up an inbound message by its provider message id.
func (r *MessageRepository) FindInbound(ctx context.Context, conversationID uuid.UUID, providerMessageID string) (Message, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND provider_message_id = $2 AND direction = 'in'
	`, conversationID, providerMessageID)
	return scanMessage(row)
}

// GetByID fetches a single message.
func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// RecentByConversation returns the newest messages of a conversation in
// chronological order. The reply generator uses this as its context window.
func (r *MessageRepository) RecentByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent ORDER BY created_at ASC
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// ListByConversation pages through a conversation transcript oldest first.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
