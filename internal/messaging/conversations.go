package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Channels the system accepts inbound events for. Outbound sending is
// whatsapp only; other channels are read-side.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

func IsKnownChannel(channel string) bool {
	return channel == ChannelWhatsApp || channel == ChannelSMS
}

type Conversation struct {
	ID             uuid.UUID
	ContactID      uuid.UUID
	Channel        string
	AssignedUserID *uuid.UUID
	LastInboundAt  *time.Time
	LastOutboundAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HumanOwned reports whether a staff member has taken this conversation
// over, which suppresses automated replies.
func (c Conversation) HumanOwned() bool {
	return c.AssignedUserID != nil
}

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

const conversationColumns = `id, contact_id, channel, assigned_user_id, last_inbound_at, last_outbound_at, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.ContactID, &c.Channel, &c.AssignedUserID, &c.LastInboundAt, &c.LastOutboundAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetOrCreate returns the one conversation for (contact, channel), creating
// it on first contact. The unique constraint makes concurrent first messages
// converge on a single row.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, contactID uuid.UUID, channel string) (Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (contact_id, channel)
		VALUES ($1, $2)
		ON CONFLICT (contact_id, channel) DO UPDATE SET updated_at = now()
		RETURNING `+conversationColumns+`
	`, contactID, channel)
	return scanConversation(row)
}

func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (Conversation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	return c, err
}

// TouchInbound moves the inbound watermark forward. GREATEST keeps replays
// of older messages from winding it back.
func (r *ConversationRepository) TouchInbound(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET last_inbound_at = GREATEST(COALESCE(last_inbound_at, $2), $2), updated_at = now()
		WHERE id = $1
	`, id, at)
	return err
}

// Assign hands the conversation to a staff member; automation stands down
// until Unassign. Passing uuid.Nil releases it.
func (r *ConversationRepository) Assign(ctx context.Context, id uuid.UUID, userID uuid.UUID) (Conversation, error) {
	var assigned *uuid.UUID
	if userID != uuid.Nil {
		assigned = &userID
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE conversations
		SET assigned_user_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+conversationColumns+`
	`, id, assigned)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	return c, err
}

type ListConversationsParams struct {
	ContactID *uuid.UUID
	Channel   string
	Limit     int
	Offset    int
}

func (r *ConversationRepository) List(ctx context.Context, params ListConversationsParams) ([]Conversation, error) {
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 50
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`
	args := []any{}
	argn := 0
	if params.ContactID != nil {
		argn++
		query += fmt.Sprintf(" AND contact_id = $%d", argn)
		args = append(args, *params.ContactID)
	}
	if params.Channel != "" {
		argn++
		query += fmt.Sprintf(" AND channel = $%d", argn)
		args = append(args, params.Channel)
	}
	query += fmt.Sprintf(" ORDER BY COALESCE(last_inbound_at, created_at) DESC LIMIT $%d OFFSET $%d", argn+1, argn+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Recipient resolves everything the outbound processor needs to send into
// this conversation, in one read.
func (r *ConversationRepository) Recipient(ctx context.Context, conversationID uuid.UUID) (outbound.Recipient, error) {
	var rcpt outbound.Recipient
	var assigned *uuid.UUID
	var phoneNorm, rawPhone, fullName *string
	err := r.pool.QueryRow(ctx, `
		SELECT c.id, c.contact_id, c.channel, c.assigned_user_id, c.last_inbound_at,
		       ct.phone_normalized, ct.phone, ct.full_name
		FROM conversations c
		JOIN contacts ct ON ct.id = c.contact_id
		WHERE c.id = $1
	`, conversationID).Scan(
		&rcpt.ConversationID, &rcpt.ContactID, &rcpt.Channel, &assigned, &rcpt.LastInboundAt,
		&phoneNorm, &rawPhone, &fullName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return outbound.Recipient{}, ErrConversationNotFound
	}
	if err != nil {
		return outbound.Recipient{}, err
	}
	rcpt.HumanOwned = assigned != nil
	if phoneNorm != nil {
		rcpt.Phone = *phoneNorm
	} else if rawPhone != nil {
		rcpt.Phone = *rawPhone
	}
	if fullName != nil {
		rcpt.ContactName = *fullName
	}
	return rcpt, nil
}
