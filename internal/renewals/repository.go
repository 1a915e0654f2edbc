// Package renewals tracks document expiry dates and turns them into staged
// reminder sends. Expiry items arrive from the inbound extraction pipeline;
// a scheduled sweep walks the ladder of reminder stages, guards each send,
// and stages the ones that pass.
package renewals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/extract"
)

var ErrItemNotFound = errors.New("expiry item not found")

const (
	StatusActive     = "active"
	StatusInProgress = "in_progress"
	StatusRenewed    = "renewed"
	StatusDismissed  = "dismissed"
)

// Item is one tracked document expiry for a contact. The unique key
// (contact, document type, date) makes re-extraction of the same sentence a
// no-op.
type Item struct {
	ID             uuid.UUID
	ContactID      uuid.UUID
	LeadID         *uuid.UUID
	DocumentType   string
	ExpiryDate     time.Time
	Status         string
	LastReminderAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DueItem is an item joined with the contact fields the sweep needs: the
// name for the template and the phone for the deliverability guard.
type DueItem struct {
	Item
	ContactName  string
	ContactPhone string
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, contact_id, lead_id, document_type, expiry_date, status, last_reminder_at, created_at, updated_at`

// RecordFromExtraction stores the expiry dates found in an inbound message.
// Dates the contact already has on file are skipped; the count of newly
// tracked items is returned.
func (r *Repository) RecordFromExtraction(ctx context.Context, contactID uuid.UUID, leadID *uuid.UUID, dates []extract.ExpiryDate) (int, error) {
	created := 0
	for _, d := range dates {
		if d.DocumentType == "" {
			continue
		}
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO expiry_items (contact_id, lead_id, document_type, expiry_date)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (contact_id, document_type, expiry_date) DO NOTHING
		`, contactID, leadID, d.DocumentType, d.Date)
		if err != nil {
			return created, err
		}
		if tag.RowsAffected() > 0 {
			created++
		}
	}
	return created, nil
}

// ListDue returns active items expiring on or before the cutoff date,
// already-expired ones included, oldest expiry first.
func (r *Repository) ListDue(ctx context.Context, until time.Time) ([]DueItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ei.id, ei.contact_id, ei.lead_id, ei.document_type, ei.expiry_date,
		       ei.status, ei.last_reminder_at, ei.created_at, ei.updated_at,
		       COALESCE(c.full_name, ''), COALESCE(c.phone_normalized, '')
		FROM expiry_items ei
		JOIN contacts c ON c.id = ei.contact_id
		WHERE ei.status = 'active' AND ei.expiry_date <= $1
		ORDER BY ei.expiry_date, ei.created_at
	`, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []DueItem
	for rows.Next() {
		var it DueItem
		if err := rows.Scan(
			&it.ID, &it.ContactID, &it.LeadID, &it.DocumentType, &it.ExpiryDate,
			&it.Status, &it.LastReminderAt, &it.CreatedAt, &it.UpdatedAt,
			&it.ContactName, &it.ContactPhone,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListByContact returns every expiry item for a contact, newest expiry
// first, regardless of status.
func (r *Repository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM expiry_items
		WHERE contact_id = $1
		ORDER BY expiry_date DESC, created_at DESC
	`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := scanItem(rows, &it); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM expiry_items WHERE id = $1`, id)
	var it Item
	if err := scanItem(row, &it); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return it, nil
}

// StampReminder records that a reminder for this item went out now, which
// feeds the minimum-interval guard on the next sweep.
func (r *Repository) StampReminder(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE expiry_items SET last_reminder_at = $2, updated_at = now() WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// SetStatus moves an item between its lifecycle states. Only active items
// are swept; in_progress pauses reminders while staff handle the renewal,
// and renewed or dismissed items drop out for good.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string) (Item, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE expiry_items SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+itemColumns+`
	`, id, status)
	var it Item
	if err := scanItem(row, &it); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return it, nil
}

func scanItem(row pgx.Row, it *Item) error {
	return row.Scan(
		&it.ID, &it.ContactID, &it.LeadID, &it.DocumentType, &it.ExpiryDate,
		&it.Status, &it.LastReminderAt, &it.CreatedAt, &it.UpdatedAt,
	)
}
