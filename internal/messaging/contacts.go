package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/phone"
)

var (
	ErrContactNotFound = errors.New("contact not found")

	// ErrContactExists means a concurrent insert won the phone number.
	// Callers retry with FindByPhone.
	ErrContactExists = errors.New("contact already exists")
)

type Contact struct {
	ID              uuid.UUID
	Phone           *string
	PhoneNormalized *string
	Email           *string
	FullName        *string
	Nationality     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ContactRepository struct {
	pool *pgxpool.Pool
}

func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

const contactColumns = `id, phone, phone_normalized, email, full_name, nationality, created_at, updated_at`

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.Phone, &c.PhoneNormalized, &c.Email, &c.FullName, &c.Nationality, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// FindByPhone looks a contact up by the normalized form of the given number.
func (r *ContactRepository) FindByPhone(ctx context.Context, rawPhone string) (Contact, error) {
	normalized := phone.NormalizeE164(rawPhone)
	row := r.pool.QueryRow(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE phone_normalized = $1
	`, normalized)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrContactNotFound
	}
	return c, err
}

// FindByEmail looks a contact up case-insensitively. Emails are not unique,
// so the oldest row wins to keep repeated lookups stable.
func (r *ContactRepository) FindByEmail(ctx context.Context, email string) (Contact, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE lower(email) = lower($1)
		ORDER BY created_at
		LIMIT 1
	`, email)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrContactNotFound
	}
	return c, err
}

func (r *ContactRepository) GetByID(ctx context.Context, id uuid.UUID) (Contact, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrContactNotFound
	}
	return c, err
}

type CreateContactParams struct {
	Phone       string
	Email       string
	FullName    string
	Nationality string
}

// Create inserts a new contact. The normalized phone carries the uniqueness;
// losing the race to a concurrent insert of the same number returns
// ErrContactExists.
func (r *ContactRepository) Create(ctx context.Context, params CreateContactParams) (Contact, error) {
	normalized := phone.NormalizeE164(params.Phone)
	row := r.pool.QueryRow(ctx, `
		INSERT INTO contacts (phone, phone_normalized, email, full_name, nationality)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		RETURNING `+contactColumns+`
	`, params.Phone, normalized, params.Email, params.FullName, params.Nationality)
	c, err := scanContact(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Contact{}, ErrContactExists
		}
		return Contact{}, err
	}
	return c, nil
}

// AdoptPhone attaches a number to a contact that has none yet, typically one
// known only by email so far. A contact that already owns a number keeps it.
// Losing the number to a concurrent insert returns ErrContactExists.
func (r *ContactRepository) AdoptPhone(ctx context.Context, id uuid.UUID, rawPhone string) (Contact, error) {
	normalized := phone.NormalizeE164(rawPhone)
	row := r.pool.QueryRow(ctx, `
		UPDATE contacts
		SET phone            = COALESCE(phone, NULLIF($2, '')),
		    phone_normalized = COALESCE(phone_normalized, NULLIF($3, '')),
		    updated_at       = now()
		WHERE id = $1
		RETURNING `+contactColumns+`
	`, id, rawPhone, normalized)
	c, err := scanContact(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Contact{}, ErrContactExists
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrContactNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

// IdentityPatch carries identity fields learned from an inbound message.
// Empty strings mean "nothing learned".
type IdentityPatch struct {
	Email       string
	FullName    string
	Nationality string
}

func (p IdentityPatch) Empty() bool {
	return p.Email == "" && p.FullName == "" && p.Nationality == ""
}

// FillIdentity sets identity fields that are still empty. Existing values
// always win; customers repeating themselves or typos in later messages
// never damage what we already know.
func (r *ContactRepository) FillIdentity(ctx context.Context, id uuid.UUID, patch IdentityPatch) (Contact, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE contacts
		SET email       = COALESCE(email, NULLIF($2, '')),
		    full_name   = COALESCE(full_name, NULLIF($3, '')),
		    nationality = COALESCE(nationality, NULLIF($4, '')),
		    updated_at  = now()
		WHERE id = $1
		RETURNING `+contactColumns+`
	`, id, patch.Email, patch.FullName, patch.Nationality)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrContactNotFound
	}
	return c, err
}
