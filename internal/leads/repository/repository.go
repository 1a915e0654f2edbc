package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
)

var ErrNotFound = errors.New("lead not found")

// ErrStageConflict is returned when a guarded stage move finds the lead no
// longer in the expected stage. Callers treat it as "someone got there first".
var ErrStageConflict = errors.New("lead stage changed concurrently")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID             uuid.UUID
	ContactID      uuid.UUID
	ServiceType    string
	Stage          string
	Data           map[string]any
	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const leadColumns = `id, contact_id, service_type, stage, data_json, last_activity_at, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	var dataRaw []byte
	err := row.Scan(
		&lead.ID, &lead.ContactID, &lead.ServiceType, &lead.Stage,
		&dataRaw, &lead.LastActivityAt, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &lead.Data); err != nil {
			return Lead{}, fmt.Errorf("decode lead data: %w", err)
		}
	}
	if lead.Data == nil {
		lead.Data = map[string]any{}
	}
	return lead, nil
}

type CreateParams struct {
	ContactID   uuid.UUID
	ServiceType string
	Stage       string
	Data        map[string]any
}

func (r *Repository) Create(ctx context.Context, params CreateParams) (Lead, error) {
	if params.ServiceType == "" {
		params.ServiceType = domain.ServiceTypeGeneral
	}
	if params.Stage == "" {
		params.Stage = domain.StageNew
	}
	if params.Data == nil {
		params.Data = map[string]any{}
	}
	dataRaw, err := json.Marshal(params.Data)
	if err != nil {
		return Lead{}, fmt.Errorf("encode lead data: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (contact_id, service_type, stage, data_json, last_activity_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING `+leadColumns+`
	`, params.ContactID, params.ServiceType, params.Stage, dataRaw)
	return scanLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1
	`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

// FindOpenByContact returns the most recently touched non-terminal lead for
// a contact whose last activity falls inside the reuse window. ErrNotFound
// means the caller should open a fresh lead.
func (r *Repository) FindOpenByContact(ctx context.Context, contactID uuid.UUID, since time.Time) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE contact_id = $1
		  AND NOT (stage = ANY($2))
		  AND last_activity_at >= $3
		ORDER BY last_activity_at DESC
		LIMIT 1
	`, contactID, domain.TerminalStages(), since)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

// Touch bumps last_activity_at so the lead stays inside the reuse window.
func (r *Repository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET last_activity_at = GREATEST(last_activity_at, $2), updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceStage moves a lead forward only when it is still in the stage the
// caller observed. Automation uses this so two workers never fight over the
// same lead.
func (r *Repository) AdvanceStage(ctx context.Context, id uuid.UUID, from, to string) error {
	if !domain.CanAdvanceStage(from, to) {
		return fmt.Errorf("stage move %s -> %s not allowed", from, to)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET stage = $3, updated_at = now()
		WHERE id = $1 AND stage = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStageConflict
	}
	return nil
}

// UpdateStage sets the stage unconditionally. Staff endpoints use this;
// automation must use AdvanceStage instead.
func (r *Repository) UpdateStage(ctx context.Context, id uuid.UUID, stage string) (Lead, error) {
	if !domain.IsKnownStage(stage) {
		return Lead{}, fmt.Errorf("unknown stage %q", stage)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET stage = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns+`
	`, id, stage)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

// UpgradeServiceType replaces the catch-all service type with a concrete one.
// A lead that already has a concrete type keeps it.
func (r *Repository) UpgradeServiceType(ctx context.Context, id uuid.UUID, serviceType string) (bool, error) {
	if !domain.IsKnownServiceType(serviceType) || serviceType == domain.ServiceTypeGeneral {
		return false, fmt.Errorf("invalid service type upgrade %q", serviceType)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET service_type = $2, updated_at = now()
		WHERE id = $1 AND service_type = $3
	`, id, serviceType, domain.ServiceTypeGeneral)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MergeData folds a patch into the lead data document under row lock, using
// the append-only merge rules, and returns the merged document.
func (r *Repository) MergeData(ctx context.Context, id uuid.UUID, patch map[string]any) (map[string]any, error) {
	if len(patch) == 0 {
		lead, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return lead.Data, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin merge tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var dataRaw []byte
	err = tx.QueryRow(ctx, `
		SELECT data_json FROM leads WHERE id = $1 FOR UPDATE
	`, id).Scan(&dataRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var existing map[string]any
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &existing); err != nil {
			return nil, fmt.Errorf("decode lead data: %w", err)
		}
	}
	merged := domain.MergeData(existing, patch)

	mergedRaw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode lead data: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE leads SET data_json = $2, updated_at = now() WHERE id = $1
	`, id, mergedRaw)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit merge tx: %w", err)
	}
	return merged, nil
}

// SetDataField overwrites one top-level key of the lead data document.
// Qualifier flows own their progress state and rewrite it every turn;
// extracted facts must keep going through MergeData.
func (r *Repository) SetDataField(ctx context.Context, id uuid.UUID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode data field %s: %w", key, err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET data_json = jsonb_set(COALESCE(data_json, '{}'::jsonb), ARRAY[$2]::text[], $3::jsonb, true),
		    updated_at = now()
		WHERE id = $1
	`, id, key, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type ListParams struct {
	Stage       string
	ServiceType string
	ContactID   *uuid.UUID
	Limit       int
	Offset      int
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]Lead, error) {
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 50
	}

	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE 1=1`
	args := []any{}
	argn := 0
	if params.Stage != "" {
		argn++
		query += fmt.Sprintf(" AND stage = $%d", argn)
		args = append(args, params.Stage)
	}
	if params.ServiceType != "" {
		argn++
		query += fmt.Sprintf(" AND service_type = $%d", argn)
		args = append(args, params.ServiceType)
	}
	if params.ContactID != nil {
		argn++
		query += fmt.Sprintf(" AND contact_id = $%d", argn)
		args = append(args, *params.ContactID)
	}
	query += fmt.Sprintf(" ORDER BY last_activity_at DESC LIMIT $%d OFFSET $%d", argn+1, argn+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	return items, rows.Err()
}
