package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-fest/backend/internal/models"
)

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, name, description, venue, type, status, registration_limit, registration_count,
	start_date, end_date, registration_deadline, purchase_limit_per_user, form_config, created_by, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Venue, &e.Type, &e.Status,
		&e.RegistrationLimit, &e.RegistrationCount, &e.StartDate, &e.EndDate,
		&e.RegistrationDeadline, &e.PurchaseLimitPerUser, &e.FormConfig,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event in draft.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (name, description, venue, type, status, registration_limit,
			start_date, end_date, registration_deadline, purchase_limit_per_user, form_config, created_by)
		VALUES ($1, $2, $3, $4, 'draft', $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, status, registration_count, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.Name, e.Description, e.Venue, e.Type, e.RegistrationLimit,
		e.StartDate, e.EndDate, e.RegistrationDeadline, e.PurchaseLimitPerUser, e.FormConfig, e.CreatedBy).
		Scan(&e.ID, &e.Status, &e.RegistrationCount, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

// List returns events, optionally filtered by status and/or type.
func (r *Repository) List(ctx context.Context, status *models.EventStatus, eventType *models.EventType) ([]*models.Event, error) {
	base := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	var cond string
	if status != nil {
		cond = ` WHERE status = $1`
		args = append(args, *status)
	}
	if eventType != nil {
		if cond == "" {
			cond = ` WHERE type = $1`
		} else {
			cond += ` AND type = $2`
		}
		args = append(args, *eventType)
	}
	rows, err := r.pool.Query(ctx, base+cond+` ORDER BY start_date ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Update updates organizer-editable fields.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, description, venue string, startDate, endDate, deadline *time.Time, limit *int) error {
	const q = `UPDATE events SET
			name = COALESCE(NULLIF($1, ''), name),
			description = COALESCE(NULLIF($2, ''), description),
			venue = COALESCE(NULLIF($3, ''), venue),
			start_date = COALESCE($4, start_date),
			end_date = COALESCE($5, end_date),
			registration_deadline = COALESCE($6, registration_deadline),
			registration_limit = COALESCE($7, registration_limit),
			updated_at = NOW()
		WHERE id = $8`
	_, err := r.pool.Exec(ctx, q, name, description, venue, startDate, endDate, deadline, limit, id)
	return err
}

// UpdateFormConfig replaces the registration form definition.
func (r *Repository) UpdateFormConfig(ctx context.Context, id uuid.UUID, config []byte) error {
	_, err := r.pool.Exec(ctx, `UPDATE events SET form_config = $1, updated_at = NOW() WHERE id = $2`, config, id)
	return err
}

// TransitionStatus moves an event from one status to another as a single
// conditional update. Returns true if the transition applied; false means the
// event was no longer in the from status (a concurrent transition won).
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.EventStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes an event (cascades registrations, items, teams, waitlist).
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	return err
}
