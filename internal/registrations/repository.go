package registrations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-fest/backend/internal/models"
)

// Repository is the pgx-backed Store implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const regColumns = `id, event_id, user_id, status, payment_status, ticket_id, ticket_qr,
	ticket_object_key, team_id, form_answers, attended_at, created_at, updated_at`

func scanRegistration(row interface{ Scan(...any) error }) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.PaymentStatus,
		&reg.TicketID, &reg.TicketQR, &reg.TicketObjectKey, &reg.TeamID, &reg.FormAnswers,
		&reg.AttendedAt, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetEvent returns an event by ID, mapped to a rejection when missing.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, name, description, venue, type, status, registration_limit, registration_count,
			start_date, end_date, registration_deadline, purchase_limit_per_user, form_config, created_by, created_at, updated_at
		FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.Name, &e.Description, &e.Venue, &e.Type, &e.Status,
		&e.RegistrationLimit, &e.RegistrationCount, &e.StartDate, &e.EndDate,
		&e.RegistrationDeadline, &e.PurchaseLimitPerUser, &e.FormConfig,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetRegistration returns a registration by ID.
func (r *Repository) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx, `SELECT `+regColumns+` FROM registrations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRegNotFound
	}
	return reg, err
}

// ActiveRegistration returns the participant's live registration for the event, or nil.
func (r *Repository) ActiveRegistration(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations
		WHERE event_id = $1 AND user_id = $2 AND status NOT IN ('cancelled', 'rejected')`
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, eventID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return reg, err
}

// ClaimSlot runs the conditional capacity increment inside the caller's
// transaction. This statement is the only writer of registration_count going
// up; concurrent claims on a full event serialize to rejections, never
// oversell. Zero rows claimed means ErrCapacity.
func ClaimSlot(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `UPDATE events
		SET registration_count = registration_count + 1, updated_at = NOW()
		WHERE id = $1
		  AND status IN ('published', 'ongoing')
		  AND (registration_limit = 0 OR registration_count < registration_limit)`,
		eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCapacity
	}
	return nil
}

// InsertTx inserts a registration inside the caller's transaction, mapping
// unique violations to ErrDuplicate and ErrTicketCollision.
func InsertTx(ctx context.Context, tx pgx.Tx, reg *models.Registration) error {
	const ins = `INSERT INTO registrations (event_id, user_id, status, payment_status, ticket_id, ticket_qr, team_id, form_answers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := tx.QueryRow(ctx, ins, reg.EventID, reg.UserID, reg.Status, reg.PaymentStatus,
		reg.TicketID, reg.TicketQR, reg.TeamID, reg.FormAnswers).
		Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

// Admit claims one capacity slot and inserts the registration atomically.
func (r *Repository) Admit(ctx context.Context, reg *models.Registration) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := ClaimSlot(ctx, tx, reg.EventID); err != nil {
		return err
	}
	if err := InsertTx(ctx, tx, reg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AddWaitlist appends the participant to the FIFO waitlist.
func (r *Repository) AddWaitlist(ctx context.Context, eventID, userID uuid.UUID) (*models.WaitlistEntry, error) {
	const q = `INSERT INTO waitlist_entries (event_id, user_id)
		VALUES ($1, $2)
		RETURNING id, event_id, user_id, requested_at`
	var entry models.WaitlistEntry
	err := r.pool.QueryRow(ctx, q, eventID, userID).
		Scan(&entry.ID, &entry.EventID, &entry.UserID, &entry.RequestedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrWaitlisted
		}
		return nil, err
	}
	return &entry, nil
}

// Release frees the registration's capacity slot and pops the waitlist head.
// Releasing an already-cancelled registration is a no-op, not an error.
func (r *Repository) Release(ctx context.Context, regID uuid.UUID, toStatus models.RegistrationStatus) (bool, *models.WaitlistEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback(ctx)

	var eventID uuid.UUID
	err = tx.QueryRow(ctx, `UPDATE registrations SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status NOT IN ('cancelled', 'rejected')
		RETURNING event_id`, toStatus, regID).Scan(&eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}

	// Floored at zero; the CHECK constraint backs this up.
	_, err = tx.Exec(ctx, `UPDATE events
		SET registration_count = GREATEST(registration_count - 1, 0), updated_at = NOW()
		WHERE id = $1`, eventID)
	if err != nil {
		return false, nil, err
	}

	var next *models.WaitlistEntry
	var entry models.WaitlistEntry
	err = tx.QueryRow(ctx, `SELECT id, event_id, user_id, requested_at FROM waitlist_entries
		WHERE event_id = $1
		ORDER BY requested_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, eventID).
		Scan(&entry.ID, &entry.EventID, &entry.UserID, &entry.RequestedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// empty waitlist
	case err != nil:
		return false, nil, err
	default:
		if _, err := tx.Exec(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, entry.ID); err != nil {
			return false, nil, err
		}
		next = &entry
	}

	if err := tx.Commit(ctx); err != nil {
		return false, nil, err
	}
	return true, next, nil
}

// SetTicketArtifact records the uploaded QR object key.
func (r *Repository) SetTicketArtifact(ctx context.Context, regID uuid.UUID, objectKey string) error {
	_, err := r.pool.Exec(ctx, `UPDATE registrations SET ticket_object_key = $1, updated_at = NOW() WHERE id = $2`, objectKey, regID)
	return err
}

// UserEmail resolves a participant's email for notification intents.
func (r *Repository) UserEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	return email, err
}

// ListByUser returns a participant's registrations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+regColumns+` FROM registrations
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

// ListByEvent returns all registrations for an event (organizer view).
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+regColumns+` FROM registrations
		WHERE event_id = $1 ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

// ListWaitlist returns the event's waitlist in promotion order.
func (r *Repository) ListWaitlist(ctx context.Context, eventID uuid.UUID) ([]models.WaitlistEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, event_id, user_id, requested_at FROM waitlist_entries
		WHERE event_id = $1 ORDER BY requested_at ASC, id ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.WaitlistEntry
	for rows.Next() {
		var entry models.WaitlistEntry
		if err := rows.Scan(&entry.ID, &entry.EventID, &entry.UserID, &entry.RequestedAt); err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	return list, rows.Err()
}

// MarkAttended sets attended_at for a registration once.
func (r *Repository) MarkAttended(ctx context.Context, regID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE registrations SET attended_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND attended_at IS NULL`, regID)
	return err
}

// UpdatePaymentStatus flips the payment label (no money moves here).
func (r *Repository) UpdatePaymentStatus(ctx context.Context, regID uuid.UUID, status models.PaymentStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE registrations SET payment_status = $1, updated_at = NOW() WHERE id = $2`, status, regID)
	return err
}

func collectRegistrations(rows pgx.Rows) ([]*models.Registration, error) {
	var list []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "registrations_one_active_per_event":
			return ErrDuplicate
		case "registrations_ticket_id_unique":
			return ErrTicketCollision
		}
	}
	return err
}
