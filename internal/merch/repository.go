package merch

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

// NewRepository creates a merch repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, event_id, name, size, color, variant, price_cents, stock, created_at`

func scanItem(row interface{ Scan(...any) error }) (*models.MerchItem, error) {
	var item models.MerchItem
	err := row.Scan(&item.ID, &item.EventID, &item.Name, &item.Size, &item.Color,
		&item.Variant, &item.PriceCents, &item.Stock, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetEvent returns the event, mapped to a rejection when missing.
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

// CreateItem adds a sellable variant to a merchandise event.
func (r *Repository) CreateItem(ctx context.Context, item *models.MerchItem) error {
	const q = `INSERT INTO merch_items (event_id, name, size, color, variant, price_cents, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, item.EventID, item.Name, item.Size, item.Color,
		item.Variant, item.PriceCents, item.Stock).Scan(&item.ID, &item.CreatedAt)
}

// ListItems returns all variants of an event.
func (r *Repository) ListItems(ctx context.Context, eventID uuid.UUID) ([]*models.MerchItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM merch_items
		WHERE event_id = $1 ORDER BY name, size, color, variant`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*models.MerchItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem resolves a variant by its full compound key.
func (r *Repository) GetItem(ctx context.Context, eventID uuid.UUID, key models.MerchKey) (*models.MerchItem, error) {
	const q = `SELECT ` + itemColumns + ` FROM merch_items
		WHERE event_id = $1 AND name = $2 AND size = $3 AND color = $4 AND variant = $5`
	item, err := scanItem(r.pool.QueryRow(ctx, q, eventID, key.Name, key.Size, key.Color, key.Variant))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	return item, err
}

// Purchase runs the whole purchase as one transaction. The conditional stock
// decrement goes first so out_of_stock wins over purchase_limit_exceeded,
// and a cap rejection rolls the debit back.
func (r *Repository) Purchase(ctx context.Context, p PurchaseParams) (*models.Registration, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE merch_items SET stock = stock - $1
		WHERE id = $2 AND stock >= $1`, p.Quantity, p.Item.ID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrOutOfStock
	}

	if p.Event.PurchaseLimitPerUser > 0 {
		var already int
		err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(ms.quantity), 0)
			FROM merch_selections ms
			JOIN registrations reg ON reg.id = ms.registration_id
			WHERE reg.event_id = $1 AND reg.user_id = $2
			  AND reg.status NOT IN ('cancelled', 'rejected')`,
			p.Event.ID, p.UserID).Scan(&already)
		if err != nil {
			return nil, err
		}
		if already+p.Quantity > p.Event.PurchaseLimitPerUser {
			return nil, ErrPurchaseLimit
		}
	}

	reg, err := openOrder(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	const insSel = `INSERT INTO merch_selections (registration_id, item_id, name, size, color, variant, quantity, price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.Exec(ctx, insSel, reg.ID, p.Item.ID, p.Item.Name, p.Item.Size,
		p.Item.Color, p.Item.Variant, p.Quantity, p.Item.PriceCents)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}

// openOrder reuses the buyer's active order for the event, creating one when
// none exists. New lines on an approved order put it back in review.
func openOrder(ctx context.Context, tx pgx.Tx, p PurchaseParams) (*models.Registration, error) {
	var reg models.Registration
	err := tx.QueryRow(ctx, `UPDATE registrations
		SET status = 'pending_approval', updated_at = NOW()
		WHERE event_id = $1 AND user_id = $2 AND status NOT IN ('cancelled', 'rejected')
		RETURNING id, event_id, user_id, status, payment_status, ticket_id, ticket_qr, team_id, created_at, updated_at`,
		p.Event.ID, p.UserID).
		Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.PaymentStatus,
			&reg.TicketID, &reg.TicketQR, &reg.TeamID, &reg.CreatedAt, &reg.UpdatedAt)
	if err == nil {
		return &reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	reg = models.Registration{
		EventID:       p.Event.ID,
		UserID:        p.UserID,
		Status:        models.RegistrationPendingApproval,
		PaymentStatus: models.PaymentPending,
		TicketID:      &p.TicketID,
		TicketQR:      p.TicketQR,
	}
	err = tx.QueryRow(ctx, `INSERT INTO registrations (event_id, user_id, status, payment_status, ticket_id, ticket_qr)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		reg.EventID, reg.UserID, reg.Status, reg.PaymentStatus, reg.TicketID, reg.TicketQR).
		Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "registrations_ticket_id_unique" {
			return nil, ErrTicketCollision
		}
		return nil, err
	}
	return &reg, nil
}

// Order returns a registration with its selections.
func (r *Repository) Order(ctx context.Context, regID uuid.UUID) (*models.Registration, []models.MerchSelection, error) {
	var reg models.Registration
	err := r.pool.QueryRow(ctx, `SELECT id, event_id, user_id, status, payment_status, ticket_id, ticket_qr, team_id, created_at, updated_at
		FROM registrations WHERE id = $1`, regID).
		Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.PaymentStatus,
			&reg.TicketID, &reg.TicketQR, &reg.TeamID, &reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	selections, err := r.selections(ctx, regID)
	if err != nil {
		return nil, nil, err
	}
	return &reg, selections, nil
}

func (r *Repository) selections(ctx context.Context, regID uuid.UUID) ([]models.MerchSelection, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, registration_id, item_id, name, size, color, variant, quantity, price_cents, created_at
		FROM merch_selections WHERE registration_id = $1 ORDER BY created_at ASC`, regID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.MerchSelection
	for rows.Next() {
		var s models.MerchSelection
		if err := rows.Scan(&s.ID, &s.RegistrationID, &s.ItemID, &s.Name, &s.Size,
			&s.Color, &s.Variant, &s.Quantity, &s.PriceCents, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Approve flips a pending order to approved, keeping an already-issued
// ticket in place.
func (r *Repository) Approve(ctx context.Context, regID uuid.UUID, ticketID, ticketQR string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE registrations
		SET status = 'approved',
		    ticket_id = COALESCE(ticket_id, $1),
		    ticket_qr = CASE WHEN ticket_id IS NULL THEN $2 ELSE ticket_qr END,
		    updated_at = NOW()
		WHERE id = $3 AND status = 'pending_approval'`, ticketID, ticketQR, regID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// RejectOrder cancels a pending order and credits its selections back, each
// matched to its variant by the full compound key.
func (r *Repository) RejectOrder(ctx context.Context, regID uuid.UUID) ([]models.MerchSelection, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var eventID uuid.UUID
	err = tx.QueryRow(ctx, `UPDATE registrations SET status = 'rejected', updated_at = NOW()
		WHERE id = $1 AND status = 'pending_approval'
		RETURNING event_id`, regID).Scan(&eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotPending
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT id, registration_id, item_id, name, size, color, variant, quantity, price_cents, created_at
		FROM merch_selections WHERE registration_id = $1`, regID)
	if err != nil {
		return nil, err
	}
	var selections []models.MerchSelection
	for rows.Next() {
		var s models.MerchSelection
		if err := rows.Scan(&s.ID, &s.RegistrationID, &s.ItemID, &s.Name, &s.Size,
			&s.Color, &s.Variant, &s.Quantity, &s.PriceCents, &s.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		selections = append(selections, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, s := range selections {
		_, err := tx.Exec(ctx, `UPDATE merch_items SET stock = stock + $1
			WHERE event_id = $2 AND name = $3 AND size = $4 AND color = $5 AND variant = $6`,
			s.Quantity, eventID, s.Name, s.Size, s.Color, s.Variant)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return selections, nil
}

// UserEmail resolves a buyer's email for notification intents.
func (r *Repository) UserEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	return email, err
}
