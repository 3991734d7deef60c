package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-fest/backend/internal/models"
)

// Repository persists notification delivery attempts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending log entry for one delivery attempt.
func (r *Repository) Create(ctx context.Context, log *models.EmailLog) error {
	const q = `INSERT INTO email_logs (event_id, recipient, kind, subject, status, attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, log.EventID, log.Recipient, log.Kind,
		log.Subject, log.Status, log.Attempts).Scan(&log.ID, &log.CreatedAt)
}

// MarkSent flips a log entry to sent.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs
		SET status = 'sent', sent_at = NOW() WHERE id = $1`, id)
	return err
}

// MarkFailed records a delivery failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs
		SET status = 'failed', error_message = $1 WHERE id = $2`, reason, id)
	return err
}

// ListByEvent returns delivery logs for one event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, event_id, recipient, kind, subject, status, attempts,
			COALESCE(error_message, ''), sent_at, created_at
		FROM email_logs WHERE event_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []*models.EmailLog
	for rows.Next() {
		var log models.EmailLog
		if err := rows.Scan(&log.ID, &log.EventID, &log.Recipient, &log.Kind, &log.Subject,
			&log.Status, &log.Attempts, &log.ErrorMessage, &log.SentAt, &log.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}
