// Package analytics is the read-only organizer dashboard: admission,
// attendance and revenue counts derived from the core tables. Nothing here
// mutates shared state.
package analytics

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/campus-fest/backend/pkg/response"
)

// EventStats is the per-event summary.
type EventStats struct {
	EventID       uuid.UUID `json:"event_id"`
	Registered    int       `json:"registered"`
	Cancelled     int       `json:"cancelled"`
	Attended      int       `json:"attended"`
	WaitlistDepth int       `json:"waitlist_depth"`
	UnitsSold     int       `json:"units_sold"`
	RevenueCents  int       `json:"revenue_cents"`
}

// Repository reads aggregates from the core tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EventStats computes the summary for one event.
func (r *Repository) EventStats(ctx context.Context, eventID uuid.UUID) (*EventStats, error) {
	stats := &EventStats{EventID: eventID}

	const regs = `SELECT
			COUNT(*) FILTER (WHERE status NOT IN ('cancelled', 'rejected')),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE attended_at IS NOT NULL)
		FROM registrations WHERE event_id = $1`
	if err := r.pool.QueryRow(ctx, regs, eventID).
		Scan(&stats.Registered, &stats.Cancelled, &stats.Attended); err != nil {
		return nil, err
	}

	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM waitlist_entries WHERE event_id = $1`, eventID).
		Scan(&stats.WaitlistDepth); err != nil {
		return nil, err
	}

	// Revenue counts only selections on live orders.
	const revenue = `SELECT
			COALESCE(SUM(ms.quantity), 0),
			COALESCE(SUM(ms.quantity * ms.price_cents), 0)
		FROM merch_selections ms
		JOIN registrations reg ON reg.id = ms.registration_id
		WHERE reg.event_id = $1 AND reg.status NOT IN ('cancelled', 'rejected')`
	if err := r.pool.QueryRow(ctx, revenue, eventID).
		Scan(&stats.UnitsSold, &stats.RevenueCents); err != nil {
		return nil, err
	}
	return stats, nil
}

// Handler exposes the analytics read.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// EventStats handles GET /events/:id/analytics (organizer/admin).
func (h *Handler) EventStats(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	stats, err := h.repo.EventStats(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("event stats", zap.Error(err))
		response.Internal(c, "could not compute analytics")
		return
	}
	response.OK(c, stats)
}
