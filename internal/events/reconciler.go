package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campus-fest/backend/internal/models"
)

// DeriveStatus computes the effective lifecycle phase of an event at the
// given time without touching storage. Rules, in order: published moves to
// ongoing once the start date passes; ongoing (including just-derived)
// moves to completed once the end date passes. Draft, closed and completed
// never change automatically. Idempotent: deriving from the result is a
// fixed point.
func DeriveStatus(e *models.Event, now time.Time) models.EventStatus {
	status := e.Status
	if status == models.StatusPublished && now.After(e.StartDate) {
		status = models.StatusOngoing
	}
	if status == models.StatusOngoing && now.After(e.EndDate) {
		status = models.StatusCompleted
	}
	return status
}

// Reconciler persists time-driven status transitions lazily on the read path.
type Reconciler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewReconciler creates a status reconciler.
func NewReconciler(repo *Repository, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{repo: repo, logger: logger}
}

// Reconcile returns the effective status at now, persisting at most one
// transition. A persistence failure never blocks the caller: the derived
// status is returned and the write is retried by the next read.
func (r *Reconciler) Reconcile(ctx context.Context, e *models.Event, now time.Time) models.EventStatus {
	derived := DeriveStatus(e, now)
	if derived == e.Status {
		return derived
	}
	applied, err := r.repo.TransitionStatus(ctx, e.ID, e.Status, derived)
	if err != nil {
		r.logger.Warn("status reconcile failed",
			zap.String("event_id", e.ID.String()),
			zap.String("from", string(e.Status)),
			zap.String("to", string(derived)),
			zap.Error(err),
		)
		return derived
	}
	if applied {
		e.Status = derived
	}
	return derived
}
