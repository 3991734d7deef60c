// Package notify turns domain outcomes into queued notification jobs. Every
// intent is fire-and-forget: enqueue failures are logged and swallowed so a
// broken mail path never fails an admission or purchase.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/pkg/queue"
)

// Notifier enqueues notification jobs onto the Redis queue.
type Notifier struct {
	queue  *queue.Queue
	logger *zap.Logger
}

// NewNotifier creates a queue-backed notifier.
func NewNotifier(q *queue.Queue, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{queue: q, logger: logger}
}

// SlotAvailable tells a waitlisted participant a seat opened up.
func (n *Notifier) SlotAvailable(ctx context.Context, recipient string, ev *models.Event) {
	n.enqueue(ctx, queue.NotificationPayload{
		Kind:      queue.NotifySlotAvailable,
		EventID:   &ev.ID,
		Recipient: recipient,
		Subject:   "A slot opened for " + ev.Name,
		Context:   map[string]string{"event": ev.Name},
	})
}

// TicketIssued delivers the ticket reference after a successful admission.
func (n *Notifier) TicketIssued(ctx context.Context, recipient string, ev *models.Event, ticketID string) {
	n.enqueue(ctx, queue.NotificationPayload{
		Kind:      queue.NotifyTicketIssued,
		EventID:   &ev.ID,
		Recipient: recipient,
		Subject:   "Your ticket for " + ev.Name,
		Context:   map[string]string{"event": ev.Name, "ticket_id": ticketID},
	})
}

// TeamInvite tells an invitee a team wants them.
func (n *Notifier) TeamInvite(ctx context.Context, recipient string, ev *models.Event, team *models.Team) {
	n.enqueue(ctx, queue.NotificationPayload{
		Kind:      queue.NotifyTeamInvite,
		EventID:   &ev.ID,
		Recipient: recipient,
		Subject:   "Team invitation for " + ev.Name,
		Context:   map[string]string{"event": ev.Name, "team": team.Name, "team_id": team.ID.String()},
	})
}

// OrderDecision reports an organizer's approve/reject on a merchandise order.
func (n *Notifier) OrderDecision(ctx context.Context, recipient string, ev *models.Event, approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	n.enqueue(ctx, queue.NotificationPayload{
		Kind:      queue.NotifyOrderDecision,
		EventID:   &ev.ID,
		Recipient: recipient,
		Subject:   "Your order for " + ev.Name + " was " + decision,
		Context:   map[string]string{"event": ev.Name, "decision": decision},
	})
}

func (n *Notifier) enqueue(ctx context.Context, payload queue.NotificationPayload) {
	if n.queue == nil {
		return
	}
	if err := n.queue.EnqueueNotification(ctx, payload); err != nil {
		n.logger.Warn("notification enqueue failed",
			zap.String("kind", string(payload.Kind)),
			zap.String("recipient", payload.Recipient),
			zap.Error(err))
	}
}
