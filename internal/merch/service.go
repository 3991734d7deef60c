package merch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-fest/backend/internal/events"
	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/internal/tickets"
)

// ticketAttempts bounds regeneration on a stored ticket id collision.
const ticketAttempts = 3

// Service is the inventory ledger. All stock mutations route through
// Purchase and RejectOrder so the non-negative invariant has one owner.
type Service struct {
	store  Store
	notify Notifier
	live   Broadcaster
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the merch service. notify and live may be nil.
func NewService(store Store, notify Notifier, live Broadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notify: notify, live: live, logger: logger, now: time.Now}
}

// Purchase buys quantity units of one variant. Rejections are checked in a
// fixed order so callers see the most actionable reason first: not open,
// then unknown variant, then stock, then the per-user cap.
func (s *Service) Purchase(ctx context.Context, eventID, userID uuid.UUID, key models.MerchKey, quantity int) (*models.Registration, error) {
	if quantity <= 0 {
		return nil, ErrQuantity
	}
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Type != models.EventMerchandise {
		return nil, ErrNotMerch
	}
	if err := s.checkOpen(ev); err != nil {
		return nil, err
	}
	item, err := s.store.GetItem(ctx, eventID, key)
	if err != nil {
		return nil, err
	}
	email, err := s.store.UserEmail(ctx, userID)
	if err != nil {
		return nil, err
	}

	var reg *models.Registration
	var ticket *tickets.Ticket
	for attempt := 0; attempt < ticketAttempts; attempt++ {
		ticket, err = tickets.Issue(ev.Name, email)
		if err != nil {
			return nil, err
		}
		reg, err = s.store.Purchase(ctx, PurchaseParams{
			Event:    ev,
			UserID:   userID,
			Item:     item,
			Quantity: quantity,
			TicketID: ticket.ID,
			TicketQR: ticket.QRBase64,
		})
		if !errors.Is(err, ErrTicketCollision) {
			break
		}
		s.logger.Warn("ticket id collision, reissuing", zap.String("event_id", eventID.String()))
	}
	if err != nil {
		return nil, err
	}

	if s.notify != nil && reg.TicketID != nil {
		s.notify.TicketIssued(ctx, email, ev, *reg.TicketID)
	}
	s.broadcastStock(eventID, item, quantity)
	return reg, nil
}

// Approve confirms a pending order. Orders created by Purchase already carry
// a ticket; one is issued here only for orders that somehow lack it.
func (s *Service) Approve(ctx context.Context, regID uuid.UUID) (*models.Registration, error) {
	reg, _, err := s.store.Order(ctx, regID)
	if err != nil {
		return nil, err
	}
	email, err := s.store.UserEmail(ctx, reg.UserID)
	if err != nil {
		return nil, err
	}
	ev, err := s.store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}

	ticket, err := tickets.Issue(ev.Name, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.Approve(ctx, regID, ticket.ID, ticket.QRBase64); err != nil {
		return nil, err
	}
	if s.notify != nil {
		s.notify.OrderDecision(ctx, email, ev, true)
	}
	reg, _, err = s.store.Order(ctx, regID)
	return reg, err
}

// Reject turns a pending order down and restores every debited variant.
func (s *Service) Reject(ctx context.Context, regID uuid.UUID) error {
	reg, _, err := s.store.Order(ctx, regID)
	if err != nil {
		return err
	}
	selections, err := s.store.RejectOrder(ctx, regID)
	if err != nil {
		return err
	}
	ev, err := s.store.GetEvent(ctx, reg.EventID)
	if err == nil {
		if s.notify != nil {
			if email, mailErr := s.store.UserEmail(ctx, reg.UserID); mailErr == nil {
				s.notify.OrderDecision(ctx, email, ev, false)
			}
		}
	}
	if s.live != nil {
		for _, sel := range selections {
			s.live.Publish(reg.EventID, "stock_update", map[string]any{
				"event_id": reg.EventID,
				"item":     sel.Key(),
				"restored": sel.Quantity,
			})
		}
	}
	return nil
}

func (s *Service) broadcastStock(eventID uuid.UUID, item *models.MerchItem, sold int) {
	if s.live == nil {
		return
	}
	s.live.Publish(eventID, "stock_update", map[string]any{
		"event_id": eventID,
		"item":     item.Key(),
		"sold":     sold,
	})
}

// checkOpen gates on the effective status at now so a store past its end
// date refuses purchases even before a read reconciles the stored status.
func (s *Service) checkOpen(ev *models.Event) error {
	status := events.DeriveStatus(ev, s.now())
	if status != models.StatusPublished && status != models.StatusOngoing {
		return ErrNotOpen
	}
	if ev.RegistrationDeadline != nil && s.now().After(*ev.RegistrationDeadline) {
		return ErrDeadline
	}
	return nil
}
