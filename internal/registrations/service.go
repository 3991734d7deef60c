package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-fest/backend/internal/events"
	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/internal/tickets"
	"github.com/campus-fest/backend/pkg/storage"
)

// ticketAttempts bounds regeneration on a stored ticket id collision.
const ticketAttempts = 3

// Service is the admission controller. Every admission decision funnels
// through TryAdmit so the capacity invariant has a single owner.
type Service struct {
	store  Store
	s3     *storage.S3 // nil when object storage is disabled
	notify Notifier
	live   Broadcaster
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the admission service. notify and live may be nil.
func NewService(store Store, s3 *storage.S3, notify Notifier, live Broadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, s3: s3, notify: notify, live: live, logger: logger, now: time.Now}
}

// TryAdmit attempts to register the participant for a standard event. On
// success the returned registration carries an issued ticket. A full event
// returns ErrCapacity; callers may then offer JoinWaitlist.
func (s *Service) TryAdmit(ctx context.Context, eventID, userID uuid.UUID, formAnswers []byte) (*models.Registration, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Type == models.EventMerchandise {
		return nil, ErrMerchOnly
	}
	if err := s.checkOpen(ev); err != nil {
		return nil, err
	}
	if ev.FormConfig != nil {
		fields, err := events.ParseFormConfig(ev.FormConfig)
		if err != nil {
			return nil, err
		}
		if err := events.ValidateAnswers(fields, formAnswers); err != nil {
			return nil, err
		}
	}
	// Cheap pre-check; the partial unique index is the real guard.
	existing, err := s.store.ActiveRegistration(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicate
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
		reg = &models.Registration{
			EventID:       eventID,
			UserID:        userID,
			Status:        models.RegistrationRegistered,
			PaymentStatus: models.PaymentPending,
			TicketID:      &ticket.ID,
			TicketQR:      ticket.QRBase64,
			FormAnswers:   formAnswers,
		}
		err = s.store.Admit(ctx, reg)
		if !errors.Is(err, ErrTicketCollision) {
			break
		}
		s.logger.Warn("ticket id collision, reissuing", zap.String("event_id", eventID.String()))
	}
	if err != nil {
		return nil, err
	}

	s.storeArtifact(ctx, reg, ticket)
	if s.notify != nil {
		s.notify.TicketIssued(ctx, email, ev, ticket.ID)
	}
	s.broadcastSlots(ctx, eventID)
	return reg, nil
}

// JoinWaitlist queues the participant for a slot. Joining is allowed even
// while slots remain free; promotion order is strictly FIFO.
func (s *Service) JoinWaitlist(ctx context.Context, eventID, userID uuid.UUID) (*models.WaitlistEntry, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Type == models.EventMerchandise {
		return nil, ErrMerchOnly
	}
	if err := s.checkOpen(ev); err != nil {
		return nil, err
	}
	existing, err := s.store.ActiveRegistration(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicate
	}
	return s.store.AddWaitlist(ctx, eventID, userID)
}

// Cancel releases a participant's own registration. Merchandise orders are
// refused here because cancelling them must also restore stock.
func (s *Service) Cancel(ctx context.Context, regID, userID uuid.UUID) error {
	reg, err := s.store.GetRegistration(ctx, regID)
	if err != nil {
		return err
	}
	if reg.UserID != userID {
		return ErrNotOwner
	}
	ev, err := s.store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return err
	}
	if ev.Type == models.EventMerchandise {
		return ErrMerchOrder
	}
	return s.release(ctx, reg, models.RegistrationCancelled)
}

// Reject is the organizer-side release; the freed slot flows to the
// waitlist the same way a cancellation does. Merchandise orders are refused
// here: rejecting them must restore stock, which only the orders endpoint
// does.
func (s *Service) Reject(ctx context.Context, regID uuid.UUID) error {
	reg, err := s.store.GetRegistration(ctx, regID)
	if err != nil {
		return err
	}
	ev, err := s.store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return err
	}
	if ev.Type == models.EventMerchandise {
		return ErrMerchOrder
	}
	return s.release(ctx, reg, models.RegistrationRejected)
}

// TicketDownload is what a participant presents at the door.
type TicketDownload struct {
	TicketID    string `json:"ticket_id"`
	QRBase64    string `json:"qr_base64,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// Ticket returns the participant's own ticket. When the QR artifact was
// uploaded to object storage a presigned download URL is included.
func (s *Service) Ticket(ctx context.Context, regID, userID uuid.UUID) (*TicketDownload, error) {
	reg, err := s.store.GetRegistration(ctx, regID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != userID {
		return nil, ErrNotOwner
	}
	if !reg.Active() || reg.TicketID == nil {
		return nil, ErrNoTicket
	}
	dl := &TicketDownload{TicketID: *reg.TicketID, QRBase64: reg.TicketQR}
	if s.s3 != nil && reg.TicketObjectKey != nil {
		url, err := s.s3.GeneratePresignedDownloadURL(ctx, *reg.TicketObjectKey, s.s3.PresignExpire())
		if err != nil {
			s.logger.Warn("ticket presign failed", zap.String("registration_id", regID.String()), zap.Error(err))
		} else {
			dl.DownloadURL = url
		}
	}
	return dl, nil
}

func (s *Service) release(ctx context.Context, reg *models.Registration, to models.RegistrationStatus) error {
	released, next, err := s.store.Release(ctx, reg.ID, to)
	if err != nil {
		return err
	}
	if !released {
		// Already cancelled or rejected; releasing twice frees nothing.
		return nil
	}
	if next != nil && s.notify != nil {
		if email, err := s.store.UserEmail(ctx, next.UserID); err == nil {
			if ev, err := s.store.GetEvent(ctx, reg.EventID); err == nil {
				s.notify.SlotAvailable(ctx, email, ev)
			}
		}
	}
	s.broadcastSlots(ctx, reg.EventID)
	return nil
}

// storeArtifact uploads the QR PNG when object storage is configured.
// Upload failures are logged; the admission already succeeded.
func (s *Service) storeArtifact(ctx context.Context, reg *models.Registration, ticket *tickets.Ticket) {
	if s.s3 == nil {
		return
	}
	key, err := s.s3.UploadTicketQR(ctx, reg.EventID.String(), ticket.ID, ticket.PNG)
	if err != nil {
		s.logger.Warn("ticket artifact upload failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if err := s.store.SetTicketArtifact(ctx, reg.ID, key); err != nil {
		s.logger.Warn("ticket artifact key not recorded", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *Service) broadcastSlots(ctx context.Context, eventID uuid.UUID) {
	if s.live == nil {
		return
	}
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return
	}
	remaining := -1 // unlimited
	if ev.RegistrationLimit > 0 {
		remaining = ev.RegistrationLimit - ev.RegistrationCount
		if remaining < 0 {
			remaining = 0
		}
	}
	s.live.Publish(eventID, "slots_update", map[string]any{
		"event_id":        eventID,
		"slots_remaining": remaining,
		"count":           ev.RegistrationCount,
	})
}

// checkOpen gates on the effective status at now, not the stored one, so an
// event past its end date refuses admissions even before a read reconciles it.
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
