package registrations

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/pkg/response"
)

// Expected rejections for admission operations.
var (
	ErrEventNotFound = response.NewRejection(response.KindNotFound, "event_not_found", "event not found")
	ErrRegNotFound   = response.NewRejection(response.KindNotFound, "registration_not_found", "registration not found")
	ErrNotOpen       = response.NewRejection(response.KindPrecondition, "not_open", "event is not open for registration")
	ErrDeadline      = response.NewRejection(response.KindPrecondition, "deadline_passed", "registration deadline has passed")
	ErrMerchOnly     = response.NewRejection(response.KindPrecondition, "merchandise_event", "use the merchandise purchase endpoint for this event")
	ErrMerchOrder    = response.NewRejection(response.KindPrecondition, "merchandise_order", "cancel merchandise orders via the orders endpoint")
	ErrCapacity      = response.NewRejection(response.KindConflict, "capacity_exceeded", "event is at capacity, you may join the waitlist")
	ErrDuplicate     = response.NewRejection(response.KindConflict, "already_registered", "you already hold a registration for this event")
	ErrWaitlisted    = response.NewRejection(response.KindConflict, "already_waitlisted", "you are already on the waitlist")
	ErrNotOwner      = response.NewRejection(response.KindConflict, "not_your_registration", "registration belongs to another participant")
	ErrNoTicket      = response.NewRejection(response.KindPrecondition, "no_ticket", "registration has no issued ticket")
)

// ErrTicketCollision signals a stored ticket id collision; the service
// retries issuance with a fresh id. Never returned to callers.
var ErrTicketCollision = errors.New("ticket id collision")

// Store is the persistence contract for the admission controller. The pgx
// implementation closes every read-check-write window with atomic
// conditional updates inside a transaction.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	// ActiveRegistration returns the participant's non-cancelled registration
	// for the event, or nil when none exists.
	ActiveRegistration(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error)
	// Admit atomically claims one capacity slot and inserts the registration.
	// Returns ErrCapacity when the event is full, ErrDuplicate when the
	// participant already holds an active registration, ErrTicketCollision
	// when the ticket id is already taken.
	Admit(ctx context.Context, reg *models.Registration) error
	// AddWaitlist appends the participant FIFO; ErrWaitlisted on repeats.
	AddWaitlist(ctx context.Context, eventID, userID uuid.UUID) (*models.WaitlistEntry, error)
	// Release marks the registration with toStatus, frees its capacity slot
	// and pops the waitlist head, all in one transaction. released is false
	// when the registration was already cancelled/rejected (a no-op).
	Release(ctx context.Context, regID uuid.UUID, toStatus models.RegistrationStatus) (released bool, next *models.WaitlistEntry, err error)
	// SetTicketArtifact records the S3 object key of the uploaded QR.
	SetTicketArtifact(ctx context.Context, regID uuid.UUID, objectKey string) error
	UserEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

// Notifier delivers fire-and-forget notification intents. Implementations
// swallow failures; admission outcomes never depend on delivery.
type Notifier interface {
	SlotAvailable(ctx context.Context, recipient string, ev *models.Event)
	TicketIssued(ctx context.Context, recipient string, ev *models.Event, ticketID string)
}

// Broadcaster pushes live slot updates to connected clients.
type Broadcaster interface {
	Publish(eventID uuid.UUID, event string, payload any)
}
