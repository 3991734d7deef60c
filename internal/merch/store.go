// Package merch is the inventory ledger for merchandise events. It owns
// every stock mutation: purchases debit a variant, order rejections credit
// it back by the full compound key.
package merch

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/pkg/response"
)

// Expected rejections for purchase and order operations.
var (
	ErrEventNotFound   = response.NewRejection(response.KindNotFound, "event_not_found", "event not found")
	ErrOrderNotFound   = response.NewRejection(response.KindNotFound, "order_not_found", "order not found")
	ErrItemNotFound    = response.NewRejection(response.KindNotFound, "item_not_found", "merchandise variant not found")
	ErrNotMerch        = response.NewRejection(response.KindPrecondition, "not_merchandise", "event does not sell merchandise")
	ErrNotOpen         = response.NewRejection(response.KindPrecondition, "not_open", "event is not open for purchases")
	ErrDeadline        = response.NewRejection(response.KindPrecondition, "deadline_passed", "purchase deadline has passed")
	ErrOrderNotPending = response.NewRejection(response.KindPrecondition, "order_not_pending", "order is not awaiting approval")
	ErrQuantity        = response.NewRejection(response.KindValidation, "invalid_quantity", "quantity must be a positive integer")
	ErrOutOfStock      = response.NewRejection(response.KindConflict, "out_of_stock", "not enough stock for this variant")
	ErrPurchaseLimit   = response.NewRejection(response.KindConflict, "purchase_limit_exceeded", "purchase limit for this event reached")
)

// ErrTicketCollision signals a stored ticket id collision; the service
// retries issuance with a fresh id. Never returned to callers.
var ErrTicketCollision = errors.New("ticket id collision")

// PurchaseParams carries one validated purchase into the storage layer.
type PurchaseParams struct {
	Event    *models.Event
	UserID   uuid.UUID
	Item     *models.MerchItem
	Quantity int
	TicketID string
	TicketQR string
}

// Store is the persistence contract for the inventory ledger. The stock
// decrement, the per-user cap check and the order rows commit in one
// transaction so a failed purchase leaves stock untouched.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// GetItem resolves a variant by its full compound key.
	GetItem(ctx context.Context, eventID uuid.UUID, key models.MerchKey) (*models.MerchItem, error)
	// Purchase debits stock, enforces the per-user cap and appends the
	// selection to the buyer's open order (creating one when absent).
	// Returns ErrOutOfStock, ErrPurchaseLimit or ErrTicketCollision.
	Purchase(ctx context.Context, p PurchaseParams) (*models.Registration, error)
	// Order returns a registration with its merchandise selections.
	Order(ctx context.Context, regID uuid.UUID) (*models.Registration, []models.MerchSelection, error)
	// Approve marks a pending order approved, recording the ticket when the
	// order does not already carry one. ErrOrderNotPending otherwise.
	Approve(ctx context.Context, regID uuid.UUID, ticketID, ticketQR string) error
	// RejectOrder marks a pending order rejected and credits every selection
	// back to its variant by full compound key. ErrOrderNotPending otherwise.
	RejectOrder(ctx context.Context, regID uuid.UUID) ([]models.MerchSelection, error)
	UserEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

// Notifier delivers fire-and-forget notification intents.
type Notifier interface {
	TicketIssued(ctx context.Context, recipient string, ev *models.Event, ticketID string)
	OrderDecision(ctx context.Context, recipient string, ev *models.Event, approved bool)
}

// Broadcaster pushes live stock updates to connected clients.
type Broadcaster interface {
	Publish(eventID uuid.UUID, event string, payload any)
}
