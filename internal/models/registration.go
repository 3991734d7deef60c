package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the registration lifecycle state.
type RegistrationStatus string

const (
	RegistrationRegistered      RegistrationStatus = "registered"
	RegistrationPendingApproval RegistrationStatus = "pending_approval"
	RegistrationApproved        RegistrationStatus = "approved"
	RegistrationRejected        RegistrationStatus = "rejected"
	RegistrationCancelled       RegistrationStatus = "cancelled"
	RegistrationCompleted       RegistrationStatus = "completed"
)

// PaymentStatus is a label only; no payment processing happens here.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Registration is one participant's admission to an event. A participant
// holds at most one non-cancelled registration per event.
type Registration struct {
	ID              uuid.UUID          `json:"id"`
	EventID         uuid.UUID          `json:"event_id"`
	UserID          uuid.UUID          `json:"user_id"`
	Status          RegistrationStatus `json:"status"`
	PaymentStatus   PaymentStatus      `json:"payment_status"`
	TicketID        *string            `json:"ticket_id,omitempty"`
	TicketQR        string             `json:"ticket_qr,omitempty"` // base64 PNG
	TicketObjectKey *string            `json:"-"`
	TeamID          *uuid.UUID         `json:"team_id,omitempty"`
	FormAnswers     json.RawMessage    `json:"form_answers,omitempty"`
	AttendedAt      *time.Time         `json:"attended_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Active reports whether the registration still occupies a capacity slot.
func (r *Registration) Active() bool {
	return r.Status != RegistrationCancelled && r.Status != RegistrationRejected
}

// MerchSelection is one ordered line of a merchandise registration. The
// variant key fields are snapshotted at purchase time so a later restore
// credits exactly the SKU that was debited.
type MerchSelection struct {
	ID             uuid.UUID `json:"id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	ItemID         uuid.UUID `json:"item_id"`
	Name           string    `json:"name"`
	Size           string    `json:"size"`
	Color          string    `json:"color"`
	Variant        string    `json:"variant"`
	Quantity       int       `json:"quantity"`
	PriceCents     int       `json:"price_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

// Key returns the compound variant key snapshotted on the selection.
func (s *MerchSelection) Key() MerchKey {
	return MerchKey{Name: s.Name, Size: s.Size, Color: s.Color, Variant: s.Variant}
}
