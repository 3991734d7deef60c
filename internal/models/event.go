package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType distinguishes standard registration events from merchandise sales.
type EventType string

const (
	EventStandard    EventType = "standard"
	EventMerchandise EventType = "merchandise"
)

// EventStatus is the event lifecycle phase.
// draft -> published -> ongoing -> completed; closed is organizer-only from
// published or ongoing. completed and closed are terminal.
type EventStatus string

const (
	StatusDraft     EventStatus = "draft"
	StatusPublished EventStatus = "published"
	StatusOngoing   EventStatus = "ongoing"
	StatusCompleted EventStatus = "completed"
	StatusClosed    EventStatus = "closed"
)

// Event represents a fest event. RegistrationLimit 0 means unlimited.
type Event struct {
	ID                   uuid.UUID       `json:"id"`
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Venue                string          `json:"venue"`
	Type                 EventType       `json:"type"`
	Status               EventStatus     `json:"status"`
	RegistrationLimit    int             `json:"registration_limit"`
	RegistrationCount    int             `json:"registration_count"`
	StartDate            time.Time       `json:"start_date"`
	EndDate              time.Time       `json:"end_date"`
	RegistrationDeadline *time.Time      `json:"registration_deadline,omitempty"`
	PurchaseLimitPerUser int             `json:"purchase_limit_per_user"`
	FormConfig           json.RawMessage `json:"form_config,omitempty"`
	CreatedBy            uuid.UUID       `json:"created_by"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// RegistrationOpen reports whether the event accepts registrations/purchases
// at the given time: phase is published or ongoing and the deadline, if set,
// has not passed.
func (e *Event) RegistrationOpen(now time.Time) bool {
	if e.Status != StatusPublished && e.Status != StatusOngoing {
		return false
	}
	if e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline) {
		return false
	}
	return true
}

// MerchKey is the full compound variant key. Stock restores match on the
// whole key, never on name alone.
type MerchKey struct {
	Name    string `json:"name"`
	Size    string `json:"size"`
	Color   string `json:"color"`
	Variant string `json:"variant"`
}

// MerchItem is one sellable variant of a merchandise event.
type MerchItem struct {
	ID         uuid.UUID `json:"id"`
	EventID    uuid.UUID `json:"event_id"`
	Name       string    `json:"name"`
	Size       string    `json:"size"`
	Color      string    `json:"color"`
	Variant    string    `json:"variant"`
	PriceCents int       `json:"price_cents"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
}

// Key returns the compound variant key for the item.
func (m *MerchItem) Key() MerchKey {
	return MerchKey{Name: m.Name, Size: m.Size, Color: m.Color, Variant: m.Variant}
}

// WaitlistEntry is one queued participant for a full event, FIFO by RequestedAt.
type WaitlistEntry struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	UserID      uuid.UUID `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}
