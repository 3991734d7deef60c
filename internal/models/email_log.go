package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailLog records one notification delivery attempt by the worker.
type EmailLog struct {
	ID           uuid.UUID  `json:"id"`
	EventID      *uuid.UUID `json:"event_id,omitempty"`
	Recipient    string     `json:"recipient"`
	Kind         string     `json:"kind"` // slot_available, ticket_issued, team_invite, order_decision
	Subject      string     `json:"subject"`
	Status       string     `json:"status"` // pending, sent, failed
	Attempts     int        `json:"attempts"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
