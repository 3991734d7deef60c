package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TeamStatus is the team consensus state.
// forming -> ready (every member accepted) -> registered (terminal, frozen).
type TeamStatus string

const (
	TeamForming    TeamStatus = "forming"
	TeamReady      TeamStatus = "ready"
	TeamRegistered TeamStatus = "registered"
)

// MemberStatus tracks an invitee's response. declined is terminal for the
// member; the roster slot is freed only by explicit leader removal.
type MemberStatus string

const (
	MemberPending  MemberStatus = "pending"
	MemberAccepted MemberStatus = "accepted"
	MemberDeclined MemberStatus = "declined"
)

// Team is one leader-owned group for an event. MaxSize counts the leader,
// so at most MaxSize-1 invitees fit on the roster.
type Team struct {
	ID        uuid.UUID    `json:"id"`
	EventID   uuid.UUID    `json:"event_id"`
	LeaderID  uuid.UUID    `json:"leader_id"`
	Name      string       `json:"name"`
	Status    TeamStatus   `json:"status"`
	MaxSize   int          `json:"max_size"`
	Members   []TeamMember `json:"members,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TeamMember is one invited roster entry. UserID stays nil until a platform
// account with the invited email responds.
type TeamMember struct {
	ID          uuid.UUID       `json:"id"`
	TeamID      uuid.UUID       `json:"team_id"`
	EventID     uuid.UUID       `json:"event_id"`
	UserID      *uuid.UUID      `json:"user_id,omitempty"`
	Email       string          `json:"email"`
	Status      MemberStatus    `json:"status"`
	FormAnswers json.RawMessage `json:"form_answers,omitempty"`
	InvitedAt   time.Time       `json:"invited_at"`
	RespondedAt *time.Time      `json:"responded_at,omitempty"`
}

// AllAccepted reports whether every roster member has accepted. A team with
// no invitees is not considered accepted.
func (t *Team) AllAccepted() bool {
	if len(t.Members) == 0 {
		return false
	}
	for _, m := range t.Members {
		if m.Status != MemberAccepted {
			return false
		}
	}
	return true
}

// AcceptedMembers returns the accepted roster entries.
func (t *Team) AcceptedMembers() []TeamMember {
	var out []TeamMember
	for _, m := range t.Members {
		if m.Status == MemberAccepted {
			out = append(out, m)
		}
	}
	return out
}

// MemberByUser returns the roster entry for a user, or nil.
func (t *Team) MemberByUser(userID uuid.UUID) *TeamMember {
	for i := range t.Members {
		if t.Members[i].UserID != nil && *t.Members[i].UserID == userID {
			return &t.Members[i]
		}
	}
	return nil
}

// MemberByEmail returns the roster entry for an email, or nil.
func (t *Team) MemberByEmail(email string) *TeamMember {
	for i := range t.Members {
		if t.Members[i].Email == email {
			return &t.Members[i]
		}
	}
	return nil
}
