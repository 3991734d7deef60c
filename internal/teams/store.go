// Package teams drives the team formation state machine: invitations,
// member responses, and the all-or-nothing team-wide registration that
// admits the whole roster against shared event capacity or nobody at all.
package teams

import (
	"context"

	"github.com/google/uuid"

	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/pkg/response"
)

// Expected rejections for team operations.
var (
	ErrEventNotFound     = response.NewRejection(response.KindNotFound, "event_not_found", "event not found")
	ErrTeamNotFound      = response.NewRejection(response.KindNotFound, "team_not_found", "team not found")
	ErrInviteLeader      = response.NewRejection(response.KindValidation, "leader_not_invitable", "the leader cannot be invited to their own team")
	ErrNotLeader         = response.NewRejection(response.KindPrecondition, "not_team_leader", "only the team leader may do this")
	ErrNotMember         = response.NewRejection(response.KindPrecondition, "not_a_member", "you are not on this team's roster")
	ErrAlreadyResponded  = response.NewRejection(response.KindPrecondition, "already_responded", "you already responded to this invitation")
	ErrTeamFull          = response.NewRejection(response.KindPrecondition, "team_full", "the roster has no free seats")
	ErrTeamRegistered    = response.NewRejection(response.KindPrecondition, "team_registered", "the team is registered and frozen")
	ErrTeamNotReady      = response.NewRejection(response.KindPrecondition, "team_not_ready", "not every member has accepted yet")
	ErrTeamNotForming    = response.NewRejection(response.KindPrecondition, "team_not_forming", "roster edits require a forming team")
	ErrLeaderHasTeam     = response.NewRejection(response.KindConflict, "team_exists", "you already lead a team for this event")
	ErrDuplicateInvite   = response.NewRejection(response.KindConflict, "already_invited", "that email is already on the roster")
	ErrAcceptedElsewhere = response.NewRejection(response.KindConflict, "already_in_another_team", "you already accepted another team for this event")
)

// MemberAdmission is one roster seat to admit during team registration.
type MemberAdmission struct {
	UserID      uuid.UUID
	Email       string
	FormAnswers []byte
	TicketID    string
	TicketQR    string
}

// Store is the persistence contract for team formation. Team and member
// status mutations happen only here; the registration transaction claims
// capacity slots with the admission controller's own conditional statement.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// GetTeam loads a team with its full roster.
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	// AcceptedElsewhere reports whether the user holds an accepted seat in
	// another team for the event.
	AcceptedElsewhere(ctx context.Context, eventID, userID, excludeTeam uuid.UUID) (bool, error)
	// CreateTeam inserts the team and its initial pending invitations.
	// ErrLeaderHasTeam when the leader already has a team for the event.
	CreateTeam(ctx context.Context, team *models.Team, emails []string) error
	// AddMember appends a pending invitation and drops the team back to
	// forming when it had reached ready. ErrDuplicateInvite on repeats.
	AddMember(ctx context.Context, team *models.Team, member *models.TeamMember) error
	// SetMemberResponse records accept/decline for a pending member, binds
	// the responding user id, and flips the team to ready when the whole
	// roster has accepted. ErrAlreadyResponded when not pending,
	// ErrAcceptedElsewhere when the accept loses the one-team-per-event race.
	SetMemberResponse(ctx context.Context, memberID, userID uuid.UUID, status models.MemberStatus, answers []byte) (*models.Team, error)
	// RemoveMember deletes a roster entry of a forming team.
	RemoveMember(ctx context.Context, teamID, memberID uuid.UUID) error
	// RegisterTeam flips ready to registered and admits every listed seat in
	// one transaction. Any capacity shortfall rolls everything back with
	// registrations.ErrCapacity; nobody is admitted partially.
	RegisterTeam(ctx context.Context, team *models.Team, seats []MemberAdmission) ([]*models.Registration, error)
	// Disband deletes a team that has not registered.
	Disband(ctx context.Context, teamID uuid.UUID) error
	UserEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

// Notifier delivers fire-and-forget notification intents.
type Notifier interface {
	TeamInvite(ctx context.Context, recipient string, ev *models.Event, team *models.Team)
	TicketIssued(ctx context.Context, recipient string, ev *models.Event, ticketID string)
}
