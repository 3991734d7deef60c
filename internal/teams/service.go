package teams

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-fest/backend/internal/events"
	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/internal/registrations"
	"github.com/campus-fest/backend/internal/tickets"
)

// ticketAttempts bounds re-running the registration transaction when a
// generated ticket id collides with a stored one.
const ticketAttempts = 3

// Service drives the team formation state machine.
type Service struct {
	store  Store
	notify Notifier
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the teams service. notify may be nil.
func NewService(store Store, notify Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notify: notify, logger: logger, now: time.Now}
}

// CreateTeam starts a team for a standard event with the leader and the
// initial invitee list. The leader holds exactly one team per event.
func (s *Service) CreateTeam(ctx context.Context, eventID, leaderID uuid.UUID, name string, maxSize int, invitees []string) (*models.Team, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Type == models.EventMerchandise {
		return nil, registrations.ErrMerchOnly
	}
	if err := s.checkOpen(ev); err != nil {
		return nil, err
	}
	if maxSize < 2 {
		maxSize = 2
	}
	if len(invitees) > maxSize-1 {
		return nil, ErrTeamFull
	}

	leaderEmail, err := s.store.UserEmail(ctx, leaderID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(invitees))
	for _, email := range invitees {
		if email == leaderEmail {
			return nil, ErrInviteLeader
		}
		if seen[email] {
			return nil, ErrDuplicateInvite
		}
		seen[email] = true
	}

	elsewhere, err := s.store.AcceptedElsewhere(ctx, eventID, leaderID, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if elsewhere {
		return nil, ErrAcceptedElsewhere
	}

	team := &models.Team{
		EventID:  eventID,
		LeaderID: leaderID,
		Name:     name,
		Status:   models.TeamForming,
		MaxSize:  maxSize,
	}
	if err := s.store.CreateTeam(ctx, team, invitees); err != nil {
		return nil, err
	}
	s.inviteNotices(ctx, ev, team, invitees)
	return team, nil
}

// Invite adds one email to the roster. A team that had reached ready drops
// back to forming until the new invitee responds.
func (s *Service) Invite(ctx context.Context, teamID, leaderID uuid.UUID, email string) (*models.Team, error) {
	team, err := s.leaderTeam(ctx, teamID, leaderID)
	if err != nil {
		return nil, err
	}
	if team.Status == models.TeamRegistered {
		return nil, ErrTeamRegistered
	}
	leaderEmail, err := s.store.UserEmail(ctx, leaderID)
	if err != nil {
		return nil, err
	}
	if email == leaderEmail {
		return nil, ErrInviteLeader
	}
	if team.MemberByEmail(email) != nil {
		return nil, ErrDuplicateInvite
	}
	if len(team.Members) >= team.MaxSize-1 {
		return nil, ErrTeamFull
	}

	member := &models.TeamMember{TeamID: team.ID, EventID: team.EventID, Email: email, Status: models.MemberPending}
	if err := s.store.AddMember(ctx, team, member); err != nil {
		return nil, err
	}
	if ev, err := s.store.GetEvent(ctx, team.EventID); err == nil {
		s.inviteNotices(ctx, ev, team, []string{email})
	}
	return s.store.GetTeam(ctx, teamID)
}

// Respond records an invitee's accept or decline. A decline is final for the
// member; the seat stays occupied until the leader removes it.
func (s *Service) Respond(ctx context.Context, teamID, userID uuid.UUID, email string, accept bool, answers []byte) (*models.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.Status == models.TeamRegistered {
		return nil, ErrTeamRegistered
	}
	member := team.MemberByUser(userID)
	if member == nil {
		member = team.MemberByEmail(email)
	}
	if member == nil {
		return nil, ErrNotMember
	}
	if member.Status != models.MemberPending {
		return nil, ErrAlreadyResponded
	}

	status := models.MemberDeclined
	if accept {
		status = models.MemberAccepted
		elsewhere, err := s.store.AcceptedElsewhere(ctx, team.EventID, userID, team.ID)
		if err != nil {
			return nil, err
		}
		if elsewhere {
			return nil, ErrAcceptedElsewhere
		}
		if err := s.validateAnswers(ctx, team.EventID, answers); err != nil {
			return nil, err
		}
	}
	return s.store.SetMemberResponse(ctx, member.ID, userID, status, answers)
}

// RemoveMember frees a roster seat. Leader-only, and only while forming.
func (s *Service) RemoveMember(ctx context.Context, teamID, leaderID, memberID uuid.UUID) error {
	team, err := s.leaderTeam(ctx, teamID, leaderID)
	if err != nil {
		return err
	}
	if team.Status != models.TeamForming {
		return ErrTeamNotForming
	}
	return s.store.RemoveMember(ctx, teamID, memberID)
}

// RegisterTeam admits the full roster against shared event capacity. The
// storage transaction guarantees all-or-nothing: if the event cannot seat
// everyone, nobody is admitted and the team stays ready.
func (s *Service) RegisterTeam(ctx context.Context, teamID, leaderID uuid.UUID) ([]*models.Registration, error) {
	team, err := s.leaderTeam(ctx, teamID, leaderID)
	if err != nil {
		return nil, err
	}
	if team.Status == models.TeamRegistered {
		return nil, ErrTeamRegistered
	}
	if team.Status != models.TeamReady || !team.AllAccepted() {
		return nil, ErrTeamNotReady
	}
	ev, err := s.store.GetEvent(ctx, team.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOpen(ev); err != nil {
		return nil, err
	}

	leaderEmail, err := s.store.UserEmail(ctx, leaderID)
	if err != nil {
		return nil, err
	}

	var admitted []*models.Registration
	for attempt := 0; attempt < ticketAttempts; attempt++ {
		seats, err := s.rosterSeats(team, leaderID, leaderEmail, ev.Name)
		if err != nil {
			return nil, err
		}
		admitted, err = s.store.RegisterTeam(ctx, team, seats)
		if !errors.Is(err, registrations.ErrTicketCollision) {
			if err != nil {
				return nil, err
			}
			break
		}
		s.logger.Warn("ticket id collision during team registration, reissuing",
			zap.String("team_id", team.ID.String()))
		if attempt == ticketAttempts-1 {
			return nil, err
		}
	}

	if s.notify != nil {
		for _, reg := range admitted {
			if email, err := s.store.UserEmail(ctx, reg.UserID); err == nil && reg.TicketID != nil {
				s.notify.TicketIssued(ctx, email, ev, *reg.TicketID)
			}
		}
	}
	return admitted, nil
}

// Disband deletes an unregistered team. Leader-only.
func (s *Service) Disband(ctx context.Context, teamID, leaderID uuid.UUID) error {
	team, err := s.leaderTeam(ctx, teamID, leaderID)
	if err != nil {
		return err
	}
	if team.Status == models.TeamRegistered {
		return ErrTeamRegistered
	}
	return s.store.Disband(ctx, teamID)
}

// rosterSeats builds one admission per roster seat, leader first, each with
// a freshly issued ticket.
func (s *Service) rosterSeats(team *models.Team, leaderID uuid.UUID, leaderEmail, eventName string) ([]MemberAdmission, error) {
	seats := make([]MemberAdmission, 0, len(team.Members)+1)
	leaderTicket, err := tickets.Issue(eventName, leaderEmail)
	if err != nil {
		return nil, err
	}
	seats = append(seats, MemberAdmission{
		UserID:   leaderID,
		Email:    leaderEmail,
		TicketID: leaderTicket.ID,
		TicketQR: leaderTicket.QRBase64,
	})
	for _, m := range team.AcceptedMembers() {
		if m.UserID == nil {
			// Accepted members always carry a bound account id.
			return nil, ErrTeamNotReady
		}
		ticket, err := tickets.Issue(eventName, m.Email)
		if err != nil {
			return nil, err
		}
		seats = append(seats, MemberAdmission{
			UserID:      *m.UserID,
			Email:       m.Email,
			FormAnswers: m.FormAnswers,
			TicketID:    ticket.ID,
			TicketQR:    ticket.QRBase64,
		})
	}
	return seats, nil
}

func (s *Service) leaderTeam(ctx context.Context, teamID, leaderID uuid.UUID) (*models.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.LeaderID != leaderID {
		return nil, ErrNotLeader
	}
	return team, nil
}

func (s *Service) validateAnswers(ctx context.Context, eventID uuid.UUID, answers []byte) error {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.FormConfig == nil {
		return nil
	}
	fields, err := events.ParseFormConfig(ev.FormConfig)
	if err != nil {
		return err
	}
	return events.ValidateAnswers(fields, answers)
}

func (s *Service) inviteNotices(ctx context.Context, ev *models.Event, team *models.Team, emails []string) {
	if s.notify == nil {
		return
	}
	for _, email := range emails {
		s.notify.TeamInvite(ctx, email, ev, team)
	}
}

// checkOpen gates on the effective status at now so an event past its end
// date refuses team creation and registration before any read reconciles it.
func (s *Service) checkOpen(ev *models.Event) error {
	status := events.DeriveStatus(ev, s.now())
	if status != models.StatusPublished && status != models.StatusOngoing {
		return registrations.ErrNotOpen
	}
	if ev.RegistrationDeadline != nil && s.now().After(*ev.RegistrationDeadline) {
		return registrations.ErrDeadline
	}
	return nil
}
