package teams

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/internal/registrations"
)

type fakeStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.Event
	teams  map[uuid.UUID]*models.Team
	regs   []*models.Registration
	emails map[uuid.UUID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: map[uuid.UUID]*models.Event{},
		teams:  map[uuid.UUID]*models.Team{},
		emails: map[uuid.UUID]string{},
	}
}

func (f *fakeStore) addEvent(limit int) *models.Event {
	ev := &models.Event{
		ID:                uuid.New(),
		Name:              "Robotics League",
		Type:              models.EventStandard,
		Status:            models.StatusPublished,
		RegistrationLimit: limit,
		StartDate:         time.Now().Add(-time.Hour),
		EndDate:           time.Now().Add(2 * time.Hour),
	}
	f.events[ev.ID] = ev
	return ev
}

func (f *fakeStore) addUser(email string) uuid.UUID {
	id := uuid.New()
	f.emails[id] = email
	return id
}

func (f *fakeStore) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeStore) GetTeam(_ context.Context, id uuid.UUID) (*models.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	team, ok := f.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	cp := *team
	cp.Members = append([]models.TeamMember(nil), team.Members...)
	return &cp, nil
}

func (f *fakeStore) AcceptedElsewhere(_ context.Context, eventID, userID, excludeTeam uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, team := range f.teams {
		if team.EventID != eventID || team.ID == excludeTeam {
			continue
		}
		for _, m := range team.Members {
			if m.UserID != nil && *m.UserID == userID && m.Status == models.MemberAccepted {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeStore) CreateTeam(_ context.Context, team *models.Team, emails []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.teams {
		if existing.EventID == team.EventID && existing.LeaderID == team.LeaderID {
			return ErrLeaderHasTeam
		}
	}
	team.ID = uuid.New()
	for _, email := range emails {
		team.Members = append(team.Members, models.TeamMember{
			ID: uuid.New(), TeamID: team.ID, EventID: team.EventID,
			Email: email, Status: models.MemberPending, InvitedAt: time.Now(),
		})
	}
	f.teams[team.ID] = team
	return nil
}

func (f *fakeStore) AddMember(_ context.Context, team *models.Team, member *models.TeamMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.teams[team.ID]
	for _, m := range stored.Members {
		if m.Email == member.Email {
			return ErrDuplicateInvite
		}
	}
	member.ID = uuid.New()
	member.InvitedAt = time.Now()
	stored.Members = append(stored.Members, *member)
	if stored.Status == models.TeamReady {
		stored.Status = models.TeamForming
	}
	return nil
}

func (f *fakeStore) SetMemberResponse(_ context.Context, memberID, userID uuid.UUID, status models.MemberStatus, answers []byte) (*models.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, team := range f.teams {
		for i := range team.Members {
			if team.Members[i].ID != memberID {
				continue
			}
			if team.Members[i].Status != models.MemberPending {
				return nil, ErrAlreadyResponded
			}
			uid := userID
			now := time.Now()
			team.Members[i].Status = status
			team.Members[i].UserID = &uid
			team.Members[i].FormAnswers = answers
			team.Members[i].RespondedAt = &now
			if status == models.MemberAccepted && team.AllAccepted() && team.Status == models.TeamForming {
				team.Status = models.TeamReady
			}
			cp := *team
			cp.Members = append([]models.TeamMember(nil), team.Members...)
			return &cp, nil
		}
	}
	return nil, ErrAlreadyResponded
}

func (f *fakeStore) RemoveMember(_ context.Context, teamID, memberID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	team := f.teams[teamID]
	for i := range team.Members {
		if team.Members[i].ID == memberID {
			team.Members = append(team.Members[:i], team.Members[i+1:]...)
			return nil
		}
	}
	return ErrNotMember
}

func (f *fakeStore) RegisterTeam(_ context.Context, team *models.Team, seats []MemberAdmission) ([]*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.teams[team.ID]
	if stored.Status != models.TeamReady {
		return nil, ErrTeamNotReady
	}
	ev := f.events[team.EventID]

	// Mirror of the storage transaction: count the fresh seats first, admit
	// only if all fit, otherwise change nothing.
	fresh := 0
	for _, seat := range seats {
		if f.activeReg(team.EventID, seat.UserID) == nil {
			fresh++
		}
	}
	if ev.RegistrationLimit > 0 && ev.RegistrationCount+fresh > ev.RegistrationLimit {
		return nil, registrations.ErrCapacity
	}

	var admitted []*models.Registration
	for _, seat := range seats {
		if f.activeReg(team.EventID, seat.UserID) != nil {
			continue
		}
		ev.RegistrationCount++
		id := seat.TicketID
		reg := &models.Registration{
			ID: uuid.New(), EventID: team.EventID, UserID: seat.UserID,
			Status: models.RegistrationRegistered, PaymentStatus: models.PaymentPending,
			TicketID: &id, TicketQR: seat.TicketQR, TeamID: &team.ID,
		}
		f.regs = append(f.regs, reg)
		admitted = append(admitted, reg)
	}
	stored.Status = models.TeamRegistered
	return admitted, nil
}

func (f *fakeStore) activeReg(eventID, userID uuid.UUID) *models.Registration {
	for _, reg := range f.regs {
		if reg.EventID == eventID && reg.UserID == userID && reg.Active() {
			return reg
		}
	}
	return nil
}

func (f *fakeStore) Disband(_ context.Context, teamID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	team, ok := f.teams[teamID]
	if !ok || team.Status == models.TeamRegistered {
		return ErrTeamRegistered
	}
	delete(f.teams, teamID)
	return nil
}

func (f *fakeStore) UserEmail(_ context.Context, userID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emails[userID], nil
}

// buildTeam creates a leader plus n invitees and returns everything needed
// to walk the consensus flow.
func buildTeam(t *testing.T, store *fakeStore, svc *Service, eventID uuid.UUID, n int) (*models.Team, uuid.UUID, []uuid.UUID) {
	t.Helper()
	leader := store.addUser("leader@campus.test")
	var invitees []uuid.UUID
	var emails []string
	for i := 0; i < n; i++ {
		email := "member" + string(rune('a'+i)) + "@campus.test"
		invitees = append(invitees, store.addUser(email))
		emails = append(emails, email)
	}
	team, err := svc.CreateTeam(context.Background(), eventID, leader, "Crew", n+1, emails)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	return team, leader, invitees
}

func acceptAll(t *testing.T, store *fakeStore, svc *Service, team *models.Team, invitees []uuid.UUID) *models.Team {
	t.Helper()
	var updated *models.Team
	for i, userID := range invitees {
		var err error
		updated, err = svc.Respond(context.Background(), team.ID, userID, store.emails[userID], true, nil)
		if err != nil {
			t.Fatalf("Respond %d: %v", i, err)
		}
	}
	return updated
}

func TestTeamConsensusReachesReady(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	svc := NewService(store, nil, nil)
	team, _, invitees := buildTeam(t, store, svc, ev.ID, 2)

	if team.Status != models.TeamForming {
		t.Fatalf("status = %s, want forming", team.Status)
	}
	updated, err := svc.Respond(context.Background(), team.ID, invitees[0], store.emails[invitees[0]], true, nil)
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if updated.Status != models.TeamForming {
		t.Fatalf("status after one accept = %s, want forming", updated.Status)
	}
	updated, err = svc.Respond(context.Background(), team.ID, invitees[1], store.emails[invitees[1]], true, nil)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if updated.Status != models.TeamReady {
		t.Fatalf("status = %s, want ready", updated.Status)
	}
}

func TestDeclineBlocksReadyAndIsFinal(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	svc := NewService(store, nil, nil)
	team, leader, invitees := buildTeam(t, store, svc, ev.ID, 2)
	ctx := context.Background()

	if _, err := svc.Respond(ctx, team.ID, invitees[0], store.emails[invitees[0]], false, nil); err != nil {
		t.Fatalf("decline: %v", err)
	}
	updated, err := svc.Respond(ctx, team.ID, invitees[1], store.emails[invitees[1]], true, nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Status != models.TeamForming {
		t.Fatalf("status = %s, want forming while a decline occupies a seat", updated.Status)
	}

	if _, err := svc.Respond(ctx, team.ID, invitees[0], store.emails[invitees[0]], true, nil); err != ErrAlreadyResponded {
		t.Fatalf("re-respond err = %v, want ErrAlreadyResponded", err)
	}
	if _, err := svc.RegisterTeam(ctx, team.ID, leader); err != ErrTeamNotReady {
		t.Fatalf("register err = %v, want ErrTeamNotReady", err)
	}

	// Leader removes the declined seat; the remaining roster is unanimous.
	declined := updated.MemberByUser(invitees[0])
	if declined == nil {
		t.Fatal("declined member missing from roster")
	}
	if err := svc.RemoveMember(ctx, team.ID, leader, declined.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	final, err := store.GetTeam(ctx, team.ID)
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	if !final.AllAccepted() {
		t.Fatal("roster should be unanimous after removal")
	}
}

func TestInviteResetsReadyTeam(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	svc := NewService(store, nil, nil)
	team, leader, invitees := buildTeam(t, store, svc, ev.ID, 1)
	ctx := context.Background()

	acceptAll(t, store, svc, team, invitees)
	store.teams[team.ID].MaxSize = 3

	updated, err := svc.Invite(ctx, team.ID, leader, "late@campus.test")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if updated.Status != models.TeamForming {
		t.Fatalf("status = %s, want forming after a fresh invite", updated.Status)
	}
}

func TestInviteRosterRules(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	svc := NewService(store, nil, nil)
	team, leader, _ := buildTeam(t, store, svc, ev.ID, 2)
	ctx := context.Background()

	if _, err := svc.Invite(ctx, team.ID, leader, "leader@campus.test"); err != ErrInviteLeader {
		t.Fatalf("self-invite err = %v, want ErrInviteLeader", err)
	}
	if _, err := svc.Invite(ctx, team.ID, leader, "membera@campus.test"); err != ErrDuplicateInvite {
		t.Fatalf("duplicate err = %v, want ErrDuplicateInvite", err)
	}
	if _, err := svc.Invite(ctx, team.ID, leader, "extra@campus.test"); err != ErrTeamFull {
		t.Fatalf("full roster err = %v, want ErrTeamFull", err)
	}
	stranger := store.addUser("stranger@campus.test")
	if _, err := svc.Invite(ctx, team.ID, stranger, "x@campus.test"); err != ErrNotLeader {
		t.Fatalf("non-leader err = %v, want ErrNotLeader", err)
	}
}

func TestRegisterTeamAdmitsWholeRoster(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(3)
	svc := NewService(store, nil, nil)
	team, leader, invitees := buildTeam(t, store, svc, ev.ID, 2)
	ctx := context.Background()

	acceptAll(t, store, svc, team, invitees)

	regs, err := svc.RegisterTeam(ctx, team.ID, leader)
	if err != nil {
		t.Fatalf("RegisterTeam: %v", err)
	}
	if len(regs) != 3 {
		t.Fatalf("admitted = %d, want 3 (leader plus two members)", len(regs))
	}
	for _, reg := range regs {
		if reg.TicketID == nil {
			t.Fatal("member admitted without a ticket")
		}
		if reg.TeamID == nil || *reg.TeamID != team.ID {
			t.Fatal("registration not linked to the team")
		}
	}
	if got := store.events[ev.ID].RegistrationCount; got != 3 {
		t.Fatalf("registration_count = %d, want 3", got)
	}
	final, _ := store.GetTeam(ctx, team.ID)
	if final.Status != models.TeamRegistered {
		t.Fatalf("status = %s, want registered", final.Status)
	}

	if _, err := svc.RegisterTeam(ctx, team.ID, leader); err != ErrTeamRegistered {
		t.Fatalf("repeat register err = %v, want ErrTeamRegistered", err)
	}
	if _, err := svc.Invite(ctx, team.ID, leader, "late@campus.test"); err != ErrTeamRegistered {
		t.Fatalf("invite frozen team err = %v, want ErrTeamRegistered", err)
	}
	if err := svc.Disband(ctx, team.ID, leader); err != ErrTeamRegistered {
		t.Fatalf("disband frozen team err = %v, want ErrTeamRegistered", err)
	}
}

// A roster that does not fit in the remaining capacity admits nobody.
func TestRegisterTeamAllOrNothing(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(2)
	svc := NewService(store, nil, nil)
	team, leader, invitees := buildTeam(t, store, svc, ev.ID, 2)
	ctx := context.Background()

	acceptAll(t, store, svc, team, invitees)

	if _, err := svc.RegisterTeam(ctx, team.ID, leader); err != registrations.ErrCapacity {
		t.Fatalf("err = %v, want capacity rejection", err)
	}
	if got := store.events[ev.ID].RegistrationCount; got != 0 {
		t.Fatalf("registration_count = %d, want 0 after rollback", got)
	}
	if len(store.regs) != 0 {
		t.Fatalf("registrations = %d, want 0", len(store.regs))
	}
	final, _ := store.GetTeam(ctx, team.ID)
	if final.Status != models.TeamReady {
		t.Fatalf("status = %s, want ready preserved after rollback", final.Status)
	}
}

func TestRegisterTeamSkipsAlreadyRegisteredMember(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(3)
	svc := NewService(store, nil, nil)
	team, leader, invitees := buildTeam(t, store, svc, ev.ID, 2)
	ctx := context.Background()

	acceptAll(t, store, svc, team, invitees)

	// The first invitee registered individually before the team did.
	tid := "TCK-existing"
	store.regs = append(store.regs, &models.Registration{
		ID: uuid.New(), EventID: ev.ID, UserID: invitees[0],
		Status: models.RegistrationRegistered, TicketID: &tid,
	})
	store.events[ev.ID].RegistrationCount = 1

	regs, err := svc.RegisterTeam(ctx, team.ID, leader)
	if err != nil {
		t.Fatalf("RegisterTeam: %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("newly admitted = %d, want 2", len(regs))
	}
	if got := store.events[ev.ID].RegistrationCount; got != 3 {
		t.Fatalf("registration_count = %d, want 3 (no double count)", got)
	}
}

func TestAcceptRejectedWhenAcceptedElsewhere(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	teamA, _, inviteesA := buildTeam(t, store, svc, ev.ID, 1)
	acceptAll(t, store, svc, teamA, inviteesA)

	leaderB := store.addUser("leaderb@campus.test")
	teamB, err := svc.CreateTeam(ctx, ev.ID, leaderB, "Rivals", 2, []string{"membera@campus.test"})
	if err != nil {
		t.Fatalf("CreateTeam B: %v", err)
	}
	shared := inviteesA[0]
	if _, err := svc.Respond(ctx, teamB.ID, shared, store.emails[shared], true, nil); err != ErrAcceptedElsewhere {
		t.Fatalf("err = %v, want ErrAcceptedElsewhere", err)
	}
	// Declining the second invitation is still allowed.
	if _, err := svc.Respond(ctx, teamB.ID, shared, store.emails[shared], false, nil); err != nil {
		t.Fatalf("decline elsewhere: %v", err)
	}
}

func TestCreateTeamValidations(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	leader := store.addUser("leader@campus.test")
	if _, err := svc.CreateTeam(ctx, ev.ID, leader, "Crew", 2, []string{"leader@campus.test"}); err != ErrInviteLeader {
		t.Fatalf("self-invite err = %v, want ErrInviteLeader", err)
	}
	if _, err := svc.CreateTeam(ctx, ev.ID, leader, "Crew", 3, []string{"a@x.test", "a@x.test"}); err != ErrDuplicateInvite {
		t.Fatalf("dup invitee err = %v, want ErrDuplicateInvite", err)
	}
	if _, err := svc.CreateTeam(ctx, ev.ID, leader, "Crew", 2, []string{"a@x.test", "b@x.test"}); err != ErrTeamFull {
		t.Fatalf("oversized roster err = %v, want ErrTeamFull", err)
	}
	if _, err := svc.CreateTeam(ctx, ev.ID, leader, "Crew", 2, []string{"a@x.test"}); err != nil {
		t.Fatalf("valid create: %v", err)
	}
	if _, err := svc.CreateTeam(ctx, ev.ID, leader, "Again", 2, []string{"b@x.test"}); err != ErrLeaderHasTeam {
		t.Fatalf("second team err = %v, want ErrLeaderHasTeam", err)
	}
}

func TestEndedEventRefusesTeams(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	svc := NewService(store, nil, nil)
	team, leader, invitees := buildTeam(t, store, svc, ev.ID, 2)
	acceptAll(t, store, svc, team, invitees)

	// The event ends while the team sits ready; the stored status is stale.
	store.events[ev.ID].StartDate = time.Now().Add(-3 * time.Hour)
	store.events[ev.ID].EndDate = time.Now().Add(-2 * time.Hour)

	if _, err := svc.RegisterTeam(context.Background(), team.ID, leader); err != registrations.ErrNotOpen {
		t.Fatalf("register err = %v, want ErrNotOpen", err)
	}
	if _, err := svc.CreateTeam(context.Background(), ev.ID, store.addUser("late@campus.test"), "Latecomers", 3, nil); err != registrations.ErrNotOpen {
		t.Fatalf("create err = %v, want ErrNotOpen", err)
	}
}
