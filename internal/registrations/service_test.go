package registrations

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/internal/tickets"
)

// fakeStore is an in-memory Store with the same atomicity guarantees the
// pgx implementation gets from conditional updates.
type fakeStore struct {
	mu       sync.Mutex
	events   map[uuid.UUID]*models.Event
	regs     map[uuid.UUID]*models.Registration
	waitlist []*models.WaitlistEntry
	emails   map[uuid.UUID]string

	collideTickets int // force this many ticket collisions
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: map[uuid.UUID]*models.Event{},
		regs:   map[uuid.UUID]*models.Registration{},
		emails: map[uuid.UUID]string{},
	}
}

func (f *fakeStore) addEvent(limit int) *models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := &models.Event{
		ID:                uuid.New(),
		Name:              "Hack Night",
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
	f.mu.Lock()
	defer f.mu.Unlock()
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

func (f *fakeStore) GetRegistration(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[id]
	if !ok {
		return nil, ErrRegNotFound
	}
	cp := *reg
	return &cp, nil
}

func (f *fakeStore) ActiveRegistration(_ context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeLocked(eventID, userID), nil
}

func (f *fakeStore) activeLocked(eventID, userID uuid.UUID) *models.Registration {
	for _, reg := range f.regs {
		if reg.EventID == eventID && reg.UserID == userID && reg.Active() {
			cp := *reg
			return &cp
		}
	}
	return nil
}

func (f *fakeStore) Admit(_ context.Context, reg *models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collideTickets > 0 {
		f.collideTickets--
		return ErrTicketCollision
	}
	ev, ok := f.events[reg.EventID]
	if !ok {
		return ErrEventNotFound
	}
	if ev.Status != models.StatusPublished && ev.Status != models.StatusOngoing {
		return ErrCapacity
	}
	if ev.RegistrationLimit > 0 && ev.RegistrationCount >= ev.RegistrationLimit {
		return ErrCapacity
	}
	if f.activeLocked(reg.EventID, reg.UserID) != nil {
		return ErrDuplicate
	}
	ev.RegistrationCount++
	reg.ID = uuid.New()
	f.regs[reg.ID] = reg
	return nil
}

func (f *fakeStore) AddWaitlist(_ context.Context, eventID, userID uuid.UUID) (*models.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.waitlist {
		if e.EventID == eventID && e.UserID == userID {
			return nil, ErrWaitlisted
		}
	}
	entry := &models.WaitlistEntry{ID: uuid.New(), EventID: eventID, UserID: userID, RequestedAt: time.Now()}
	f.waitlist = append(f.waitlist, entry)
	return entry, nil
}

func (f *fakeStore) Release(_ context.Context, regID uuid.UUID, toStatus models.RegistrationStatus) (bool, *models.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[regID]
	if !ok || !reg.Active() {
		return false, nil, nil
	}
	reg.Status = toStatus
	ev := f.events[reg.EventID]
	if ev.RegistrationCount > 0 {
		ev.RegistrationCount--
	}
	for i, e := range f.waitlist {
		if e.EventID == reg.EventID {
			f.waitlist = append(f.waitlist[:i], f.waitlist[i+1:]...)
			return true, e, nil
		}
	}
	return true, nil, nil
}

func (f *fakeStore) SetTicketArtifact(context.Context, uuid.UUID, string) error { return nil }

func (f *fakeStore) UserEmail(_ context.Context, userID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emails[userID], nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	slots []string
	made  []string
}

func (n *fakeNotifier) SlotAvailable(_ context.Context, recipient string, _ *models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.slots = append(n.slots, recipient)
}

func (n *fakeNotifier) TicketIssued(_ context.Context, recipient string, _ *models.Event, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.made = append(n.made, recipient)
}

func TestTryAdmitIssuesTicket(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	user := store.addUser("ada@campus.test")
	svc := NewService(store, nil, nil, nil, nil)

	reg, err := svc.TryAdmit(context.Background(), ev.ID, user, nil)
	if err != nil {
		t.Fatalf("TryAdmit: %v", err)
	}
	if reg.TicketID == nil || !strings.HasPrefix(*reg.TicketID, tickets.IDPrefix) {
		t.Fatalf("ticket id = %v, want %s prefix", reg.TicketID, tickets.IDPrefix)
	}
	if reg.TicketQR == "" {
		t.Fatal("missing ticket QR")
	}
	if reg.Status != models.RegistrationRegistered {
		t.Fatalf("status = %s", reg.Status)
	}
}

func TestTryAdmitDuplicateRejected(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	user := store.addUser("ada@campus.test")
	svc := NewService(store, nil, nil, nil, nil)

	if _, err := svc.TryAdmit(context.Background(), ev.ID, user, nil); err != nil {
		t.Fatalf("first TryAdmit: %v", err)
	}
	if _, err := svc.TryAdmit(context.Background(), ev.ID, user, nil); err != ErrDuplicate {
		t.Fatalf("second TryAdmit err = %v, want ErrDuplicate", err)
	}
}

func TestTryAdmitClosedAndDeadline(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil, nil, nil, nil)
	user := store.addUser("ada@campus.test")

	draft := store.addEvent(10)
	store.events[draft.ID].Status = models.StatusDraft
	if _, err := svc.TryAdmit(context.Background(), draft.ID, user, nil); err != ErrNotOpen {
		t.Fatalf("draft event err = %v, want ErrNotOpen", err)
	}

	past := store.addEvent(10)
	deadline := time.Now().Add(-time.Hour)
	store.events[past.ID].RegistrationDeadline = &deadline
	if _, err := svc.TryAdmit(context.Background(), past.ID, user, nil); err != ErrDeadline {
		t.Fatalf("past deadline err = %v, want ErrDeadline", err)
	}
}

func TestTryAdmitRetriesTicketCollision(t *testing.T) {
	store := newFakeStore()
	store.collideTickets = 2
	ev := store.addEvent(10)
	user := store.addUser("ada@campus.test")
	svc := NewService(store, nil, nil, nil, nil)

	reg, err := svc.TryAdmit(context.Background(), ev.ID, user, nil)
	if err != nil {
		t.Fatalf("TryAdmit after collisions: %v", err)
	}
	if reg.TicketID == nil {
		t.Fatal("missing ticket id")
	}
}

func TestTryAdmitGivesUpAfterRepeatedCollisions(t *testing.T) {
	store := newFakeStore()
	store.collideTickets = ticketAttempts
	ev := store.addEvent(10)
	user := store.addUser("ada@campus.test")
	svc := NewService(store, nil, nil, nil, nil)

	if _, err := svc.TryAdmit(context.Background(), ev.ID, user, nil); err == nil {
		t.Fatal("expected error after exhausted ticket attempts")
	}
}

// Concurrent admits on a nearly-full event must never exceed the limit.
func TestConcurrentAdmitsRespectCapacity(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(5)
	svc := NewService(store, nil, nil, nil, nil)

	const contenders = 40
	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		user := store.addUser("u@campus.test")
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := svc.TryAdmit(context.Background(), ev.ID, id, nil)
			results <- err
		}(user)
	}
	wg.Wait()
	close(results)

	admitted := 0
	for err := range results {
		if err == nil {
			admitted++
		} else if err != ErrCapacity {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != 5 {
		t.Fatalf("admitted = %d, want 5", admitted)
	}
	final, _ := store.GetEvent(context.Background(), ev.ID)
	if final.RegistrationCount != 5 {
		t.Fatalf("registration_count = %d, want 5", final.RegistrationCount)
	}
}

// Walks a full over-subscription cycle: limit 2, three participants, one
// cancellation, FIFO promotion notice to the waitlisted participant.
func TestWaitlistPromotionCycle(t *testing.T) {
	store := newFakeStore()
	notify := &fakeNotifier{}
	ev := store.addEvent(2)
	alice := store.addUser("alice@campus.test")
	bob := store.addUser("bob@campus.test")
	carol := store.addUser("carol@campus.test")
	svc := NewService(store, nil, notify, nil, nil)
	ctx := context.Background()

	regA, err := svc.TryAdmit(ctx, ev.ID, alice, nil)
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	if _, err := svc.TryAdmit(ctx, ev.ID, bob, nil); err != nil {
		t.Fatalf("bob: %v", err)
	}
	if _, err := svc.TryAdmit(ctx, ev.ID, carol, nil); err != ErrCapacity {
		t.Fatalf("carol err = %v, want ErrCapacity", err)
	}

	if _, err := svc.JoinWaitlist(ctx, ev.ID, carol); err != nil {
		t.Fatalf("carol waitlist: %v", err)
	}
	if _, err := svc.JoinWaitlist(ctx, ev.ID, carol); err != ErrWaitlisted {
		t.Fatalf("repeat waitlist err = %v, want ErrWaitlisted", err)
	}

	if err := svc.Cancel(ctx, regA.ID, alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	final, _ := store.GetEvent(ctx, ev.ID)
	if final.RegistrationCount != 1 {
		t.Fatalf("registration_count = %d, want 1", final.RegistrationCount)
	}
	if len(notify.slots) != 1 || notify.slots[0] != "carol@campus.test" {
		t.Fatalf("slot notices = %v, want carol", notify.slots)
	}

	// The freed slot is advisory; carol still races anyone else for it.
	if _, err := svc.TryAdmit(ctx, ev.ID, carol, nil); err != nil {
		t.Fatalf("carol after promotion: %v", err)
	}
}

func TestCancelIsIdempotentAndOwnerChecked(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(2)
	alice := store.addUser("alice@campus.test")
	mallory := store.addUser("mallory@campus.test")
	svc := NewService(store, nil, nil, nil, nil)
	ctx := context.Background()

	reg, err := svc.TryAdmit(ctx, ev.ID, alice, nil)
	if err != nil {
		t.Fatalf("TryAdmit: %v", err)
	}
	if err := svc.Cancel(ctx, reg.ID, mallory); err != ErrNotOwner {
		t.Fatalf("foreign cancel err = %v, want ErrNotOwner", err)
	}
	if err := svc.Cancel(ctx, reg.ID, alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Second cancel releases nothing.
	if err := svc.Cancel(ctx, reg.ID, alice); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	final, _ := store.GetEvent(ctx, ev.ID)
	if final.RegistrationCount != 0 {
		t.Fatalf("registration_count = %d, want 0", final.RegistrationCount)
	}
}

func TestCancelMerchOrderRefused(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	store.events[ev.ID].Type = models.EventMerchandise
	alice := store.addUser("alice@campus.test")
	svc := NewService(store, nil, nil, nil, nil)

	reg := &models.Registration{ID: uuid.New(), EventID: ev.ID, UserID: alice, Status: models.RegistrationRegistered}
	store.regs[reg.ID] = reg

	if err := svc.Cancel(context.Background(), reg.ID, alice); err != ErrMerchOrder {
		t.Fatalf("err = %v, want ErrMerchOrder", err)
	}
	if _, err := svc.TryAdmit(context.Background(), ev.ID, alice, nil); err != ErrMerchOnly {
		t.Fatalf("admit merch event err = %v, want ErrMerchOnly", err)
	}
}

func TestUnlimitedEventNeverFull(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	svc := NewService(store, nil, nil, nil, nil)
	for i := 0; i < 20; i++ {
		user := store.addUser("u@campus.test")
		if _, err := svc.TryAdmit(context.Background(), ev.ID, user, nil); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
}

func TestTicketOwnerOnly(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	alice := store.addUser("alice@campus.test")
	mallory := store.addUser("mallory@campus.test")
	svc := NewService(store, nil, nil, nil, nil)

	reg, err := svc.TryAdmit(context.Background(), ev.ID, alice, nil)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	dl, err := svc.Ticket(context.Background(), reg.ID, alice)
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}
	if dl.TicketID != *reg.TicketID || dl.QRBase64 == "" {
		t.Fatalf("download = %+v, want ticket %s with inline QR", dl, *reg.TicketID)
	}
	if dl.DownloadURL != "" {
		t.Fatalf("download URL %q without object storage", dl.DownloadURL)
	}

	if _, err := svc.Ticket(context.Background(), reg.ID, mallory); err != ErrNotOwner {
		t.Fatalf("foreign ticket err = %v, want ErrNotOwner", err)
	}

	if err := svc.Cancel(context.Background(), reg.ID, alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Ticket(context.Background(), reg.ID, alice); err != ErrNoTicket {
		t.Fatalf("cancelled ticket err = %v, want ErrNoTicket", err)
	}
}

func TestRejectMerchOrderRefused(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	store.events[ev.ID].Type = models.EventMerchandise
	alice := store.addUser("alice@campus.test")
	svc := NewService(store, nil, nil, nil, nil)

	reg := &models.Registration{ID: uuid.New(), EventID: ev.ID, UserID: alice, Status: models.RegistrationPendingApproval}
	store.regs[reg.ID] = reg

	if err := svc.Reject(context.Background(), reg.ID); err != ErrMerchOrder {
		t.Fatalf("err = %v, want ErrMerchOrder", err)
	}
	if store.regs[reg.ID].Status != models.RegistrationPendingApproval {
		t.Fatalf("status = %s, want pending_approval untouched", store.regs[reg.ID].Status)
	}
}

func TestTryAdmitEndedEventRejected(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(10)
	store.events[ev.ID].StartDate = time.Now().Add(-3 * time.Hour)
	store.events[ev.ID].EndDate = time.Now().Add(-2 * time.Hour)
	user := store.addUser("ada@campus.test")
	svc := NewService(store, nil, nil, nil, nil)

	// Stored status is still published; the effective status has moved on.
	if _, err := svc.TryAdmit(context.Background(), ev.ID, user, nil); err != ErrNotOpen {
		t.Fatalf("admit err = %v, want ErrNotOpen", err)
	}
	if _, err := svc.JoinWaitlist(context.Background(), ev.ID, user); err != ErrNotOpen {
		t.Fatalf("waitlist err = %v, want ErrNotOpen", err)
	}
}
