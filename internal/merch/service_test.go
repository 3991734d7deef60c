package merch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campus-fest/backend/internal/models"
)

type fakeStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.Event
	items  map[uuid.UUID]*models.MerchItem
	orders map[uuid.UUID]*models.Registration
	lines  map[uuid.UUID][]models.MerchSelection // by registration id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: map[uuid.UUID]*models.Event{},
		items:  map[uuid.UUID]*models.MerchItem{},
		orders: map[uuid.UUID]*models.Registration{},
		lines:  map[uuid.UUID][]models.MerchSelection{},
	}
}

func (f *fakeStore) addEvent(purchaseLimit int) *models.Event {
	ev := &models.Event{
		ID:                   uuid.New(),
		Name:                 "Fest Store",
		Type:                 models.EventMerchandise,
		Status:               models.StatusPublished,
		PurchaseLimitPerUser: purchaseLimit,
		StartDate:            time.Now().Add(-time.Hour),
		EndDate:              time.Now().Add(2 * time.Hour),
	}
	f.events[ev.ID] = ev
	return ev
}

func (f *fakeStore) addItem(eventID uuid.UUID, key models.MerchKey, stock int) *models.MerchItem {
	item := &models.MerchItem{
		ID: uuid.New(), EventID: eventID,
		Name: key.Name, Size: key.Size, Color: key.Color, Variant: key.Variant,
		PriceCents: 1500, Stock: stock,
	}
	f.items[item.ID] = item
	return item
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

func (f *fakeStore) GetItem(_ context.Context, eventID uuid.UUID, key models.MerchKey) (*models.MerchItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.EventID == eventID && item.Key() == key {
			cp := *item
			return &cp, nil
		}
	}
	return nil, ErrItemNotFound
}

func (f *fakeStore) Purchase(_ context.Context, p PurchaseParams) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[p.Item.ID]
	if item == nil || item.Stock < p.Quantity {
		return nil, ErrOutOfStock
	}
	item.Stock -= p.Quantity
	if p.Event.PurchaseLimitPerUser > 0 {
		already := 0
		for regID, reg := range f.orders {
			if reg.EventID == p.Event.ID && reg.UserID == p.UserID && reg.Active() {
				for _, line := range f.lines[regID] {
					already += line.Quantity
				}
			}
		}
		if already+p.Quantity > p.Event.PurchaseLimitPerUser {
			item.Stock += p.Quantity
			return nil, ErrPurchaseLimit
		}
	}
	var reg *models.Registration
	for _, existing := range f.orders {
		if existing.EventID == p.Event.ID && existing.UserID == p.UserID && existing.Active() {
			existing.Status = models.RegistrationPendingApproval
			reg = existing
			break
		}
	}
	if reg == nil {
		id := p.TicketID
		reg = &models.Registration{
			ID: uuid.New(), EventID: p.Event.ID, UserID: p.UserID,
			Status: models.RegistrationPendingApproval, PaymentStatus: models.PaymentPending,
			TicketID: &id, TicketQR: p.TicketQR,
		}
		f.orders[reg.ID] = reg
	}
	f.lines[reg.ID] = append(f.lines[reg.ID], models.MerchSelection{
		ID: uuid.New(), RegistrationID: reg.ID, ItemID: p.Item.ID,
		Name: p.Item.Name, Size: p.Item.Size, Color: p.Item.Color, Variant: p.Item.Variant,
		Quantity: p.Quantity, PriceCents: p.Item.PriceCents,
	})
	cp := *reg
	return &cp, nil
}

func (f *fakeStore) Order(_ context.Context, regID uuid.UUID) (*models.Registration, []models.MerchSelection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.orders[regID]
	if !ok {
		return nil, nil, ErrOrderNotFound
	}
	cp := *reg
	return &cp, append([]models.MerchSelection(nil), f.lines[regID]...), nil
}

func (f *fakeStore) Approve(_ context.Context, regID uuid.UUID, ticketID, ticketQR string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.orders[regID]
	if !ok || reg.Status != models.RegistrationPendingApproval {
		return ErrOrderNotPending
	}
	reg.Status = models.RegistrationApproved
	if reg.TicketID == nil {
		reg.TicketID = &ticketID
		reg.TicketQR = ticketQR
	}
	return nil
}

func (f *fakeStore) RejectOrder(_ context.Context, regID uuid.UUID) ([]models.MerchSelection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.orders[regID]
	if !ok || reg.Status != models.RegistrationPendingApproval {
		return nil, ErrOrderNotPending
	}
	reg.Status = models.RegistrationRejected
	selections := append([]models.MerchSelection(nil), f.lines[regID]...)
	for _, s := range selections {
		for _, item := range f.items {
			if item.EventID == reg.EventID && item.Key() == s.Key() {
				item.Stock += s.Quantity
			}
		}
	}
	return selections, nil
}

func (f *fakeStore) UserEmail(context.Context, uuid.UUID) (string, error) {
	return "buyer@campus.test", nil
}

func (f *fakeStore) stockOf(itemID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[itemID].Stock
}

var hoodie = models.MerchKey{Name: "Hoodie", Size: "L", Color: "Black"}

// Runs the canonical oversell scenario: stock two, cap one per buyer.
func TestPurchaseStockAndCap(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(1)
	item := store.addItem(ev.ID, hoodie, 2)
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	user1, user2, user3 := uuid.New(), uuid.New(), uuid.New()

	reg, err := svc.Purchase(ctx, ev.ID, user1, hoodie, 1)
	if err != nil {
		t.Fatalf("user1: %v", err)
	}
	if reg.Status != models.RegistrationPendingApproval {
		t.Fatalf("status = %s", reg.Status)
	}
	if reg.TicketID == nil {
		t.Fatal("missing ticket")
	}
	if got := store.stockOf(item.ID); got != 1 {
		t.Fatalf("stock = %d, want 1", got)
	}

	if _, err := svc.Purchase(ctx, ev.ID, user1, hoodie, 1); err != ErrPurchaseLimit {
		t.Fatalf("user1 repeat err = %v, want ErrPurchaseLimit", err)
	}
	if got := store.stockOf(item.ID); got != 1 {
		t.Fatalf("stock after cap rejection = %d, want 1", got)
	}

	if _, err := svc.Purchase(ctx, ev.ID, user2, hoodie, 1); err != nil {
		t.Fatalf("user2: %v", err)
	}
	if got := store.stockOf(item.ID); got != 0 {
		t.Fatalf("stock = %d, want 0", got)
	}

	if _, err := svc.Purchase(ctx, ev.ID, user3, hoodie, 1); err != ErrOutOfStock {
		t.Fatalf("user3 err = %v, want ErrOutOfStock", err)
	}
}

func TestPurchaseRejectionOrder(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(1)
	store.addItem(ev.ID, hoodie, 5)
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()
	user := uuid.New()

	if _, err := svc.Purchase(ctx, ev.ID, user, hoodie, 0); err != ErrQuantity {
		t.Fatalf("zero qty err = %v, want ErrQuantity", err)
	}
	tee := models.MerchKey{Name: "Tee", Size: "M"}
	if _, err := svc.Purchase(ctx, ev.ID, user, tee, 1); err != ErrItemNotFound {
		t.Fatalf("unknown item err = %v, want ErrItemNotFound", err)
	}

	store.events[ev.ID].Status = models.StatusDraft
	if _, err := svc.Purchase(ctx, ev.ID, user, hoodie, 1); err != ErrNotOpen {
		t.Fatalf("draft event err = %v, want ErrNotOpen", err)
	}
}

func TestPurchaseStandardEventRefused(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	store.events[ev.ID].Type = models.EventStandard
	svc := NewService(store, nil, nil, nil)

	if _, err := svc.Purchase(context.Background(), ev.ID, uuid.New(), hoodie, 1); err != ErrNotMerch {
		t.Fatalf("err = %v, want ErrNotMerch", err)
	}
}

func TestRejectRestoresExactVariant(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	black := store.addItem(ev.ID, hoodie, 3)
	// Same name, different size. Restores must not credit this one.
	medium := store.addItem(ev.ID, models.MerchKey{Name: "Hoodie", Size: "M", Color: "Black"}, 3)
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	reg, err := svc.Purchase(ctx, ev.ID, uuid.New(), hoodie, 2)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if got := store.stockOf(black.ID); got != 1 {
		t.Fatalf("stock = %d, want 1", got)
	}

	if err := svc.Reject(ctx, reg.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := store.stockOf(black.ID); got != 3 {
		t.Fatalf("restored stock = %d, want 3", got)
	}
	if got := store.stockOf(medium.ID); got != 3 {
		t.Fatalf("sibling variant stock = %d, want untouched 3", got)
	}

	// Rejecting twice must not double-credit.
	if err := svc.Reject(ctx, reg.ID); err != ErrOrderNotPending {
		t.Fatalf("repeat reject err = %v, want ErrOrderNotPending", err)
	}
	if got := store.stockOf(black.ID); got != 3 {
		t.Fatalf("stock after repeat reject = %d, want 3", got)
	}
}

func TestApprovePendingOrder(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	store.addItem(ev.ID, hoodie, 3)
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	reg, err := svc.Purchase(ctx, ev.ID, uuid.New(), hoodie, 1)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	approved, err := svc.Approve(ctx, reg.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != models.RegistrationApproved {
		t.Fatalf("status = %s", approved.Status)
	}
	if _, err := svc.Approve(ctx, reg.ID); err != ErrOrderNotPending {
		t.Fatalf("repeat approve err = %v, want ErrOrderNotPending", err)
	}
}

func TestRepeatPurchaseExtendsOrder(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	store.addItem(ev.ID, hoodie, 5)
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()
	user := uuid.New()

	first, err := svc.Purchase(ctx, ev.ID, user, hoodie, 1)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.Purchase(ctx, ev.ID, user, hoodie, 2)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("second purchase opened a new order: %s vs %s", first.ID, second.ID)
	}
	_, selections, err := store.Order(ctx, first.ID)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if len(selections) != 2 {
		t.Fatalf("selections = %d, want 2", len(selections))
	}
}

// Concurrent buyers must never drive stock below zero.
func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	item := store.addItem(ev.ID, hoodie, 7)
	svc := NewService(store, nil, nil, nil)

	const buyers = 30
	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), ev.ID, uuid.New(), hoodie, 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	sold := 0
	for err := range results {
		if err == nil {
			sold++
		} else if err != ErrOutOfStock {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if sold != 7 {
		t.Fatalf("sold = %d, want 7", sold)
	}
	if got := store.stockOf(item.ID); got != 0 {
		t.Fatalf("stock = %d, want 0", got)
	}
}

func TestPurchaseEndedStoreRefused(t *testing.T) {
	store := newFakeStore()
	ev := store.addEvent(0)
	store.events[ev.ID].StartDate = time.Now().Add(-3 * time.Hour)
	store.events[ev.ID].EndDate = time.Now().Add(-2 * time.Hour)
	store.addItem(ev.ID, hoodie, 5)
	svc := NewService(store, nil, nil, nil)

	// Stored status is still published; the effective status has moved on.
	if _, err := svc.Purchase(context.Background(), ev.ID, uuid.New(), hoodie, 1); err != ErrNotOpen {
		t.Fatalf("err = %v, want ErrNotOpen", err)
	}
}
