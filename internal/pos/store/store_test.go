package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"tablestack/internal/database/models"
	"tablestack/internal/logger"
	"tablestack/internal/pos/apperr"
	"tablestack/internal/pos/catalog"
	"tablestack/internal/pos/payment"
	"tablestack/internal/pos/pricing"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// fakeRepo keeps orders in memory and hands out copies, so mutations only
// land through SaveOrder/ApplyPayment, like a real database would behave.
type fakeRepo struct {
	orders      map[uint]*models.Order
	nextOrderID uint
	nextItemID  uint
	nextPayID   uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[uint]*models.Order)}
}

func copyOrder(o *models.Order) *models.Order {
	raw, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}
	var out models.Order
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}

func (r *fakeRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	r.nextOrderID++
	order.ID = r.nextOrderID
	r.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *fakeRepo) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	stored, ok := r.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return copyOrder(stored), nil
}

func (r *fakeRepo) OrderIDForItem(ctx context.Context, itemID uint) (uint, error) {
	for id, order := range r.orders {
		for _, item := range order.Items {
			if item.ID == itemID {
				return id, nil
			}
		}
	}
	return 0, apperr.NotFound("order item", itemID)
}

func (r *fakeRepo) ListOpenOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.orders {
		if !order.Closed() {
			out = append(out, *copyOrder(order))
		}
	}
	return out, nil
}

func (r *fakeRepo) SaveOrder(ctx context.Context, order *models.Order) error {
	stored, ok := r.orders[order.ID]
	if !ok {
		return apperr.NotFound("order", order.ID)
	}
	if stored.Version != order.Version {
		return apperr.Conflict("order", order.ID)
	}
	for i := range order.Items {
		if order.Items[i].ID == 0 {
			r.nextItemID++
			order.Items[i].ID = r.nextItemID
		}
	}
	order.Version++
	r.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *fakeRepo) DeleteItem(ctx context.Context, itemID uint) error {
	for _, order := range r.orders {
		for i := range order.Items {
			if order.Items[i].ID == itemID {
				order.Items = append(order.Items[:i], order.Items[i+1:]...)
				return nil
			}
		}
	}
	return apperr.NotFound("order item", itemID)
}

func (r *fakeRepo) ApplyPayment(ctx context.Context, order *models.Order, pay *models.Payment, tips []models.Tip) error {
	stored, ok := r.orders[order.ID]
	if !ok {
		return apperr.NotFound("order", order.ID)
	}
	if stored.Version != order.Version {
		return apperr.Conflict("order", order.ID)
	}
	r.nextPayID++
	pay.ID = r.nextPayID
	order.Version++

	merged := copyOrder(order)
	merged.Payments = append(merged.Payments, *pay)
	r.orders[order.ID] = merged
	return nil
}

type fakeCatalog struct {
	items    map[uint]catalog.Snapshot
	onLookup func()
}

func (c *fakeCatalog) MenuItem(ctx context.Context, id uint) (*catalog.Snapshot, error) {
	if c.onLookup != nil {
		c.onLookup()
	}
	snap, ok := c.items[id]
	if !ok {
		return nil, apperr.NotFound("menu item", id)
	}
	return &snap, nil
}

type fakeLedger struct {
	decrements map[uint]int
}

func (l *fakeLedger) DecrementForSend(ctx context.Context, item models.OrderItem) error {
	if l.decrements == nil {
		l.decrements = make(map[uint]int)
	}
	l.decrements[item.ID]++
	return nil
}

type fakeNotifier struct {
	sentBatches  [][]models.OrderItem
	readyOrders  []uint
	bumpedOrders []uint
}

func (n *fakeNotifier) ItemsSent(ctx context.Context, order *models.Order, items []models.OrderItem) {
	n.sentBatches = append(n.sentBatches, items)
}

func (n *fakeNotifier) OrderReady(ctx context.Context, order *models.Order) {
	n.readyOrders = append(n.readyOrders, order.ID)
}

func (n *fakeNotifier) OrderBumped(ctx context.Context, order *models.Order) {
	n.bumpedOrders = append(n.bumpedOrders, order.ID)
}

type fakeTables struct {
	known    map[uint]bool
	occupied []uint
	dirty    []uint
}

func (t *fakeTables) Occupy(ctx context.Context, tableID uint) error {
	if !t.known[tableID] {
		return apperr.NotFound("table", tableID)
	}
	t.occupied = append(t.occupied, tableID)
	return nil
}

func (t *fakeTables) MarkDirty(ctx context.Context, tableID uint) error {
	if !t.known[tableID] {
		return apperr.NotFound("table", tableID)
	}
	t.dirty = append(t.dirty, tableID)
	return nil
}

type fakeSequencer struct {
	n int64
}

func (s *fakeSequencer) Next(ctx context.Context) (string, error) {
	s.n++
	return fmt.Sprintf("ORD-TEST-%03d", s.n), nil
}

type fixture struct {
	store    *Store
	repo     *fakeRepo
	catalog  *fakeCatalog
	ledger   *fakeLedger
	notifier *fakeNotifier
	tables   *fakeTables
}

func newFixture(voidReasonRequired bool) *fixture {
	repo := newFakeRepo()
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	tables := &fakeTables{known: map[uint]bool{1: true, 2: true}}

	cat := &fakeCatalog{items: map[uint]catalog.Snapshot{
		1: {MenuItemID: 1, Name: "Burger", Price: dec("10.00"), Station: "grill"},
		2: {MenuItemID: 2, Name: "Fries", Price: dec("4.00"), Station: "fry"},
	}}

	s := New(Deps{
		Repo:               repo,
		Sequence:           &fakeSequencer{},
		Pricer:             pricing.New(dec("0.08")),
		Catalog:            cat,
		Ledger:             ledger,
		Notifier:           notifier,
		Processor:          payment.NewProcessor(payment.SimulatedGateway{}),
		Tips:               payment.NewAllocator(nil),
		Tables:             tables,
		Log:                logger.New("store-test"),
		VoidReasonRequired: voidReasonRequired,
	})
	return &fixture{store: s, repo: repo, catalog: cat, ledger: ledger, notifier: notifier, tables: tables}
}

func (f *fixture) openOrderWithItems(t *testing.T, reqs ...NewItemRequest) *models.Order {
	t.Helper()
	ctx := context.Background()
	tableID := uint(1)
	order, err := f.store.CreateOrder(ctx, CreateOrderRequest{
		Type:     models.OrderDineIn,
		TableID:  &tableID,
		ServerID: 7,
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if len(reqs) > 0 {
		order, err = f.store.AddItems(ctx, order.ID, reqs)
		if err != nil {
			t.Fatalf("AddItems() error = %v", err)
		}
	}
	return order
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	if _, err := f.store.CreateOrder(ctx, CreateOrderRequest{Type: "drive_thru", ServerID: 7}); err == nil {
		t.Error("unknown order type should fail")
	}
	if _, err := f.store.CreateOrder(ctx, CreateOrderRequest{Type: models.OrderDineIn}); err == nil {
		t.Error("missing server should fail")
	}

	badTable := uint(99)
	_, err := f.store.CreateOrder(ctx, CreateOrderRequest{
		Type: models.OrderDineIn, TableID: &badTable, ServerID: 7,
	})
	var nfErr *apperr.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Errorf("unknown table error = %v, want NotFoundError", err)
	}

	order, err := f.store.CreateOrder(ctx, CreateOrderRequest{Type: models.OrderTakeout, ServerID: 7})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if order.GuestCount != 1 {
		t.Errorf("GuestCount = %d, want defaulted 1", order.GuestCount)
	}
	if order.OrderNumber != "ORD-TEST-001" {
		t.Errorf("OrderNumber = %s, want ORD-TEST-001", order.OrderNumber)
	}
}

func TestAddItemsComputesTotals(t *testing.T) {
	f := newFixture(false)

	order := f.openOrderWithItems(t, NewItemRequest{
		MenuItemID: 1,
		Quantity:   2,
		Modifiers:  []models.Modifier{{Name: "extra cheese", PriceDelta: dec("1.00")}},
	})

	if len(order.Items) != 1 {
		t.Fatalf("order has %d items, want 1", len(order.Items))
	}
	item := order.Items[0]
	if item.Name != "Burger" || item.Station != "grill" {
		t.Errorf("snapshot = %s/%s, want Burger/grill", item.Name, item.Station)
	}
	if !item.LineTotal.Equal(dec("22.00")) {
		t.Errorf("LineTotal = %s, want 22.00", item.LineTotal)
	}
	if !order.Subtotal.Equal(dec("22.00")) {
		t.Errorf("Subtotal = %s, want 22.00", order.Subtotal)
	}
	if !order.TaxAmount.Equal(dec("1.76")) {
		t.Errorf("TaxAmount = %s, want 1.76", order.TaxAmount)
	}
	if !order.Total.Equal(dec("23.76")) {
		t.Errorf("Total = %s, want 23.76", order.Total)
	}
}

func TestSendToKitchen(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t,
		NewItemRequest{MenuItemID: 1, Quantity: 1},
		NewItemRequest{MenuItemID: 2, Quantity: 1},
	)

	order, err := f.store.SendToKitchen(ctx, order.ID)
	if err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}
	if order.Status != models.OrderSent {
		t.Errorf("order status = %s, want sent", order.Status)
	}
	if order.SentAt == nil {
		t.Error("order SentAt not stamped")
	}
	for _, item := range order.Items {
		if item.Status != models.ItemSent {
			t.Errorf("item %d status = %s, want sent", item.ID, item.Status)
		}
		if item.SentAt == nil {
			t.Errorf("item %d SentAt not stamped", item.ID)
		}
		if f.ledger.decrements[item.ID] != 1 {
			t.Errorf("item %d decremented %d times, want 1", item.ID, f.ledger.decrements[item.ID])
		}
	}
	if len(f.notifier.sentBatches) != 1 || len(f.notifier.sentBatches[0]) != 2 {
		t.Errorf("notifier batches = %v, want one batch of 2", f.notifier.sentBatches)
	}

	// A retried send finds nothing pending and must not decrement again.
	if _, err := f.store.SendToKitchen(ctx, order.ID); err == nil {
		t.Error("second send with nothing pending should fail")
	}
	for _, item := range order.Items {
		if f.ledger.decrements[item.ID] != 1 {
			t.Errorf("retry decremented item %d again", item.ID)
		}
	}
}

func TestMarkItemReadyAutoTransitions(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t,
		NewItemRequest{MenuItemID: 1, Quantity: 1},
		NewItemRequest{MenuItemID: 2, Quantity: 1},
	)
	order, err := f.store.SendToKitchen(ctx, order.ID)
	if err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}

	first, second := order.Items[0].ID, order.Items[1].ID

	order, err = f.store.MarkItemReady(ctx, first)
	if err != nil {
		t.Fatalf("MarkItemReady() error = %v", err)
	}
	if order.Status != models.OrderSent {
		t.Errorf("order status = %s after first ready, want sent", order.Status)
	}
	if len(f.notifier.readyOrders) != 0 {
		t.Error("order ready signalled too early")
	}

	order, err = f.store.MarkItemReady(ctx, second)
	if err != nil {
		t.Fatalf("MarkItemReady() error = %v", err)
	}
	if order.Status != models.OrderReady {
		t.Errorf("order status = %s after last ready, want ready", order.Status)
	}
	if order.ReadyAt == nil {
		t.Error("order ReadyAt not stamped")
	}
	if len(f.notifier.readyOrders) != 1 {
		t.Errorf("ready signalled %d times, want 1", len(f.notifier.readyOrders))
	}

	// Re-marking a ready item is a no-op and must not signal again.
	if _, err := f.store.MarkItemReady(ctx, second); err != nil {
		t.Fatalf("idempotent MarkItemReady() error = %v", err)
	}
	if len(f.notifier.readyOrders) != 1 {
		t.Errorf("ready signalled %d times after no-op, want 1", len(f.notifier.readyOrders))
	}
}

func TestMarkItemReadyIgnoresVoidedSiblings(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t,
		NewItemRequest{MenuItemID: 1, Quantity: 1},
		NewItemRequest{MenuItemID: 2, Quantity: 1},
	)
	order, err := f.store.SendToKitchen(ctx, order.ID)
	if err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}

	if err := f.store.RemoveItem(ctx, order.Items[1].ID, "86'd"); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}

	order, err = f.store.MarkItemReady(ctx, order.Items[0].ID)
	if err != nil {
		t.Fatalf("MarkItemReady() error = %v", err)
	}
	if order.Status != models.OrderReady {
		t.Errorf("order status = %s, want ready despite voided sibling", order.Status)
	}
}

func TestVoidLastInFlightItemCompletesOrder(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t,
		NewItemRequest{MenuItemID: 1, Quantity: 1},
		NewItemRequest{MenuItemID: 2, Quantity: 1},
	)
	order, err := f.store.SendToKitchen(ctx, order.ID)
	if err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}

	order, err = f.store.MarkItemReady(ctx, order.Items[0].ID)
	if err != nil {
		t.Fatalf("MarkItemReady() error = %v", err)
	}
	if order.Status != models.OrderSent {
		t.Fatalf("order status = %s with one item still on the line, want sent", order.Status)
	}

	// Voiding the only remaining line on the fire finishes the kitchen's work.
	if err := f.store.RemoveItem(ctx, order.Items[1].ID, "guest changed mind"); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}

	order, err = f.store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if order.Status != models.OrderReady {
		t.Errorf("order status = %s after voiding last in-flight item, want ready", order.Status)
	}
	if order.ReadyAt == nil {
		t.Error("order ReadyAt not stamped")
	}
	if len(f.notifier.readyOrders) != 1 {
		t.Errorf("ready signalled %d times, want 1", len(f.notifier.readyOrders))
	}

	if _, err := f.store.MarkServed(ctx, order.ID); err != nil {
		t.Errorf("MarkServed() after void-completed order error = %v", err)
	}
}

func TestVoidOnlySentItemLeavesOrderSent(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 1, Quantity: 1})
	order, err := f.store.SendToKitchen(ctx, order.ID)
	if err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}

	// Nothing is ready, so there is nothing to hand off; the check settles
	// through cancel or more items, never through serve.
	if err := f.store.RemoveItem(ctx, order.Items[0].ID, "spilled"); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	order, err = f.store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if order.Status != models.OrderSent {
		t.Errorf("order status = %s, want sent", order.Status)
	}
	if len(f.notifier.readyOrders) != 0 {
		t.Error("ready signalled with no item at the pass")
	}
}

func TestMarkServed(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 1, Quantity: 1})
	order, _ = f.store.SendToKitchen(ctx, order.ID)

	// Dine-in cannot be served before the kitchen is done.
	if _, err := f.store.MarkServed(ctx, order.ID); err == nil {
		t.Error("serving a dine-in order before ready should fail")
	}

	order, err := f.store.MarkItemReady(ctx, order.Items[0].ID)
	if err != nil {
		t.Fatalf("MarkItemReady() error = %v", err)
	}
	order, err = f.store.MarkServed(ctx, order.ID)
	if err != nil {
		t.Fatalf("MarkServed() error = %v", err)
	}
	if order.Status != models.OrderServed {
		t.Errorf("order status = %s, want served", order.Status)
	}
	if order.Items[0].Status != models.ItemServed {
		t.Errorf("item status = %s, want served", order.Items[0].Status)
	}
}

func TestMarkServedTakeoutHandoff(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order, err := f.store.CreateOrder(ctx, CreateOrderRequest{Type: models.OrderTakeout, ServerID: 7})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	order, err = f.store.AddItems(ctx, order.ID, []NewItemRequest{{MenuItemID: 2, Quantity: 1}})
	if err != nil {
		t.Fatalf("AddItems() error = %v", err)
	}
	order, err = f.store.SendToKitchen(ctx, order.ID)
	if err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}

	order, err = f.store.MarkServed(ctx, order.ID)
	if err != nil {
		t.Fatalf("MarkServed() takeout handoff error = %v", err)
	}
	if order.Status != models.OrderServed {
		t.Errorf("order status = %s, want served", order.Status)
	}
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t,
		NewItemRequest{MenuItemID: 1, Quantity: 1},
		NewItemRequest{MenuItemID: 2, Quantity: 1},
	)
	if !order.Subtotal.Equal(dec("14.00")) {
		t.Fatalf("Subtotal = %s, want 14.00", order.Subtotal)
	}

	// Pending lines are hard-deleted and totals shrink back.
	if err := f.store.RemoveItem(ctx, order.Items[1].ID, ""); err != nil {
		t.Fatalf("RemoveItem() pending error = %v", err)
	}
	order, err := f.store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("order has %d items after delete, want 1", len(order.Items))
	}
	if !order.Subtotal.Equal(dec("10.00")) {
		t.Errorf("Subtotal = %s after delete, want 10.00", order.Subtotal)
	}

	// Sent lines are voided, stay on the check and drop out of totals.
	order, err = f.store.SendToKitchen(ctx, order.ID)
	if err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}
	if err := f.store.RemoveItem(ctx, order.Items[0].ID, "wrong table"); err != nil {
		t.Fatalf("RemoveItem() sent error = %v", err)
	}
	order, err = f.store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("voided item disappeared from the check")
	}
	if order.Items[0].Status != models.ItemVoid || order.Items[0].VoidReason != "wrong table" {
		t.Errorf("item = %s/%q, want void/wrong table", order.Items[0].Status, order.Items[0].VoidReason)
	}
	if !order.Subtotal.IsZero() {
		t.Errorf("Subtotal = %s after void, want 0", order.Subtotal)
	}

	// A voided line cannot be removed again.
	if err := f.store.RemoveItem(ctx, order.Items[0].ID, "again"); err == nil {
		t.Error("removing a voided item should fail")
	}
}

func TestRemoveItemVoidReasonPolicy(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 1, Quantity: 1})
	order, err := f.store.SendToKitchen(ctx, order.ID)
	if err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}

	err = f.store.RemoveItem(ctx, order.Items[0].ID, "")
	var valErr *apperr.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("void without reason error = %v, want ValidationError", err)
	}
	if err := f.store.RemoveItem(ctx, order.Items[0].ID, "dropped on the floor"); err != nil {
		t.Errorf("void with reason error = %v", err)
	}
}

func TestApplyDiscount(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{
		MenuItemID: 1,
		Quantity:   2,
		Modifiers:  []models.Modifier{{Name: "extra cheese", PriceDelta: dec("1.00")}},
	})

	order, err := f.store.ApplyDiscount(ctx, order.ID, models.DiscountFixed, dec("5.00"), "manager comp")
	if err != nil {
		t.Fatalf("ApplyDiscount() error = %v", err)
	}
	if !order.DiscountAmount.Equal(dec("5.00")) {
		t.Errorf("DiscountAmount = %s, want 5.00", order.DiscountAmount)
	}
	if !order.TaxAmount.Equal(dec("1.36")) {
		t.Errorf("TaxAmount = %s, want 1.36", order.TaxAmount)
	}
	if !order.Total.Equal(dec("18.36")) {
		t.Errorf("Total = %s, want 18.36", order.Total)
	}

	// A second apply replaces the first, never stacks.
	order, err = f.store.ApplyDiscount(ctx, order.ID, models.DiscountPercentage, dec("10"), "regular")
	if err != nil {
		t.Fatalf("ApplyDiscount() replace error = %v", err)
	}
	if !order.DiscountAmount.Equal(dec("2.20")) {
		t.Errorf("DiscountAmount = %s after replace, want 2.20", order.DiscountAmount)
	}

	if _, err := f.store.ApplyDiscount(ctx, order.ID, models.DiscountPercentage, dec("150"), ""); err == nil {
		t.Error("percentage above 100 should fail")
	}
	if _, err := f.store.ApplyDiscount(ctx, order.ID, models.DiscountFixed, dec("-1"), ""); err == nil {
		t.Error("negative fixed discount should fail")
	}
	if _, err := f.store.ApplyDiscount(ctx, order.ID, "loyalty", dec("5"), ""); err == nil {
		t.Error("unknown discount kind should fail")
	}
}

func TestProcessPaymentClosesOrder(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{
		MenuItemID: 1,
		Quantity:   2,
		Modifiers:  []models.Modifier{{Name: "extra cheese", PriceDelta: dec("1.00")}},
	})
	order, err := f.store.ApplyDiscount(ctx, order.ID, models.DiscountFixed, dec("5.00"), "")
	if err != nil {
		t.Fatalf("ApplyDiscount() error = %v", err)
	}

	result, err := f.store.ProcessPayment(ctx, order.ID, payment.Request{
		Amount:       dec("18.36"),
		TipAmount:    dec("3.00"),
		Method:       models.PaymentCash,
		TenderedCash: decPtr("25.00"),
	})
	if err != nil {
		t.Fatalf("ProcessPayment() error = %v", err)
	}
	if !result.Paid {
		t.Error("full tender should close the order")
	}
	if !result.Change.Equal(dec("3.64")) {
		t.Errorf("Change = %s, want 3.64", result.Change)
	}

	order, err = f.store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if order.Status != models.OrderPaid {
		t.Errorf("order status = %s, want paid", order.Status)
	}
	if order.ClosedAt == nil {
		t.Error("ClosedAt not stamped")
	}
	if !order.TipAmount.Equal(dec("3.00")) {
		t.Errorf("TipAmount = %s, want 3.00", order.TipAmount)
	}
	if len(f.tables.dirty) != 1 || f.tables.dirty[0] != 1 {
		t.Errorf("table dirty marks = %v, want [1]", f.tables.dirty)
	}

	// A closed check takes no further tenders.
	_, err = f.store.ProcessPayment(ctx, order.ID, payment.Request{
		Amount: dec("1.00"), Method: models.PaymentCash, TenderedCash: decPtr("1.00"),
	})
	var stateErr *apperr.StateError
	if !errors.As(err, &stateErr) {
		t.Errorf("tender on closed order error = %v, want StateError", err)
	}
}

func TestProcessPaymentSplit(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 1, Quantity: 2})
	// subtotal 20.00, tax 1.60, total 21.60

	result, err := f.store.ProcessPayment(ctx, order.ID, payment.Request{
		Amount: dec("10.00"),
		Method: models.PaymentSplit,
		Card:   &payment.CardInfo{Token: "tok-a"},
	})
	if err != nil {
		t.Fatalf("ProcessPayment() first split error = %v", err)
	}
	if result.Paid {
		t.Error("partial tender must not close the order")
	}
	if !result.Remaining.Equal(dec("11.60")) {
		t.Errorf("Remaining = %s, want 11.60", result.Remaining)
	}

	order, err = f.store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if order.Closed() {
		t.Fatal("order closed after partial tender")
	}

	// Overpaying the rest is credited only up to what is owed.
	result, err = f.store.ProcessPayment(ctx, order.ID, payment.Request{
		Amount: dec("50.00"),
		Method: models.PaymentSplit,
		Card:   &payment.CardInfo{Token: "tok-b"},
	})
	if err != nil {
		t.Fatalf("ProcessPayment() second split error = %v", err)
	}
	if !result.Paid {
		t.Error("covering tender should close the order")
	}
	if !result.Payment.Amount.Equal(dec("11.60")) {
		t.Errorf("credited = %s, want capped 11.60", result.Payment.Amount)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 1, Quantity: 1})
	order, err := f.store.SendToKitchen(ctx, order.ID)
	if err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}

	order, err = f.store.CancelOrder(ctx, order.ID, "guest walked out")
	if err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if order.Status != models.OrderCancelled {
		t.Errorf("order status = %s, want cancelled", order.Status)
	}
	if order.ClosedAt == nil {
		t.Error("ClosedAt not stamped")
	}
	if order.Items[0].Status != models.ItemVoid {
		t.Errorf("item status = %s, want void", order.Items[0].Status)
	}
	if !order.Total.IsZero() {
		t.Errorf("Total = %s after cancel, want 0", order.Total)
	}
	if len(f.tables.dirty) != 1 {
		t.Errorf("table dirty marks = %v, want one", f.tables.dirty)
	}

	if _, err := f.store.CancelOrder(ctx, order.ID, "again"); err == nil {
		t.Error("cancelling a cancelled order should fail")
	}
}

func TestBumpOrder(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 1, Quantity: 1})

	if err := f.store.BumpOrder(ctx, order.ID); err == nil {
		t.Error("bumping an open order should fail")
	}

	order, _ = f.store.SendToKitchen(ctx, order.ID)
	order, err := f.store.MarkItemReady(ctx, order.Items[0].ID)
	if err != nil {
		t.Fatalf("MarkItemReady() error = %v", err)
	}

	if err := f.store.BumpOrder(ctx, order.ID); err != nil {
		t.Fatalf("BumpOrder() error = %v", err)
	}
	if len(f.notifier.bumpedOrders) != 1 {
		t.Errorf("bump signalled %d times, want 1", len(f.notifier.bumpedOrders))
	}

	// Bump is display-only: status must be untouched.
	after, err := f.store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if after.Status != models.OrderReady {
		t.Errorf("order status = %s after bump, want ready", after.Status)
	}
	if after.Items[0].Status != models.ItemReady {
		t.Errorf("item status = %s after bump, want ready", after.Items[0].Status)
	}
}

func TestAddItemsStateGuard(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 1, Quantity: 1})
	order, _ = f.store.SendToKitchen(ctx, order.ID)

	// Sent orders still take new courses.
	order, err := f.store.AddItems(ctx, order.ID, []NewItemRequest{{MenuItemID: 2, Quantity: 1}})
	if err != nil {
		t.Fatalf("AddItems() on sent order error = %v", err)
	}
	if len(order.Items) != 2 {
		t.Fatalf("order has %d items, want 2", len(order.Items))
	}

	order, err = f.store.CancelOrder(ctx, order.ID, "")
	if err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if _, err := f.store.AddItems(ctx, order.ID, []NewItemRequest{{MenuItemID: 1, Quantity: 1}}); err == nil {
		t.Error("adding to a cancelled order should fail")
	}
}

func TestConcurrentTendersNeverOvercredit(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 1, Quantity: 2})
	// subtotal 20.00, tax 1.60, total 21.60

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			f.store.ProcessPayment(ctx, order.ID, payment.Request{
				Amount: dec("5.00"),
				Method: models.PaymentSplit,
				Card:   &payment.CardInfo{Token: fmt.Sprintf("tok-%d", n)},
			})
		}(i)
	}
	wg.Wait()

	final, err := f.store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	sum := decimal.Zero
	for _, p := range final.CompletedPayments() {
		sum = sum.Add(p.Amount)
	}
	if !sum.Equal(dec("21.60")) {
		t.Errorf("completed payments sum = %s, want exactly 21.60", sum)
	}
	if final.Status != models.OrderPaid {
		t.Errorf("order status = %s, want paid", final.Status)
	}
	if len(f.tables.dirty) != 1 {
		t.Errorf("table marked dirty %d times, want 1", len(f.tables.dirty))
	}
}

func TestStaleVersionSurfacesConflict(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 1, Quantity: 1})

	// Another instance commits between this instance's load and save; the
	// in-process lock cannot see it, the version check must.
	fired := false
	f.catalog.onLookup = func() {
		if fired {
			return
		}
		fired = true
		other, err := f.repo.GetOrder(ctx, order.ID)
		if err != nil {
			t.Fatalf("concurrent GetOrder() error = %v", err)
		}
		if err := f.repo.SaveOrder(ctx, other); err != nil {
			t.Fatalf("concurrent SaveOrder() error = %v", err)
		}
	}

	_, err := f.store.AddItems(ctx, order.ID, []NewItemRequest{{MenuItemID: 2, Quantity: 1}})
	var conflict *apperr.ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("AddItems() error = %v, want ConflictError", err)
	}
}

func TestProcessPaymentCompClosesZeroTotal(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	order := f.openOrderWithItems(t, NewItemRequest{MenuItemID: 2, Quantity: 1})
	order, err := f.store.ApplyDiscount(ctx, order.ID, models.DiscountFixed, dec("4.00"), "manager comp")
	if err != nil {
		t.Fatalf("ApplyDiscount() error = %v", err)
	}
	if !order.Total.IsZero() {
		t.Fatalf("Total = %s, want 0.00", order.Total)
	}

	result, err := f.store.ProcessPayment(ctx, order.ID, payment.Request{Method: models.PaymentComp})
	if err != nil {
		t.Fatalf("ProcessPayment() comp error = %v", err)
	}
	if !result.Paid {
		t.Error("comp tender on a zero-balance check should close it")
	}

	order, err = f.store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if order.Status != models.OrderPaid {
		t.Errorf("order status = %s, want paid", order.Status)
	}
	if order.ClosedAt == nil {
		t.Error("ClosedAt not stamped")
	}
}
