package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"tablestack/internal/database/models"
	"tablestack/internal/logger"
	"tablestack/internal/pos/apperr"
	"tablestack/internal/pos/catalog"
	"tablestack/internal/pos/payment"
	"tablestack/internal/pos/pricing"
)

const (
	orderCachePrefix = "pos:order:"
	orderCacheTTL    = 30 * time.Second
)

// Notifier is the push side towards kitchen displays.
type Notifier interface {
	ItemsSent(ctx context.Context, order *models.Order, items []models.OrderItem)
	OrderReady(ctx context.Context, order *models.Order)
	OrderBumped(ctx context.Context, order *models.Order)
}

// StockLedger decrements ingredient stock for a sent item. Failures degrade
// inventory accuracy, never order correctness.
type StockLedger interface {
	DecrementForSend(ctx context.Context, item models.OrderItem) error
}

// TableRegistry mutates floor-table occupancy.
type TableRegistry interface {
	Occupy(ctx context.Context, tableID uint) error
	MarkDirty(ctx context.Context, tableID uint) error
}

// Store is the aggregate root of Order/OrderItem/Payment/Tip. It serializes
// mutations per order and is the only component that persists state; the
// pricing, kitchen, payment, tip, inventory and table helpers are invoked
// from here in a fixed sequence.
type Store struct {
	repo      Repository
	seq       OrderNumberSource
	pricer    *pricing.Engine
	catalog   catalog.Catalog
	ledger    StockLedger
	notifier  Notifier
	processor *payment.Processor
	tips      *payment.Allocator
	tables    TableRegistry
	cache     *redis.Client
	log       *logger.Logger

	voidReasonRequired bool
	locks              orderLocks
}

type Deps struct {
	Repo      Repository
	Sequence  OrderNumberSource
	Pricer    *pricing.Engine
	Catalog   catalog.Catalog
	Ledger    StockLedger
	Notifier  Notifier
	Processor *payment.Processor
	Tips      *payment.Allocator
	Tables    TableRegistry
	Cache     *redis.Client
	Log       *logger.Logger

	VoidReasonRequired bool
}

func New(deps Deps) *Store {
	return &Store{
		repo:               deps.Repo,
		seq:                deps.Sequence,
		pricer:             deps.Pricer,
		catalog:            deps.Catalog,
		ledger:             deps.Ledger,
		notifier:           deps.Notifier,
		processor:          deps.Processor,
		tips:               deps.Tips,
		tables:             deps.Tables,
		cache:              deps.Cache,
		log:                deps.Log,
		voidReasonRequired: deps.VoidReasonRequired,
	}
}

type CreateOrderRequest struct {
	Type       models.OrderType
	TableID    *uint
	ServerID   uint
	GuestCount int
}

type NewItemRequest struct {
	MenuItemID uint
	Quantity   int
	Modifiers  []models.Modifier
	Course     string
	Seat       *int
}

var validOrderTypes = map[models.OrderType]bool{
	models.OrderDineIn:   true,
	models.OrderTakeout:  true,
	models.OrderDelivery: true,
	models.OrderBarTab:   true,
}

// CreateOrder opens a new guest check. A table reference marks the table
// occupied before the order row exists, so an unknown table fails the whole
// call.
func (s *Store) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if !validOrderTypes[req.Type] {
		return nil, apperr.Validation("type", "unknown order type")
	}
	if req.ServerID == 0 {
		return nil, apperr.Validation("server_id", "server is required")
	}
	if req.GuestCount <= 0 {
		req.GuestCount = 1
	}

	if req.TableID != nil {
		if err := s.tables.Occupy(ctx, *req.TableID); err != nil {
			return nil, err
		}
	}

	number, err := s.seq.Next(ctx)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber: number,
		Type:        req.Type,
		TableID:     req.TableID,
		GuestCount:  req.GuestCount,
		ServerID:    req.ServerID,
		Status:      models.OrderOpen,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order_created", "order opened", map[string]any{
		"order_id": order.ID, "order_number": order.OrderNumber, "type": order.Type,
	})
	return order, nil
}

// AddItems appends lines to an open or sent order. Name, price, station and
// recipe come from a single catalog lookup per line and are snapshotted; the
// catalog is never re-queried for these lines again.
func (s *Store) AddItems(ctx context.Context, orderID uint, reqs []NewItemRequest) (*models.Order, error) {
	if len(reqs) == 0 {
		return nil, apperr.Validation("items", "at least one item is required")
	}
	for _, req := range reqs {
		if req.MenuItemID == 0 {
			return nil, apperr.Validation("menu_item_id", "menu item is required")
		}
		if req.Quantity < 1 {
			return nil, apperr.Validation("quantity", "must be at least 1")
		}
		for _, m := range req.Modifiers {
			if m.Name == "" {
				return nil, apperr.Validation("modifiers", "modifier name is required")
			}
		}
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderOpen && order.Status != models.OrderSent {
		return nil, apperr.State("order", string(order.Status), "add items to")
	}

	for _, req := range reqs {
		snap, err := s.catalog.MenuItem(ctx, req.MenuItemID)
		if err != nil {
			return nil, err
		}
		mods := models.ModifierList(req.Modifiers)
		qty := decimal.NewFromInt(int64(req.Quantity))
		order.Items = append(order.Items, models.OrderItem{
			OrderID:        order.ID,
			MenuItemID:     snap.MenuItemID,
			Name:           snap.Name,
			UnitPrice:      snap.Price,
			Quantity:       req.Quantity,
			Modifiers:      mods,
			ModifiersPrice: mods.DeltaSum().Mul(qty).Round(2),
			LineTotal:      pricing.LineTotal(snap.Price, mods, req.Quantity),
			Status:         models.ItemPending,
			Station:        snap.Station,
			Course:         req.Course,
			Seat:           req.Seat,
		})
	}

	s.recompute(order)
	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	s.invalidate(ctx, order.ID)
	return order, nil
}

// RemoveItem hard-deletes a pending line and voids anything already sent,
// preserving the audit trail. Served items cannot be removed.
func (s *Store) RemoveItem(ctx context.Context, itemID uint, reason string) error {
	orderID, err := s.repo.OrderIDForItem(ctx, itemID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Closed() {
		return apperr.State("order", string(order.Status), "remove an item from")
	}

	idx := -1
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperr.NotFound("order item", itemID)
	}

	item := &order.Items[idx]
	switch {
	case item.Status == models.ItemPending:
		if err := s.repo.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		order.Items = append(order.Items[:idx], order.Items[idx+1:]...)
	case !item.Status.CanAdvanceTo(models.ItemVoid):
		return apperr.State("item", string(item.Status), "remove")
	default:
		if s.voidReasonRequired && reason == "" {
			return apperr.Validation("reason", "void reason is required")
		}
		item.Status = models.ItemVoid
		item.VoidReason = reason
	}

	// Voiding the last item still on the line can complete the kitchen's
	// work, the same way marking it ready would.
	becameReady := false
	if order.Status == models.OrderSent && kitchenDone(order.Items) {
		now := time.Now().UTC()
		order.Status = models.OrderReady
		order.ReadyAt = &now
		becameReady = true
	}

	s.recompute(order)
	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return err
	}
	s.invalidate(ctx, order.ID)

	if becameReady {
		s.notifier.OrderReady(ctx, order)
	}
	return nil
}

// SendToKitchen commits every pending line: stamps it sent, decrements
// inventory exactly once per item-send event and pushes station tickets.
// A call with nothing pending is a StateError, which also makes a retried
// send harmless.
func (s *Store) SendToKitchen(ctx context.Context, orderID uint) (*models.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Closed() {
		return nil, apperr.State("order", string(order.Status), "send")
	}

	now := time.Now().UTC()
	var sent []models.OrderItem
	for i := range order.Items {
		if order.Items[i].Status != models.ItemPending {
			continue
		}
		order.Items[i].Status = models.ItemSent
		order.Items[i].SentAt = &now
		sent = append(sent, order.Items[i])
	}
	if len(sent) == 0 {
		return nil, apperr.State("order", string(order.Status), "send with no pending items")
	}

	if order.Status == models.OrderOpen {
		order.Status = models.OrderSent
		order.SentAt = &now
	}

	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	s.invalidate(ctx, order.ID)

	for _, item := range sent {
		if err := s.ledger.DecrementForSend(ctx, item); err != nil {
			s.log.Error("inventory_decrement_failed", "stock not decremented, order flow continues", err,
				map[string]any{"order_id": order.ID, "item_id": item.ID})
		}
	}
	s.notifier.ItemsSent(ctx, order, sent)

	return order, nil
}

// MarkItemReady flips one line to ready. When no non-void line remains in
// flight the whole order auto-transitions to ready and the bump signal goes
// out. Re-marking a ready item is a no-op.
func (s *Store) MarkItemReady(ctx context.Context, itemID uint) (*models.Order, error) {
	orderID, err := s.repo.OrderIDForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var item *models.OrderItem
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			item = &order.Items[i]
			break
		}
	}
	if item == nil {
		return nil, apperr.NotFound("order item", itemID)
	}

	if item.Status == models.ItemReady || item.Status == models.ItemServed {
		return order, nil
	}
	if item.Status == models.ItemPending || !item.Status.CanAdvanceTo(models.ItemReady) {
		return nil, apperr.State("item", string(item.Status), "mark ready")
	}

	now := time.Now().UTC()
	item.Status = models.ItemReady
	item.ReadyAt = &now

	becameReady := false
	if order.Status == models.OrderSent && kitchenDone(order.Items) {
		order.Status = models.OrderReady
		order.ReadyAt = &now
		becameReady = true
	}

	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	s.invalidate(ctx, order.ID)

	if becameReady {
		s.notifier.OrderReady(ctx, order)
	}
	return order, nil
}

// kitchenDone reports whether every line has cleared the kitchen and at least
// one is waiting at the pass.
func kitchenDone(items []models.OrderItem) bool {
	ready := false
	for _, item := range items {
		if item.Status.InFlight() {
			return false
		}
		if item.Status == models.ItemReady {
			ready = true
		}
	}
	return ready
}

// MarkServed is a manual staff action. Dine-in and bar orders must be ready
// first; takeout and delivery may be handed off earlier.
func (s *Store) MarkServed(ctx context.Context, orderID uint) (*models.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	handoff := order.Type == models.OrderTakeout || order.Type == models.OrderDelivery
	switch {
	case order.Status == models.OrderReady:
	case handoff && (order.Status == models.OrderOpen || order.Status == models.OrderSent):
	default:
		return nil, apperr.State("order", string(order.Status), "serve")
	}

	now := time.Now().UTC()
	order.Status = models.OrderServed
	order.ServedAt = &now
	for i := range order.Items {
		if order.Items[i].Status == models.ItemReady {
			order.Items[i].Status = models.ItemServed
		}
	}

	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	s.invalidate(ctx, order.ID)
	return order, nil
}

// ApplyDiscount stores the single order-level discount descriptor; a second
// call replaces the first.
func (s *Store) ApplyDiscount(ctx context.Context, orderID uint, kind models.DiscountKind, value decimal.Decimal, reason string) (*models.Order, error) {
	switch kind {
	case models.DiscountPercentage:
		if !value.IsPositive() || value.GreaterThan(decimal.NewFromInt(100)) {
			return nil, apperr.Validation("value", "percentage must be in (0, 100]")
		}
	case models.DiscountFixed:
		if !value.IsPositive() {
			return nil, apperr.Validation("value", "fixed discount must be positive")
		}
	default:
		return nil, apperr.Validation("kind", "unknown discount kind")
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Closed() {
		return nil, apperr.State("order", string(order.Status), "discount")
	}

	order.DiscountKind = kind
	order.DiscountValue = value
	order.DiscountReason = reason

	s.recompute(order)
	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	s.invalidate(ctx, order.ID)
	return order, nil
}

// ProcessPayment applies one tender. Closing the order allocates tips, sets
// the table dirty and stamps closed_at; a partial tender leaves the order
// status untouched and reports the remaining balance.
func (s *Store) ProcessPayment(ctx context.Context, orderID uint, req payment.Request) (*payment.Result, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	result, err := s.processor.Tender(ctx, order, req)
	if err != nil {
		return nil, err
	}

	var tips []models.Tip
	if result.Paid {
		now := time.Now().UTC()
		order.Status = models.OrderPaid
		order.ClosedAt = &now

		completed := append(order.CompletedPayments(), result.Payment)
		tipTotal := decimal.Zero
		for _, p := range completed {
			tipTotal = tipTotal.Add(p.TipAmount)
		}
		order.TipAmount = tipTotal
		tips = s.tips.Allocate(order, completed)
	}

	if err := s.repo.ApplyPayment(ctx, order, &result.Payment, tips); err != nil {
		return nil, err
	}
	order.Payments = append(order.Payments, result.Payment)
	s.invalidate(ctx, order.ID)

	s.log.Info("payment_processed", "tender applied", map[string]any{
		"order_id": order.ID, "amount": result.Payment.Amount.String(),
		"method": string(req.Method), "closed": result.Paid,
	})

	if result.Paid && order.TableID != nil {
		if err := s.tables.MarkDirty(ctx, *order.TableID); err != nil {
			s.log.Error("table_release_failed", "table not marked dirty", err,
				map[string]any{"order_id": order.ID, "table_id": *order.TableID})
		}
	}
	return result, nil
}

// CancelOrder voids the whole check. Only open and sent orders can be
// cancelled; anything already served must settle through payment.
func (s *Store) CancelOrder(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderOpen && order.Status != models.OrderSent {
		return nil, apperr.State("order", string(order.Status), "cancel")
	}

	now := time.Now().UTC()
	for i := range order.Items {
		item := &order.Items[i]
		if !item.Status.CanAdvanceTo(models.ItemVoid) {
			continue
		}
		item.Status = models.ItemVoid
		if item.VoidReason == "" {
			item.VoidReason = reason
		}
	}
	order.Status = models.OrderCancelled
	order.ClosedAt = &now

	s.recompute(order)
	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	s.invalidate(ctx, order.ID)

	if order.TableID != nil {
		if err := s.tables.MarkDirty(ctx, *order.TableID); err != nil {
			s.log.Error("table_release_failed", "table not marked dirty", err,
				map[string]any{"order_id": order.ID, "table_id": *order.TableID})
		}
	}
	return order, nil
}

// BumpOrder is a display-side queue clear. It validates the order but never
// mutates item or order status.
func (s *Store) BumpOrder(ctx context.Context, orderID uint) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderReady && order.Status != models.OrderServed {
		return apperr.State("order", string(order.Status), "bump")
	}
	s.notifier.OrderBumped(ctx, order)
	return nil
}

// GetOrder returns a full order snapshot. Reads bypass the order lock and
// may serve a recent cached copy.
func (s *Store) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	if cached := s.cacheGet(ctx, orderID); cached != nil {
		return cached, nil
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, order)
	return order, nil
}

func (s *Store) ListOpenOrders(ctx context.Context) ([]models.Order, error) {
	return s.repo.ListOpenOrders(ctx)
}

func (s *Store) recompute(order *models.Order) {
	totals := s.pricer.Compute(order.Items, pricing.Discount{
		Kind:   order.DiscountKind,
		Value:  order.DiscountValue,
		Reason: order.DiscountReason,
	})
	order.Subtotal = totals.Subtotal
	order.DiscountAmount = totals.DiscountAmount
	order.TaxAmount = totals.TaxAmount
	order.Total = totals.Total
}

func (s *Store) cacheGet(ctx context.Context, orderID uint) *models.Order {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKey(orderID)).Bytes()
	if err != nil {
		return nil
	}
	var order models.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil
	}
	return &order
}

func (s *Store) cacheSet(ctx context.Context, order *models.Order) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return
	}
	s.cache.Set(ctx, cacheKey(order.ID), raw, orderCacheTTL)
}

func (s *Store) invalidate(ctx context.Context, orderID uint) {
	if s.cache == nil {
		return
	}
	s.cache.Del(ctx, cacheKey(orderID))
}

func cacheKey(orderID uint) string {
	return fmt.Sprintf("%s%d", orderCachePrefix, orderID)
}
