package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderDineIn   OrderType = "dine_in"
	OrderTakeout  OrderType = "takeout"
	OrderDelivery OrderType = "delivery"
	OrderBarTab   OrderType = "bar_tab"
)

type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderSent      OrderStatus = "sent"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemSent      ItemStatus = "sent"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemServed    ItemStatus = "served"
	ItemVoid      ItemStatus = "void"
)

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentSplit PaymentMethod = "split"
	PaymentComp  PaymentMethod = "comp"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentVoided    PaymentStatus = "void"
	PaymentRefunded  PaymentStatus = "refunded"
)

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
	TableDirty     TableStatus = "dirty"
	TableBlocked   TableStatus = "blocked"
)

type DiscountKind string

const (
	DiscountNone       DiscountKind = ""
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// Modifier is a priced customization snapshotted onto an item at add time.
type Modifier struct {
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

type ModifierList []Modifier

func (m *ModifierList) Scan(value interface{}) error {
	if value == nil {
		*m = ModifierList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan ModifierList: %v", value)
	}
	return json.Unmarshal(bytes, m)
}

func (m ModifierList) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	return json.Marshal(m)
}

// DeltaSum returns the summed price deltas of all modifiers.
func (m ModifierList) DeltaSum() decimal.Decimal {
	sum := decimal.Zero
	for _, mod := range m {
		sum = sum.Add(mod.PriceDelta)
	}
	return sum
}

// Order is one guest check, the aggregate root of items and payments.
// Subtotal, TaxAmount and Total are derived and never hand-set; Version backs
// the optimistic per-order commit check.
type Order struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string    `gorm:"uniqueIndex;not null" json:"order_number"`
	Type        OrderType `gorm:"type:varchar(16);not null" json:"type"`
	TableID     *uint     `gorm:"index" json:"table_id,omitempty"`
	GuestCount  int       `gorm:"not null;default:1" json:"guest_count"`
	ServerID    uint      `gorm:"not null;index" json:"server_id"`

	Status OrderStatus `gorm:"type:varchar(16);not null;default:'open';index" json:"status"`

	DiscountKind   DiscountKind    `gorm:"type:varchar(16)" json:"discount_kind,omitempty"`
	DiscountValue  decimal.Decimal `gorm:"type:numeric(12,2)" json:"discount_value"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2)" json:"discount_amount"`
	DiscountReason string          `gorm:"type:varchar(255)" json:"discount_reason,omitempty"`

	Subtotal  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	TaxAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_amount"`
	TipAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tip_amount"`
	Total     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`

	Version uint `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	ReadyAt   *time.Time `json:"ready_at,omitempty"`
	ServedAt  *time.Time `json:"served_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	Items    []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	Payments []Payment   `gorm:"foreignKey:OrderID" json:"payments"`
}

// Closed reports whether the order can no longer be mutated.
func (o *Order) Closed() bool {
	return o.Status == OrderPaid || o.Status == OrderCancelled
}

// CompletedPayments filters the loaded payments down to completed tenders.
func (o *Order) CompletedPayments() []Payment {
	out := make([]Payment, 0, len(o.Payments))
	for _, p := range o.Payments {
		if p.Status == PaymentCompleted {
			out = append(out, p)
		}
	}
	return out
}

// OrderItem is one line in an order. Name, UnitPrice and Station are
// snapshotted from the catalog at add time; later catalog changes never
// retroactively alter historical orders or move an in-flight item.
type OrderItem struct {
	ID         uint `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    uint `gorm:"index;not null" json:"order_id"`
	MenuItemID uint `gorm:"not null" json:"menu_item_id"`

	Name      string          `gorm:"type:varchar(128);not null" json:"name"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Quantity  int             `gorm:"not null" json:"quantity"`

	Modifiers      ModifierList    `gorm:"type:jsonb" json:"modifiers"`
	ModifiersPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"modifiers_price"`
	LineTotal      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"line_total"`

	Status     ItemStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Station    string     `gorm:"type:varchar(32);not null;index" json:"station"`
	Course     string     `gorm:"type:varchar(32)" json:"course,omitempty"`
	Seat       *int       `json:"seat,omitempty"`
	VoidReason string     `gorm:"type:varchar(255)" json:"void_reason,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	ReadyAt   *time.Time `json:"ready_at,omitempty"`
}

// CanAdvanceTo reports whether the item status transition is legal. Statuses
// never regress; void is reachable from any non-served state.
func (s ItemStatus) CanAdvanceTo(next ItemStatus) bool {
	if next == ItemVoid {
		return s != ItemServed && s != ItemVoid
	}
	rank := map[ItemStatus]int{
		ItemPending:   0,
		ItemSent:      1,
		ItemPreparing: 2,
		ItemReady:     3,
		ItemServed:    4,
	}
	cur, ok := rank[s]
	if !ok {
		return false
	}
	nxt, ok := rank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// InFlight reports whether the item is still being worked at a station.
// Ready items have left the line and wait at the pass.
func (s ItemStatus) InFlight() bool {
	return s == ItemSent || s == ItemPreparing
}

// Payment is one tender event against an order. Amount excludes tip.
type Payment struct {
	ID      uint `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID uint `gorm:"index;not null" json:"order_id"`

	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	TipAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tip_amount"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`

	Method       PaymentMethod    `gorm:"type:varchar(16);not null" json:"method"`
	TenderedCash *decimal.Decimal `gorm:"type:numeric(12,2)" json:"tendered_cash,omitempty"`
	ChangeAmount decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"change_amount"`
	CardRef      string           `gorm:"type:varchar(64)" json:"card_ref,omitempty"`

	Status    PaymentStatus `gorm:"type:varchar(16);not null;default:'completed'" json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Tip is a derived record created at order close for each payment that
// carried a tip component.
type Tip struct {
	ID        uint `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   uint `gorm:"index;not null" json:"order_id"`
	PaymentID uint `gorm:"not null" json:"payment_id"`
	ServerID  uint `gorm:"not null;index" json:"server_id"`

	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PoolContribution decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"pool_contribution"`
	NetAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"net_amount"`

	CreatedAt time.Time `json:"created_at"`
}

// DiningTable is a floor entity; the core only ever sets occupied and dirty.
type DiningTable struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string      `gorm:"type:varchar(16);uniqueIndex;not null" json:"code"`
	Seats     int         `gorm:"not null" json:"seats"`
	Status    TableStatus `gorm:"type:varchar(16);not null;default:'available'" json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
