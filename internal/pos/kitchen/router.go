package kitchen

import (
	"context"
	"time"

	"gorm.io/gorm"

	"tablestack/internal/database/models"
	"tablestack/internal/logger"
	"tablestack/internal/messaging"
	"tablestack/internal/pos/apperr"
)

const (
	EventTicketCreated = "kitchen.ticket.created"
	EventOrderReady    = "kitchen.order.ready"
	EventOrderBumped   = "kitchen.order.bumped"
)

// TicketMessage is the per-station push sent when items are committed to the
// kitchen. Displays treat it as a hint; the active-items poll is the
// correctness backstop.
type TicketMessage struct {
	EventType   string       `json:"event_type"`
	OccurredAt  time.Time    `json:"occurred_at"`
	OrderID     uint         `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	OrderType   string       `json:"order_type"`
	TableID     *uint        `json:"table_id,omitempty"`
	Station     string       `json:"station"`
	Items       []TicketItem `json:"items"`
}

type TicketItem struct {
	ItemID    uint     `json:"item_id"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	Modifiers []string `json:"modifiers,omitempty"`
	Course    string   `json:"course,omitempty"`
	Seat      *int     `json:"seat,omitempty"`
}

// OrderEventMessage notifies expo displays of order-level ready/bump events.
type OrderEventMessage struct {
	EventType   string    `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	OrderID     uint      `json:"order_id"`
	OrderNumber string    `json:"order_number"`
}

// ActiveItem is one working line as seen by a station display.
type ActiveItem struct {
	ItemID      uint                `json:"item_id"`
	OrderID     uint                `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	OrderType   models.OrderType    `json:"order_type"`
	TableID     *uint               `json:"table_id,omitempty"`
	Name        string              `json:"name"`
	Quantity    int                 `json:"quantity"`
	Modifiers   models.ModifierList `json:"modifiers"`
	Status      models.ItemStatus   `json:"status"`
	Course      string              `json:"course,omitempty"`
	Seat        *int                `json:"seat,omitempty"`
	SentAt      *time.Time          `json:"sent_at,omitempty"`
}

// Publisher is the push side of the display channel.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// Router translates item sends into station work and serves the display
// read model.
type Router struct {
	db  *gorm.DB
	pub Publisher
	log *logger.Logger
}

func NewRouter(db *gorm.DB, pub Publisher, log *logger.Logger) *Router {
	return &Router{db: db, pub: pub, log: log}
}

// GroupByStation buckets items by their station snapshot.
func GroupByStation(items []models.OrderItem) map[string][]models.OrderItem {
	grouped := make(map[string][]models.OrderItem)
	for _, item := range items {
		grouped[item.Station] = append(grouped[item.Station], item)
	}
	return grouped
}

// ItemsSent pushes one ticket message per station for the freshly sent
// items. Publish failures are logged and swallowed; displays converge via
// the reconciliation poll.
func (r *Router) ItemsSent(ctx context.Context, order *models.Order, items []models.OrderItem) {
	for station, stationItems := range GroupByStation(items) {
		msg := TicketMessage{
			EventType:   EventTicketCreated,
			OccurredAt:  time.Now().UTC(),
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			OrderType:   string(order.Type),
			TableID:     order.TableID,
			Station:     station,
		}
		for _, item := range stationItems {
			names := make([]string, 0, len(item.Modifiers))
			for _, m := range item.Modifiers {
				names = append(names, m.Name)
			}
			msg.Items = append(msg.Items, TicketItem{
				ItemID:    item.ID,
				Name:      item.Name,
				Quantity:  item.Quantity,
				Modifiers: names,
				Course:    item.Course,
				Seat:      item.Seat,
			})
		}

		if err := r.pub.Publish(ctx, messaging.StationRoutingKey(station), msg); err != nil {
			r.log.Error("ticket_push_failed", "station push failed, displays will poll", err,
				map[string]any{"order_id": order.ID, "station": station})
		}
	}
}

// OrderReady emits the auto-bump signal once every item of an order is ready.
func (r *Router) OrderReady(ctx context.Context, order *models.Order) {
	r.publishOrderEvent(ctx, EventOrderReady, "kitchen.order.ready", order)
}

// OrderBumped clears the order from display queues. It never mutates item or
// order status.
func (r *Router) OrderBumped(ctx context.Context, order *models.Order) {
	r.publishOrderEvent(ctx, EventOrderBumped, "kitchen.order.bumped", order)
}

func (r *Router) publishOrderEvent(ctx context.Context, eventType, routingKey string, order *models.Order) {
	msg := OrderEventMessage{
		EventType:   eventType,
		OccurredAt:  time.Now().UTC(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	}
	if err := r.pub.Publish(ctx, routingKey, msg); err != nil {
		r.log.Error("order_event_push_failed", "order event push failed", err,
			map[string]any{"order_id": order.ID, "event": eventType})
	}
}

// ActiveItems returns every in-flight item for a station across all open
// orders. It reads a recent consistent snapshot and takes no order lock.
func (r *Router) ActiveItems(ctx context.Context, station string) ([]ActiveItem, error) {
	if station == "" {
		return nil, apperr.Validation("station", "station is required")
	}

	var rows []struct {
		models.OrderItem
		OrderNumber string
		OrderType   models.OrderType
		TableID     *uint
	}
	err := r.db.WithContext(ctx).
		Table("order_items").
		Select("order_items.*, orders.order_number, orders.type AS order_type, orders.table_id").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.station = ?", station).
		Where("order_items.status IN ?", []models.ItemStatus{models.ItemSent, models.ItemPreparing, models.ItemReady}).
		Where("orders.status NOT IN ?", []models.OrderStatus{models.OrderPaid, models.OrderCancelled}).
		Order("order_items.sent_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.External("kitchen display query", err)
	}

	items := make([]ActiveItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, ActiveItem{
			ItemID:      row.OrderItem.ID,
			OrderID:     row.OrderItem.OrderID,
			OrderNumber: row.OrderNumber,
			OrderType:   row.OrderType,
			TableID:     row.TableID,
			Name:        row.OrderItem.Name,
			Quantity:    row.OrderItem.Quantity,
			Modifiers:   row.OrderItem.Modifiers,
			Status:      row.OrderItem.Status,
			Course:      row.OrderItem.Course,
			Seat:        row.OrderItem.Seat,
			SentAt:      row.OrderItem.SentAt,
		})
	}
	return items, nil
}
