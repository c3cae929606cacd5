package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tablestack/internal/database/models"
	"tablestack/internal/pos/apperr"
)

type gormRepo struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepo{db: db}
}

func (r *gormRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *gormRepo) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.id ASC") }).
		Preload("Payments").
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order", id)
		}
		return nil, err
	}
	return &order, nil
}

func (r *gormRepo) OrderIDForItem(ctx context.Context, itemID uint) (uint, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).Select("id", "order_id").First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("order item", itemID)
		}
		return 0, err
	}
	return item.OrderID, nil
}

func (r *gormRepo) ListOpenOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status NOT IN ?", []models.OrderStatus{models.OrderPaid, models.OrderCancelled}).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

func (r *gormRepo) SaveOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casUpdateOrder(tx, order); err != nil {
			return err
		}
		return saveItems(tx, order)
	})
}

func (r *gormRepo) DeleteItem(ctx context.Context, itemID uint) error {
	return r.db.WithContext(ctx).Delete(&models.OrderItem{}, itemID).Error
}

func (r *gormRepo) ApplyPayment(ctx context.Context, order *models.Order, pay *models.Payment, tips []models.Tip) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casUpdateOrder(tx, order); err != nil {
			return err
		}
		if err := tx.Create(pay).Error; err != nil {
			return err
		}
		for i := range tips {
			if tips[i].PaymentID == 0 {
				tips[i].PaymentID = pay.ID
			}
		}
		if len(tips) > 0 {
			if err := tx.Create(&tips).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// casUpdateOrder writes the order scalar fields guarded by the version
// stamp. RowsAffected == 0 means somebody else committed first.
func casUpdateOrder(tx *gorm.DB, order *models.Order) error {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]interface{}{
			"status":          order.Status,
			"discount_kind":   order.DiscountKind,
			"discount_value":  order.DiscountValue,
			"discount_amount": order.DiscountAmount,
			"discount_reason": order.DiscountReason,
			"subtotal":        order.Subtotal,
			"tax_amount":      order.TaxAmount,
			"tip_amount":      order.TipAmount,
			"total":           order.Total,
			"sent_at":         order.SentAt,
			"ready_at":        order.ReadyAt,
			"served_at":       order.ServedAt,
			"closed_at":       order.ClosedAt,
			"version":         order.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("order", order.ID)
	}
	order.Version++
	return nil
}

func saveItems(tx *gorm.DB, order *models.Order) error {
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if item.ID == 0 {
			if err := tx.Create(item).Error; err != nil {
				return err
			}
			continue
		}
		if err := tx.Save(item).Error; err != nil {
			return err
		}
	}
	return nil
}
