package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tablestack/internal/database/models"
	"tablestack/internal/pos/apperr"
	"tablestack/internal/pos/catalog"
)

// Ledger decrements ingredient stock when items are committed to the
// kitchen. Each item-send event is applied at most once; the order flow never
// rolls back when a decrement fails.
type Ledger struct {
	db      *gorm.DB
	catalog catalog.Catalog
}

func New(db *gorm.DB, cat catalog.Catalog) *Ledger {
	return &Ledger{db: db, catalog: cat}
}

// EventKey builds the idempotency key for an item-send event.
func EventKey(itemID uint) string {
	return fmt.Sprintf("%d:sent", itemID)
}

// DecrementForSend applies the recipe of the given item against stock,
// multiplied by the line quantity. A repeated call for the same item is a
// no-op.
func (l *Ledger) DecrementForSend(ctx context.Context, item models.OrderItem) error {
	snap, err := l.catalog.MenuItem(ctx, item.MenuItemID)
	if err != nil {
		return apperr.External("inventory", err)
	}
	if len(snap.Recipe) == 0 {
		return nil
	}

	key := EventKey(item.ID)
	qty := decimal.NewFromInt(int64(item.Quantity))

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var applied int64
		if err := tx.Model(&models.StockMovement{}).
			Where("event_key = ?", key).
			Count(&applied).Error; err != nil {
			return err
		}
		if applied > 0 {
			return nil
		}

		for _, line := range snap.Recipe {
			used := line.Quantity.Mul(qty)
			movement := models.StockMovement{
				IngredientID: line.IngredientID,
				EventKey:     key,
				Quantity:     used.Neg(),
			}
			if err := tx.Create(&movement).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Ingredient{}).
				Where("id = ?", line.IngredientID).
				Update("stock_qty", gorm.Expr("stock_qty - ?", used)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.External("inventory", err)
	}
	return nil
}
