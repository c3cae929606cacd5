package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tablestack/internal/database/models"
	"tablestack/internal/pos/apperr"
)

// Snapshot is the point-in-time view of a menu item taken when a line is
// added to an order. It is never re-queried for that line.
type Snapshot struct {
	MenuItemID uint
	Name       string
	Price      decimal.Decimal
	Station    string
	Recipe     models.RecipeList
}

// Catalog is the read-only menu lookup the core consumes.
type Catalog interface {
	MenuItem(ctx context.Context, id uint) (*Snapshot, error)
}

type gormCatalog struct {
	db *gorm.DB
}

func NewGORM(db *gorm.DB) Catalog {
	return &gormCatalog{db: db}
}

func (c *gormCatalog) MenuItem(ctx context.Context, id uint) (*Snapshot, error) {
	var item models.MenuItem
	if err := c.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("menu item", id)
		}
		return nil, apperr.External("catalog", err)
	}
	if !item.IsActive {
		return nil, apperr.Validation("menu_item_id", "menu item is not active")
	}
	return &Snapshot{
		MenuItemID: item.ID,
		Name:       item.Name,
		Price:      item.Price,
		Station:    item.Station,
		Recipe:     item.Recipe,
	}, nil
}
