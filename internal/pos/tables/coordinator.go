package tables

import (
	"context"

	"gorm.io/gorm"

	"tablestack/internal/database/models"
	"tablestack/internal/pos/apperr"
)

// Coordinator maps order open/close events to floor-table occupancy. It is
// strictly reactive and only ever sets occupied or dirty; bussing a table
// back to available is a staff action outside the core.
type Coordinator struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Coordinator {
	return &Coordinator{db: db}
}

func (c *Coordinator) Occupy(ctx context.Context, tableID uint) error {
	return c.setStatus(ctx, tableID, models.TableOccupied)
}

func (c *Coordinator) MarkDirty(ctx context.Context, tableID uint) error {
	return c.setStatus(ctx, tableID, models.TableDirty)
}

func (c *Coordinator) setStatus(ctx context.Context, tableID uint, status models.TableStatus) error {
	res := c.db.WithContext(ctx).
		Model(&models.DiningTable{}).
		Where("id = ?", tableID).
		Update("status", status)
	if res.Error != nil {
		return apperr.External("table registry", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("table", tableID)
	}
	return nil
}
