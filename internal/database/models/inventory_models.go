package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecipeLine maps one ingredient usage of a menu item.
type RecipeLine struct {
	IngredientID uint            `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type RecipeList []RecipeLine

func (r *RecipeList) Scan(value interface{}) error {
	if value == nil {
		*r = RecipeList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan RecipeList: %v", value)
	}
	return json.Unmarshal(bytes, r)
}

func (r RecipeList) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	return json.Marshal(r)
}

// MenuItem is the catalog backing store. The core reads it exactly once per
// added line and keeps the snapshot.
type MenuItem struct {
	ID       uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string          `gorm:"type:varchar(128);not null" json:"name"`
	Price    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Station  string          `gorm:"type:varchar(32);not null" json:"station"`
	Recipe   RecipeList      `gorm:"type:jsonb" json:"recipe"`
	IsActive bool            `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Ingredient struct {
	ID       uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string          `gorm:"type:varchar(128);not null" json:"name"`
	Unit     string          `gorm:"type:varchar(16);not null" json:"unit"`
	StockQty decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"stock_qty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StockMovement records one ledger entry. EventKey carries the idempotency
// key of the triggering event ("<itemID>:sent"), so a retried send never
// decrements twice.
type StockMovement struct {
	ID           uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	IngredientID uint            `gorm:"not null;uniqueIndex:idx_event_ingredient" json:"ingredient_id"`
	EventKey     string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_event_ingredient;index" json:"event_key"`
	Quantity     decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	CreatedAt    time.Time       `json:"created_at"`
}
