package store

import (
	"context"

	"tablestack/internal/database/models"
)

// Repository persists order aggregates. SaveOrder and ApplyPayment carry the
// optimistic version check: a stale version surfaces as ConflictError and
// nothing is written.
type Repository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uint) (*models.Order, error)
	// OrderIDForItem resolves the owning order of an item, so item-level
	// operations can take the order lock before reloading.
	OrderIDForItem(ctx context.Context, itemID uint) (uint, error)
	ListOpenOrders(ctx context.Context) ([]models.Order, error)
	// SaveOrder commits the order row and its loaded items in one
	// transaction. Items with a zero ID are created.
	SaveOrder(ctx context.Context, order *models.Order) error
	DeleteItem(ctx context.Context, itemID uint) error
	// ApplyPayment commits a tender and, on close, the derived tip records
	// together with the order update. Tips referencing the new payment carry
	// a zero PaymentID and are linked after insert.
	ApplyPayment(ctx context.Context, order *models.Order, pay *models.Payment, tips []models.Tip) error
}
