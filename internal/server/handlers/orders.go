package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tablestack/internal/database/models"
	"tablestack/internal/pos/payment"
	"tablestack/internal/pos/store"
	"tablestack/internal/server/middleware"
	"tablestack/internal/utils"
)

type OrderHandler struct {
	store *store.Store
}

func NewOrderHandler(s *store.Store) *OrderHandler {
	return &OrderHandler{store: s}
}

// Request structs
type CreateOrderRequest struct {
	Type       string `json:"type" binding:"required"`
	TableID    *uint  `json:"table_id,omitempty"`
	GuestCount int    `json:"guest_count,omitempty"`
	ServerID   *uint  `json:"server_id,omitempty"`
}

type NewItemRequest struct {
	MenuItemID uint              `json:"menu_item_id" binding:"required"`
	Quantity   int               `json:"quantity" binding:"required,min=1"`
	Modifiers  []models.Modifier `json:"modifiers,omitempty"`
	Course     string            `json:"course,omitempty"`
	Seat       *int              `json:"seat,omitempty"`
}

type AddItemsRequest struct {
	Items []NewItemRequest `json:"items" binding:"required,min=1"`
}

type RemoveItemRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ApplyDiscountRequest struct {
	Kind   string          `json:"kind" binding:"required"`
	Value  decimal.Decimal `json:"value" binding:"required"`
	Reason string          `json:"reason,omitempty"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ProcessPaymentRequest struct {
	Amount       decimal.Decimal   `json:"amount"`
	TipAmount    decimal.Decimal   `json:"tip_amount"`
	Method       string            `json:"method" binding:"required"`
	TenderedCash *decimal.Decimal  `json:"tendered_cash,omitempty"`
	Card         *payment.CardInfo `json:"card,omitempty"`
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	serverID := staffID(c)
	if req.ServerID != nil {
		serverID = *req.ServerID
	}

	order, err := h.store.CreateOrder(c.Request.Context(), store.CreateOrderRequest{
		Type:       models.OrderType(req.Type),
		TableID:    req.TableID,
		ServerID:   serverID,
		GuestCount: req.GuestCount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.store.ListOpenOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.store.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *OrderHandler) AddItems(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AddItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	items := make([]store.NewItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, store.NewItemRequest{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			Modifiers:  item.Modifiers,
			Course:     item.Course,
			Seat:       item.Seat,
		})
	}

	order, err := h.store.AddItems(c.Request.Context(), id, items)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *OrderHandler) RemoveItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RemoveItemRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	if err := h.store.RemoveItem(c.Request.Context(), id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, nil)
}

func (h *OrderHandler) SendToKitchen(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.store.SendToKitchen(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *OrderHandler) ApplyDiscount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	order, err := h.store.ApplyDiscount(c.Request.Context(), id,
		models.DiscountKind(req.Kind), req.Value, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *OrderHandler) MarkServed(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.store.MarkServed(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CancelOrderRequest
	_ = c.ShouldBindJSON(&req)

	order, err := h.store.CancelOrder(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *OrderHandler) ProcessPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	result, err := h.store.ProcessPayment(c.Request.Context(), id, payment.Request{
		Amount:       req.Amount,
		TipAmount:    req.TipAmount,
		Method:       models.PaymentMethod(req.Method),
		TenderedCash: req.TenderedCash,
		Card:         req.Card,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"paid":      result.Paid,
		"change":    result.Change,
		"remaining": result.Remaining,
		"payment":   result.Payment,
	})
}

func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func staffID(c *gin.Context) uint {
	v, exists := c.Get(middleware.ClaimsKey)
	if !exists {
		return 0
	}
	claims, ok := v.(*utils.Claims)
	if !ok {
		return 0
	}
	return claims.StaffID
}
