package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tablestack/internal/pos/kitchen"
	"tablestack/internal/pos/store"
)

type KitchenHandler struct {
	store  *store.Store
	router *kitchen.Router
}

func NewKitchenHandler(s *store.Store, r *kitchen.Router) *KitchenHandler {
	return &KitchenHandler{store: s, router: r}
}

func (h *KitchenHandler) MarkItemReady(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.store.MarkItemReady(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"order_id":     order.ID,
		"order_status": order.Status,
	})
}

func (h *KitchenHandler) BumpOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.BumpOrder(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, nil)
}

func (h *KitchenHandler) ActiveItems(c *gin.Context) {
	station := c.Param("station")
	items, err := h.router.ActiveItems(c.Request.Context(), station)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, items)
}
