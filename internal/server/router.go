package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"tablestack/internal/pos/kitchen"
	"tablestack/internal/pos/store"
	"tablestack/internal/server/handlers"
	"tablestack/internal/server/middleware"
)

// New builds the terminal and kitchen-display HTTP surface.
func New(db *gorm.DB, posStore *store.Store, router *kitchen.Router) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit())

	authHandler := handlers.NewAuthHandler(db)
	orderHandler := handlers.NewOrderHandler(posStore)
	kitchenHandler := handlers.NewKitchenHandler(posStore, router)

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		public.POST("/auth/login", authHandler.Login)
	}

	// --- Terminal API Group (JWT protected) ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		orders := protected.Group("/orders")
		{
			orders.POST("", orderHandler.CreateOrder)
			orders.GET("", orderHandler.ListOrders)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.POST("/:id/items", orderHandler.AddItems)
			orders.POST("/:id/send", orderHandler.SendToKitchen)
			orders.POST("/:id/discount", orderHandler.ApplyDiscount)
			orders.POST("/:id/serve", orderHandler.MarkServed)
			orders.POST("/:id/cancel", orderHandler.CancelOrder)
			orders.POST("/:id/payments", orderHandler.ProcessPayment)
		}
		protected.DELETE("/items/:id", orderHandler.RemoveItem)
	}

	// --- Kitchen Display Group (trusted network, no JWT) ---
	kds := r.Group("/api/v1/kitchen")
	{
		kds.POST("/items/:id/ready", kitchenHandler.MarkItemReady)
		kds.POST("/orders/:id/bump", kitchenHandler.BumpOrder)
		kds.GET("/stations/:station/items", kitchenHandler.ActiveItems)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"message":   "Server is running",
			"timestamp": time.Now(),
		})
	})

	return r
}
