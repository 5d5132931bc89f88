package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/cart"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency the readiness check waits on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	carts        *cart.Service
	cartCheckout *service.CartCheckout
	deps         map[string]Pinger
}

// NewHandler creates a new HTTP handler. deps are checked by /ready.
func NewHandler(orderService *service.OrderService, carts *cart.Service, deps map[string]Pinger) *Handler {
	return &Handler{
		orderService: orderService,
		carts:        carts,
		cartCheckout: service.NewCartCheckout(carts, orderService),
		deps:         deps,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(principalMiddleware())
	{
		v1.POST("/orders", h.createOrder)
		v1.POST("/orders/guest", h.createGuestOrder)
		v1.POST("/orders/checkout", h.checkout)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PUT("/orders/:id/status", h.updateOrderStatus)

		v1.GET("/users/points", h.getPointsBalance)
		v1.GET("/users/points/transactions", h.listPointTransactions)
		v1.POST("/points/calculate", h.calculatePoints)

		v1.GET("/shops/:id/payment-methods", h.getShopPaymentMethods)
		v1.PUT("/shops/:id/payment-methods", h.updateShopPaymentMethods)

		v1.GET("/cart", h.getCart)
		v1.DELETE("/cart", h.clearCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PUT("/cart/items", h.updateCartItem)
		v1.DELETE("/cart/items", h.removeCartItem)
		v1.POST("/cart/checkout", h.checkoutCart)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name, err)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid "+name, err)
		return 0, false
	}
	return n, true
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "Invalid "+name, err)
		return 0, false
	}
	return n, true
}

// idempotencyKey prefers the header and falls back to the body field.
func idempotencyKey(c *gin.Context, fromBody string) string {
	if key := c.GetHeader(headerIdempotencyKey); key != "" {
		return key
	}
	return fromBody
}
