package api

import (
	"net/http"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateOrderRequest places an order at one shop, or one order per shop when
// shop_id is omitted.
type CreateOrderRequest struct {
	ShopID         int64                 `json:"shop_id"`
	TableNumber    string                `json:"table_number"`
	Items          []service.ItemRequest `json:"items" binding:"required"`
	Recipient      models.Recipient      `json:"recipient"`
	PaymentMethod  string                `json:"payment_method"`
	IdempotencyKey string                `json:"idempotency_key"`
}

func (r *CreateOrderRequest) input(c *gin.Context) service.CheckoutInput {
	return service.CheckoutInput{
		ShopID:         r.ShopID,
		TableNumber:    r.TableNumber,
		Items:          r.Items,
		Recipient:      r.Recipient,
		PaymentMethod:  r.PaymentMethod,
		IdempotencyKey: idempotencyKey(c, r.IdempotencyKey),
	}
}

// CheckoutRequest redeems points and pays with a split.
type CheckoutRequest struct {
	CreateOrderRequest
	PointsToUse int64           `json:"points_to_use"`
	Payments    []payment.Split `json:"payments"`
}

// UpdateStatusRequest moves an order to its next status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.ShopID == 0 {
		orders, err := h.orderService.CreateCartOrder(c.Request.Context(), principal(c), req.input(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"orders": orders})
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), principal(c), req.input(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) createGuestOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	order, err := h.orderService.CreateGuestOrder(c.Request.Context(), principal(c), req.input(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	in := req.input(c)
	in.PointsToUse = req.PointsToUse
	in.Payments = req.Payments

	order, err := h.orderService.CheckoutWithPointsAndPayment(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), principal(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	shopID, ok := queryInt64(c, "shop_id")
	if !ok {
		return
	}
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	perPage, ok := queryInt(c, "per_page")
	if !ok {
		return
	}

	result, err := h.orderService.ListOrders(c.Request.Context(), principal(c), models.OrderFilter{
		ShopID:  shopID,
		Status:  c.Query("status"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request.Context(), principal(c), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
