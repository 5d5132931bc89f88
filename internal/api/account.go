package api

import (
	"net/http"

	"checkout-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CalculatePointsRequest asks what an order total would earn at a shop.
type CalculatePointsRequest struct {
	ShopID     int64           `json:"shop_id" binding:"required"`
	OrderTotal decimal.Decimal `json:"order_total"`
}

// PaymentMethodsRequest replaces a shop's enabled payment methods.
type PaymentMethodsRequest struct {
	PaymentMethodIDs []int64 `json:"payment_method_ids"`
}

func (h *Handler) getPointsBalance(c *gin.Context) {
	balance, err := h.orderService.GetPointsBalance(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) listPointTransactions(c *gin.Context) {
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

	result, err := h.orderService.ListPointTransactions(c.Request.Context(), principal(c), models.PointFilter{
		Type:    c.Query("type"),
		ShopID:  shopID,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) calculatePoints(c *gin.Context) {
	var req CalculatePointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	quote, err := h.orderService.QuotePoints(c.Request.Context(), req.ShopID, req.OrderTotal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) getShopPaymentMethods(c *gin.Context) {
	shopID, ok := pathID(c, "id")
	if !ok {
		return
	}

	methods, err := h.orderService.ShopPaymentMethods(c.Request.Context(), shopID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shop_id": shopID, "payment_methods": methods})
}

func (h *Handler) updateShopPaymentMethods(c *gin.Context) {
	shopID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req PaymentMethodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	methods, err := h.orderService.UpdateShopPaymentMethods(c.Request.Context(), principal(c), shopID, req.PaymentMethodIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shop_id": shopID, "payment_methods": methods})
}
