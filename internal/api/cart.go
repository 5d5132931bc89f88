package api

import (
	"net/http"

	"checkout-service/internal/cart"
	"checkout-service/internal/models"

	"github.com/gin-gonic/gin"
)

// CartCheckoutRequest places the session's cart.
type CartCheckoutRequest struct {
	Recipient      models.Recipient `json:"recipient"`
	PaymentMethod  string           `json:"payment_method"`
	IdempotencyKey string           `json:"idempotency_key"`
}

func sessionID(c *gin.Context) string {
	return c.GetHeader(headerSessionID)
}

func (h *Handler) getCart(c *gin.Context) {
	current, err := h.carts.Get(c.Request.Context(), sessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), sessionID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// editCart binds a line and applies edit to the session's cart.
func (h *Handler) editCart(c *gin.Context, status int, edit func(*gin.Context, string, cart.Line) (*cart.Cart, error)) {
	var line cart.Line
	if err := c.ShouldBindJSON(&line); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	current, err := edit(c, sessionID(c), line)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, current)
}

func (h *Handler) addCartItem(c *gin.Context) {
	h.editCart(c, http.StatusCreated, func(c *gin.Context, sid string, l cart.Line) (*cart.Cart, error) {
		return h.carts.Add(c.Request.Context(), sid, l)
	})
}

func (h *Handler) updateCartItem(c *gin.Context) {
	h.editCart(c, http.StatusOK, func(c *gin.Context, sid string, l cart.Line) (*cart.Cart, error) {
		return h.carts.Update(c.Request.Context(), sid, l)
	})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	h.editCart(c, http.StatusOK, func(c *gin.Context, sid string, l cart.Line) (*cart.Cart, error) {
		return h.carts.Remove(c.Request.Context(), sid, l)
	})
}

func (h *Handler) checkoutCart(c *gin.Context) {
	var req CartCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	orders, err := h.cartCheckout.Checkout(c.Request.Context(), principal(c), sessionID(c),
		req.Recipient, req.PaymentMethod, idempotencyKey(c, req.IdempotencyKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"orders": orders})
}
