package service

import (
	"context"

	"checkout-service/internal/apperr"
	"checkout-service/internal/authz"
	"checkout-service/internal/cart"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// CartCheckout turns a stored session cart into orders.
type CartCheckout struct {
	carts  *cart.Service
	orders *OrderService
	logger *zap.Logger
}

// NewCartCheckout creates a cart checkout
func NewCartCheckout(carts *cart.Service, orders *OrderService) *CartCheckout {
	return &CartCheckout{
		carts:  carts,
		orders: orders,
		logger: util.Named("cart"),
	}
}

// Checkout places one order per shop for the session's cart and empties the
// cart once the orders are committed.
func (c *CartCheckout) Checkout(ctx context.Context, p authz.Principal, sessionID string, recipient models.Recipient, paymentMethod, idempotencyKey string) ([]*models.Order, error) {
	current, err := c.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, classify(err)
	}
	if current.IsEmpty() {
		return nil, apperr.Validation("cart is empty")
	}

	items := make([]ItemRequest, 0, len(current.Lines))
	for _, l := range current.Lines {
		items = append(items, ItemRequest{
			ProductID:  l.ProductID,
			Quantity:   l.Quantity,
			ToppingIDs: l.ToppingIDs,
			DrinkType:  l.DrinkType,
		})
	}

	orders, err := c.orders.CreateCartOrder(ctx, p, CheckoutInput{
		Items:          items,
		Recipient:      recipient,
		PaymentMethod:  paymentMethod,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("checkout").Inc()
	if err := c.carts.Clear(ctx, sessionID); err != nil {
		c.logger.Warn("Failed to clear cart after checkout",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return orders, nil
}
