package service_test

import (
	"context"
	"testing"

	"checkout-service/internal/apperr"
	"checkout-service/internal/cart"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartCheckoutPlacesOrdersAndEmptiesCart(t *testing.T) {
	f := newFixture(t)
	carts := cart.NewService(storetest.NewCartStore())
	checkout := service.NewCartCheckout(carts, f.svc)
	ctx := context.Background()

	_, err := carts.Add(ctx, "sess", cart.Line{ProductID: 10, Quantity: 1, ToppingIDs: []int64{1}})
	require.NoError(t, err)
	_, err = carts.Add(ctx, "sess", cart.Line{ProductID: 20, Quantity: 1})
	require.NoError(t, err)

	orders, err := checkout.Checkout(ctx, customer, "sess", models.Recipient{Name: "Mei"}, "", "")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.True(t, orders[0].TotalPrice.Equal(d("110")))
	assert.Equal(t, "Mei", orders[0].RecipientName)

	c, err := carts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestCartCheckoutKeepsCartOnFailure(t *testing.T) {
	f := newFixture(t)
	carts := cart.NewService(storetest.NewCartStore())
	checkout := service.NewCartCheckout(carts, f.svc)
	ctx := context.Background()

	_, err := carts.Add(ctx, "sess", cart.Line{ProductID: 12, Quantity: 3})
	require.NoError(t, err)

	_, err = checkout.Checkout(ctx, customer, "sess", models.Recipient{}, "", "")
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	c, err := carts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, 3, c.ItemCount())
}

func TestCartCheckoutRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	checkout := service.NewCartCheckout(cart.NewService(storetest.NewCartStore()), f.svc)

	_, err := checkout.Checkout(context.Background(), customer, "sess", models.Recipient{}, "", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
