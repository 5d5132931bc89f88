package pricing

import (
	"testing"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixture() (*models.Shop, *models.Product, map[int64]*models.Topping) {
	shop := &models.Shop{ID: 1, MaxToppingsPerOrder: 2, IsActive: true}
	product := &models.Product{
		ID: 10, ShopID: 1, Name: "Milk Tea", UnitPrice: d("100"), IsActive: true,
		HasColdDrink: true, ColdDrinkPrice: d("5"),
	}
	toppings := map[int64]*models.Topping{
		1: {ID: 1, ShopID: 1, Name: "Pearl", Price: d("10"), IsActive: true},
		2: {ID: 2, ShopID: 1, Name: "Ice", Price: d("0"), IsActive: true},
		3: {ID: 3, ShopID: 1, Name: "Pudding", Price: d("15"), IsActive: true},
		4: {ID: 4, ShopID: 2, Name: "Foreign", Price: d("1"), IsActive: true},
		5: {ID: 5, ShopID: 1, Name: "Retired", Price: d("1"), IsActive: false},
	}
	return shop, product, toppings
}

func TestPriceLineWithToppings(t *testing.T) {
	shop, product, toppings := fixture()
	calc := NewCalculator()

	line, err := calc.PriceLine(Input{
		Shop: shop, Product: product, Quantity: 2,
		ToppingIDs: []int64{1, 2}, Toppings: toppings,
	})
	require.NoError(t, err)

	assert.True(t, d("110").Equal(line.UnitPrice))
	assert.True(t, d("220").Equal(line.Total))
	require.Len(t, line.Toppings, 2)
	assert.True(t, d("10").Equal(line.Toppings[0].Price))
	assert.True(t, line.Toppings[1].Price.IsZero())
}

func TestPriceLineUsesDiscountOverrideAndDrink(t *testing.T) {
	shop, product, toppings := fixture()
	product.DiscountedPrice = decimal.NewNullDecimal(d("80.50"))
	calc := NewCalculator()

	line, err := calc.PriceLine(Input{
		Shop: shop, Product: product, Quantity: 3,
		ToppingIDs: []int64{3},
		Toppings:   toppings,
		Overrides:  map[int64]decimal.NullDecimal{3: decimal.NewNullDecimal(d("12.25"))},
		DrinkType:  models.DrinkCold,
	})
	require.NoError(t, err)

	// 80.50 + 12.25 + 5
	assert.True(t, d("97.75").Equal(line.UnitPrice), line.UnitPrice.String())
	assert.True(t, d("293.25").Equal(line.Total), line.Total.String())
	assert.True(t, d("80.50").Equal(line.BasePrice))
	assert.True(t, d("5").Equal(line.DrinkPrice))
}

func TestPriceLineRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
	}{
		{"too many toppings", func(in *Input) { in.ToppingIDs = []int64{1, 2, 3} }},
		{"duplicate topping", func(in *Input) { in.ToppingIDs = []int64{1, 1} }},
		{"unknown topping", func(in *Input) { in.ToppingIDs = []int64{99} }},
		{"topping from other shop", func(in *Input) { in.ToppingIDs = []int64{4} }},
		{"inactive topping", func(in *Input) { in.ToppingIDs = []int64{5} }},
		{"zero quantity", func(in *Input) { in.Quantity = 0 }},
		{"hot drink not offered", func(in *Input) { in.DrinkType = models.DrinkHot }},
		{"unknown drink", func(in *Input) { in.DrinkType = "lukewarm" }},
		{"inactive product", func(in *Input) { in.Product.IsActive = false }},
		{"product from other shop", func(in *Input) { in.Product.ShopID = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shop, product, toppings := fixture()
			in := Input{Shop: shop, Product: product, Quantity: 1, Toppings: toppings}
			tt.mutate(&in)

			line, err := NewCalculator().PriceLine(in)
			assert.Nil(t, line)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestTotal(t *testing.T) {
	calc := NewCalculator()
	lines := []*Line{
		{Total: d("220")},
		{Total: d("80.25")},
	}

	assert.True(t, d("300.25").Equal(calc.Total(lines)))
	assert.True(t, decimal.Zero.Equal(calc.Total(nil)))
}
