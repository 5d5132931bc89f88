package pricing

import (
	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// Input is everything needed to price one order line. Toppings holds the
// toppings that could be resolved for ToppingIDs; Overrides holds the
// product-specific prices keyed by topping id.
type Input struct {
	Shop       *models.Shop
	Product    *models.Product
	Quantity   int
	ToppingIDs []int64
	Toppings   map[int64]*models.Topping
	Overrides  map[int64]decimal.NullDecimal
	DrinkType  string
}

// PricedTopping is a topping with the price it is sold at on this line.
type PricedTopping struct {
	Topping *models.Topping
	Price   decimal.Decimal
}

// Line is a priced order line.
type Line struct {
	Product    *models.Product
	Quantity   int
	BasePrice  decimal.Decimal
	Toppings   []PricedTopping
	DrinkType  string
	DrinkPrice decimal.Decimal
	UnitPrice  decimal.Decimal
	Total      decimal.Decimal
}

// Calculator computes unit and order totals from catalog snapshots.
type Calculator struct{}

// NewCalculator creates a price calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// PriceLine validates and prices a single line. Nothing is computed if any
// rule is violated.
func (c *Calculator) PriceLine(in Input) (*Line, error) {
	if in.Product == nil || in.Shop == nil {
		return nil, apperr.Validation("product and shop are required")
	}
	p := in.Product

	if in.Quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1").WithDetail("product_id", p.ID)
	}
	if p.ShopID != in.Shop.ID {
		return nil, apperr.Validation("product %d does not belong to shop %d", p.ID, in.Shop.ID)
	}
	if !p.IsActive {
		return nil, apperr.Validation("product %s is not available", p.Name).WithDetail("product_id", p.ID)
	}
	if len(in.ToppingIDs) > in.Shop.MaxToppingsPerOrder {
		return nil, apperr.Validation("at most %d toppings allowed per item", in.Shop.MaxToppingsPerOrder).
			WithDetail("product_id", p.ID).
			WithDetail("requested", len(in.ToppingIDs))
	}

	toppings, err := c.priceToppings(in)
	if err != nil {
		return nil, err
	}

	drinkPrice, err := drinkSurcharge(p, in.DrinkType)
	if err != nil {
		return nil, err
	}

	base := p.EffectivePrice()
	unit := base.Add(drinkPrice)
	for _, t := range toppings {
		unit = unit.Add(t.Price)
	}

	return &Line{
		Product:    p,
		Quantity:   in.Quantity,
		BasePrice:  base,
		Toppings:   toppings,
		DrinkType:  in.DrinkType,
		DrinkPrice: drinkPrice,
		UnitPrice:  unit,
		Total:      unit.Mul(decimal.NewFromInt(int64(in.Quantity))),
	}, nil
}

func (c *Calculator) priceToppings(in Input) ([]PricedTopping, error) {
	seen := make(map[int64]bool, len(in.ToppingIDs))
	priced := make([]PricedTopping, 0, len(in.ToppingIDs))

	for _, id := range in.ToppingIDs {
		if seen[id] {
			return nil, apperr.Validation("topping %d selected more than once", id)
		}
		seen[id] = true

		t, ok := in.Toppings[id]
		if !ok || t == nil || t.ShopID != in.Shop.ID || !t.IsActive {
			return nil, apperr.Validation("topping %d is not valid for this shop", id).WithDetail("topping_id", id)
		}

		price := t.Price
		if o, ok := in.Overrides[id]; ok && o.Valid {
			price = o.Decimal
		}
		priced = append(priced, PricedTopping{Topping: t, Price: price})
	}

	return priced, nil
}

func drinkSurcharge(p *models.Product, drinkType string) (decimal.Decimal, error) {
	switch drinkType {
	case "":
		return decimal.Zero, nil
	case models.DrinkCold:
		if p.HasColdDrink {
			return p.ColdDrinkPrice, nil
		}
	case models.DrinkHot:
		if p.HasHotDrink {
			return p.HotDrinkPrice, nil
		}
	default:
		return decimal.Zero, apperr.Validation("unknown drink type %q", drinkType)
	}
	return decimal.Zero, apperr.Validation("product %s does not offer %s drinks", p.Name, drinkType).
		WithDetail("product_id", p.ID)
}

// Total sums line totals.
func (c *Calculator) Total(lines []*Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total)
	}
	return total
}
