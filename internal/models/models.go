package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shop is a tenant storefront.
type Shop struct {
	ID                   int64  `db:"id" json:"id"`
	OwnerID              int64  `db:"owner_id" json:"owner_id"`
	Name                 string `db:"name" json:"name"`
	PointsRate           int64  `db:"points_rate" json:"points_rate"`
	MaxToppingsPerOrder  int    `db:"max_toppings_per_order" json:"max_toppings_per_order"`
	OrderCode            string `db:"order_code" json:"order_code"`
	TableOrderingEnabled bool   `db:"table_ordering_enabled" json:"table_ordering_enabled"`
	IsActive             bool   `db:"is_active" json:"is_active"`
}

// Product represents a catalog item sold by a shop
type Product struct {
	ID              int64               `db:"id" json:"id"`
	ShopID          int64               `db:"shop_id" json:"shop_id"`
	Name            string              `db:"name" json:"name"`
	UnitPrice       decimal.Decimal     `db:"unit_price" json:"unit_price"`
	DiscountedPrice decimal.NullDecimal `db:"discounted_price" json:"discounted_price"`
	StockQuantity   int                 `db:"stock_quantity" json:"stock_quantity"`
	IsActive        bool                `db:"is_active" json:"is_active"`
	HasColdDrink    bool                `db:"has_cold_drink" json:"has_cold_drink"`
	ColdDrinkPrice  decimal.Decimal     `db:"cold_drink_price" json:"cold_drink_price"`
	HasHotDrink     bool                `db:"has_hot_drink" json:"has_hot_drink"`
	HotDrinkPrice   decimal.Decimal     `db:"hot_drink_price" json:"hot_drink_price"`
}

// EffectivePrice is the discounted price when one is set, otherwise the unit price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountedPrice.Valid && p.DiscountedPrice.Decimal.IsPositive() {
		return p.DiscountedPrice.Decimal
	}
	return p.UnitPrice
}

// Topping is a shop-level add-on with a default price.
type Topping struct {
	ID       int64           `db:"id" json:"id"`
	ShopID   int64           `db:"shop_id" json:"shop_id"`
	Name     string          `db:"name" json:"name"`
	Price    decimal.Decimal `db:"price" json:"price"`
	IsActive bool            `db:"is_active" json:"is_active"`
}

// ProductTopping links a topping to a product with an optional price override.
type ProductTopping struct {
	ProductID int64               `db:"product_id" json:"product_id"`
	ToppingID int64               `db:"topping_id" json:"topping_id"`
	Price     decimal.NullDecimal `db:"price" json:"price"`
}

// Table is a physical table used for guest ordering.
type Table struct {
	ID          int64  `db:"id" json:"id"`
	ShopID      int64  `db:"shop_id" json:"shop_id"`
	TableNumber string `db:"table_number" json:"table_number"`
	Status      string `db:"status" json:"status"`
}

// PaymentMethod is an opaque, pre-validated way to pay.
type PaymentMethod struct {
	ID       int64  `db:"id" json:"id"`
	Code     string `db:"code" json:"code"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// IsProtected reports whether the method is the system cash method.
func (pm *PaymentMethod) IsProtected() bool {
	return pm.Code == PaymentMethodCash
}

// User holds the loyalty balance; identity itself lives with the identity provider.
type User struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Role   string `db:"role" json:"role"`
	Points int64  `db:"points" json:"points"`
}

// Order represents a placed order
type Order struct {
	ID               int64           `db:"id" json:"id"`
	OrderNumber      string          `db:"order_number" json:"order_number"`
	ShopID           int64           `db:"shop_id" json:"shop_id"`
	UserID           *int64          `db:"user_id" json:"user_id,omitempty"`
	TableID          *int64          `db:"table_id" json:"table_id,omitempty"`
	IsGuest          bool            `db:"is_guest" json:"is_guest"`
	Status           string          `db:"status" json:"status"`
	TotalPrice       decimal.Decimal `db:"total_price" json:"total_price"`
	PointsEarned     int64           `db:"points_earned" json:"points_earned"`
	PointsUsed       int64           `db:"points_used" json:"points_used"`
	PaymentMethod    string          `db:"payment_method" json:"payment_method"`
	RecipientName    string          `db:"recipient_name" json:"recipient_name"`
	RecipientPhone   string          `db:"recipient_phone" json:"recipient_phone"`
	RecipientAddress string          `db:"recipient_address" json:"recipient_address"`
	DeliveryNote     string          `db:"delivery_note" json:"delivery_note"`
	IdempotencyKey   string          `db:"idempotency_key" json:"-"`
	TableNumber      string          `db:"table_number" json:"table_number,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`

	Items    []OrderItem    `db:"-" json:"items,omitempty"`
	Payments []OrderPayment `db:"-" json:"payments,omitempty"`
}

// AmountDue is what the payment split must cover once points are applied.
func (o *Order) AmountDue() decimal.Decimal {
	due := o.TotalPrice.Sub(decimal.NewFromInt(o.PointsUsed))
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// OrderItem is a line of an order with its price frozen at purchase time.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	DrinkType   string          `db:"drink_type" json:"drink_type,omitempty"`
	DrinkPrice  decimal.Decimal `db:"drink_price" json:"drink_price"`

	Toppings []OrderItemTopping `db:"-" json:"toppings,omitempty"`
}

// LineTotal is unit price times quantity.
func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderItemTopping captures the topping price at the moment of purchase.
type OrderItemTopping struct {
	OrderItemID int64           `db:"order_item_id" json:"-"`
	ToppingID   int64           `db:"topping_id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Price       decimal.Decimal `db:"price" json:"price"`
}

// DisplayPrice renders a zero-priced topping as FREE.
func (t OrderItemTopping) DisplayPrice() string {
	return DisplayPrice(t.Price)
}

// DisplayPrice formats an amount for customers.
func DisplayPrice(d decimal.Decimal) string {
	if d.IsZero() {
		return "FREE"
	}
	return "$" + d.StringFixed(2)
}

// OrderPayment is one leg of a payment split
type OrderPayment struct {
	ID              int64           `db:"id" json:"id"`
	OrderID         int64           `db:"order_id" json:"order_id"`
	PaymentMethodID int64           `db:"payment_method_id" json:"payment_method_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Status          string          `db:"status" json:"status"`
}

// PointTransaction is an append-only loyalty ledger entry.
type PointTransaction struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	OrderID     *int64    `db:"order_id" json:"order_id,omitempty"`
	ShopID      *int64    `db:"shop_id" json:"shop_id,omitempty"`
	Type        string    `db:"type" json:"type"`
	Points      int64     `db:"points" json:"points"`
	Balance     int64     `db:"balance" json:"balance"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending = "pending"
	OrderStatusProcess = "process"
	OrderStatusSuccess = "success"
)

// NextOrderStatus returns the only status an order may move to, or "" when final.
func NextOrderStatus(current string) string {
	switch current {
	case OrderStatusPending:
		return OrderStatusProcess
	case OrderStatusProcess:
		return OrderStatusSuccess
	default:
		return ""
	}
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	return s == OrderStatusPending || s == OrderStatusProcess || s == OrderStatusSuccess
}

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Point transaction types
const (
	PointTypeEarn   = "earn"
	PointTypeUse    = "use"
	PointTypeExpire = "expire"
)

// Drink selections
const (
	DrinkCold = "cold"
	DrinkHot  = "hot"
)

// Table statuses
const (
	TableStatusAvailable = "available"
	TableStatusOccupied  = "occupied"
)

// PaymentMethodCash is the protected system payment method code.
const PaymentMethodCash = "cash"

// Roles
const (
	RoleAdmin      = "admin"
	RoleStoreAdmin = "store_admin"
	RoleCustomer   = "customer"
)
