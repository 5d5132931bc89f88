package service

import (
	"context"
	"time"

	"checkout-service/internal/inventory"
	"checkout-service/internal/loyalty"
	"checkout-service/internal/models"
	"checkout-service/internal/ordernumber"
)

// Reader is the read side of persistence used outside checkout transactions.
type Reader interface {
	GetShop(ctx context.Context, id int64) (*models.Shop, error)
	ListShopIDsByOwner(ctx context.Context, ownerID int64) ([]int64, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByIdempotencyKey(ctx context.Context, key string) ([]models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error)
	ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
	GetShopPaymentMethodIDs(ctx context.Context, shopID int64) ([]int64, error)
	loyalty.Reader
}

// Tx is one checkout transaction. Every write of a checkout goes through the
// same Tx so a failure anywhere leaves no trace.
type Tx interface {
	GetShop(ctx context.Context, id int64) (*models.Shop, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetToppingsByIDs(ctx context.Context, ids []int64) ([]models.Topping, error)
	GetProductToppings(ctx context.Context, productIDs []int64) ([]models.ProductTopping, error)
	GetTableByNumber(ctx context.Context, shopID int64, tableNumber string) (*models.Table, error)
	SetTableStatus(ctx context.Context, tableID int64, status string) error
	ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
	GetShopPaymentMethodIDs(ctx context.Context, shopID int64) ([]int64, error)
	ReplaceShopPaymentMethods(ctx context.Context, shopID int64, methodIDs []int64) error

	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) (time.Time, error)

	inventory.StockTx
	loyalty.PointsTx
	ordernumber.Counter
}

// Repository opens checkout transactions and serves reads.
type Repository interface {
	Reader
	// WithTx runs fn in one transaction, committing only when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Idempotency guards against the same checkout being processed twice at once.
type Idempotency interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Notifier receives order events after commit.
type Notifier interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusUpdated(ctx context.Context, event *models.OrderStatusUpdatedEvent) error
}
