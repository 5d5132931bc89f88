package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	shopColumns = `id, owner_id, name, points_rate, max_toppings_per_order, order_code,
		table_ordering_enabled, is_active`
	productColumns = `id, shop_id, name, unit_price, discounted_price, stock_quantity, is_active,
		has_cold_drink, cold_drink_price, has_hot_drink, hot_drink_price`
	toppingColumns = `id, shop_id, name, price, is_active`
	tableColumns   = `id, shop_id, table_number, status`
)

// GetShop retrieves a shop by ID
func (q querier) GetShop(ctx context.Context, id int64) (*models.Shop, error) {
	var shop models.Shop
	err := sqlx.GetContext(ctx, q.q, &shop, "SELECT "+shopColumns+" FROM shops WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "shop", id)
	}
	return &shop, nil
}

// ListShopIDsByOwner returns the shops a store admin owns.
func (q querier) ListShopIDsByOwner(ctx context.Context, ownerID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, q.q, &ids, "SELECT id FROM shops WHERE owner_id = $1 ORDER BY id", ownerID)
	return ids, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (q querier) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = q.q.Rebind(query)

	var products []models.Product
	err = sqlx.SelectContext(ctx, q.q, &products, query, args...)
	return products, err
}

// GetToppingsByIDs retrieves multiple toppings by IDs
func (q querier) GetToppingsByIDs(ctx context.Context, ids []int64) ([]models.Topping, error) {
	if len(ids) == 0 {
		return []models.Topping{}, nil
	}

	query, args, err := sqlx.In("SELECT "+toppingColumns+" FROM toppings WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = q.q.Rebind(query)

	var toppings []models.Topping
	err = sqlx.SelectContext(ctx, q.q, &toppings, query, args...)
	return toppings, err
}

// GetProductToppings returns the topping links, with override prices, of the given products.
func (q querier) GetProductToppings(ctx context.Context, productIDs []int64) ([]models.ProductTopping, error) {
	var links []models.ProductTopping
	err := sqlx.SelectContext(ctx, q.q, &links,
		"SELECT product_id, topping_id, price FROM product_toppings WHERE product_id = ANY($1)",
		pq.Array(productIDs))
	return links, err
}

// ListPaymentMethods returns every known payment method.
func (q querier) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := sqlx.SelectContext(ctx, q.q, &methods,
		"SELECT id, code, name, is_active FROM payment_methods ORDER BY id")
	return methods, err
}

// GetShopPaymentMethodIDs returns the methods a shop enabled. Empty means
// the shop never configured any.
func (q querier) GetShopPaymentMethodIDs(ctx context.Context, shopID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, q.q, &ids,
		"SELECT payment_method_id FROM shop_payment_methods WHERE shop_id = $1 ORDER BY payment_method_id",
		shopID)
	return ids, err
}

// GetTableByNumber locks the table row for a guest order.
func (t *pgTx) GetTableByNumber(ctx context.Context, shopID int64, tableNumber string) (*models.Table, error) {
	var table models.Table
	err := t.tx.GetContext(ctx, &table,
		"SELECT "+tableColumns+" FROM tables WHERE shop_id = $1 AND table_number = $2 FOR UPDATE",
		shopID, tableNumber)
	if err != nil {
		return nil, notFound(err, "table", tableNumber)
	}
	return &table, nil
}

// SetTableStatus updates a table's status
func (t *pgTx) SetTableStatus(ctx context.Context, tableID int64, status string) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE tables SET status = $1 WHERE id = $2", status, tableID)
	return err
}

// ReplaceShopPaymentMethods swaps the shop's enabled methods for methodIDs.
func (t *pgTx) ReplaceShopPaymentMethods(ctx context.Context, shopID int64, methodIDs []int64) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM shop_payment_methods WHERE shop_id = $1", shopID); err != nil {
		return fmt.Errorf("failed to clear shop payment methods: %w", err)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO shop_payment_methods (shop_id, payment_method_id)
		 SELECT $1, unnest($2::bigint[])`,
		shopID, pq.Array(methodIDs))
	if err != nil {
		return fmt.Errorf("failed to insert shop payment methods: %w", err)
	}
	return nil
}

// DecrementStock takes quantity units of a product only when that many are
// left. The row lock taken by the UPDATE is held until the transaction ends.
func (t *pgTx) DecrementStock(ctx context.Context, productID int64, quantity int) (int, bool, error) {
	var remaining int
	err := t.tx.GetContext(ctx, &remaining,
		`UPDATE products SET stock_quantity = stock_quantity - $1
		 WHERE id = $2 AND stock_quantity >= $1
		 RETURNING stock_quantity`,
		quantity, productID)
	if err == nil {
		return remaining, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	err = t.tx.GetContext(ctx, &remaining, "SELECT stock_quantity FROM products WHERE id = $1", productID)
	if err != nil {
		return 0, false, notFound(err, "product", productID)
	}
	return remaining, false, nil
}
