package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const orderSelect = `
	SELECT o.id, o.order_number, o.shop_id, o.user_id, o.table_id, o.is_guest, o.status,
	       o.total_price, o.points_earned, o.points_used, o.payment_method,
	       o.recipient_name, o.recipient_phone, o.recipient_address, o.delivery_note,
	       COALESCE(o.idempotency_key, '') AS idempotency_key,
	       COALESCE(t.table_number, '') AS table_number,
	       o.created_at, o.updated_at
	FROM orders o
	LEFT JOIN tables t ON t.id = o.table_id`

// GetOrder retrieves an order with its items, toppings and payments.
func (q querier) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := sqlx.GetContext(ctx, q.q, &order, orderSelect+" WHERE o.id = $1", id); err != nil {
		return nil, notFound(err, "order", id)
	}
	orders := []models.Order{order}
	if err := q.loadDetails(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetOrdersByIdempotencyKey returns every order a keyed request produced.
func (q querier) GetOrdersByIdempotencyKey(ctx context.Context, key string) ([]models.Order, error) {
	var orders []models.Order
	err := sqlx.SelectContext(ctx, q.q, &orders,
		orderSelect+" WHERE o.idempotency_key = $1 ORDER BY o.shop_id, o.id", key)
	if err != nil {
		return nil, err
	}
	if err := q.loadDetails(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrders pages through orders matching filter, newest first.
func (q querier) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.ShopIDs) > 0 {
		where = append(where, "o.shop_id = ANY("+arg(pq.Array(filter.ShopIDs))+")")
	}
	if filter.UserID != nil {
		where = append(where, "o.user_id = "+arg(*filter.UserID))
	}
	if filter.ShopID != 0 {
		where = append(where, "o.shop_id = "+arg(filter.ShopID))
	}
	if filter.Status != "" {
		where = append(where, "o.status = "+arg(filter.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, q.q, &total, "SELECT COUNT(*) FROM orders o"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	page, perPage := models.NormalizePaging(filter.Page, filter.PerPage)
	query := orderSelect + clause + " ORDER BY o.id DESC LIMIT " + arg(perPage) + " OFFSET " + arg((page-1)*perPage)

	var orders []models.Order
	if err := sqlx.SelectContext(ctx, q.q, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	if err := q.loadDetails(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// loadDetails fills Items and Payments of orders in place.
func (q querier) loadDetails(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, q.q, &items,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price, drink_type, drink_price
		 FROM order_items WHERE order_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	itemIDs := make([]int64, len(items))
	for i, item := range items {
		itemIDs[i] = item.ID
	}
	var toppings []models.OrderItemTopping
	if len(itemIDs) > 0 {
		err = sqlx.SelectContext(ctx, q.q, &toppings,
			`SELECT order_item_id, topping_id, name, price
			 FROM order_item_toppings WHERE order_item_id = ANY($1) ORDER BY order_item_id, topping_id`,
			pq.Array(itemIDs))
		if err != nil {
			return fmt.Errorf("failed to load order item toppings: %w", err)
		}
	}
	byItem := make(map[int64][]models.OrderItemTopping)
	for _, t := range toppings {
		byItem[t.OrderItemID] = append(byItem[t.OrderItemID], t)
	}
	for _, item := range items {
		item.Toppings = byItem[item.ID]
		o := &orders[index[item.OrderID]]
		o.Items = append(o.Items, item)
	}

	var payments []models.OrderPayment
	err = sqlx.SelectContext(ctx, q.q, &payments,
		`SELECT id, order_id, payment_method_id, amount, status
		 FROM order_payments WHERE order_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load order payments: %w", err)
	}
	for _, p := range payments {
		o := &orders[index[p.OrderID]]
		o.Payments = append(o.Payments, p)
	}
	return nil
}

// InsertOrder writes the order with its items, toppings and payments, and
// fills in the generated IDs.
func (t *pgTx) InsertOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, shop_id, user_id, table_id, is_guest, status, total_price,
			points_earned, points_used, payment_method, recipient_name, recipient_phone,
			recipient_address, delivery_note, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''))
		RETURNING id, created_at, updated_at`

	err := t.tx.GetContext(ctx, order, query,
		order.OrderNumber, order.ShopID, order.UserID, order.TableID, order.IsGuest, order.Status,
		order.TotalPrice, order.PointsEarned, order.PointsUsed, order.PaymentMethod,
		order.RecipientName, order.RecipientPhone, order.RecipientAddress, order.DeliveryNote,
		order.IdempotencyKey)
	if err != nil {
		return mapError(err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := t.tx.GetContext(ctx, &item.ID,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, drink_type, drink_price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.DrinkType, item.DrinkPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}

		for j := range item.Toppings {
			tp := &item.Toppings[j]
			tp.OrderItemID = item.ID
			_, err := t.tx.ExecContext(ctx,
				`INSERT INTO order_item_toppings (order_item_id, topping_id, name, price)
				 VALUES ($1, $2, $3, $4)`,
				tp.OrderItemID, tp.ToppingID, tp.Name, tp.Price)
			if err != nil {
				return fmt.Errorf("failed to insert order item topping: %w", err)
			}
		}
	}

	for i := range order.Payments {
		p := &order.Payments[i]
		p.OrderID = order.ID
		err := t.tx.GetContext(ctx, &p.ID,
			`INSERT INTO order_payments (order_id, payment_method_id, amount, status)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			p.OrderID, p.PaymentMethodID, p.Amount, p.Status)
		if err != nil {
			return fmt.Errorf("failed to insert order payment: %w", err)
		}
	}
	return nil
}

// GetOrderForUpdate locks an order row for a status change.
func (t *pgTx) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := t.tx.GetContext(ctx, &order, orderSelect+" WHERE o.id = $1 FOR UPDATE OF o", id); err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// UpdateOrderStatus updates order status
func (t *pgTx) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (time.Time, error) {
	var updatedAt time.Time
	err := t.tx.GetContext(ctx, &updatedAt,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at",
		status, orderID)
	if err != nil {
		return time.Time{}, notFound(err, "order", orderID)
	}
	return updatedAt, nil
}

// NextOrderSequence bumps the (shop, day) counter. Concurrent checkouts for
// the same shop queue on the counter row.
func (t *pgTx) NextOrderSequence(ctx context.Context, shopID int64, day time.Time) (int64, error) {
	var seq int64
	err := t.tx.GetContext(ctx, &seq,
		`INSERT INTO order_sequences (shop_id, day, last_seq)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (shop_id, day) DO UPDATE SET last_seq = order_sequences.last_seq + 1
		 RETURNING last_seq`,
		shopID, day.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to advance order sequence: %w", err)
	}
	return seq, nil
}
