package store

import (
	"context"
	"fmt"
	"strings"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetUserPoints returns a user's current balance.
func (q querier) GetUserPoints(ctx context.Context, userID int64) (int64, error) {
	var points int64
	if err := sqlx.GetContext(ctx, q.q, &points, "SELECT points FROM users WHERE id = $1", userID); err != nil {
		return 0, notFound(err, "user", userID)
	}
	return points, nil
}

// ListPointTransactions pages through a user's ledger, newest first.
func (q querier) ListPointTransactions(ctx context.Context, filter models.PointFilter) ([]models.PointTransaction, int, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.ShopID != 0 {
		args = append(args, filter.ShopID)
		where = append(where, fmt.Sprintf("shop_id = $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := sqlx.GetContext(ctx, q.q, &total, "SELECT COUNT(*) FROM point_transactions"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count point transactions: %w", err)
	}

	page, perPage := models.NormalizePaging(filter.Page, filter.PerPage)
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`
		SELECT id, user_id, order_id, shop_id, type, points, balance, description, created_at
		FROM point_transactions%s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))

	var txs []models.PointTransaction
	if err := sqlx.SelectContext(ctx, q.q, &txs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list point transactions: %w", err)
	}
	return txs, total, nil
}

// LockUserPoints reads a balance and holds the user row until the transaction ends.
func (t *pgTx) LockUserPoints(ctx context.Context, userID int64) (int64, error) {
	var points int64
	if err := t.tx.GetContext(ctx, &points, "SELECT points FROM users WHERE id = $1 FOR UPDATE", userID); err != nil {
		return 0, notFound(err, "user", userID)
	}
	return points, nil
}

// SetUserPoints stores a new balance
func (t *pgTx) SetUserPoints(ctx context.Context, userID int64, points int64) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE users SET points = $1 WHERE id = $2", points, userID)
	return err
}

// InsertPointTransaction appends a ledger entry.
func (t *pgTx) InsertPointTransaction(ctx context.Context, pt *models.PointTransaction) error {
	query := `
		INSERT INTO point_transactions (user_id, order_id, shop_id, type, points, balance, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, pt, query,
		pt.UserID, pt.OrderID, pt.ShopID, pt.Type, pt.Points, pt.Balance, pt.Description)
}
