package inventory

import (
	"context"
	"fmt"
	"sort"

	"checkout-service/internal/apperr"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// StockTx is the slice of the checkout transaction the ledger needs.
// DecrementStock must subtract only when enough stock remains and report
// ok=false otherwise, without modifying anything.
type StockTx interface {
	DecrementStock(ctx context.Context, productID int64, quantity int) (remaining int, ok bool, err error)
}

// Ledger validates and applies stock decrements.
type Ledger struct {
	logger *zap.Logger
}

// NewLedger creates a stock ledger
func NewLedger() *Ledger {
	return &Ledger{logger: util.Named("inventory")}
}

// Decrement removes quantity units of a product, failing with
// InsufficientStock when fewer remain.
func (l *Ledger) Decrement(ctx context.Context, tx StockTx, productID int64, quantity int) error {
	if quantity < 1 {
		return apperr.Validation("quantity must be at least 1").WithDetail("product_id", productID)
	}

	remaining, ok, err := tx.DecrementStock(ctx, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for product %d: %w", productID, err)
	}
	if !ok {
		util.StockRejectionsTotal.Inc()
		l.logger.Info("Insufficient stock",
			zap.Int64("product_id", productID),
			zap.Int("requested", quantity))
		return apperr.InsufficientStock(productID, quantity)
	}

	util.StockDecrementsTotal.Inc()
	l.logger.Debug("Stock decremented",
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining))
	return nil
}

// DecrementAll applies one decrement per product for the summed quantities.
// Products are processed in ascending id order so concurrent checkouts lock
// rows in the same order.
func (l *Ledger) DecrementAll(ctx context.Context, tx StockTx, quantities map[int64]int) error {
	ids := make([]int64, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := l.Decrement(ctx, tx, id, quantities[id]); err != nil {
			return err
		}
	}
	return nil
}
