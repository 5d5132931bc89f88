package loyalty

import (
	"context"
	"fmt"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PointValue is the discount one point buys, in currency units.
var PointValue = decimal.NewFromInt(1)

// PointsTx is the slice of the checkout transaction the ledger writes through.
// LockUserPoints must hold the user's balance row until the transaction ends.
type PointsTx interface {
	LockUserPoints(ctx context.Context, userID int64) (int64, error)
	SetUserPoints(ctx context.Context, userID int64, points int64) error
	InsertPointTransaction(ctx context.Context, t *models.PointTransaction) error
}

// Reader serves the ledger's read surface.
type Reader interface {
	GetUserPoints(ctx context.Context, userID int64) (int64, error)
	ListPointTransactions(ctx context.Context, filter models.PointFilter) ([]models.PointTransaction, int, error)
}

// Reference ties a ledger entry to the order and shop that caused it.
type Reference struct {
	OrderID     int64
	ShopID      int64
	Description string
}

// Ledger is the append-only loyalty point ledger.
type Ledger struct {
	defaultRate int64
	logger      *zap.Logger
}

// NewLedger creates a ledger. defaultRate applies to shops without a points rate.
func NewLedger(defaultRate int64) *Ledger {
	if defaultRate <= 0 {
		defaultRate = 30
	}
	return &Ledger{
		defaultRate: defaultRate,
		logger:      util.Named("loyalty"),
	}
}

// Rate returns the currency units needed for one point at shop.
func (l *Ledger) Rate(shop *models.Shop) int64 {
	if shop == nil || shop.PointsRate <= 0 {
		return l.defaultRate
	}
	return shop.PointsRate
}

// PointsFor computes floor(amount / rate) for shop.
func (l *Ledger) PointsFor(shop *models.Shop, amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	return amount.Div(decimal.NewFromInt(l.Rate(shop))).Floor().IntPart()
}

// Discount converts points into a currency amount.
func Discount(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).Mul(PointValue)
}

// Use debits points from the user's balance.
func (l *Ledger) Use(ctx context.Context, tx PointsTx, userID, points int64, ref Reference) (*models.PointTransaction, error) {
	if points <= 0 {
		return nil, apperr.Validation("points to use must be positive")
	}

	balance, err := tx.LockUserPoints(ctx, userID)
	if err != nil {
		return nil, err
	}
	if points > balance {
		return nil, apperr.InsufficientPoints(balance, points)
	}

	entry, err := l.append(ctx, tx, userID, models.PointTypeUse, -points, balance, ref)
	if err != nil {
		return nil, err
	}
	util.PointsUsedTotal.Add(float64(points))
	return entry, nil
}

// Earn credits floor(amountDue / rate) points. It returns nil when the amount
// earns nothing.
func (l *Ledger) Earn(ctx context.Context, tx PointsTx, userID int64, shop *models.Shop, amountDue decimal.Decimal, ref Reference) (*models.PointTransaction, error) {
	points := l.PointsFor(shop, amountDue)
	if points == 0 {
		return nil, nil
	}

	balance, err := tx.LockUserPoints(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry, err := l.append(ctx, tx, userID, models.PointTypeEarn, points, balance, ref)
	if err != nil {
		return nil, err
	}
	util.PointsEarnedTotal.Add(float64(points))
	return entry, nil
}

func (l *Ledger) append(ctx context.Context, tx PointsTx, userID int64, kind string, delta, balance int64, ref Reference) (*models.PointTransaction, error) {
	newBalance := balance + delta
	entry := &models.PointTransaction{
		UserID:      userID,
		Type:        kind,
		Points:      delta,
		Balance:     newBalance,
		Description: ref.Description,
	}
	if ref.OrderID != 0 {
		oid := ref.OrderID
		entry.OrderID = &oid
	}
	if ref.ShopID != 0 {
		sid := ref.ShopID
		entry.ShopID = &sid
	}

	if err := tx.InsertPointTransaction(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append point transaction: %w", err)
	}
	if err := tx.SetUserPoints(ctx, userID, newBalance); err != nil {
		return nil, fmt.Errorf("failed to update user points: %w", err)
	}

	l.logger.Info("Point transaction appended",
		zap.Int64("user_id", userID),
		zap.String("type", kind),
		zap.Int64("points", delta),
		zap.Int64("balance", newBalance))
	return entry, nil
}

// Balance returns the user's current points.
func (l *Ledger) Balance(ctx context.Context, r Reader, userID int64) (int64, error) {
	return r.GetUserPoints(ctx, userID)
}

// History pages through a user's transactions, newest first.
func (l *Ledger) History(ctx context.Context, r Reader, filter models.PointFilter) (models.Page[models.PointTransaction], error) {
	switch filter.Type {
	case "", models.PointTypeEarn, models.PointTypeUse, models.PointTypeExpire:
	default:
		return models.Page[models.PointTransaction]{}, apperr.Validation("unknown transaction type %q", filter.Type)
	}
	filter.Page, filter.PerPage = models.NormalizePaging(filter.Page, filter.PerPage)

	items, total, err := r.ListPointTransactions(ctx, filter)
	if err != nil {
		return models.Page[models.PointTransaction]{}, err
	}
	return models.NewPage(items, total, filter.Page, filter.PerPage), nil
}
