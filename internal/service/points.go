package service

import (
	"context"

	"checkout-service/internal/apperr"
	"checkout-service/internal/authz"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
)

// PointsBalance is a user's current loyalty balance.
type PointsBalance struct {
	UserID int64 `json:"user_id"`
	Points int64 `json:"points"`
}

// PointsQuote previews what an order amount would earn at a shop.
type PointsQuote struct {
	ShopID       int64           `json:"shop_id"`
	OrderTotal   decimal.Decimal `json:"order_total"`
	PointsRate   int64           `json:"points_rate"`
	PointsEarned int64           `json:"points_earned"`
}

// GetPointsBalance returns the caller's balance.
func (s *OrderService) GetPointsBalance(ctx context.Context, p authz.Principal) (*PointsBalance, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetPointsBalance")
	defer span.End()

	if err := authz.Require(p, authz.ActionViewPoints, authz.Resource{}); err != nil {
		return nil, err
	}
	points, err := s.points.Balance(ctx, s.repo, p.UserID)
	if err != nil {
		return nil, classify(err)
	}
	return &PointsBalance{UserID: p.UserID, Points: points}, nil
}

// ListPointTransactions pages through the caller's ledger, newest first.
func (s *OrderService) ListPointTransactions(ctx context.Context, p authz.Principal, filter models.PointFilter) (models.Page[models.PointTransaction], error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListPointTransactions")
	defer span.End()

	if err := authz.Require(p, authz.ActionViewPoints, authz.Resource{}); err != nil {
		return models.Page[models.PointTransaction]{}, err
	}
	filter.UserID = p.UserID
	page, err := s.points.History(ctx, s.repo, filter)
	if err != nil {
		return page, classify(err)
	}
	return page, nil
}

// QuotePoints computes the points an order total would earn at shopID.
func (s *OrderService) QuotePoints(ctx context.Context, shopID int64, orderTotal decimal.Decimal) (*PointsQuote, error) {
	if shopID <= 0 {
		return nil, apperr.Validation("shop_id is required")
	}
	if orderTotal.IsNegative() {
		return nil, apperr.Validation("order_total must not be negative")
	}
	if !payment.IsCents(orderTotal) {
		return nil, apperr.Validation("order_total has more than 2 decimal places")
	}
	shop, err := s.repo.GetShop(ctx, shopID)
	if err != nil {
		return nil, classify(err)
	}
	return &PointsQuote{
		ShopID:       shop.ID,
		OrderTotal:   orderTotal,
		PointsRate:   s.points.Rate(shop),
		PointsEarned: s.points.PointsFor(shop, orderTotal),
	}, nil
}
