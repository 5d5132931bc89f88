package service

import (
	"context"

	"checkout-service/internal/authz"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ShopPaymentMethod is a method a shop accepts.
type ShopPaymentMethod struct {
	models.PaymentMethod
	IsRequired bool `json:"is_required"`
}

// ShopPaymentMethods lists the methods shopID accepts. Cash is marked as
// required.
func (s *OrderService) ShopPaymentMethods(ctx context.Context, shopID int64) ([]ShopPaymentMethod, error) {
	if _, err := s.repo.GetShop(ctx, shopID); err != nil {
		return nil, classify(err)
	}
	methods, err := loadMethods(ctx, s.repo, shopID)
	if err != nil {
		return nil, classify(err)
	}
	return toShopMethods(methods.EnabledList()), nil
}

// UpdateShopPaymentMethods replaces the set of methods a shop accepts.
func (s *OrderService) UpdateShopPaymentMethods(ctx context.Context, p authz.Principal, shopID int64, methodIDs []int64) (out []ShopPaymentMethod, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateShopPaymentMethods", attribute.Int64("shop_id", shopID))
	defer func() { util.EndSpan(span, err) }()

	methodIDs = uniqueIDs(methodIDs)

	err = s.repo.WithTx(ctx, func(tx Tx) error {
		shop, err := tx.GetShop(ctx, shopID)
		if err != nil {
			return err
		}
		if err := authz.Require(p, authz.ActionManagePayments, authz.ShopResource(shop)); err != nil {
			return err
		}

		methods, err := loadMethods(ctx, tx, shopID)
		if err != nil {
			return err
		}
		if err := s.payments.ValidateShopSettings(methodIDs, methods.All); err != nil {
			return err
		}
		if err := tx.ReplaceShopPaymentMethods(ctx, shopID, methodIDs); err != nil {
			return err
		}

		enabled := make(map[int64]bool, len(methodIDs))
		for _, id := range methodIDs {
			enabled[id] = true
		}
		methods.Enabled = enabled
		out = toShopMethods(methods.EnabledList())
		return nil
	})
	if err != nil {
		err = classify(err)
		return nil, err
	}

	s.logger.Info("Shop payment methods updated",
		zap.Int64("shop_id", shopID),
		zap.Int64s("method_ids", methodIDs))
	return out, nil
}

func toShopMethods(methods []models.PaymentMethod) []ShopPaymentMethod {
	out := make([]ShopPaymentMethod, 0, len(methods))
	for _, pm := range methods {
		out = append(out, ShopPaymentMethod{PaymentMethod: pm, IsRequired: pm.IsProtected()})
	}
	return out
}
