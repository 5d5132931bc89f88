package service

import (
	"context"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/authz"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// UpdateOrderStatus moves an order one step forward. Only the shop owner or
// an admin may do so.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, p authz.Principal, orderID int64, status string) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus",
		attribute.Int64("order_id", orderID),
		attribute.String("status", status))
	defer func() { util.EndSpan(span, err) }()

	if !models.ValidOrderStatus(status) {
		return nil, apperr.Validation("unknown order status %q", status)
	}

	var event *models.OrderStatusUpdatedEvent
	err = s.repo.WithTx(ctx, func(tx Tx) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		shop, err := tx.GetShop(ctx, current.ShopID)
		if err != nil {
			return err
		}
		if err := authz.Require(p, authz.ActionAdvanceOrderStatus, authz.OrderResource(shop, current)); err != nil {
			return err
		}

		if next := models.NextOrderStatus(current.Status); next != status {
			return apperr.Validation("order cannot move from %s to %s", current.Status, status).
				WithDetail("current", current.Status)
		}

		updatedAt, err := tx.UpdateOrderStatus(ctx, orderID, status)
		if err != nil {
			return err
		}

		event = &models.OrderStatusUpdatedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderStatusUpdated),
			OrderID:   current.ID,
			ShopID:    current.ShopID,
			UserID:    current.UserID,
			Status:    status,
			OldStatus: current.Status,
			UpdatedAt: updatedAt,
		}
		return nil
	})
	if err != nil {
		err = classify(err)
		return nil, err
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(status).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", event.OldStatus),
		zap.String("to", status))
	s.publishStatusUpdated(ctx, event)

	order, err = s.repo.GetOrder(ctx, orderID)
	if err != nil {
		err = classify(err)
		return nil, err
	}
	return order, nil
}

// GetOrder returns an order the caller is allowed to see. It never writes.
func (s *OrderService) GetOrder(ctx context.Context, p authz.Principal, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, classify(err)
	}
	shop, err := s.repo.GetShop(ctx, order.ShopID)
	if err != nil {
		return nil, classify(err)
	}
	if err := authz.Require(p, authz.ActionViewOrder, authz.OrderResource(shop, order)); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders pages through the orders visible to the caller. Admins see all
// orders, shop owners see their shops' orders and customers their own.
func (s *OrderService) ListOrders(ctx context.Context, p authz.Principal, filter models.OrderFilter) (models.Page[models.Order], error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if err := authz.Require(p, authz.ActionListOrders, authz.Resource{}); err != nil {
		return models.Page[models.Order]{}, err
	}
	if filter.Status != "" && !models.ValidOrderStatus(filter.Status) {
		return models.Page[models.Order]{}, apperr.Validation("unknown order status %q", filter.Status)
	}
	filter.Page, filter.PerPage = models.NormalizePaging(filter.Page, filter.PerPage)
	filter.ShopIDs = nil
	filter.UserID = nil

	switch {
	case p.IsAdmin():
	case p.Role == models.RoleStoreAdmin:
		shopIDs, err := s.repo.ListShopIDsByOwner(ctx, p.UserID)
		if err != nil {
			return models.Page[models.Order]{}, classify(err)
		}
		if len(shopIDs) == 0 {
			return models.NewPage[models.Order](nil, 0, filter.Page, filter.PerPage), nil
		}
		filter.ShopIDs = shopIDs
	default:
		uid := p.UserID
		filter.UserID = &uid
	}

	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return models.Page[models.Order]{}, classify(err)
	}
	return models.NewPage(orders, total, filter.Page, filter.PerPage), nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// publishCreated announces a committed order. Failures are logged only.
func (s *OrderService) publishCreated(ctx context.Context, order *models.Order) {
	if s.notifier == nil {
		return
	}
	event := &models.OrderCreatedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderCreated),
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		ShopID:       order.ShopID,
		UserID:       order.UserID,
		IsGuest:      order.IsGuest,
		TableNumber:  order.TableNumber,
		TotalPrice:   order.TotalPrice,
		PointsUsed:   order.PointsUsed,
		PointsEarned: order.PointsEarned,
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.notifier.PublishOrderCreated(pubCtx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

func (s *OrderService) publishStatusUpdated(ctx context.Context, event *models.OrderStatusUpdatedEvent) {
	if s.notifier == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.notifier.PublishOrderStatusUpdated(pubCtx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusUpdated event",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
	}
}
