package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusUpdated = "ORDER_STATUS_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after a checkout commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	ShopID       int64           `json:"shop_id"`
	UserID       *int64          `json:"user_id,omitempty"`
	IsGuest      bool            `json:"is_guest"`
	TableNumber  string          `json:"table_number,omitempty"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	PointsUsed   int64           `json:"points_used"`
	PointsEarned int64           `json:"points_earned"`
}

// OrderStatusUpdatedEvent published when a shop advances an order
type OrderStatusUpdatedEvent struct {
	BaseEvent
	OrderID   int64     `json:"order_id"`
	ShopID    int64     `json:"shop_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Status    string    `json:"status"`
	OldStatus string    `json:"old_status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rooms lists the notification channels an order event belongs to.
func (e *OrderCreatedEvent) Rooms() []string {
	return []string{ShopRoom(e.ShopID), BackendRoom}
}

// Rooms lists the notification channels a status event belongs to.
func (e *OrderStatusUpdatedEvent) Rooms() []string {
	rooms := []string{ShopRoom(e.ShopID)}
	if e.UserID != nil {
		rooms = append(rooms, UserRoom(*e.UserID))
	}
	return append(rooms, BackendRoom)
}

// BackendRoom receives every order event.
const BackendRoom = "/backend"

// ShopRoom is the channel a shop owner listens on.
func ShopRoom(shopID int64) string {
	return fmt.Sprintf("/shop/%d", shopID)
}

// UserRoom is the channel a customer listens on.
func UserRoom(userID int64) string {
	return fmt.Sprintf("/user/%d", userID)
}
