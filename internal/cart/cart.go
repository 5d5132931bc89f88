package cart

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/util"
)

// Line is one cart entry. Lines with the same product, toppings and drink
// share a Key and are merged.
type Line struct {
	ProductID  int64   `json:"product_id"`
	Quantity   int     `json:"quantity"`
	ToppingIDs []int64 `json:"topping_ids,omitempty"`
	DrinkType  string  `json:"drink_type,omitempty"`
}

// Key identifies a line by product, sorted toppings and drink.
func (l Line) Key() string {
	ids := make([]string, len(l.ToppingIDs))
	for i, id := range l.ToppingIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%d|%s|%s", l.ProductID, strings.Join(ids, ","), l.DrinkType)
}

// ParseKey rebuilds a line with zero quantity from its Key.
func ParseKey(key string) (Line, error) {
	parts := strings.Split(key, "|")
	if len(parts) != 3 {
		return Line{}, fmt.Errorf("malformed cart key %q", key)
	}
	pid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Line{}, fmt.Errorf("malformed cart key %q: %w", key, err)
	}
	line := Line{ProductID: pid, DrinkType: parts[2]}
	if parts[1] != "" {
		for _, raw := range strings.Split(parts[1], ",") {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return Line{}, fmt.Errorf("malformed cart key %q: %w", key, err)
			}
			line.ToppingIDs = append(line.ToppingIDs, id)
		}
	}
	return line, nil
}

// Normalize sorts topping ids so equivalent selections produce equal keys.
func (l Line) Normalize() Line {
	ids := append([]int64(nil), l.ToppingIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	l.ToppingIDs = ids
	return l
}

// Validate checks a line before it enters a cart. Catalog rules are checked
// again at checkout.
func (l Line) Validate() error {
	if l.ProductID <= 0 {
		return apperr.Validation("product_id is required")
	}
	if l.Quantity < 1 {
		return apperr.Validation("quantity must be at least 1").WithDetail("product_id", l.ProductID)
	}
	switch l.DrinkType {
	case "", models.DrinkCold, models.DrinkHot:
	default:
		return apperr.Validation("unknown drink type %q", l.DrinkType)
	}
	seen := make(map[int64]bool, len(l.ToppingIDs))
	for _, id := range l.ToppingIDs {
		if seen[id] {
			return apperr.Validation("topping %d selected more than once", id)
		}
		seen[id] = true
	}
	return nil
}

// Cart is a session's pending selection.
type Cart struct {
	SessionID string `json:"session_id"`
	Lines     []Line `json:"lines"`
}

// IsEmpty reports whether the cart holds nothing.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount is the total quantity across lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Store persists carts keyed by session id. AddLine merges into an existing
// line with the same key and returns the resulting quantity. SetQuantity
// reports false when the line does not exist; a quantity of zero removes it.
type Store interface {
	AddLine(ctx context.Context, sessionID string, line Line) (int, error)
	SetQuantity(ctx context.Context, sessionID, key string, quantity int) (bool, error)
	Lines(ctx context.Context, sessionID string) ([]Line, error)
	Clear(ctx context.Context, sessionID string) error
}

// Service validates cart edits before handing them to a Store.
type Service struct {
	store Store
}

// NewService creates a cart service
func NewService(store Store) *Service {
	return &Service{store: store}
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return apperr.Validation("session id is required")
	}
	return nil
}

// Get loads the cart for sessionID. A session without a cart gets an empty one.
func (s *Service) Get(ctx context.Context, sessionID string) (*Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	lines, err := s.store.Lines(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Key() < lines[j].Key() })
	if lines == nil {
		lines = []Line{}
	}
	return &Cart{SessionID: sessionID, Lines: lines}, nil
}

// Add puts line into the cart, merging with an identical line.
func (s *Service) Add(ctx context.Context, sessionID string, line Line) (*Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	line = line.Normalize()
	if err := line.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.AddLine(ctx, sessionID, line); err != nil {
		return nil, fmt.Errorf("failed to add cart line: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("add").Inc()
	return s.Get(ctx, sessionID)
}

// Update sets the quantity of the line matching line's key. Zero removes it.
func (s *Service) Update(ctx context.Context, sessionID string, line Line) (*Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	line = line.Normalize()
	if line.Quantity < 0 {
		return nil, apperr.Validation("quantity must not be negative")
	}
	found, err := s.store.SetQuantity(ctx, sessionID, line.Key(), line.Quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to update cart line: %w", err)
	}
	if !found {
		return nil, apperr.NotFound("cart line not found").WithDetail("product_id", line.ProductID)
	}
	if line.Quantity == 0 {
		util.CartOperationsTotal.WithLabelValues("remove").Inc()
	} else {
		util.CartOperationsTotal.WithLabelValues("update").Inc()
	}
	return s.Get(ctx, sessionID)
}

// Remove drops the line matching line's key.
func (s *Service) Remove(ctx context.Context, sessionID string, line Line) (*Cart, error) {
	line.Quantity = 0
	return s.Update(ctx, sessionID, line)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	return nil
}
