package storetest

import (
	"context"
	"sync"
	"time"

	"checkout-service/internal/cart"
	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// CartStore keeps carts in memory.
type CartStore struct {
	mu    sync.Mutex
	carts map[string]map[string]cart.Line
}

// NewCartStore creates an empty cart store.
func NewCartStore() *CartStore {
	return &CartStore{carts: map[string]map[string]cart.Line{}}
}

var _ cart.Store = (*CartStore)(nil)

func (s *CartStore) AddLine(_ context.Context, sessionID string, line cart.Line) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[sessionID]
	if lines == nil {
		lines = map[string]cart.Line{}
		s.carts[sessionID] = lines
	}
	key := line.Key()
	if existing, ok := lines[key]; ok {
		line.Quantity += existing.Quantity
	}
	lines[key] = line
	return line.Quantity, nil
}

func (s *CartStore) SetQuantity(_ context.Context, sessionID, key string, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.carts[sessionID][key]
	if !ok {
		return false, nil
	}
	if quantity <= 0 {
		delete(s.carts[sessionID], key)
		return true, nil
	}
	line.Quantity = quantity
	s.carts[sessionID][key] = line
	return true, nil
}

func (s *CartStore) Lines(_ context.Context, sessionID string) ([]cart.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []cart.Line
	for _, l := range s.carts[sessionID] {
		out = append(out, l)
	}
	return out, nil
}

func (s *CartStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}

// Locker is an in-memory lock table keyed like the Redis locks.
type Locker struct {
	mu   sync.Mutex
	held map[string]string
	Err  error
}

// NewLocker creates an empty lock table.
func NewLocker() *Locker {
	return &Locker{held: map[string]string{}}
}

func (l *Locker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return "", false, l.Err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := uuid.New().String()
	l.held[key] = token
	return token, true, nil
}

func (l *Locker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// Hold takes key as if another request owned it.
func (l *Locker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "held"
}

// Notifier records published events.
type Notifier struct {
	mu      sync.Mutex
	Created []*models.OrderCreatedEvent
	Updated []*models.OrderStatusUpdatedEvent
	Err     error
}

func (n *Notifier) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Created = append(n.Created, e)
	return nil
}

func (n *Notifier) PublishOrderStatusUpdated(_ context.Context, e *models.OrderStatusUpdatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Updated = append(n.Updated, e)
	return nil
}

// CreatedCount returns how many OrderCreated events were recorded.
func (n *Notifier) CreatedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Created)
}
