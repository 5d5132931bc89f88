// Package storetest provides in-memory implementations of the persistence
// and infrastructure interfaces for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/service"

	"github.com/shopspring/decimal"
)

type state struct {
	shops           map[int64]models.Shop
	products        map[int64]models.Product
	toppings        map[int64]models.Topping
	productToppings []models.ProductTopping
	tables          map[int64]models.Table
	methods         map[int64]models.PaymentMethod
	shopMethods     map[int64][]int64
	users           map[int64]models.User
	orders          map[int64]models.Order
	points          []models.PointTransaction
	sequences       map[string]int64
	nextID          int64
}

func newState() *state {
	return &state{
		shops:       map[int64]models.Shop{},
		products:    map[int64]models.Product{},
		toppings:    map[int64]models.Topping{},
		tables:      map[int64]models.Table{},
		methods:     map[int64]models.PaymentMethod{},
		shopMethods: map[int64][]int64{},
		users:       map[int64]models.User{},
		orders:      map[int64]models.Order{},
		sequences:   map[string]int64{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		shops:           cloneMap(s.shops),
		products:        cloneMap(s.products),
		toppings:        cloneMap(s.toppings),
		productToppings: append([]models.ProductTopping(nil), s.productToppings...),
		tables:          cloneMap(s.tables),
		methods:         cloneMap(s.methods),
		shopMethods:     cloneMap(s.shopMethods),
		users:           cloneMap(s.users),
		orders:          cloneMap(s.orders),
		points:          append([]models.PointTransaction(nil), s.points...),
		sequences:       cloneMap(s.sequences),
		nextID:          s.nextID,
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// MemStore is an in-memory service.Repository. Transactions are serialized
// and rolled back by restoring a snapshot.
type MemStore struct {
	mu    sync.Mutex
	state *state

	// FailOn makes the named Tx method fail with the given error.
	FailOn map[string]error
	Now    func() time.Time
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		state:  newState(),
		FailOn: map[string]error{},
		Now:    time.Now,
	}
}

var _ service.Repository = (*MemStore)(nil)

// WithTx runs fn with exclusive access to the store.
func (m *MemStore) WithTx(_ context.Context, fn func(tx service.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemStore) fail(method string) error {
	return m.FailOn[method]
}

// Seeding

func (m *MemStore) AddShop(shop models.Shop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.shops[shop.ID] = shop
}

func (m *MemStore) AddProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = p
}

func (m *MemStore) AddTopping(t models.Topping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.toppings[t.ID] = t
}

// LinkTopping attaches a topping to a product, optionally overriding its price.
func (m *MemStore) LinkTopping(productID, toppingID int64, price *decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link := models.ProductTopping{ProductID: productID, ToppingID: toppingID}
	if price != nil {
		link.Price = decimal.NewNullDecimal(*price)
	}
	m.state.productToppings = append(m.state.productToppings, link)
}

func (m *MemStore) AddTable(t models.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.tables[t.ID] = t
}

func (m *MemStore) AddPaymentMethod(pm models.PaymentMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.methods[pm.ID] = pm
}

func (m *MemStore) EnableShopMethods(shopID int64, ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.shopMethods[shopID] = ids
}

// AddUser registers a user. A positive opening balance is recorded as an
// earn transaction so the ledger always sums to the balance.
func (m *MemStore) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Points > 0 {
		m.state.points = append(m.state.points, models.PointTransaction{
			ID:          m.state.id(),
			UserID:      u.ID,
			Type:        models.PointTypeEarn,
			Points:      u.Points,
			Balance:     u.Points,
			Description: "opening balance",
			CreatedAt:   m.Now(),
		})
	}
	m.state.users[u.ID] = u
}

// SetProductPrice edits the catalog price after the fact.
func (m *MemStore) SetProductPrice(id int64, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.state.products[id]
	p.UnitPrice = price
	m.state.products[id] = p
}

// Inspection

func (m *MemStore) Product(id int64) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.products[id]
}

func (m *MemStore) Table(id int64) models.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.tables[id]
}

func (m *MemStore) User(id int64) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.users[id]
}

// Orders returns every stored order ordered by id.
func (m *MemStore) Orders() []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Order, 0, len(m.state.orders))
	for _, o := range m.state.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PointTransactions returns a user's ledger in insertion order.
func (m *MemStore) PointTransactions(userID int64) []models.PointTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PointTransaction
	for _, t := range m.state.points {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// Reader

func (m *MemStore) GetShop(_ context.Context, id int64) (*models.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getShop(id)
}

func (m *MemStore) ListShopIDsByOwner(_ context.Context, ownerID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, s := range m.state.shops {
		if s.OwnerID == ownerID {
			ids = append(ids, s.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.productsByIDs(ids), nil
}

func (m *MemStore) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getOrder(id)
}

func (m *MemStore) GetOrdersByIdempotencyKey(_ context.Context, key string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.state.orders {
		if key != "" && o.IdempotencyKey == key {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) ListOrders(_ context.Context, f models.OrderFilter) ([]models.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := map[int64]bool{}
	for _, id := range f.ShopIDs {
		allowed[id] = true
	}

	var matched []models.Order
	for _, o := range m.state.orders {
		switch {
		case len(f.ShopIDs) > 0 && !allowed[o.ShopID]:
		case f.UserID != nil && (o.UserID == nil || *o.UserID != *f.UserID):
		case f.ShopID != 0 && o.ShopID != f.ShopID:
		case f.Status != "" && o.Status != f.Status:
		default:
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return paginate(matched, f.Page, f.PerPage), len(matched), nil
}

func (m *MemStore) ListPaymentMethods(_ context.Context) ([]models.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listMethods(), nil
}

func (m *MemStore) GetShopPaymentMethodIDs(_ context.Context, shopID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.state.shopMethods[shopID]...), nil
}

func (m *MemStore) GetUserPoints(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[userID]
	if !ok {
		return 0, apperr.NotFound("user %d not found", userID)
	}
	return u.Points, nil
}

func (m *MemStore) ListPointTransactions(_ context.Context, f models.PointFilter) ([]models.PointTransaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.PointTransaction
	for _, t := range m.state.points {
		switch {
		case t.UserID != f.UserID:
		case f.Type != "" && t.Type != f.Type:
		case f.ShopID != 0 && (t.ShopID == nil || *t.ShopID != f.ShopID):
		default:
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return paginate(matched, f.Page, f.PerPage), len(matched), nil
}

func paginate[T any](items []T, page, perPage int) []T {
	page, perPage = models.NormalizePaging(page, perPage)
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// shared lookups

func (s *state) getShop(id int64) (*models.Shop, error) {
	shop, ok := s.shops[id]
	if !ok {
		return nil, apperr.NotFound("shop %d not found", id)
	}
	return &shop, nil
}

func (s *state) getOrder(id int64) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %d not found", id)
	}
	return &o, nil
}

func (s *state) productsByIDs(ids []int64) []models.Product {
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *state) listMethods() []models.PaymentMethod {
	out := make([]models.PaymentMethod, 0, len(s.methods))
	for _, pm := range s.methods {
		out = append(out, pm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memTx struct {
	m *MemStore
}

func (t *memTx) st() *state { return t.m.state }

func (t *memTx) GetShop(_ context.Context, id int64) (*models.Shop, error) {
	if err := t.m.fail("GetShop"); err != nil {
		return nil, err
	}
	return t.st().getShop(id)
}

func (t *memTx) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	if err := t.m.fail("GetProductsByIDs"); err != nil {
		return nil, err
	}
	return t.st().productsByIDs(ids), nil
}

func (t *memTx) GetToppingsByIDs(_ context.Context, ids []int64) ([]models.Topping, error) {
	out := make([]models.Topping, 0, len(ids))
	for _, id := range ids {
		if tp, ok := t.st().toppings[id]; ok {
			out = append(out, tp)
		}
	}
	return out, nil
}

func (t *memTx) GetProductToppings(_ context.Context, productIDs []int64) ([]models.ProductTopping, error) {
	want := map[int64]bool{}
	for _, id := range productIDs {
		want[id] = true
	}
	var out []models.ProductTopping
	for _, l := range t.st().productToppings {
		if want[l.ProductID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *memTx) GetTableByNumber(_ context.Context, shopID int64, number string) (*models.Table, error) {
	for _, tbl := range t.st().tables {
		if tbl.ShopID == shopID && tbl.TableNumber == number {
			found := tbl
			return &found, nil
		}
	}
	return nil, apperr.NotFound("table %s not found", number)
}

func (t *memTx) SetTableStatus(_ context.Context, tableID int64, status string) error {
	tbl, ok := t.st().tables[tableID]
	if !ok {
		return apperr.NotFound("table %d not found", tableID)
	}
	tbl.Status = status
	t.st().tables[tableID] = tbl
	return nil
}

func (t *memTx) ListPaymentMethods(_ context.Context) ([]models.PaymentMethod, error) {
	return t.st().listMethods(), nil
}

func (t *memTx) GetShopPaymentMethodIDs(_ context.Context, shopID int64) ([]int64, error) {
	return append([]int64(nil), t.st().shopMethods[shopID]...), nil
}

func (t *memTx) ReplaceShopPaymentMethods(_ context.Context, shopID int64, ids []int64) error {
	t.st().shopMethods[shopID] = append([]int64(nil), ids...)
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, quantity int) (int, bool, error) {
	if err := t.m.fail("DecrementStock"); err != nil {
		return 0, false, err
	}
	p, ok := t.st().products[productID]
	if !ok {
		return 0, false, apperr.NotFound("product %d not found", productID)
	}
	if p.StockQuantity < quantity {
		return p.StockQuantity, false, nil
	}
	p.StockQuantity -= quantity
	t.st().products[productID] = p
	return p.StockQuantity, true, nil
}

func (t *memTx) LockUserPoints(_ context.Context, userID int64) (int64, error) {
	u, ok := t.st().users[userID]
	if !ok {
		return 0, apperr.NotFound("user %d not found", userID)
	}
	return u.Points, nil
}

func (t *memTx) SetUserPoints(_ context.Context, userID, points int64) error {
	u := t.st().users[userID]
	u.Points = points
	t.st().users[userID] = u
	return nil
}

func (t *memTx) InsertPointTransaction(_ context.Context, pt *models.PointTransaction) error {
	if err := t.m.fail("InsertPointTransaction"); err != nil {
		return err
	}
	pt.ID = t.st().id()
	pt.CreatedAt = t.m.Now()
	t.st().points = append(t.st().points, *pt)
	return nil
}

func (t *memTx) NextOrderSequence(_ context.Context, shopID int64, day time.Time) (int64, error) {
	key := fmt.Sprintf("%d/%s", shopID, day.Format("2006-01-02"))
	t.st().sequences[key]++
	return t.st().sequences[key], nil
}

func (t *memTx) InsertOrder(_ context.Context, o *models.Order) error {
	if err := t.m.fail("InsertOrder"); err != nil {
		return err
	}
	for _, existing := range t.st().orders {
		if existing.OrderNumber == o.OrderNumber {
			return apperr.Conflict("order number %s already exists", o.OrderNumber)
		}
	}

	now := t.m.Now()
	o.ID = t.st().id()
	o.CreatedAt = now
	o.UpdatedAt = now

	items := make([]models.OrderItem, len(o.Items))
	for i, item := range o.Items {
		item.ID = t.st().id()
		item.OrderID = o.ID
		toppings := make([]models.OrderItemTopping, len(item.Toppings))
		for j, tp := range item.Toppings {
			tp.OrderItemID = item.ID
			toppings[j] = tp
		}
		item.Toppings = toppings
		items[i] = item
	}
	o.Items = items

	payments := make([]models.OrderPayment, len(o.Payments))
	for i, p := range o.Payments {
		p.ID = t.st().id()
		p.OrderID = o.ID
		payments[i] = p
	}
	o.Payments = payments

	t.st().orders[o.ID] = *o
	return nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, id int64) (*models.Order, error) {
	return t.st().getOrder(id)
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id int64, status string) (time.Time, error) {
	o, ok := t.st().orders[id]
	if !ok {
		return time.Time{}, apperr.NotFound("order %d not found", id)
	}
	o.Status = status
	o.UpdatedAt = t.m.Now()
	t.st().orders[id] = o
	return o.UpdatedAt, nil
}
