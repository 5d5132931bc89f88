package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/authz"
	"checkout-service/internal/inventory"
	"checkout-service/internal/loyalty"
	"checkout-service/internal/models"
	"checkout-service/internal/ordernumber"
	"checkout-service/internal/payment"
	"checkout-service/internal/pricing"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Flow selects which checkout rules apply.
type Flow struct {
	Name                 string
	RequiresAuth         bool
	TableRequired        bool
	LoyaltyEnabled       bool
	PaymentSplitRequired bool
}

var (
	FlowStandard = Flow{Name: "standard", RequiresAuth: true}
	FlowCart     = Flow{Name: "cart", RequiresAuth: true}
	FlowGuest    = Flow{Name: "guest", TableRequired: true}
	FlowCheckout = Flow{Name: "checkout", RequiresAuth: true, LoyaltyEnabled: true, PaymentSplitRequired: true}
)

// ItemRequest is one requested order line.
type ItemRequest struct {
	ProductID  int64   `json:"product_id" binding:"required"`
	Quantity   int     `json:"quantity"`
	ToppingIDs []int64 `json:"topping_ids"`
	DrinkType  string  `json:"drink_type"`
}

// CheckoutInput carries everything any flow may need. Fields a flow does not
// use must be left empty.
type CheckoutInput struct {
	ShopID         int64
	TableNumber    string
	Items          []ItemRequest
	Recipient      models.Recipient
	PaymentMethod  string
	PointsToUse    int64
	Payments       []payment.Split
	IdempotencyKey string
}

// OrderService runs checkouts and the order lifecycle.
type OrderService struct {
	repo       Repository
	calculator *pricing.Calculator
	stock      *inventory.Ledger
	points     *loyalty.Ledger
	numbers    *ordernumber.Generator
	payments   *payment.Validator
	idem       Idempotency
	notifier   Notifier
	idemTTL    time.Duration
	logger     *zap.Logger
}

// NewOrderService creates a new order service. idem and notifier may be nil.
func NewOrderService(
	repo Repository,
	numbers *ordernumber.Generator,
	points *loyalty.Ledger,
	idem Idempotency,
	notifier Notifier,
	idemTTL time.Duration,
) *OrderService {
	return &OrderService{
		repo:       repo,
		calculator: pricing.NewCalculator(),
		stock:      inventory.NewLedger(),
		points:     points,
		numbers:    numbers,
		payments:   payment.NewValidator(),
		idem:       idem,
		notifier:   notifier,
		idemTTL:    idemTTL,
		logger:     util.Named("orders"),
	}
}

// CreateOrder places a single-shop order for the signed-in user, paid with
// one method (cash unless another code is given).
func (s *OrderService) CreateOrder(ctx context.Context, p authz.Principal, in CheckoutInput) (*models.Order, error) {
	return s.Checkout(ctx, p, FlowStandard, in)
}

// CreateGuestOrder places an order at a table without an account.
func (s *OrderService) CreateGuestOrder(ctx context.Context, p authz.Principal, in CheckoutInput) (*models.Order, error) {
	return s.Checkout(ctx, p, FlowGuest, in)
}

// CheckoutWithPointsAndPayment redeems points, validates the payment split
// and credits earned points.
func (s *OrderService) CheckoutWithPointsAndPayment(ctx context.Context, p authz.Principal, in CheckoutInput) (*models.Order, error) {
	return s.Checkout(ctx, p, FlowCheckout, in)
}

// Checkout places one order under flow's rules in a single transaction.
func (s *OrderService) Checkout(ctx context.Context, p authz.Principal, flow Flow, in CheckoutInput) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout",
		attribute.String("flow", flow.Name),
		attribute.Int64("shop_id", in.ShopID))
	start := time.Now()
	defer func() {
		s.observe(flow, start, err)
		util.EndSpan(span, err)
	}()

	if err = authorizeFlow(p, flow); err != nil {
		return nil, err
	}
	if err = validateInput(flow, in); err != nil {
		return nil, err
	}
	in.IdempotencyKey = scopedKey(p, in.IdempotencyKey)

	orders, replayed, err := s.withIdempotency(ctx, p, in.IdempotencyKey, func() ([]*models.Order, error) {
		var placed *models.Order
		txErr := s.repo.WithTx(ctx, func(tx Tx) error {
			var e error
			placed, e = s.place(ctx, tx, p, flow, in)
			return e
		})
		if txErr != nil {
			return nil, txErr
		}
		return []*models.Order{placed}, nil
	})
	if err != nil {
		err = classify(err)
		return nil, err
	}

	order = orders[0]
	if !replayed {
		util.OrdersCreatedTotal.WithLabelValues(flow.Name).Inc()
		s.logger.Info("Order created",
			zap.String("flow", flow.Name),
			zap.Int64("order_id", order.ID),
			zap.String("order_number", order.OrderNumber),
			zap.String("total", order.TotalPrice.StringFixed(2)))
		s.publishCreated(ctx, order)
	}
	return order, nil
}

// CreateCartOrder splits items by shop and places one order per shop. All
// orders commit together or none do.
func (s *OrderService) CreateCartOrder(ctx context.Context, p authz.Principal, in CheckoutInput) (orders []*models.Order, err error) {
	flow := FlowCart
	ctx, span := util.StartSpan(ctx, "OrderService.CreateCartOrder", attribute.Int("items", len(in.Items)))
	start := time.Now()
	defer func() {
		s.observe(flow, start, err)
		util.EndSpan(span, err)
	}()

	if err = authorizeFlow(p, flow); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		err = apperr.Validation("order has no items")
		return nil, err
	}
	if in.PointsToUse != 0 || len(in.Payments) > 0 {
		err = apperr.Validation("points and payment splits are not supported for cart orders")
		return nil, err
	}
	in.IdempotencyKey = scopedKey(p, in.IdempotencyKey)

	orders, replayed, err := s.withIdempotency(ctx, p, in.IdempotencyKey, func() ([]*models.Order, error) {
		var placed []*models.Order
		txErr := s.repo.WithTx(ctx, func(tx Tx) error {
			groups, e := groupByShop(ctx, tx, in.Items)
			if e != nil {
				return e
			}
			placed = placed[:0]
			for _, g := range groups {
				group := in
				group.ShopID = g.shopID
				group.Items = g.items
				order, e := s.place(ctx, tx, p, flow, group)
				if e != nil {
					return e
				}
				placed = append(placed, order)
			}
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		return placed, nil
	})
	if err != nil {
		err = classify(err)
		return nil, err
	}

	if !replayed {
		util.OrdersCreatedTotal.WithLabelValues(flow.Name).Add(float64(len(orders)))
		for _, order := range orders {
			s.logger.Info("Cart order created",
				zap.Int64("order_id", order.ID),
				zap.Int64("shop_id", order.ShopID),
				zap.String("order_number", order.OrderNumber))
			s.publishCreated(ctx, order)
		}
	}
	return orders, nil
}

// place runs the checkout steps inside tx.
func (s *OrderService) place(ctx context.Context, tx Tx, p authz.Principal, flow Flow, in CheckoutInput) (*models.Order, error) {
	shop, err := tx.GetShop(ctx, in.ShopID)
	if err != nil {
		return nil, err
	}
	if !shop.IsActive {
		return nil, apperr.Validation("shop %d is not accepting orders", shop.ID)
	}

	order := &models.Order{
		ShopID:           shop.ID,
		Status:           models.OrderStatusPending,
		RecipientName:    in.Recipient.Name,
		RecipientPhone:   in.Recipient.Phone,
		RecipientAddress: in.Recipient.Address,
		DeliveryNote:     in.Recipient.Note,
		IdempotencyKey:   in.IdempotencyKey,
	}

	if flow.TableRequired {
		table, err := claimTable(ctx, tx, shop, in.TableNumber)
		if err != nil {
			return nil, err
		}
		order.TableID = &table.ID
		order.TableNumber = table.TableNumber
		order.ApplyCustomer(models.GuestCustomer{Contact: in.Recipient})
	} else {
		order.ApplyCustomer(models.AuthenticatedCustomer{UserID: p.UserID})
	}

	lines, err := s.priceItems(ctx, tx, shop, in.Items)
	if err != nil {
		return nil, err
	}
	total := s.calculator.Total(lines)
	if !total.IsPositive() {
		return nil, apperr.Validation("order total must be greater than zero")
	}

	if err := s.stock.DecrementAll(ctx, tx, quantities(lines)); err != nil {
		return nil, err
	}

	order.TotalPrice = total
	order.PointsUsed = in.PointsToUse
	amountDue := order.AmountDue()
	if flow.LoyaltyEnabled {
		order.PointsEarned = s.points.PointsFor(shop, amountDue)
	}

	splits, methods, err := s.resolvePayments(ctx, tx, shop.ID, flow, in, amountDue)
	if err != nil {
		return nil, err
	}
	order.PaymentMethod = paymentLabel(splits, methods)
	order.Items = orderItems(lines)
	order.Payments = orderPayments(splits)

	number, err := s.numbers.Next(ctx, tx, shop)
	if err != nil {
		return nil, err
	}
	order.OrderNumber = number

	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	if flow.LoyaltyEnabled {
		ref := loyalty.Reference{OrderID: order.ID, ShopID: shop.ID}
		if order.PointsUsed > 0 {
			ref.Description = fmt.Sprintf("Redeemed on order %s", order.OrderNumber)
			if _, err := s.points.Use(ctx, tx, p.UserID, order.PointsUsed, ref); err != nil {
				return nil, err
			}
		}
		ref.Description = fmt.Sprintf("Earned on order %s", order.OrderNumber)
		if _, err := s.points.Earn(ctx, tx, p.UserID, shop, amountDue, ref); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func claimTable(ctx context.Context, tx Tx, shop *models.Shop, tableNumber string) (*models.Table, error) {
	if !shop.TableOrderingEnabled {
		return nil, apperr.Validation("shop %d does not accept table orders", shop.ID)
	}
	table, err := tx.GetTableByNumber(ctx, shop.ID, tableNumber)
	if err != nil {
		return nil, err
	}
	if table.Status == models.TableStatusAvailable {
		if err := tx.SetTableStatus(ctx, table.ID, models.TableStatusOccupied); err != nil {
			return nil, fmt.Errorf("failed to occupy table: %w", err)
		}
		table.Status = models.TableStatusOccupied
	}
	return table, nil
}

// priceItems loads the catalog rows a request touches and prices each line.
func (s *OrderService) priceItems(ctx context.Context, tx Tx, shop *models.Shop, items []ItemRequest) ([]*pricing.Line, error) {
	productIDs := make([]int64, 0, len(items))
	var toppingIDs []int64
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
		toppingIDs = append(toppingIDs, item.ToppingIDs...)
	}
	productIDs = uniqueIDs(productIDs)
	toppingIDs = uniqueIDs(toppingIDs)

	products, err := tx.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	toppings := make(map[int64]*models.Topping, len(toppingIDs))
	overrides := make(map[int64]map[int64]decimal.NullDecimal)
	if len(toppingIDs) > 0 {
		rows, err := tx.GetToppingsByIDs(ctx, toppingIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load toppings: %w", err)
		}
		for i := range rows {
			toppings[rows[i].ID] = &rows[i]
		}

		links, err := tx.GetProductToppings(ctx, productIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load topping prices: %w", err)
		}
		for _, l := range links {
			if overrides[l.ProductID] == nil {
				overrides[l.ProductID] = map[int64]decimal.NullDecimal{}
			}
			overrides[l.ProductID][l.ToppingID] = l.Price
		}
	}

	lines := make([]*pricing.Line, 0, len(items))
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, apperr.NotFound("product %d not found", item.ProductID).WithDetail("product_id", item.ProductID)
		}
		line, err := s.calculator.PriceLine(pricing.Input{
			Shop:       shop,
			Product:    product,
			Quantity:   item.Quantity,
			ToppingIDs: item.ToppingIDs,
			Toppings:   toppings,
			Overrides:  overrides[product.ID],
			DrinkType:  item.DrinkType,
		})
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

type methodSource interface {
	ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
	GetShopPaymentMethodIDs(ctx context.Context, shopID int64) ([]int64, error)
}

func loadMethods(ctx context.Context, src methodSource, shopID int64) (payment.Methods, error) {
	all, err := src.ListPaymentMethods(ctx)
	if err != nil {
		return payment.Methods{}, fmt.Errorf("failed to load payment methods: %w", err)
	}
	enabledIDs, err := src.GetShopPaymentMethodIDs(ctx, shopID)
	if err != nil {
		return payment.Methods{}, fmt.Errorf("failed to load shop payment methods: %w", err)
	}

	methods := payment.Methods{
		All:     make(map[int64]*models.PaymentMethod, len(all)),
		Enabled: make(map[int64]bool, len(enabledIDs)),
	}
	for i := range all {
		methods.All[all[i].ID] = &all[i]
	}
	for _, id := range enabledIDs {
		methods.Enabled[id] = true
	}
	return methods, nil
}

// resolvePayments validates the requested split, or builds a single payment
// of the whole amount when the flow allows omitting it.
func (s *OrderService) resolvePayments(ctx context.Context, tx Tx, shopID int64, flow Flow, in CheckoutInput, amountDue decimal.Decimal) ([]payment.Split, payment.Methods, error) {
	methods, err := loadMethods(ctx, tx, shopID)
	if err != nil {
		return nil, methods, err
	}

	splits := in.Payments
	if len(splits) == 0 {
		if flow.PaymentSplitRequired {
			return nil, methods, apperr.Validation("payment splits are required")
		}
		code := in.PaymentMethod
		if code == "" {
			code = models.PaymentMethodCash
		}
		pm, ok := methods.ByCode(code)
		if !ok {
			return nil, methods, apperr.NotFound("payment method %q not found", code)
		}
		splits = []payment.Split{{PaymentMethodID: pm.ID, Amount: amountDue}}
	}

	if err := s.payments.Validate(splits, amountDue, methods); err != nil {
		return nil, methods, err
	}
	return splits, methods, nil
}

func paymentLabel(splits []payment.Split, methods payment.Methods) string {
	if len(splits) == 1 {
		if pm, ok := methods.All[splits[0].PaymentMethodID]; ok {
			return pm.Code
		}
	}
	return "split"
}

func orderItems(lines []*pricing.Line) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		item := models.OrderItem{
			ProductID:   l.Product.ID,
			ProductName: l.Product.Name,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DrinkType:   l.DrinkType,
			DrinkPrice:  l.DrinkPrice,
		}
		for _, t := range l.Toppings {
			item.Toppings = append(item.Toppings, models.OrderItemTopping{
				ToppingID: t.Topping.ID,
				Name:      t.Topping.Name,
				Price:     t.Price,
			})
		}
		items = append(items, item)
	}
	return items
}

func orderPayments(splits []payment.Split) []models.OrderPayment {
	out := make([]models.OrderPayment, 0, len(splits))
	for _, sp := range splits {
		out = append(out, models.OrderPayment{
			PaymentMethodID: sp.PaymentMethodID,
			Amount:          sp.Amount,
			Status:          models.PaymentStatusPending,
		})
	}
	return out
}

func quantities(lines []*pricing.Line) map[int64]int {
	q := make(map[int64]int, len(lines))
	for _, l := range lines {
		q[l.Product.ID] += l.Quantity
	}
	return q
}

type shopGroup struct {
	shopID int64
	items  []ItemRequest
}

// groupByShop buckets items by their product's shop, ordered by shop id.
func groupByShop(ctx context.Context, tx Tx, items []ItemRequest) ([]shopGroup, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := tx.GetProductsByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	shopOf := make(map[int64]int64, len(products))
	for _, p := range products {
		shopOf[p.ID] = p.ShopID
	}

	byShop := map[int64][]ItemRequest{}
	for _, item := range items {
		shopID, ok := shopOf[item.ProductID]
		if !ok {
			return nil, apperr.NotFound("product %d not found", item.ProductID).WithDetail("product_id", item.ProductID)
		}
		byShop[shopID] = append(byShop[shopID], item)
	}

	groups := make([]shopGroup, 0, len(byShop))
	for shopID, group := range byShop {
		groups = append(groups, shopGroup{shopID: shopID, items: group})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].shopID < groups[j].shopID })
	return groups, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func authorizeFlow(p authz.Principal, flow Flow) error {
	if flow.RequiresAuth {
		return authz.Require(p, authz.ActionPlaceOrder, authz.Resource{})
	}
	return authz.Require(p, authz.ActionPlaceGuestOrder, authz.Resource{})
}

func validateInput(flow Flow, in CheckoutInput) error {
	switch {
	case in.ShopID <= 0:
		return apperr.Validation("shop_id is required")
	case len(in.Items) == 0:
		return apperr.Validation("order has no items")
	case flow.TableRequired && in.TableNumber == "":
		return apperr.Validation("table_number is required")
	case in.PointsToUse < 0:
		return apperr.Validation("points_to_use must not be negative")
	case in.PointsToUse > 0 && !flow.LoyaltyEnabled:
		return apperr.Validation("points cannot be used for this order")
	case flow.PaymentSplitRequired && len(in.Payments) == 0:
		return apperr.Validation("payment splits are required")
	}
	return nil
}

// scopedKey namespaces an idempotency key by user. Guests share no identity
// to scope by, so their keys are dropped and every guest request is placed.
func scopedKey(p authz.Principal, key string) string {
	if key == "" || p.IsGuest() {
		return ""
	}
	return fmt.Sprintf("%d:%s", p.UserID, key)
}

// withIdempotency replays the orders a key already produced, and holds a lock
// on the key while run executes.
func (s *OrderService) withIdempotency(ctx context.Context, p authz.Principal, key string, run func() ([]*models.Order, error)) ([]*models.Order, bool, error) {
	if key == "" {
		orders, err := run()
		return orders, false, err
	}

	if existing, err := s.existingOrders(ctx, p, key); err != nil || existing != nil {
		return existing, existing != nil, err
	}

	if s.idem != nil {
		lockKey := "checkout:" + key
		token, ok, err := s.idem.AcquireLock(ctx, lockKey, s.idemTTL)
		if err != nil {
			return nil, false, apperr.Persistence(fmt.Errorf("failed to acquire idempotency lock: %w", err))
		}
		if !ok {
			return nil, false, apperr.Conflict("a request with this idempotency key is already in progress")
		}
		defer func() {
			if err := s.idem.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.logger.Warn("Failed to release idempotency lock", zap.String("key", key), zap.Error(err))
			}
		}()

		// another request may have committed between the lookup and the lock
		if existing, err := s.existingOrders(ctx, p, key); err != nil || existing != nil {
			return existing, existing != nil, err
		}
	}

	orders, err := run()
	return orders, false, err
}

func (s *OrderService) existingOrders(ctx context.Context, p authz.Principal, key string) ([]*models.Order, error) {
	found, err := s.repo.GetOrdersByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	for i := range found {
		if found[i].IsGuest || found[i].UserID == nil || *found[i].UserID != p.UserID {
			return nil, apperr.Conflict("idempotency key belongs to another request")
		}
	}
	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", found[0].ID))
	out := make([]*models.Order, len(found))
	for i := range found {
		out[i] = &found[i]
	}
	return out, nil
}

// classify makes sure every error carries one of the apperr kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if apperr.Kind(err) == apperr.ErrPersistence && !errors.Is(err, apperr.ErrPersistence) {
		return apperr.Persistence(err)
	}
	return err
}

func (s *OrderService) observe(flow Flow, start time.Time, err error) {
	util.CheckoutLatency.WithLabelValues(flow.Name).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	reason := apperr.Kind(err).Error()
	util.CheckoutFailuresTotal.WithLabelValues(flow.Name, reason).Inc()
	if errors.Is(err, apperr.ErrPersistence) {
		s.logger.Error("Checkout failed", zap.String("flow", flow.Name), zap.Error(err))
		return
	}
	s.logger.Info("Checkout rejected", zap.String("flow", flow.Name), zap.String("reason", reason), zap.Error(err))
}
