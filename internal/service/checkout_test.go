package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/authz"
	"checkout-service/internal/loyalty"
	"checkout-service/internal/models"
	"checkout-service/internal/ordernumber"
	"checkout-service/internal/payment"
	"checkout-service/internal/service"
	"checkout-service/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shopID      = int64(1)
	otherShopID = int64(2)
	ownerID     = int64(100)
	customerID  = int64(500)
	cashID      = int64(1)
	linePayID   = int64(2)
	cardID      = int64(3)
)

var (
	customer = authz.Principal{UserID: customerID, Role: models.RoleCustomer}
	owner    = authz.Principal{UserID: ownerID, Role: models.RoleStoreAdmin}
	admin    = authz.Principal{UserID: 1, Role: models.RoleAdmin}
	day      = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store    *storetest.MemStore
	locker   *storetest.Locker
	notifier *storetest.Notifier
	svc      *service.OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := storetest.NewMemStore()
	st.AddShop(models.Shop{ID: shopID, OwnerID: ownerID, Name: "Tea House", PointsRate: 30,
		MaxToppingsPerOrder: 2, OrderCode: "TH", TableOrderingEnabled: true, IsActive: true})
	st.AddShop(models.Shop{ID: otherShopID, OwnerID: 200, Name: "Noodle Bar", PointsRate: 10,
		MaxToppingsPerOrder: 3, IsActive: true})

	st.AddProduct(models.Product{ID: 10, ShopID: shopID, Name: "Milk Tea", UnitPrice: d("100"),
		StockQuantity: 10, IsActive: true, HasColdDrink: true, ColdDrinkPrice: d("15")})
	st.AddProduct(models.Product{ID: 11, ShopID: shopID, Name: "Tea Set", UnitPrice: d("350"),
		DiscountedPrice: decimal.NewNullDecimal(d("300")), StockQuantity: 5, IsActive: true})
	st.AddProduct(models.Product{ID: 12, ShopID: shopID, Name: "Seasonal Cake", UnitPrice: d("50"),
		StockQuantity: 1, IsActive: true})
	st.AddProduct(models.Product{ID: 20, ShopID: otherShopID, Name: "Ramen", UnitPrice: d("80"),
		StockQuantity: 3, IsActive: true})

	st.AddTopping(models.Topping{ID: 1, ShopID: shopID, Name: "Pearls", Price: d("10"), IsActive: true})
	st.AddTopping(models.Topping{ID: 2, ShopID: shopID, Name: "Ice", Price: d("0"), IsActive: true})
	st.AddTopping(models.Topping{ID: 3, ShopID: shopID, Name: "Pudding", Price: d("5"), IsActive: true})
	st.LinkTopping(10, 1, nil)
	st.LinkTopping(10, 2, nil)
	st.LinkTopping(10, 3, nil)

	st.AddTable(models.Table{ID: 1, ShopID: shopID, TableNumber: "A1", Status: models.TableStatusAvailable})

	st.AddPaymentMethod(models.PaymentMethod{ID: cashID, Code: models.PaymentMethodCash, Name: "Cash", IsActive: true})
	st.AddPaymentMethod(models.PaymentMethod{ID: linePayID, Code: "line_pay", Name: "LINE Pay", IsActive: true})
	st.AddPaymentMethod(models.PaymentMethod{ID: cardID, Code: "card", Name: "Card", IsActive: false})

	st.AddUser(models.User{ID: customerID, Name: "Mei", Role: models.RoleCustomer, Points: 50})

	locker := storetest.NewLocker()
	notifier := &storetest.Notifier{}
	gen := ordernumber.NewGenerator("ORDER", time.UTC, ordernumber.WithClock(func() time.Time { return day }))
	svc := service.NewOrderService(st, gen, loyalty.NewLedger(30), locker, notifier, time.Minute)

	return &fixture{store: st, locker: locker, notifier: notifier, svc: svc}
}

func (f *fixture) assertLedgerConsistent(t *testing.T, userID int64) {
	t.Helper()
	var running int64
	for _, tx := range f.store.PointTransactions(userID) {
		running += tx.Points
		assert.Equal(t, running, tx.Balance, "running balance of transaction %d", tx.ID)
	}
	assert.Equal(t, running, f.store.User(userID).Points)
}

func assertOrderTotals(t *testing.T, o *models.Order) {
	t.Helper()
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.LineTotal())
	}
	assert.True(t, o.TotalPrice.Equal(sum), "total %s != items %s", o.TotalPrice, sum)

	paid := decimal.Zero
	for _, p := range o.Payments {
		paid = paid.Add(p.Amount)
	}
	assert.True(t, paid.Equal(o.AmountDue()), "paid %s != due %s", paid, o.AmountDue())
}

func TestCreateOrderPricesToppingsAndDecrementsStock(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
		ShopID: shopID,
		Items:  []service.ItemRequest{{ProductID: 10, Quantity: 2, ToppingIDs: []int64{1, 2}}},
	})
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.True(t, item.UnitPrice.Equal(d("110")))
	assert.True(t, order.TotalPrice.Equal(d("220")))
	require.Len(t, item.Toppings, 2)
	assert.Equal(t, "$10.00", item.Toppings[0].DisplayPrice())
	assert.Equal(t, "FREE", item.Toppings[1].DisplayPrice())

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "ORDERTH2024030500001", order.OrderNumber)
	assert.Equal(t, models.PaymentMethodCash, order.PaymentMethod)
	assert.Equal(t, models.AuthenticatedCustomer{UserID: customerID}, order.Customer())
	assert.Equal(t, 8, f.store.Product(10).StockQuantity)
	assertOrderTotals(t, order)

	assert.Zero(t, order.PointsEarned)
	assert.Len(t, f.store.PointTransactions(customerID), 1, "standard orders do not touch the ledger")
	assert.Equal(t, 1, f.notifier.CreatedCount())
}

func TestCreateOrderRejectsTooManyToppings(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
		ShopID: shopID,
		Items:  []service.ItemRequest{{ProductID: 10, Quantity: 1, ToppingIDs: []int64{1, 2, 3}}},
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 10, f.store.Product(10).StockQuantity)
	assert.Empty(t, f.store.Orders())
	assert.Zero(t, f.notifier.CreatedCount())
}

func TestCreateOrderRejections(t *testing.T) {
	tests := []struct {
		name    string
		p       authz.Principal
		in      service.CheckoutInput
		wantErr error
	}{
		{"guest principal", authz.Guest, service.CheckoutInput{ShopID: shopID,
			Items: []service.ItemRequest{{ProductID: 10, Quantity: 1}}}, apperr.ErrUnauthenticated},
		{"no items", customer, service.CheckoutInput{ShopID: shopID}, apperr.ErrValidation},
		{"unknown shop", customer, service.CheckoutInput{ShopID: 99,
			Items: []service.ItemRequest{{ProductID: 10, Quantity: 1}}}, apperr.ErrNotFound},
		{"unknown product", customer, service.CheckoutInput{ShopID: shopID,
			Items: []service.ItemRequest{{ProductID: 999, Quantity: 1}}}, apperr.ErrNotFound},
		{"product from another shop", customer, service.CheckoutInput{ShopID: shopID,
			Items: []service.ItemRequest{{ProductID: 20, Quantity: 1}}}, apperr.ErrValidation},
		{"zero quantity", customer, service.CheckoutInput{ShopID: shopID,
			Items: []service.ItemRequest{{ProductID: 10, Quantity: 0}}}, apperr.ErrValidation},
		{"unsupported drink", customer, service.CheckoutInput{ShopID: shopID,
			Items: []service.ItemRequest{{ProductID: 10, Quantity: 1, DrinkType: models.DrinkHot}}}, apperr.ErrValidation},
		{"points outside loyalty flow", customer, service.CheckoutInput{ShopID: shopID, PointsToUse: 5,
			Items: []service.ItemRequest{{ProductID: 10, Quantity: 1}}}, apperr.ErrValidation},
		{"unknown payment method", customer, service.CheckoutInput{ShopID: shopID, PaymentMethod: "barter",
			Items: []service.ItemRequest{{ProductID: 10, Quantity: 1}}}, apperr.ErrNotFound},
		{"more than in stock", customer, service.CheckoutInput{ShopID: shopID,
			Items: []service.ItemRequest{{ProductID: 12, Quantity: 2}}}, apperr.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), tt.p, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.store.Orders())
			assert.Equal(t, 10, f.store.Product(10).StockQuantity)
			assert.Equal(t, 1, f.store.Product(12).StockQuantity)
		})
	}
}

func TestSameProductOnTwoLinesDecrementsCombinedQuantity(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
		ShopID: shopID,
		Items: []service.ItemRequest{
			{ProductID: 10, Quantity: 1},
			{ProductID: 10, Quantity: 2, DrinkType: models.DrinkCold},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, f.store.Product(10).StockQuantity)
}

func TestCheckoutWithPointsAndSplitPayment(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.CheckoutWithPointsAndPayment(context.Background(), customer, service.CheckoutInput{
		ShopID:      shopID,
		Items:       []service.ItemRequest{{ProductID: 11, Quantity: 1}},
		PointsToUse: 50,
		Payments: []payment.Split{
			{PaymentMethodID: cashID, Amount: d("150")},
			{PaymentMethodID: linePayID, Amount: d("100")},
		},
		Recipient: models.Recipient{Name: "Mei", Phone: "0912", Address: "1 Tea St"},
	})
	require.NoError(t, err)

	assert.True(t, order.TotalPrice.Equal(d("300")))
	assert.Equal(t, int64(50), order.PointsUsed)
	assert.True(t, order.AmountDue().Equal(d("250")))
	assert.Equal(t, int64(8), order.PointsEarned)
	assert.Equal(t, "split", order.PaymentMethod)
	assert.Equal(t, "1 Tea St", order.RecipientAddress)
	assertOrderTotals(t, order)

	ledger := f.store.PointTransactions(customerID)
	require.Len(t, ledger, 3)
	assert.Equal(t, models.PointTypeUse, ledger[1].Type)
	assert.Equal(t, int64(-50), ledger[1].Points)
	assert.Equal(t, order.ID, *ledger[1].OrderID)
	assert.Equal(t, models.PointTypeEarn, ledger[2].Type)
	assert.Equal(t, int64(8), ledger[2].Points)
	assert.Equal(t, int64(8), f.store.User(customerID).Points)
	f.assertLedgerConsistent(t, customerID)
}

func TestCheckoutRejectsOverdraftWithoutSideEffects(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckoutWithPointsAndPayment(context.Background(), customer, service.CheckoutInput{
		ShopID:      shopID,
		Items:       []service.ItemRequest{{ProductID: 11, Quantity: 1}},
		PointsToUse: 80,
		Payments:    []payment.Split{{PaymentMethodID: cashID, Amount: d("220")}},
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientPoints)

	assert.Empty(t, f.store.Orders())
	assert.Equal(t, 5, f.store.Product(11).StockQuantity)
	assert.Equal(t, int64(50), f.store.User(customerID).Points)
	assert.Len(t, f.store.PointTransactions(customerID), 1)
}

func TestCheckoutRejectsPaymentMismatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckoutWithPointsAndPayment(context.Background(), customer, service.CheckoutInput{
		ShopID:      shopID,
		Items:       []service.ItemRequest{{ProductID: 11, Quantity: 1}},
		PointsToUse: 50,
		Payments: []payment.Split{
			{PaymentMethodID: cashID, Amount: d("150")},
			{PaymentMethodID: linePayID, Amount: d("99.99")},
		},
	})
	assert.ErrorIs(t, err, apperr.ErrPaymentMismatch)
	assert.Empty(t, f.store.Orders())
	assert.Equal(t, 5, f.store.Product(11).StockQuantity)
	assert.Equal(t, int64(50), f.store.User(customerID).Points)
}

func TestCheckoutRejectsSubCentSplits(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckoutWithPointsAndPayment(context.Background(), customer, service.CheckoutInput{
		ShopID: shopID,
		Items:  []service.ItemRequest{{ProductID: 10, Quantity: 1}},
		Payments: []payment.Split{
			{PaymentMethodID: cashID, Amount: d("50.005")},
			{PaymentMethodID: linePayID, Amount: d("49.995")},
		},
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.store.Orders())
	assert.Equal(t, 10, f.store.Product(10).StockQuantity)
}

func TestCheckoutRequiresSplits(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckoutWithPointsAndPayment(context.Background(), customer, service.CheckoutInput{
		ShopID: shopID,
		Items:  []service.ItemRequest{{ProductID: 11, Quantity: 1}},
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCheckoutRejectsMethodDisabledForShop(t *testing.T) {
	f := newFixture(t)
	f.store.EnableShopMethods(shopID, cashID)

	_, err := f.svc.CheckoutWithPointsAndPayment(context.Background(), customer, service.CheckoutInput{
		ShopID:   shopID,
		Items:    []service.ItemRequest{{ProductID: 10, Quantity: 1}},
		Payments: []payment.Split{{PaymentMethodID: linePayID, Amount: d("100")}},
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPointsCoveringTheWholeTotal(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.CheckoutWithPointsAndPayment(context.Background(), customer, service.CheckoutInput{
		ShopID:      shopID,
		Items:       []service.ItemRequest{{ProductID: 12, Quantity: 1}},
		PointsToUse: 50,
		Payments:    []payment.Split{{PaymentMethodID: cashID, Amount: d("0")}},
	})
	require.NoError(t, err)
	assert.True(t, order.AmountDue().IsZero())
	assert.Zero(t, order.PointsEarned)
	assert.Zero(t, f.store.User(customerID).Points)
	f.assertLedgerConsistent(t, customerID)
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
				ShopID: shopID,
				Items:  []service.ItemRequest{{ProductID: 12, Quantity: 1}},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, outOfStock int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, outOfStock)
	assert.Equal(t, 0, f.store.Product(12).StockQuantity)
	assert.Len(t, f.store.Orders(), 1)
}

func TestConcurrentRedemptionsNeverDoubleSpend(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CheckoutWithPointsAndPayment(context.Background(), customer, service.CheckoutInput{
				ShopID:      shopID,
				Items:       []service.ItemRequest{{ProductID: 10, Quantity: 1}},
				PointsToUse: 30,
				Payments:    []payment.Split{{PaymentMethodID: cashID, Amount: d("70")}},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrInsufficientPoints)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	f.assertLedgerConsistent(t, customerID)
	assert.GreaterOrEqual(t, f.store.User(customerID).Points, int64(0))
}

func TestOrderNumbersIncreasePerShopAndDay(t *testing.T) {
	f := newFixture(t)

	var numbers []string
	for i := 0; i < 3; i++ {
		o, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
			ShopID: shopID,
			Items:  []service.ItemRequest{{ProductID: 10, Quantity: 1}},
		})
		require.NoError(t, err)
		numbers = append(numbers, o.OrderNumber)
	}
	assert.Equal(t, []string{
		"ORDERTH2024030500001",
		"ORDERTH2024030500002",
		"ORDERTH2024030500003",
	}, numbers)

	other, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
		ShopID: otherShopID,
		Items:  []service.ItemRequest{{ProductID: 20, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER022024030500001", other.OrderNumber)
}

func TestFailedCheckoutDoesNotConsumeOrderNumber(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
		ShopID: shopID,
		Items:  []service.ItemRequest{{ProductID: 12, Quantity: 5}},
	})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	o, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
		ShopID: shopID,
		Items:  []service.ItemRequest{{ProductID: 10, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDERTH2024030500001", o.OrderNumber)
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn["InsertPointTransaction"] = errors.New("connection reset")

	_, err := f.svc.CheckoutWithPointsAndPayment(context.Background(), customer, service.CheckoutInput{
		ShopID:   shopID,
		Items:    []service.ItemRequest{{ProductID: 10, Quantity: 1}},
		Payments: []payment.Split{{PaymentMethodID: cashID, Amount: d("100")}},
	})
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Empty(t, f.store.Orders())
	assert.Equal(t, 10, f.store.Product(10).StockQuantity)
	assert.Zero(t, f.notifier.CreatedCount())
}

func TestNotifierFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t)
	f.notifier.Err = errors.New("broker down")

	order, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
		ShopID: shopID,
		Items:  []service.ItemRequest{{ProductID: 10, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
}

func TestPriceIsFrozenAtPurchase(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
		ShopID: shopID,
		Items:  []service.ItemRequest{{ProductID: 10, Quantity: 1}},
	})
	require.NoError(t, err)

	f.store.SetProductPrice(10, d("999"))

	first, err := f.svc.GetOrder(context.Background(), customer, order.ID)
	require.NoError(t, err)
	second, err := f.svc.GetOrder(context.Background(), customer, order.ID)
	require.NoError(t, err)

	assert.True(t, first.Items[0].UnitPrice.Equal(d("100")))
	assert.Equal(t, first, second)
	assert.Equal(t, 9, f.store.Product(10).StockQuantity)
}

func TestIdempotentReplayReturnsSameOrder(t *testing.T) {
	f := newFixture(t)
	in := service.CheckoutInput{
		ShopID:         shopID,
		Items:          []service.ItemRequest{{ProductID: 10, Quantity: 1}},
		IdempotencyKey: "req-1",
	}

	first, err := f.svc.CreateOrder(context.Background(), customer, in)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), customer, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.store.Orders(), 1)
	assert.Equal(t, 9, f.store.Product(10).StockQuantity)
	assert.Equal(t, 1, f.notifier.CreatedCount())
}

func TestIdempotencyKeyInFlightIsConflict(t *testing.T) {
	f := newFixture(t)
	f.locker.Hold("checkout:500:req-2")

	_, err := f.svc.CreateOrder(context.Background(), customer, service.CheckoutInput{
		ShopID:         shopID,
		Items:          []service.ItemRequest{{ProductID: 10, Quantity: 1}},
		IdempotencyKey: "req-2",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, f.store.Orders())
}

func TestGuestOrderAtTable(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.CreateGuestOrder(context.Background(), authz.Guest, service.CheckoutInput{
		ShopID:      shopID,
		TableNumber: "A1",
		Items:       []service.ItemRequest{{ProductID: 10, Quantity: 1, DrinkType: models.DrinkCold}},
		Recipient:   models.Recipient{Name: "Walk-in", Phone: "0900"},
		Payments: []payment.Split{
			{PaymentMethodID: cashID, Amount: d("60")},
			{PaymentMethodID: linePayID, Amount: d("55")},
		},
	})
	require.NoError(t, err)

	assert.True(t, order.IsGuest)
	assert.Nil(t, order.UserID)
	assert.Equal(t, "A1", order.TableNumber)
	assert.Equal(t, models.GuestCustomer{Contact: models.Recipient{Name: "Walk-in", Phone: "0900"}}, order.Customer())
	assert.True(t, order.TotalPrice.Equal(d("115")))
	assert.Equal(t, models.TableStatusOccupied, f.store.Table(1).Status)
	assert.Len(t, f.store.PointTransactions(customerID), 1)
	assertOrderTotals(t, order)
}

func TestGuestsSharingIdempotencyKeyGetTheirOwnOrders(t *testing.T) {
	f := newFixture(t)
	f.store.AddTable(models.Table{ID: 2, ShopID: shopID, TableNumber: "B2", Status: models.TableStatusAvailable})

	alice, err := f.svc.CreateGuestOrder(context.Background(), authz.Guest, service.CheckoutInput{
		ShopID:         shopID,
		TableNumber:    "A1",
		Items:          []service.ItemRequest{{ProductID: 10, Quantity: 1}},
		Recipient:      models.Recipient{Name: "Alice", Phone: "0911"},
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	bob, err := f.svc.CreateGuestOrder(context.Background(), authz.Guest, service.CheckoutInput{
		ShopID:         shopID,
		TableNumber:    "B2",
		Items:          []service.ItemRequest{{ProductID: 11, Quantity: 1}},
		Recipient:      models.Recipient{Name: "Bob", Phone: "0922"},
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	assert.NotEqual(t, alice.ID, bob.ID)
	assert.Equal(t, "B2", bob.TableNumber)
	assert.Equal(t, "Bob", bob.RecipientName)
	assert.Equal(t, "0922", bob.RecipientPhone)
	assert.Len(t, f.store.Orders(), 2)
	assert.Equal(t, 2, f.notifier.CreatedCount())
	assert.Equal(t, 4, f.store.Product(11).StockQuantity)
}

func TestGuestOrderRejections(t *testing.T) {
	tests := []struct {
		name    string
		in      service.CheckoutInput
		wantErr error
	}{
		{"missing table", service.CheckoutInput{ShopID: shopID,
			Items: []service.ItemRequest{{ProductID: 10, Quantity: 1}}}, apperr.ErrValidation},
		{"unknown table", service.CheckoutInput{ShopID: shopID, TableNumber: "Z9",
			Items: []service.ItemRequest{{ProductID: 10, Quantity: 1}}}, apperr.ErrNotFound},
		{"shop without table ordering", service.CheckoutInput{ShopID: otherShopID, TableNumber: "A1",
			Items: []service.ItemRequest{{ProductID: 20, Quantity: 1}}}, apperr.ErrValidation},
		{"split mismatch", service.CheckoutInput{ShopID: shopID, TableNumber: "A1",
			Items:    []service.ItemRequest{{ProductID: 10, Quantity: 1}},
			Payments: []payment.Split{{PaymentMethodID: cashID, Amount: d("90")}}}, apperr.ErrPaymentMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateGuestOrder(context.Background(), authz.Guest, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.store.Orders())
			assert.Equal(t, models.TableStatusAvailable, f.store.Table(1).Status)
		})
	}
}

func TestCartOrderSplitsByShop(t *testing.T) {
	f := newFixture(t)

	orders, err := f.svc.CreateCartOrder(context.Background(), customer, service.CheckoutInput{
		Items: []service.ItemRequest{
			{ProductID: 20, Quantity: 2},
			{ProductID: 10, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, shopID, orders[0].ShopID)
	assert.True(t, orders[0].TotalPrice.Equal(d("100")))
	assert.Equal(t, otherShopID, orders[1].ShopID)
	assert.True(t, orders[1].TotalPrice.Equal(d("160")))
	assert.Equal(t, 2, f.notifier.CreatedCount())
}

func TestCartOrderIsAllOrNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateCartOrder(context.Background(), customer, service.CheckoutInput{
		Items: []service.ItemRequest{
			{ProductID: 10, Quantity: 1},
			{ProductID: 20, Quantity: 4},
		},
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Empty(t, f.store.Orders())
	assert.Equal(t, 10, f.store.Product(10).StockQuantity)
	assert.Equal(t, 3, f.store.Product(20).StockQuantity)
	assert.Zero(t, f.notifier.CreatedCount())
}
