package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/repository"
)

type mockOrderRepo struct {
	orders map[string]*model.Order
	// createErrs are returned by the next Create calls, in order.
	createErrs []error
	numbers    []string
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*model.Order)}
}

func cloneOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	return &cp
}

func (m *mockOrderRepo) Create(_ context.Context, o *model.Order) error {
	m.numbers = append(m.numbers, o.OrderNumber)
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		return err
	}
	o.ID = uuid.NewString()
	o.CreatedAt = time.Now()
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*model.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (m *mockOrderRepo) List(_ context.Context, f repository.OrderFilter) ([]model.Order, int64, error) {
	var out []model.Order
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	return out, int64(len(out)), nil
}

func (m *mockOrderRepo) MarkPaid(_ context.Context, id string, pc model.PaymentConfirmation) (bool, error) {
	o, ok := m.orders[id]
	if !ok || o.IsPaid || o.Status != model.OrderStatusPending {
		return false, nil
	}
	paidAt := pc.PaidAt
	o.IsPaid = true
	o.PaidAt = &paidAt
	o.Status = pc.Status
	if pc.Result != nil {
		o.PaymentResult = pc.Result
	}
	if pc.Shipping != nil {
		o.ShippingAddress = *pc.Shipping
	}
	return true, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from []model.OrderStatus, change model.StatusChange) (bool, error) {
	o, ok := m.orders[id]
	if !ok {
		return false, nil
	}
	if len(from) > 0 {
		matched := false
		for _, st := range from {
			if o.Status == st {
				matched = true
			}
		}
		if !matched {
			return false, nil
		}
	}
	o.Status = change.Status
	if change.DeliveredAt != nil {
		o.IsDelivered = true
		o.DeliveredAt = change.DeliveredAt
	}
	return true, nil
}

func (m *mockOrderRepo) SetStockDeducted(_ context.Context, id string, deducted []int) error {
	o := m.orders[id]
	for i, qty := range deducted {
		o.Items[i].StockDeducted = qty
	}
	return nil
}

type recordingNotifier struct {
	kinds []model.NotificationKind
	err   error
}

func (n *recordingNotifier) Enqueue(_ context.Context, kind model.NotificationKind, _, _ string) error {
	n.kinds = append(n.kinds, kind)
	return n.err
}

type recordingEvents struct{ types []string }

func (e *recordingEvents) Publish(_ context.Context, ev model.OrderEvent) error {
	e.types = append(e.types, ev.Type)
	return nil
}

type orderFixture struct {
	orders   *mockOrderRepo
	carts    *mockCartRepo
	products *mockProductRepo
	notifier *recordingNotifier
	events   *recordingEvents
	svc      *OrderService
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		orders:   newMockOrderRepo(),
		carts:    newMockCartRepo(),
		products: newMockProductRepo(),
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
	}
	f.svc = NewOrderService(f.orders, f.carts, NewProductService(f.products, nil, nil), f.notifier, f.events, nil)
	return f
}

func validAddress() model.ShippingAddress {
	return model.ShippingAddress{
		FirstName: "Jane", LastName: "Doe", Address: "1 Main St",
		City: "Springfield", State: "IL", ZipCode: "62701",
	}
}

// placeOrder fills the user's cart with qty of p and checks out.
func (f *orderFixture) placeOrder(t *testing.T, userID string, p *model.Product, qty int) *model.Order {
	t.Helper()
	f.carts.carts[userID] = &model.Cart{
		ID: uuid.NewString(), UserID: userID,
		Items: []model.CartItem{{ID: uuid.NewString(), ProductID: p.ID, Quantity: qty, Price: p.Price}},
	}
	order, err := f.svc.Create(context.Background(), userID, dto.CreateOrderRequest{ShippingAddress: validAddress()})
	require.NoError(t, err)
	return order
}

func TestOrderService_Create_ComputesTotals(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "60", 10)

	order := f.placeOrder(t, "user-1", p, 2)

	assert.True(t, order.ItemsPrice.Equal(decimal.NewFromInt(120)))
	assert.True(t, order.ShippingPrice.IsZero())
	assert.True(t, order.TaxPrice.Equal(decimal.NewFromInt(12)))
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(132)))
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, model.PaymentMethodStripe, order.PaymentMethod)
	assert.Equal(t, model.DefaultCountry, order.ShippingAddress.Country)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"))

	assert.Empty(t, f.carts.carts["user-1"].Items, "cart is emptied")
	assert.Equal(t, 10, f.products.products[p.ID].Inventory.Stock, "stock untouched until payment")
	assert.Equal(t, []model.NotificationKind{model.NotifyOrderConfirmation}, f.notifier.kinds)
	assert.Equal(t, []string{EventOrderCreated}, f.events.types)
}

func TestOrderService_Create_SnapshotsCurrentPrice(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "10", 10)
	f.carts.carts["user-1"] = &model.Cart{
		ID: "c1", UserID: "user-1",
		Items: []model.CartItem{{ID: "l1", ProductID: p.ID, Quantity: 1, Price: decimal.NewFromInt(8)}},
	}

	order, err := f.svc.Create(context.Background(), "user-1", dto.CreateOrderRequest{ShippingAddress: validAddress()})
	require.NoError(t, err)
	assert.True(t, order.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, model.DefaultProductImage, order.Items[0].Image)
}

func TestOrderService_Create_EmptyCart(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.Create(context.Background(), "user-1", dto.CreateOrderRequest{ShippingAddress: validAddress()})
	assert.ErrorIs(t, err, ErrCartEmpty)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, f.orders.orders)
}

func TestOrderService_Create_Validation(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "10", 10)
	f.carts.carts["user-1"] = &model.Cart{ID: "c1", UserID: "user-1",
		Items: []model.CartItem{{ID: "l1", ProductID: p.ID, Quantity: 1, Price: p.Price}}}

	_, err := f.svc.Create(context.Background(), "user-1", dto.CreateOrderRequest{ShippingAddress: model.ShippingAddress{City: "X"}})
	assert.ErrorIs(t, err, ErrIncompleteAddress)

	_, err = f.svc.Create(context.Background(), "user-1", dto.CreateOrderRequest{ShippingAddress: validAddress(), PaymentMethod: "barter"})
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
	assert.Empty(t, f.orders.orders)
}

func TestOrderService_Create_RevalidatesStock(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "10", 1)
	f.carts.carts["user-1"] = &model.Cart{ID: "c1", UserID: "user-1",
		Items: []model.CartItem{{ID: "l1", ProductID: p.ID, Quantity: 3, Price: p.Price}}}

	_, err := f.svc.Create(context.Background(), "user-1", dto.CreateOrderRequest{ShippingAddress: validAddress()})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, f.orders.orders)
	assert.Len(t, f.carts.carts["user-1"].Items, 1, "cart kept on failure")
}

func TestOrderService_Create_RetriesOrderNumberCollision(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "10", 10)
	f.orders.createErrs = []error{repository.ErrDuplicateKey}

	f.placeOrder(t, "user-1", p, 1)
	assert.Len(t, f.orders.numbers, 2)
	assert.Len(t, f.orders.orders, 1)
}

func TestOrderService_Create_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "10", 10)
	f.orders.createErrs = []error{repository.ErrDuplicateKey, repository.ErrDuplicateKey, repository.ErrDuplicateKey}
	f.carts.carts["user-1"] = &model.Cart{ID: "c1", UserID: "user-1",
		Items: []model.CartItem{{ID: "l1", ProductID: p.ID, Quantity: 1, Price: p.Price}}}

	_, err := f.svc.Create(context.Background(), "user-1", dto.CreateOrderRequest{ShippingAddress: validAddress()})
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	assert.Len(t, f.orders.numbers, orderNumberAttempts)
}

func TestOrderService_Create_NotificationFailureIsSwallowed(t *testing.T) {
	f := newOrderFixture()
	f.notifier.err = errors.New("broker down")
	p := stocked(f.products, "10", 10)

	order := f.placeOrder(t, "user-1", p, 1)
	assert.NotEmpty(t, order.ID)
}

func TestOrderService_MarkPaid_ConsumesStockOnce(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 3)
	owner := Actor{ID: "user-1"}

	paid, err := f.svc.MarkPaid(context.Background(), owner, order.ID, dto.PayOrderRequest{PaymentID: "pay_1", Status: "COMPLETED", Email: "j@example.com"})
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	assert.Equal(t, model.OrderStatusConfirmed, paid.Status)
	require.NotNil(t, paid.PaymentResult)
	assert.Equal(t, "pay_1", paid.PaymentResult.ID)

	_, err = f.svc.MarkPaid(context.Background(), owner, order.ID, dto.PayOrderRequest{PaymentID: "pay_2"})
	assert.ErrorIs(t, err, ErrOrderAlreadyPaid)

	stored := f.products.products[p.ID]
	assert.Equal(t, 7, stored.Inventory.Stock)
	assert.Equal(t, 3, stored.SalesCount)
	assert.Equal(t, 3, f.orders.orders[order.ID].Items[0].StockDeducted)
}

func TestOrderService_ConfirmPayment_RaceAppliesEffectsOnce(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 2)

	// Two callers that both read the order while it was unpaid.
	first, _ := f.orders.GetByID(context.Background(), order.ID)
	second, _ := f.orders.GetByID(context.Background(), order.ID)
	pc := model.PaymentConfirmation{Status: model.OrderStatusConfirmed, PaidAt: time.Now()}

	won, err := f.svc.confirmPayment(context.Background(), first, pc)
	require.NoError(t, err)
	assert.True(t, won)
	won, err = f.svc.confirmPayment(context.Background(), second, pc)
	require.NoError(t, err)
	assert.False(t, won)

	assert.Equal(t, 8, f.products.products[p.ID].Inventory.Stock)
	assert.Equal(t, 2, f.products.products[p.ID].SalesCount)
}

func TestOrderService_MarkPaid_NotOwner(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 1)

	_, err := f.svc.MarkPaid(context.Background(), Actor{ID: "user-2"}, order.ID, dto.PayOrderRequest{})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, f.orders.orders[order.ID].IsPaid)
}

func TestOrderService_MarkPaid_UntrackedProduct(t *testing.T) {
	f := newOrderFixture()
	p := f.products.add(&model.Product{Name: "Ebook", Price: decimal.NewFromInt(5), IsActive: true})
	order := f.placeOrder(t, "user-1", p, 2)

	_, err := f.svc.MarkPaid(context.Background(), Actor{ID: "user-1"}, order.ID, dto.PayOrderRequest{})
	require.NoError(t, err)

	stored := f.products.products[p.ID]
	assert.Equal(t, 0, stored.Inventory.Stock)
	assert.Equal(t, 2, stored.SalesCount)
	assert.Equal(t, 0, f.orders.orders[order.ID].Items[0].StockDeducted)

	_, err = f.svc.Cancel(context.Background(), Actor{ID: "user-1"}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.products.products[p.ID].Inventory.Stock, "nothing to restore")
}

func TestOrderService_Cancel_PaidRestoresStock(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 4)
	owner := Actor{ID: "user-1"}

	_, err := f.svc.MarkPaid(context.Background(), owner, order.ID, dto.PayOrderRequest{})
	require.NoError(t, err)
	require.Equal(t, 6, f.products.products[p.ID].Inventory.Stock)

	cancelled, err := f.svc.Cancel(context.Background(), owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, f.products.products[p.ID].Inventory.Stock)
	assert.Contains(t, f.events.types, EventOrderCancelled)
}

func TestOrderService_Cancel_UnpaidLeavesStock(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 4)

	_, err := f.svc.Cancel(context.Background(), Actor{ID: "user-1"}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.products.products[p.ID].Inventory.Stock)
}

func TestOrderService_Cancel_ShippedRejected(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 1)
	f.orders.orders[order.ID].Status = model.OrderStatusShipped
	f.orders.orders[order.ID].IsPaid = true

	_, err := f.svc.Cancel(context.Background(), Actor{ID: "user-1"}, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotCancellable)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, model.OrderStatusShipped, f.orders.orders[order.ID].Status)
	assert.Equal(t, 10, f.products.products[p.ID].Inventory.Stock)
}

func TestOrderService_Cancel_NotOwner(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 1)

	_, err := f.svc.Cancel(context.Background(), Actor{ID: "user-2", Role: model.RoleAdmin}, order.ID)
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
}

func TestOrderService_UpdateStatus_ForwardOnly(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 1)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, order.ID, "teleported")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(ctx, order.ID, string(model.OrderStatusCancelled))
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = f.svc.UpdateStatus(ctx, order.ID, string(model.OrderStatusShipped))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, order.ID, string(model.OrderStatusProcessing))
	assert.ErrorIs(t, err, ErrIllegalTransition)

	delivered, err := f.svc.UpdateStatus(ctx, order.ID, string(model.OrderStatusDelivered))
	require.NoError(t, err)
	assert.True(t, delivered.IsDelivered)
	assert.NotNil(t, delivered.DeliveredAt)
	assert.Contains(t, f.notifier.kinds, model.NotifyStatusUpdate)
}

func TestOrderService_UpdateStatus_ConfirmBackfillsPayment(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 2)

	updated, err := f.svc.UpdateStatus(context.Background(), order.ID, string(model.OrderStatusProcessing))
	require.NoError(t, err)
	assert.True(t, updated.IsPaid)
	assert.NotNil(t, updated.PaidAt)
	assert.Equal(t, model.OrderStatusProcessing, updated.Status)
	assert.Equal(t, 8, f.products.products[p.ID].Inventory.Stock)
	assert.Equal(t, 2, f.products.products[p.ID].SalesCount)
}

func TestOrderService_Get_OwnerOrAdmin(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 1)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, Actor{ID: "user-1"}, order.ID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, Actor{ID: "admin", Role: model.RoleAdmin}, order.ID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, Actor{ID: "user-2"}, order.ID)
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
	_, err = f.svc.Get(ctx, Actor{ID: "user-1"}, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_MarkRefunded(t *testing.T) {
	f := newOrderFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 2)
	ctx := context.Background()

	_, err := f.svc.MarkRefunded(ctx, order.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.MarkPaid(ctx, Actor{ID: "user-1"}, order.ID, dto.PayOrderRequest{})
	require.NoError(t, err)

	refunded, err := f.svc.MarkRefunded(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRefunded, refunded.Status)
	assert.Equal(t, 8, f.products.products[p.ID].Inventory.Stock, "refunds do not restock")
}

func TestNewOrderNumber_Format(t *testing.T) {
	n := newOrderNumber(time.UnixMilli(1700000000000))
	assert.Regexp(t, `^ORD-1700000000000-\d{6}$`, n)
}
