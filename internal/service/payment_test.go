package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/model"
)

type fakeGateway struct {
	lastReq   *CheckoutRequest
	createErr error
	// events maps a signature to the event it verifies.
	events map[string]*WebhookEvent
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	g.lastReq = &req
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (g *fakeGateway) ParseWebhook(_ []byte, signature string) (*WebhookEvent, error) {
	ev, ok := g.events[signature]
	if !ok {
		return nil, errors.New("no signatures found matching the expected signature")
	}
	return ev, nil
}

type mockPaymentRepo struct {
	payments map[string]*model.Payment
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{payments: make(map[string]*model.Payment)}
}

func (m *mockPaymentRepo) EnsureSchema(context.Context) error { return nil }

func (m *mockPaymentRepo) Create(_ context.Context, p *model.Payment) error {
	p.ID = uuid.NewString()
	m.payments[p.SessionID] = p
	return nil
}

func (m *mockPaymentRepo) GetBySession(_ context.Context, sessionID string) (*model.Payment, error) {
	return m.payments[sessionID], nil
}

func (m *mockPaymentRepo) MarkSucceeded(_ context.Context, sessionID, intentID string) (bool, error) {
	p, ok := m.payments[sessionID]
	if !ok {
		return false, nil
	}
	p.Status = model.PaymentStatusSucceeded
	p.PaymentIntentID = intentID
	return true, nil
}

func (m *mockPaymentRepo) AddRefund(_ context.Context, intentID string, refund model.Refund) (*model.Payment, error) {
	for _, p := range m.payments {
		if p.PaymentIntentID != intentID {
			continue
		}
		for _, existing := range p.Refunds {
			if existing.RefundID == refund.RefundID {
				return p, nil
			}
		}
		p.Refunds = append(p.Refunds, refund)
		p.Status = model.PaymentStatusRefunded
		return p, nil
	}
	return nil, nil
}

type paymentFixture struct {
	*orderFixture
	users    *mockUserRepo
	payments *mockPaymentRepo
	gateway  *fakeGateway
	svc      *PaymentService
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		orderFixture: newOrderFixture(),
		users:        newMockUserRepo(),
		payments:     newMockPaymentRepo(),
		gateway:      &fakeGateway{events: make(map[string]*WebhookEvent)},
	}
	f.users.add(&model.User{ID: "user-1", Name: "Jane", Email: "jane@example.com", Role: model.RoleUser})
	f.svc = NewPaymentService(f.orderFixture.svc, f.orders, f.users, f.payments, f.gateway, nil,
		CheckoutConfig{SuccessURL: "http://localhost:3000/checkout/success", CancelURL: "http://localhost:3000/cart"}, nil)
	return f
}

// signed registers a webhook event the fake gateway accepts under sig.
func (f *paymentFixture) signed(sig, id, eventType string, object any) {
	data, _ := json.Marshal(object)
	f.gateway.events[sig] = &WebhookEvent{ID: id, Type: eventType, Data: data}
}

func completedSession(orderID string) map[string]any {
	return map[string]any{
		"id":               "cs_test_1",
		"payment_intent":   "pi_123",
		"payment_status":   "paid",
		"metadata":         map[string]string{"orderId": orderID, "userId": "user-1"},
		"customer_details": map[string]string{"email": "jane@example.com"},
	}
}

func TestPaymentService_CreateCheckoutSession(t *testing.T) {
	f := newPaymentFixture()
	p := stocked(f.products, "19.99", 10)
	order := f.placeOrder(t, "user-1", p, 2)

	resp, err := f.svc.CreateCheckoutSession(context.Background(), Actor{ID: "user-1"}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", resp.SessionID)
	assert.NotEmpty(t, resp.URL)

	req := f.gateway.lastReq
	require.NotNil(t, req)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "jane@example.com", req.CustomerEmail)
	assert.Equal(t, order.ID, req.Metadata["orderId"])
	assert.Contains(t, req.SuccessURL, "session_id={CHECKOUT_SESSION_ID}")
	assert.Contains(t, req.SuccessURL, "order_id="+order.ID)

	// 2 x 19.99 = 39.98, under the free-shipping threshold.
	require.Len(t, req.Lines, 3)
	assert.Equal(t, int64(1999), req.Lines[0].UnitAmount)
	assert.Equal(t, int64(2), req.Lines[0].Quantity)
	assert.Equal(t, "Shipping Fee", req.Lines[1].Name)
	assert.Equal(t, int64(1000), req.Lines[1].UnitAmount)
	assert.Equal(t, "Sales Tax", req.Lines[2].Name)
	assert.Equal(t, int64(400), req.Lines[2].UnitAmount)

	payment := f.payments.payments["cs_test_1"]
	require.NotNil(t, payment)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.True(t, payment.Amount.Equal(order.TotalPrice))
}

func TestPaymentService_CreateCheckoutSession_Rejections(t *testing.T) {
	f := newPaymentFixture()
	p := stocked(f.products, "50", 10)
	order := f.placeOrder(t, "user-1", p, 1)
	ctx := context.Background()

	_, err := f.svc.CreateCheckoutSession(ctx, Actor{ID: "user-2"}, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateCheckoutSession(ctx, Actor{ID: "user-1"}, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	f.gateway.createErr = errors.New("api key invalid")
	_, err = f.svc.CreateCheckoutSession(ctx, Actor{ID: "user-1"}, order.ID)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Empty(t, f.payments.payments)

	f.gateway.createErr = nil
	f.orders.orders[order.ID].IsPaid = true
	_, err = f.svc.CreateCheckoutSession(ctx, Actor{ID: "user-1"}, order.ID)
	assert.ErrorIs(t, err, ErrOrderAlreadyPaid)
}

func TestPaymentService_HandleWebhook_InvalidSignature(t *testing.T) {
	f := newPaymentFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 1)
	f.signed("good", "evt_1", EventCheckoutCompleted, completedSession(order.ID))

	err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), "forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.False(t, f.orders.orders[order.ID].IsPaid)
	assert.Equal(t, 10, f.products.products[p.ID].Inventory.Stock)
}

func TestPaymentService_HandleWebhook_CompletesOrderOnce(t *testing.T) {
	f := newPaymentFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 3)
	ctx := context.Background()

	_, err := f.svc.CreateCheckoutSession(ctx, Actor{ID: "user-1"}, order.ID)
	require.NoError(t, err)

	session := completedSession(order.ID)
	session["shipping_details"] = map[string]any{
		"address": map[string]string{"line1": "9 Elm St", "city": "Toronto", "state": "ON", "postal_code": "M5V", "country": "CA"},
	}
	f.signed("sig", "evt_1", EventCheckoutCompleted, session)

	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{}`), "sig"))
	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{}`), "sig"))

	stored := f.orders.orders[order.ID]
	assert.True(t, stored.IsPaid)
	assert.Equal(t, model.OrderStatusConfirmed, stored.Status)
	require.NotNil(t, stored.PaymentResult)
	assert.Equal(t, "pi_123", stored.PaymentResult.ID)
	assert.Equal(t, "jane@example.com", stored.PaymentResult.EmailAddress)
	assert.Equal(t, "Toronto", stored.ShippingAddress.City)
	assert.Equal(t, "Jane", stored.ShippingAddress.FirstName)

	assert.Equal(t, 7, f.products.products[p.ID].Inventory.Stock)
	assert.Equal(t, 3, f.products.products[p.ID].SalesCount)
	assert.Equal(t, model.PaymentStatusSucceeded, f.payments.payments["cs_test_1"].Status)
}

func TestPaymentService_HandleWebhook_AfterClientMarkPaid(t *testing.T) {
	f := newPaymentFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 2)
	ctx := context.Background()

	_, err := f.orderFixture.svc.MarkPaid(ctx, Actor{ID: "user-1"}, order.ID, dto.PayOrderRequest{PaymentID: "pay_1"})
	require.NoError(t, err)

	f.signed("sig", "evt_2", EventCheckoutCompleted, completedSession(order.ID))
	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{}`), "sig"))

	assert.Equal(t, 8, f.products.products[p.ID].Inventory.Stock)
	assert.Equal(t, 2, f.products.products[p.ID].SalesCount)
}

func TestPaymentService_HandleWebhook_CancelledOrderFlagsRefund(t *testing.T) {
	f := newPaymentFixture()
	core, logs := observer.New(zap.InfoLevel)
	f.svc.log = zap.New(core)
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 2)
	ctx := context.Background()

	_, err := f.orderFixture.svc.Cancel(ctx, Actor{ID: "user-1"}, order.ID)
	require.NoError(t, err)

	f.signed("sig", "evt_6", EventCheckoutCompleted, completedSession(order.ID))
	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{}`), "sig"))

	stored := f.orders.orders[order.ID]
	assert.False(t, stored.IsPaid)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
	assert.Equal(t, 10, f.products.products[p.ID].Inventory.Stock)

	warned := logs.FilterLevelExact(zap.WarnLevel).FilterField(zap.String("status", "cancelled"))
	assert.Equal(t, 1, warned.Len())
	assert.Zero(t, logs.FilterMessage("order already paid, webhook ignored").Len())
}

func TestPaymentService_HandleWebhook_MissingMetadata(t *testing.T) {
	f := newPaymentFixture()
	f.signed("sig", "evt_3", EventCheckoutCompleted, map[string]any{"id": "cs_x"})

	err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidSignature)

	f.signed("sig2", "evt_4", EventCheckoutCompleted, completedSession("missing"))
	assert.Error(t, f.svc.HandleWebhook(context.Background(), []byte(`{}`), "sig2"))
}

func TestPaymentService_HandleWebhook_UnknownEventAcknowledged(t *testing.T) {
	f := newPaymentFixture()
	f.signed("sig", "evt_5", "customer.created", map[string]any{"id": "cus_1"})

	assert.NoError(t, f.svc.HandleWebhook(context.Background(), []byte(`{}`), "sig"))
}

func TestPaymentService_HandleWebhook_Refund(t *testing.T) {
	f := newPaymentFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 1)
	ctx := context.Background()

	_, err := f.svc.CreateCheckoutSession(ctx, Actor{ID: "user-1"}, order.ID)
	require.NoError(t, err)
	f.signed("paid", "evt_1", EventCheckoutCompleted, completedSession(order.ID))
	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{}`), "paid"))

	f.signed("refund", "evt_2", EventChargeRefunded, map[string]any{
		"id":              "ch_1",
		"payment_intent":  "pi_123",
		"amount_refunded": 3200,
		"refunds": map[string]any{"data": []map[string]any{
			{"id": "re_1", "amount": 3200, "reason": "requested_by_customer", "created": 1700000000},
		}},
	})
	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{}`), "refund"))

	payment := f.payments.payments["cs_test_1"]
	assert.Equal(t, model.PaymentStatusRefunded, payment.Status)
	require.Len(t, payment.Refunds, 1)
	assert.True(t, payment.Refunds[0].Amount.Equal(decimal.NewFromInt(32)))
	assert.Equal(t, model.OrderStatusRefunded, f.orders.orders[order.ID].Status)
	assert.Equal(t, 9, f.products.products[p.ID].Inventory.Stock)
}

func TestPaymentService_VerifyPayment(t *testing.T) {
	f := newPaymentFixture()
	p := stocked(f.products, "20", 10)
	order := f.placeOrder(t, "user-1", p, 1)

	v, err := f.svc.VerifyPayment(context.Background(), Actor{ID: "user-1"}, order.ID)
	require.NoError(t, err)
	assert.False(t, v.IsPaid)
	assert.Equal(t, model.OrderStatusPending, v.Status)

	_, err = f.svc.VerifyPayment(context.Background(), Actor{ID: "user-2"}, order.ID)
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
}
