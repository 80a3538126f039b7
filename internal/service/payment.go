package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/repository"
)

const (
	webhookEventTTL = 24 * time.Hour

	EventCheckoutCompleted = "checkout.session.completed"
	EventChargeRefunded    = "charge.refunded"
)

// ShippingCountries are the countries the hosted checkout collects addresses for.
var ShippingCountries = []string{"US", "CA", "GB", "AU"}

type CheckoutLine struct {
	Name       string
	Image      string
	ProductID  string
	UnitAmount int64
	Quantity   int64
}

type CheckoutRequest struct {
	Lines             []CheckoutLine
	Currency          string
	CustomerEmail     string
	ClientReference   string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
	ShippingCountries []string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// WebhookEvent is a verified processor event. Data holds the raw event object.
type WebhookEvent struct {
	ID   string
	Type string
	Data json.RawMessage
}

// Gateway is the payment processor.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// ParseWebhook verifies the signature header against payload.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

type CheckoutConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

type PaymentService struct {
	orders      *OrderService
	orderRepo   repository.OrderRepository
	userRepo    repository.UserRepository
	paymentRepo repository.PaymentRepository
	gateway     Gateway
	redisClient *redis.Client
	cfg         CheckoutConfig
	log         *zap.Logger
}

func NewPaymentService(
	orders *OrderService,
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	paymentRepo repository.PaymentRepository,
	gateway Gateway,
	redisClient *redis.Client,
	cfg CheckoutConfig,
	log *zap.Logger,
) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &PaymentService{
		orders:      orders,
		orderRepo:   orderRepo,
		userRepo:    userRepo,
		paymentRepo: paymentRepo,
		gateway:     gateway,
		redisClient: redisClient,
		cfg:         cfg,
		log:         log,
	}
}

// CreateCheckoutSession opens a hosted checkout for the caller's unpaid order.
// Tax and shipping are charged as extra lines.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, actor Actor, orderID string) (*dto.CheckoutSessionResponse, error) {
	order, err := s.ownOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, ErrOrderAlreadyPaid
	}
	if order.Status != model.OrderStatusPending {
		return nil, newError(KindInvalidState, "Order can no longer be paid")
	}

	user, err := s.userRepo.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		Lines:             checkoutLines(order),
		Currency:          s.cfg.Currency,
		CustomerEmail:     user.Email,
		ClientReference:   order.ID,
		SuccessURL:        fmt.Sprintf("%s?session_id={CHECKOUT_SESSION_ID}&order_id=%s", s.cfg.SuccessURL, order.ID),
		CancelURL:         fmt.Sprintf("%s?order_id=%s", s.cfg.CancelURL, order.ID),
		Metadata:          map[string]string{"orderId": order.ID, "userId": actor.ID},
		ShippingCountries: ShippingCountries,
	})
	if err != nil {
		s.log.Error("checkout session creation failed", zap.String("order_id", order.ID), zap.Error(err))
		return nil, newError(KindUpstream, "%s", err.Error())
	}

	if s.paymentRepo != nil {
		err := s.paymentRepo.Create(ctx, &model.Payment{
			UserID:    actor.ID,
			OrderID:   order.ID,
			SessionID: session.ID,
			Amount:    order.TotalPrice,
			Currency:  s.cfg.Currency,
			Status:    model.PaymentStatusPending,
			Method:    "card",
		})
		if err != nil {
			s.log.Error("failed to record payment", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return &dto.CheckoutSessionResponse{SessionID: session.ID, URL: session.URL}, nil
}

func checkoutLines(order *model.Order) []CheckoutLine {
	lines := make([]CheckoutLine, 0, len(order.Items)+2)
	for _, item := range order.Items {
		lines = append(lines, CheckoutLine{
			Name:       item.Name,
			Image:      item.Image,
			ProductID:  item.ProductID,
			UnitAmount: toCents(item.Price),
			Quantity:   int64(item.Quantity),
		})
	}
	if order.ShippingPrice.IsPositive() {
		lines = append(lines, CheckoutLine{Name: "Shipping Fee", UnitAmount: toCents(order.ShippingPrice), Quantity: 1})
	}
	if order.TaxPrice.IsPositive() {
		lines = append(lines, CheckoutLine{Name: "Sales Tax", UnitAmount: toCents(order.TaxPrice), Quantity: 1})
	}
	return lines
}

// HandleWebhook verifies and applies a processor event. Replayed events are
// acknowledged without effect.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.log.Warn("webhook signature verification failed", zap.Error(err))
		return ErrInvalidSignature
	}

	key := "webhook:event:" + event.ID
	if s.redisClient != nil {
		if n, err := s.redisClient.Exists(ctx, key).Result(); err == nil && n > 0 {
			s.log.Info("duplicate webhook event skipped", zap.String("event_id", event.ID))
			return nil
		}
	}

	switch event.Type {
	case EventCheckoutCompleted:
		err = s.fulfil(ctx, event.Data)
	case EventChargeRefunded:
		err = s.refund(ctx, event.Data)
	default:
		s.log.Debug("unhandled webhook event", zap.String("type", event.Type))
	}
	if err != nil {
		s.log.Error("webhook handling failed", zap.String("event_id", event.ID), zap.String("type", event.Type), zap.Error(err))
		return err
	}

	if s.redisClient != nil {
		s.redisClient.Set(ctx, key, "1", webhookEventTTL)
	}
	return nil
}

type checkoutSessionObject struct {
	ID              string            `json:"id"`
	PaymentIntent   string            `json:"payment_intent"`
	PaymentStatus   string            `json:"payment_status"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	ShippingDetails *struct {
		Address struct {
			Line1      string `json:"line1"`
			City       string `json:"city"`
			State      string `json:"state"`
			PostalCode string `json:"postal_code"`
			Country    string `json:"country"`
		} `json:"address"`
	} `json:"shipping_details"`
}

func (s *PaymentService) fulfil(ctx context.Context, data json.RawMessage) error {
	var sess checkoutSessionObject
	if err := json.Unmarshal(data, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	orderID := sess.Metadata["orderId"]
	if orderID == "" {
		return fmt.Errorf("checkout session %s carries no order id", sess.ID)
	}
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order %s not found", orderID)
	}

	now := time.Now().UTC()
	pc := model.PaymentConfirmation{
		Status: model.OrderStatusConfirmed,
		PaidAt: now,
		Result: &model.PaymentResult{
			ID:         sess.PaymentIntent,
			Status:     sess.PaymentStatus,
			UpdateTime: now.Format(time.RFC3339),
		},
	}
	if sess.CustomerDetails != nil {
		pc.Result.EmailAddress = sess.CustomerDetails.Email
	}
	if sd := sess.ShippingDetails; sd != nil {
		addr := order.ShippingAddress
		addr.Address = sd.Address.Line1
		addr.City = sd.Address.City
		addr.State = sd.Address.State
		addr.ZipCode = sd.Address.PostalCode
		addr.Country = sd.Address.Country
		pc.Shipping = &addr
	}

	won, err := s.orders.confirmPayment(ctx, order, pc)
	if err != nil {
		return err
	}
	if !won {
		s.reportLostFulfilment(ctx, orderID, sess.ID)
	}

	if s.paymentRepo != nil {
		if _, err := s.paymentRepo.MarkSucceeded(ctx, sess.ID, sess.PaymentIntent); err != nil {
			s.log.Error("failed to mark payment succeeded", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	return nil
}

// reportLostFulfilment logs why a completed checkout did not mark its order
// paid. Money captured for an order that can no longer be paid needs a refund.
func (s *PaymentService) reportLostFulfilment(ctx context.Context, orderID, sessionID string) {
	current, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil || current == nil {
		s.log.Warn("checkout completed but order could not be marked paid",
			zap.String("order_id", orderID), zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if current.IsPaid {
		s.log.Info("order already paid, webhook ignored", zap.String("order_id", orderID))
		return
	}
	s.log.Warn("payment captured for order that cannot be paid, refund required",
		zap.String("order_id", orderID),
		zap.String("session_id", sessionID),
		zap.String("status", string(current.Status)))
}

type chargeObject struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	AmountRefunded int64  `json:"amount_refunded"`
	Refunds        *struct {
		Data []struct {
			ID      string `json:"id"`
			Amount  int64  `json:"amount"`
			Reason  string `json:"reason"`
			Created int64  `json:"created"`
		} `json:"data"`
	} `json:"refunds"`
}

func (s *PaymentService) refund(ctx context.Context, data json.RawMessage) error {
	var charge chargeObject
	if err := json.Unmarshal(data, &charge); err != nil {
		return fmt.Errorf("decode charge: %w", err)
	}
	if s.paymentRepo == nil || charge.PaymentIntent == "" {
		s.log.Warn("refund cannot be matched to an order", zap.String("charge_id", charge.ID))
		return nil
	}

	refunds := []model.Refund{{
		RefundID: charge.ID,
		Amount:   decimal.New(charge.AmountRefunded, -2),
	}}
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
		refunds = refunds[:0]
		for _, r := range charge.Refunds.Data {
			refunds = append(refunds, model.Refund{
				RefundID:  r.ID,
				Amount:    decimal.New(r.Amount, -2),
				Reason:    r.Reason,
				CreatedAt: time.Unix(r.Created, 0).UTC(),
			})
		}
	}

	var payment *model.Payment
	for _, rf := range refunds {
		p, err := s.paymentRepo.AddRefund(ctx, charge.PaymentIntent, rf)
		if err != nil {
			return fmt.Errorf("record refund: %w", err)
		}
		payment = p
	}
	if payment == nil {
		s.log.Warn("no payment recorded for refunded intent", zap.String("payment_intent", charge.PaymentIntent))
		return nil
	}

	if _, err := s.orders.MarkRefunded(ctx, payment.OrderID); err != nil {
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
			s.log.Warn("order not refundable", zap.String("order_id", payment.OrderID), zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// VerifyPayment reports the payment state of the caller's order.
func (s *PaymentService) VerifyPayment(ctx context.Context, actor Actor, orderID string) (*dto.PaymentVerification, error) {
	order, err := s.ownOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return &dto.PaymentVerification{IsPaid: order.IsPaid, Status: order.Status, PaidAt: order.PaidAt}, nil
}

func (s *PaymentService) ownOrder(ctx context.Context, actor Actor, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != actor.ID {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}
