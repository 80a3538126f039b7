package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/repository"
)

const orderNumberAttempts = 3

// Notifier queues a customer notification. Failures never abort the caller.
type Notifier interface {
	Enqueue(ctx context.Context, kind model.NotificationKind, userID, orderID string) error
}

// EventPublisher emits order lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event model.OrderEvent) error
}

const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventOrderStatusUpdated = "order.status_updated"
	EventOrderCancelled     = "order.cancelled"
	EventOrderRefunded      = "order.refunded"
)

var cancellable = []model.OrderStatus{model.OrderStatusPending, model.OrderStatusConfirmed}

type OrderService struct {
	orderRepo repository.OrderRepository
	cartRepo  repository.CartRepository
	products  *ProductService
	notifier  Notifier
	events    EventPublisher
	log       *zap.Logger
}

func NewOrderService(orderRepo repository.OrderRepository, cartRepo repository.CartRepository, products *ProductService, notifier Notifier, events EventPublisher, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{
		orderRepo: orderRepo,
		cartRepo:  cartRepo,
		products:  products,
		notifier:  notifier,
		events:    events,
		log:       log,
	}
}

// Create turns the user's cart into a pending order and empties the cart.
// Stock is left untouched until the order is paid.
func (s *OrderService) Create(ctx context.Context, userID string, req dto.CreateOrderRequest) (*model.Order, error) {
	method := model.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = model.PaymentMethodStripe
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	addr := req.ShippingAddress
	if !addr.Complete() {
		return nil, ErrIncompleteAddress
	}
	if addr.Country == "" {
		addr.Country = model.DefaultCountry
	}

	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrCartEmpty
	}

	items := make([]model.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		product, err := s.products.Lookup(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		if product == nil || !product.IsActive {
			return nil, newError(KindInvalidState, "Product %s is no longer available", line.ProductID)
		}
		if !product.HasStockFor(line.Quantity) {
			return nil, newError(KindInvalidState, "Not enough stock for %q. Only %d available",
				product.Name, product.Inventory.Stock)
		}
		items = append(items, model.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image(),
			Price:     product.Price,
			Quantity:  line.Quantity,
		})
	}

	order := &model.Order{
		UserID:          userID,
		Items:           items,
		ShippingAddress: addr,
		PaymentMethod:   method,
		Status:          model.OrderStatusPending,
	}
	ApplyTotals(order)

	for attempt := 1; ; attempt++ {
		order.OrderNumber = newOrderNumber(time.Now())
		err = s.orderRepo.Create(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateKey) || attempt == orderNumberAttempts {
			return nil, fmt.Errorf("create order: %w", err)
		}
		s.log.Warn("order number collision, regenerating", zap.String("order_number", order.OrderNumber))
	}

	cart.Items = nil
	if err := s.cartRepo.Save(ctx, cart); err != nil {
		s.log.Error("failed to clear cart after order", zap.String("order_id", order.ID), zap.String("user_id", userID), zap.Error(err))
	}

	s.notify(ctx, model.NotifyOrderConfirmation, order)
	s.publish(ctx, EventOrderCreated, order)
	return order, nil
}

// MarkPaid records a client-reported payment on the caller's own order.
func (s *OrderService) MarkPaid(ctx context.Context, actor Actor, id string, req dto.PayOrderRequest) (*model.Order, error) {
	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.ID {
		return nil, ErrOrderAccessDenied
	}
	if order.IsPaid {
		return nil, ErrOrderAlreadyPaid
	}
	if order.Status != model.OrderStatusPending {
		return nil, ErrIllegalTransition
	}

	now := time.Now().UTC()
	pc := model.PaymentConfirmation{
		Status: model.OrderStatusConfirmed,
		PaidAt: now,
		Result: &model.PaymentResult{
			ID:           req.PaymentID,
			Status:       req.Status,
			UpdateTime:   req.UpdateTime,
			EmailAddress: req.Email,
		},
	}
	if pc.Result.UpdateTime == "" {
		pc.Result.UpdateTime = now.Format(time.RFC3339)
	}

	won, err := s.confirmPayment(ctx, order, pc)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrOrderAlreadyPaid
	}
	return order, nil
}

// confirmPayment performs the unpaid to paid transition. Only the caller
// whose conditional update matched applies the inventory effects; it reports
// whether that was this call. On success order is updated in place.
func (s *OrderService) confirmPayment(ctx context.Context, order *model.Order, pc model.PaymentConfirmation) (bool, error) {
	won, err := s.orderRepo.MarkPaid(ctx, order.ID, pc)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	if !won {
		return false, nil
	}

	deducted := make([]int, len(order.Items))
	for i, item := range order.Items {
		if err := s.products.IncrementSales(ctx, item.ProductID, item.Quantity); err != nil {
			s.log.Error("failed to increment sales count", zap.String("order_id", order.ID), zap.String("product_id", item.ProductID), zap.Error(err))
		}
		tracked, err := s.products.ConsumeStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			s.log.Error("failed to consume stock", zap.String("order_id", order.ID), zap.String("product_id", item.ProductID), zap.Error(err))
			continue
		}
		if tracked {
			deducted[i] = item.Quantity
		}
	}
	if err := s.orderRepo.SetStockDeducted(ctx, order.ID, deducted); err != nil {
		s.log.Error("failed to record stock deductions", zap.String("order_id", order.ID), zap.Ints("deducted", deducted), zap.Error(err))
	}

	paidAt := pc.PaidAt
	order.IsPaid = true
	order.PaidAt = &paidAt
	order.Status = pc.Status
	if pc.Result != nil {
		order.PaymentResult = pc.Result
	}
	if pc.Shipping != nil {
		order.ShippingAddress = *pc.Shipping
	}
	for i := range order.Items {
		order.Items[i].StockDeducted = deducted[i]
	}

	s.notify(ctx, model.NotifyPaymentConfirmation, order)
	s.publish(ctx, EventOrderPaid, order)
	return true, nil
}

// UpdateStatus moves an order forward along the fulfillment path. Confirming
// or processing an unpaid order counts as payment.
func (s *OrderService) UpdateStatus(ctx context.Context, id, status string) (*model.Order, error) {
	target := model.OrderStatus(status)
	if !target.Valid() {
		return nil, ErrInvalidStatus
	}
	if target.Rank() < 0 {
		return nil, ErrIllegalTransition
	}

	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	current := order.Status.Rank()
	if current < 0 || target.Rank() <= current {
		return nil, ErrIllegalTransition
	}

	if !order.IsPaid && (target == model.OrderStatusConfirmed || target == model.OrderStatusProcessing) {
		won, err := s.confirmPayment(ctx, order, model.PaymentConfirmation{Status: target, PaidAt: time.Now().UTC()})
		if err != nil {
			return nil, err
		}
		if !won {
			return nil, ErrConcurrentUpdate
		}
	} else {
		change := model.StatusChange{Status: target}
		if target == model.OrderStatusDelivered && !order.IsDelivered {
			now := time.Now().UTC()
			change.DeliveredAt = &now
		}
		ok, err := s.orderRepo.UpdateStatus(ctx, id, []model.OrderStatus{order.Status}, change)
		if err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}
		if !ok {
			return nil, ErrConcurrentUpdate
		}
		order.Status = target
		if change.DeliveredAt != nil {
			order.IsDelivered = true
			order.DeliveredAt = change.DeliveredAt
		}
	}

	s.notify(ctx, model.NotifyStatusUpdate, order)
	s.publish(ctx, EventOrderStatusUpdated, order)
	return order, nil
}

// Cancel cancels the caller's pending or confirmed order. A paid order gets
// back exactly the stock its payment removed.
func (s *OrderService) Cancel(ctx context.Context, actor Actor, id string) (*model.Order, error) {
	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.ID {
		return nil, ErrOrderAccessDenied
	}
	if order.Status != model.OrderStatusPending && order.Status != model.OrderStatusConfirmed {
		return nil, ErrOrderNotCancellable
	}

	ok, err := s.orderRepo.UpdateStatus(ctx, id, cancellable, model.StatusChange{Status: model.OrderStatusCancelled})
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if !ok {
		return nil, ErrOrderNotCancellable
	}

	// Re-read so a payment that landed between the check and the update is
	// restocked too.
	if fresh, err := s.orderRepo.GetByID(ctx, id); err == nil && fresh != nil {
		order = fresh
	}
	order.Status = model.OrderStatusCancelled

	if order.IsPaid {
		for _, item := range order.Items {
			if item.StockDeducted == 0 {
				continue
			}
			if err := s.products.RestoreStock(ctx, item.ProductID, item.StockDeducted); err != nil {
				s.log.Error("failed to restore stock", zap.String("order_id", order.ID), zap.String("product_id", item.ProductID), zap.Int("qty", item.StockDeducted), zap.Error(err))
			}
		}
	}

	s.notify(ctx, model.NotifyStatusUpdate, order)
	s.publish(ctx, EventOrderCancelled, order)
	return order, nil
}

// MarkRefunded moves a paid order to refunded. Stock is not restored.
func (s *OrderService) MarkRefunded(ctx context.Context, id string) (*model.Order, error) {
	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == model.OrderStatusRefunded {
		return order, nil
	}
	if !order.IsPaid {
		return nil, newError(KindInvalidState, "Only paid orders can be refunded")
	}

	ok, err := s.orderRepo.UpdateStatus(ctx, id, []model.OrderStatus{order.Status}, model.StatusChange{Status: model.OrderStatusRefunded})
	if err != nil {
		return nil, fmt.Errorf("refund order: %w", err)
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}
	order.Status = model.OrderStatusRefunded
	s.notify(ctx, model.NotifyStatusUpdate, order)
	s.publish(ctx, EventOrderRefunded, order)
	return order, nil
}

// Get returns the order to its owner or an admin.
func (s *OrderService) Get(ctx context.Context, actor Actor, id string) (*model.Order, error) {
	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.ID && !actor.IsAdmin() {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) MyOrders(ctx context.Context, userID string) ([]model.Order, error) {
	orders, _, err := s.orderRepo.List(ctx, repository.OrderFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

func (s *OrderService) List(ctx context.Context, req dto.ListOrdersRequest) ([]model.Order, *dto.Pagination, error) {
	status := model.OrderStatus(req.Status)
	if status != "" && !status.Valid() {
		return nil, nil, ErrInvalidStatus
	}
	orders, total, err := s.orderRepo.List(ctx, repository.OrderFilter{
		Status: status,
		Limit:  req.Limit,
		Offset: (req.Page - 1) * req.Limit,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, dto.NewPagination(req.Page, req.Limit, total), nil
}

func (s *OrderService) getOrder(ctx context.Context, id string) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) notify(ctx context.Context, kind model.NotificationKind, order *model.Order) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Enqueue(ctx, kind, order.UserID, order.ID); err != nil {
		s.log.Warn("failed to enqueue notification", zap.String("kind", string(kind)), zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *model.Order) {
	if s.events == nil {
		return
	}
	event := model.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalPrice:  order.TotalPrice,
		IsPaid:      order.IsPaid,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish order event", zap.String("type", eventType), zap.String("order_id", order.ID), zap.Error(err))
	}
}

func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%06d", now.UnixMilli(), rand.Intn(1_000_000))
}
