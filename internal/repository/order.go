package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopsphere/shopsphere-api/internal/model"
)

type OrderFilter struct {
	UserID string
	Status model.OrderStatus
	Limit  int
	Offset int
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error)
	// MarkPaid applies the unpaid to paid transition. It only matches an
	// unpaid pending order and reports whether this call performed it.
	MarkPaid(ctx context.Context, id string, pc model.PaymentConfirmation) (bool, error)
	// UpdateStatus moves the order to change.Status if its current status is
	// one of from. An empty from matches any status.
	UpdateStatus(ctx context.Context, id string, from []model.OrderStatus, change model.StatusChange) (bool, error)
	SetStockDeducted(ctx context.Context, id string, deducted []int) error
}

type mongoOrderRepo struct{ coll *mongo.Collection }

func NewOrderRepository(db *mongo.Database) OrderRepository {
	return &mongoOrderRepo{coll: db.Collection(ordersCollection)}
}

func (r *mongoOrderRepo) Create(ctx context.Context, order *model.Order) error {
	order.ID = uuid.NewString()
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	if _, err := r.coll.InsertOne(ctx, order); err != nil {
		return wrapWriteErr("insert order", err)
	}
	return nil
}

func (r *mongoOrderRepo) GetByID(ctx context.Context, id string) (*model.Order, error) {
	order := &model.Order{}
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(order); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (r *mongoOrderRepo) List(ctx context.Context, f OrderFilter) ([]model.Order, int64, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user"] = f.UserID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	var orders []model.Order
	if err := cur.All(ctx, &orders); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	return orders, total, nil
}

func (r *mongoOrderRepo) MarkPaid(ctx context.Context, id string, pc model.PaymentConfirmation) (bool, error) {
	set := bson.M{
		"isPaid":    true,
		"paidAt":    pc.PaidAt,
		"status":    pc.Status,
		"updatedAt": time.Now().UTC(),
	}
	if pc.Result != nil {
		set["paymentResult"] = pc.Result
	}
	if pc.Shipping != nil {
		set["shippingAddress"] = pc.Shipping
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "isPaid": false, "status": model.OrderStatusPending},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoOrderRepo) UpdateStatus(ctx context.Context, id string, from []model.OrderStatus, change model.StatusChange) (bool, error) {
	filter := bson.M{"_id": id}
	if len(from) > 0 {
		filter["status"] = bson.M{"$in": from}
	}
	set := bson.M{"status": change.Status, "updatedAt": time.Now().UTC()}
	if change.DeliveredAt != nil {
		set["isDelivered"] = true
		set["deliveredAt"] = *change.DeliveredAt
	}

	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoOrderRepo) SetStockDeducted(ctx context.Context, id string, deducted []int) error {
	set := bson.M{}
	for i, qty := range deducted {
		set[fmt.Sprintf("orderItems.%d.stockDeducted", i)] = qty
	}
	if len(set) == 0 {
		return nil
	}
	if _, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("set stock deducted: %w", err)
	}
	return nil
}
