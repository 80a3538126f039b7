package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopsphere/shopsphere-api/internal/model"
)

// ReportRepository runs the read-only aggregations behind the admin views.
type ReportRepository interface {
	CountUsers(ctx context.Context) (int64, error)
	CountProducts(ctx context.Context) (int64, error)
	CountOrders(ctx context.Context) (int64, error)
	PaidRevenue(ctx context.Context) (decimal.Decimal, error)
	DailySales(ctx context.Context, since time.Time) ([]model.DailySales, error)
	PopularProducts(ctx context.Context, limit int) ([]model.ProductSales, error)
	// PaidOrders lists paid orders created within [start, end]. A zero bound
	// is open.
	PaidOrders(ctx context.Context, start, end time.Time) ([]model.Order, error)
}

type mongoReportRepo struct {
	users    *mongo.Collection
	products *mongo.Collection
	orders   *mongo.Collection
}

func NewReportRepository(db *mongo.Database) ReportRepository {
	return &mongoReportRepo{
		users:    db.Collection(usersCollection),
		products: db.Collection(productsCollection),
		orders:   db.Collection(ordersCollection),
	}
}

func (r *mongoReportRepo) CountUsers(ctx context.Context) (int64, error) {
	n, err := r.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *mongoReportRepo) CountProducts(ctx context.Context) (int64, error) {
	n, err := r.products.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func (r *mongoReportRepo) CountOrders(ctx context.Context) (int64, error) {
	n, err := r.orders.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// revenueFilter matches paid orders whose money was kept. Refunded orders
// stay isPaid.
func revenueFilter(extra ...bson.E) bson.M {
	filter := bson.M{"isPaid": true, "status": bson.M{"$ne": model.OrderStatusRefunded}}
	for _, e := range extra {
		filter[e.Key] = e.Value
	}
	return filter
}

func (r *mongoReportRepo) PaidRevenue(ctx context.Context) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: revenueFilter()}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$totalPrice"}}}},
	}
	cur, err := r.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, fmt.Errorf("aggregate revenue: %w", err)
	}
	var rows []struct {
		Total decimal.Decimal `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("decode revenue: %w", err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return rows[0].Total, nil
}

func (r *mongoReportRepo) DailySales(ctx context.Context, since time.Time) ([]model.DailySales, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: revenueFilter(bson.E{Key: "createdAt", Value: bson.M{"$gte": since}})}},
		{{Key: "$group", Value: bson.M{
			"_id":        bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$createdAt"}},
			"totalSales": bson.M{"$sum": "$totalPrice"},
			"orderCount": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cur, err := r.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate daily sales: %w", err)
	}
	sales := []model.DailySales{}
	if err := cur.All(ctx, &sales); err != nil {
		return nil, fmt.Errorf("decode daily sales: %w", err)
	}
	return sales, nil
}

func (r *mongoReportRepo) PopularProducts(ctx context.Context, limit int) ([]model.ProductSales, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "salesCount", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"name": 1, "price": 1, "featuredImage": 1, "salesCount": 1})
	cur, err := r.products.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find popular products: %w", err)
	}
	products := []model.ProductSales{}
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode popular products: %w", err)
	}
	return products, nil
}

func (r *mongoReportRepo) PaidOrders(ctx context.Context, start, end time.Time) ([]model.Order, error) {
	filter := bson.M{"isPaid": true}
	created := bson.M{}
	if !start.IsZero() {
		created["$gte"] = start
	}
	if !end.IsZero() {
		created["$lte"] = end
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}
	cur, err := r.orders.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find paid orders: %w", err)
	}
	orders := []model.Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode paid orders: %w", err)
	}
	return orders, nil
}
