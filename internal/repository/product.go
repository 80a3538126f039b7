package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopsphere/shopsphere-api/internal/model"
)

type ProductFilter struct {
	Search     string
	Category   string
	VendorID   string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	ActiveOnly bool
	Sort       string
	Limit      int
	Offset     int
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id string) (*model.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error)
	// Update writes the catalog fields. Inventory is left alone so concurrent
	// stock increments survive an edit.
	Update(ctx context.Context, product *model.Product) error
	// SetInventory overwrites stock, and trackQuantity when track is non-nil.
	SetInventory(ctx context.Context, id string, stock int, track *bool) error
	SetActive(ctx context.Context, id string, active bool) (bool, error)
	// SaveReviews replaces the review list and its derived fields, provided
	// the stored review count still equals prevCount.
	SaveReviews(ctx context.Context, id string, reviews []model.Review, avg float64, count, prevCount int) (bool, error)
	// ConsumeStock atomically removes qty units from a tracked product. It
	// returns the remaining stock and whether the product tracks quantity.
	ConsumeStock(ctx context.Context, id string, qty int) (int, bool, error)
	RestoreStock(ctx context.Context, id string, qty int) error
	IncrementSales(ctx context.Context, id string, qty int) error
}

type mongoProductRepo struct{ coll *mongo.Collection }

func NewProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepo{coll: db.Collection(productsCollection)}
}

var productSorts = map[string]bson.D{
	"newest":  {{Key: "createdAt", Value: -1}},
	"oldest":  {{Key: "createdAt", Value: 1}},
	"price":   {{Key: "price", Value: 1}},
	"-price":  {{Key: "price", Value: -1}},
	"name":    {{Key: "name", Value: 1}},
	"rating":  {{Key: "averageRating", Value: -1}},
	"popular": {{Key: "salesCount", Value: -1}},
}

func (r *mongoProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.NewString()
	product.CreatedAt = time.Now().UTC()
	product.UpdatedAt = product.CreatedAt
	if product.Reviews == nil {
		product.Reviews = []model.Review{}
	}
	if _, err := r.coll.InsertOne(ctx, product); err != nil {
		return wrapWriteErr("create product", err)
	}
	return nil
}

func (r *mongoProductRepo) GetByID(ctx context.Context, id string) (*model.Product, error) {
	p := &model.Product{}
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *mongoProductRepo) List(ctx context.Context, f ProductFilter) ([]model.Product, int64, error) {
	filter := bson.M{}
	if f.ActiveOnly {
		filter["isActive"] = true
	}
	if f.VendorID != "" {
		filter["vendor"] = f.VendorID
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"description": re}}
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	sort, ok := productSorts[f.Sort]
	if !ok {
		sort = productSorts["newest"]
	}
	opts := options.Find().SetSort(sort).SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	var products []model.Product
	if err := cur.All(ctx, &products); err != nil {
		return nil, 0, fmt.Errorf("decode products: %w", err)
	}
	return products, total, nil
}

// Update writes the editable fields. Reviews, rating, stock counters driven
// by orders and the vendor are left alone.
func (r *mongoProductRepo) Update(ctx context.Context, product *model.Product) error {
	product.UpdatedAt = time.Now().UTC()
	_, err := r.coll.UpdateByID(ctx, product.ID, bson.M{"$set": bson.M{
		"name":          product.Name,
		"description":   product.Description,
		"price":         product.Price,
		"comparePrice":  product.ComparePrice,
		"category":      product.Category,
		"brand":         product.Brand,
		"featuredImage": product.FeaturedImage,
		"isActive":      product.IsActive,
		"isFeatured":    product.IsFeatured,
		"updatedAt":     product.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *mongoProductRepo) SetInventory(ctx context.Context, id string, stock int, track *bool) error {
	set := bson.M{"inventory.stock": stock, "updatedAt": time.Now().UTC()}
	if track != nil {
		set["inventory.trackQuantity"] = *track
	}
	if _, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("set inventory: %w", err)
	}
	return nil
}

func (r *mongoProductRepo) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"isActive": active, "updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return false, fmt.Errorf("set product active: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoProductRepo) SaveReviews(ctx context.Context, id string, reviews []model.Review, avg float64, count, prevCount int) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "reviewCount": prevCount},
		bson.M{"$set": bson.M{
			"reviews":       reviews,
			"averageRating": avg,
			"reviewCount":   count,
			"updatedAt":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("save reviews: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoProductRepo) ConsumeStock(ctx context.Context, id string, qty int) (int, bool, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"inventory": 1})
	var out struct {
		Inventory model.Inventory `bson:"inventory"`
	}
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "inventory.trackQuantity": true},
		bson.M{
			"$inc": bson.M{"inventory.stock": -qty},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
		opts,
	).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("consume stock: %w", err)
	}
	return out.Inventory.Stock, true, nil
}

func (r *mongoProductRepo) RestoreStock(ctx context.Context, id string, qty int) error {
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$inc": bson.M{"inventory.stock": qty},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

func (r *mongoProductRepo) IncrementSales(ctx context.Context, id string, qty int) error {
	_, err := r.coll.UpdateByID(ctx, id, bson.M{"$inc": bson.M{"salesCount": qty}})
	if err != nil {
		return fmt.Errorf("increment sales: %w", err)
	}
	return nil
}
