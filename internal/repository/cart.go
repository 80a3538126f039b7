package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopsphere/shopsphere-api/internal/model"
)

type CartRepository interface {
	// GetOrCreate returns the user's cart, inserting an empty one on first use.
	GetOrCreate(ctx context.Context, userID string) (*model.Cart, error)
	// Save replaces the cart's items.
	Save(ctx context.Context, cart *model.Cart) error
}

type mongoCartRepo struct{ coll *mongo.Collection }

func NewCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepo{coll: db.Collection(cartsCollection)}
}

func (r *mongoCartRepo) GetOrCreate(ctx context.Context, userID string) (*model.Cart, error) {
	now := time.Now().UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"_id":       uuid.NewString(),
		"user":      userID,
		"items":     bson.A{},
		"createdAt": now,
		"updatedAt": now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	cart := &model.Cart{}
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"user": userID}, update, opts).Decode(cart)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race on the unique user index; the winner's cart exists now.
		err = r.coll.FindOne(ctx, bson.M{"user": userID}).Decode(cart)
	}
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return cart, nil
}

func (r *mongoCartRepo) Save(ctx context.Context, cart *model.Cart) error {
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}
	cart.UpdatedAt = time.Now().UTC()
	_, err := r.coll.UpdateByID(ctx, cart.ID, bson.M{"$set": bson.M{
		"items":     cart.Items,
		"updatedAt": cart.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}
