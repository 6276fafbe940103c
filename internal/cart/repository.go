package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrCartNotFound = errors.New("cart not found")

type Repository interface {
	GetByUserID(ctx context.Context, userID primitive.ObjectID) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

type mongoRepository struct {
	coll *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection("carts")}
}

// EnsureIndexes enforces one cart per user.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("carts").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("repository: failed to create cart indexes: %w", err)
	}
	return nil
}

func (r *mongoRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*Cart, error) {
	var c Cart
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart for user %s: %w", userID.Hex(), err)
	}
	return &c, nil
}

// Save upserts on user_id, so the cart is created lazily on first add
// and the one-cart-per-user constraint holds without a separate
// existence check.
func (r *mongoRepository) Save(ctx context.Context, c *Cart) error {
	now := time.Now().UTC()
	c.UpdatedAt = now
	if c.Items == nil {
		c.Items = []Item{}
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"user_id": c.UserID},
		bson.M{
			"$set": bson.M{
				"items":      c.Items,
				"updated_at": c.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"user_id":    c.UserID,
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to save cart for user %s: %w", c.UserID.Hex(), err)
	}
	if id, ok := res.UpsertedID.(primitive.ObjectID); ok {
		c.ID = id
		c.CreatedAt = now
	}
	return nil
}

func (r *mongoRepository) Clear(ctx context.Context, userID primitive.ObjectID) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"items": []Item{}, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("repository: failed to clear cart for user %s: %w", userID.Hex(), err)
	}
	return nil
}
