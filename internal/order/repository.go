package order

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

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type Repository interface {
	Create(ctx context.Context, o *Order) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUserID(ctx context.Context, userID primitive.ObjectID) ([]Order, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to Status) error
	SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status PaymentStatus) error
}

type mongoRepository struct {
	coll *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection("orders")}
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("orders").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: failed to create order indexes: %w", err)
	}
	return nil
}

func (r *mongoRepository) Create(ctx context.Context, o *Order) (primitive.ObjectID, error) {
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt

	res, err := r.coll.InsertOne(ctx, o)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("repository: failed to insert order %s: %w", o.Number, err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("repository: unexpected inserted id type %T", res.InsertedID)
	}
	o.ID = id
	return id, nil
}

func (r *mongoRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*Order, error) {
	var o Order
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id.Hex(), err)
	}
	return &o, nil
}

func (r *mongoRepository) GetByNumber(ctx context.Context, number string) (*Order, error) {
	var o Order
	err := r.coll.FindOne(ctx, bson.M{"number": number}).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by number %s: %w", number, err)
	}
	return &o, nil
}

func (r *mongoRepository) ListByUserID(ctx context.Context, userID primitive.ObjectID) ([]Order, error) {
	cursor, err := r.coll.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID.Hex(), err)
	}
	defer cursor.Close(ctx)

	orders := make([]Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("repository: failed to decode orders for user %s: %w", userID.Hex(), err)
	}
	return orders, nil
}

// UpdateStatus writes the new status only if the persisted status still
// equals from, so a concurrent transition loses cleanly instead of
// overwriting.
func (r *mongoRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to Status) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %s: %w", id.Hex(), err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: order %s is no longer %s", ErrStatusConflict, id.Hex(), from)
}

func (r *mongoRepository) SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status PaymentStatus) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"payment_status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update payment status %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}
