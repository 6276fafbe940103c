package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrSKUExists         = errors.New("product with this SKU already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repository interface {
	Create(ctx context.Context, p *Product) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	Update(ctx context.Context, p *Product) error
	SetStatus(ctx context.Context, id primitive.ObjectID, status Status) error
	List(ctx context.Context, includeInactive bool) ([]Product, error)
	SlugExists(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error)
	CountByCategory(ctx context.Context, categoryID primitive.ObjectID) (int64, error)
	ReserveStock(ctx context.Context, id primitive.ObjectID, qty int) error
	ReleaseStock(ctx context.Context, id primitive.ObjectID, qty int) error
}

type mongoRepository struct {
	coll *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection("products")}
}

// EnsureIndexes creates the unique SKU and slug indexes. Call once at
// startup before serving traffic.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("products").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sku", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "category_id", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: failed to create product indexes: %w", err)
	}
	return nil
}

func (r *mongoRepository) Create(ctx context.Context, p *Product) (primitive.ObjectID, error) {
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt

	res, err := r.coll.InsertOne(ctx, p)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, ErrSKUExists
		}
		return primitive.NilObjectID, fmt.Errorf("repository: failed to insert product: %w", err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("repository: unexpected inserted id type %T", res.InsertedID)
	}
	p.ID = id
	return id, nil
}

func (r *mongoRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*Product, error) {
	var p Product
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id.Hex(), err)
	}
	return &p, nil
}

func (r *mongoRepository) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	var p Product
	err := r.coll.FindOne(ctx, bson.M{"slug": slug}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by slug %s: %w", slug, err)
	}
	return &p, nil
}

func (r *mongoRepository) Update(ctx context.Context, p *Product) error {
	p.UpdatedAt = time.Now().UTC()

	// SKU is the immutable business key, so it is deliberately absent
	// from the update document.
	update := bson.M{"$set": bson.M{
		"name":             p.Name,
		"slug":             p.Slug,
		"description":      p.Description,
		"price":            p.Price,
		"compare_at_price": p.CompareAtPrice,
		"cost_price":       p.CostPrice,
		"inventory":        p.Inventory,
		"variants":         p.Variants,
		"category_id":      p.CategoryID,
		"status":           p.Status,
		"updated_at":       p.UpdatedAt,
	}}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": p.ID}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSKUExists
		}
		return fmt.Errorf("repository: failed to update product %s: %w", p.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *mongoRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status Status) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("repository: failed to set product status %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *mongoRepository) List(ctx context.Context, includeInactive bool) ([]Product, error) {
	filter := bson.M{"status": StatusActive}
	if includeInactive {
		filter = bson.M{"status": bson.M{"$ne": StatusDeleted}}
	}

	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list products: %w", err)
	}
	defer cursor.Close(ctx)

	products := make([]Product, 0)
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("repository: failed to decode products: %w", err)
	}
	return products, nil
}

func (r *mongoRepository) SlugExists(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error) {
	filter := bson.M{"slug": slug}
	if exclude != primitive.NilObjectID {
		filter["_id"] = bson.M{"$ne": exclude}
	}

	err := r.coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("repository: failed to check slug %s: %w", slug, err)
	}
	return true, nil
}

func (r *mongoRepository) CountByCategory(ctx context.Context, categoryID primitive.ObjectID) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"category_id": categoryID,
		"status":      bson.M{"$ne": StatusDeleted},
	})
	if err != nil {
		return 0, fmt.Errorf("repository: failed to count products in category %s: %w", categoryID.Hex(), err)
	}
	return n, nil
}

// ReserveStock decrements tracked stock by qty in a single conditional
// update: the stock check and the decrement are one atomic operation, so
// concurrent reservations cannot both pass the check and oversell.
func (r *mongoRepository) ReserveStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	filter := bson.M{
		"_id":                      id,
		"inventory.track_inventory": true,
		"$or": []bson.M{
			{"inventory.quantity": bson.M{"$gte": qty}},
			{"inventory.allow_backorder": true},
		},
	}

	res, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{"inventory.quantity": -qty},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("repository: failed to reserve stock for product %s: %w", id.Hex(), err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// The conditional update matched nothing: untracked product,
	// insufficient stock, or a missing document. Disambiguate.
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !p.Inventory.TrackInventory {
		return nil
	}

	log.Warn().Str("product_id", id.Hex()).Int("requested", qty).
		Int("available", p.Inventory.Quantity).Msg("repository: stock reservation rejected")
	return fmt.Errorf("%w: product %s has %d available, %d requested",
		ErrInsufficientStock, id.Hex(), p.Inventory.Quantity, qty)
}

// ReleaseStock adds qty back to tracked stock. There is no upper bound:
// a release simply credits the quantity, on the assumption that only the
// cancellation and rollback paths call it.
func (r *mongoRepository) ReleaseStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "inventory.track_inventory": true},
		bson.M{
			"$inc": bson.M{"inventory.quantity": qty},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("repository: failed to release stock for product %s: %w", id.Hex(), err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Untracked products are a successful no-op; only a missing
	// document is an error.
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}
