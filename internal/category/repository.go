package category

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
	ErrCategoryNotFound = errors.New("category not found")
	ErrSlugExists       = errors.New("category with this slug already exists")
)

type Repository interface {
	Create(ctx context.Context, c *Category) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*Category, error)
	Update(ctx context.Context, c *Category) error
	List(ctx context.Context) ([]Category, error)
	SlugExists(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error)
	CountDescendants(ctx context.Context, id primitive.ObjectID) (int64, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID) error
}

type mongoRepository struct {
	coll *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection("categories")}
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("categories").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "path", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: failed to create category indexes: %w", err)
	}
	return nil
}

func (r *mongoRepository) Create(ctx context.Context, c *Category) (primitive.ObjectID, error) {
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	if c.Path == nil {
		c.Path = []primitive.ObjectID{}
	}

	res, err := r.coll.InsertOne(ctx, c)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, ErrSlugExists
		}
		return primitive.NilObjectID, fmt.Errorf("repository: failed to insert category: %w", err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("repository: unexpected inserted id type %T", res.InsertedID)
	}
	c.ID = id
	return id, nil
}

func (r *mongoRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*Category, error) {
	var c Category
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "deleted": false}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("repository: failed to select category by id %s: %w", id.Hex(), err)
	}
	return &c, nil
}

func (r *mongoRepository) Update(ctx context.Context, c *Category) error {
	c.UpdatedAt = time.Now().UTC()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": c.ID, "deleted": false},
		bson.M{"$set": bson.M{
			"name":        c.Name,
			"slug":        c.Slug,
			"description": c.Description,
			"parent_id":   c.ParentID,
			"level":       c.Level,
			"path":        c.Path,
			"updated_at":  c.UpdatedAt,
		}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSlugExists
		}
		return fmt.Errorf("repository: failed to update category %s: %w", c.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func (r *mongoRepository) List(ctx context.Context) ([]Category, error) {
	cursor, err := r.coll.Find(ctx,
		bson.M{"deleted": false},
		options.Find().SetSort(bson.D{{Key: "level", Value: 1}, {Key: "name", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list categories: %w", err)
	}
	defer cursor.Close(ctx)

	categories := make([]Category, 0)
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("repository: failed to decode categories: %w", err)
	}
	return categories, nil
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
		return false, fmt.Errorf("repository: failed to check category slug %s: %w", slug, err)
	}
	return true, nil
}

// CountDescendants counts live nodes whose path contains id.
func (r *mongoRepository) CountDescendants(ctx context.Context, id primitive.ObjectID) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"path": id, "deleted": false})
	if err != nil {
		return 0, fmt.Errorf("repository: failed to count descendants of %s: %w", id.Hex(), err)
	}
	return n, nil
}

func (r *mongoRepository) SoftDelete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("repository: failed to delete category %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrCategoryNotFound
	}
	return nil
}
