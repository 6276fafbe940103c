package counter

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository is a single-document-per-key atomic counter.
type Repository interface {
	Next(ctx context.Context, key string) (int64, error)
}

type mongoRepository struct {
	coll *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection("counters")}
}

// Next increments the counter document for key and returns the
// post-increment value. The upsert creates the document with seq=1 on
// first use, so there is no existence check to race against.
func (r *mongoRepository) Next(ctx context.Context, key string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	res := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	)

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, fmt.Errorf("repository: failed to increment counter %s: %w", key, err)
	}
	return doc.Seq, nil
}
