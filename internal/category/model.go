package category

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxDepth caps the tree: a root sits at level 0, so the deepest
// allowed node is level 5.
const MaxDepth = 5

// Category is a tree node. Path holds the full ancestor chain from the
// root down to the immediate parent, which makes descendant and cycle
// queries a containment check instead of a recursive walk.
type Category struct {
	ID          primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	Name        string               `json:"name" bson:"name"`
	Slug        string               `json:"slug" bson:"slug"`
	Description string               `json:"description,omitempty" bson:"description,omitempty"`
	ParentID    *primitive.ObjectID  `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	Level       int                  `json:"level" bson:"level"`
	Path        []primitive.ObjectID `json:"path" bson:"path"`
	Deleted     bool                 `json:"-" bson:"deleted"`
	CreatedAt   time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at" bson:"updated_at"`
}

func (c *Category) inPath(id primitive.ObjectID) bool {
	for _, ancestor := range c.Path {
		if ancestor == id {
			return true
		}
	}
	return false
}
