package cart

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Item stores priceSnapshot purely for offline/summary display; totals
// are always recomputed from the live product price.
type Item struct {
	ProductID     primitive.ObjectID `json:"product_id" bson:"product_id"`
	Quantity      int                `json:"quantity" bson:"quantity"`
	PriceSnapshot float64            `json:"price_snapshot" bson:"price_snapshot"`
}

type Cart struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"user_id" bson:"user_id"`
	Items     []Item             `json:"items" bson:"items"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

func (c *Cart) itemIndex(productID primitive.ObjectID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// View is a cart priced from live product data.
type View struct {
	Cart     *Cart        `json:"cart"`
	Items    []PricedItem `json:"items"`
	Subtotal float64      `json:"subtotal"`
}

type PricedItem struct {
	ProductID     primitive.ObjectID `json:"product_id"`
	Name          string             `json:"name"`
	Quantity      int                `json:"quantity"`
	UnitPrice     float64            `json:"unit_price"`
	LineTotal     float64            `json:"line_total"`
	PriceSnapshot float64            `json:"price_snapshot"`
}
