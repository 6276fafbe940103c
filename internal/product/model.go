package product

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

func (s Status) String() string {
	return string(s)
}

// Inventory is the stock-tracking block embedded in a product. When
// TrackInventory is false every stock check and mutation is a no-op
// (digital goods, unlimited SKUs).
type Inventory struct {
	Quantity          int  `json:"quantity" bson:"quantity"`
	LowStockThreshold int  `json:"low_stock_threshold" bson:"low_stock_threshold"`
	TrackInventory    bool `json:"track_inventory" bson:"track_inventory"`
	AllowBackorder    bool `json:"allow_backorder" bson:"allow_backorder"`
}

type Variant struct {
	SKU      string  `json:"sku" bson:"sku"`
	Name     string  `json:"name" bson:"name"`
	Price    float64 `json:"price" bson:"price"`
	Quantity int     `json:"quantity" bson:"quantity"`
}

type Product struct {
	ID             primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	SKU            string              `json:"sku" bson:"sku"`
	Name           string              `json:"name" bson:"name"`
	Slug           string              `json:"slug" bson:"slug"`
	Description    string              `json:"description,omitempty" bson:"description,omitempty"`
	Price          float64             `json:"price" bson:"price"`
	CompareAtPrice *float64            `json:"compare_at_price,omitempty" bson:"compare_at_price,omitempty"`
	CostPrice      *float64            `json:"cost_price,omitempty" bson:"cost_price,omitempty"`
	Inventory      Inventory           `json:"inventory" bson:"inventory"`
	Variants       []Variant           `json:"variants,omitempty" bson:"variants,omitempty"`
	CategoryID     *primitive.ObjectID `json:"category_id,omitempty" bson:"category_id,omitempty"`
	Status         Status              `json:"status" bson:"status"`
	CreatedAt      time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" bson:"updated_at"`
}

// Purchasable reports whether the product can appear in new carts and
// orders. Soft-deleted products stay in the collection to keep
// historical order lines resolvable.
func (p *Product) Purchasable() bool {
	return p.Status == StatusActive
}

// LowStock reports whether tracked stock has fallen to the threshold.
func (p *Product) LowStock() bool {
	return p.Inventory.TrackInventory && p.Inventory.Quantity <= p.Inventory.LowStockThreshold
}
