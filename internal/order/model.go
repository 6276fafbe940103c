package order

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Item is an immutable line item: quantity and unit price are captured
// at order creation and never recalculated from the live product, so
// historical orders stay accurate through later price changes.
type Item struct {
	ProductID primitive.ObjectID `json:"product_id" bson:"product_id"`
	Name      string             `json:"name" bson:"name"`
	SKU       string             `json:"sku" bson:"sku"`
	Quantity  int                `json:"quantity" bson:"quantity"`
	UnitPrice float64            `json:"unit_price" bson:"unit_price"`
}

type Address struct {
	Line1      string `json:"line1" bson:"line1"`
	Line2      string `json:"line2,omitempty" bson:"line2,omitempty"`
	City       string `json:"city" bson:"city"`
	Region     string `json:"region,omitempty" bson:"region,omitempty"`
	PostalCode string `json:"postal_code" bson:"postal_code"`
	Country    string `json:"country" bson:"country"`
}

type Order struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Number          string             `json:"number" bson:"number"`
	UserID          primitive.ObjectID `json:"user_id" bson:"user_id"`
	Items           []Item             `json:"items" bson:"items"`
	Subtotal        float64            `json:"subtotal" bson:"subtotal"`
	Tax             float64            `json:"tax" bson:"tax"`
	Shipping        float64            `json:"shipping" bson:"shipping"`
	Total           float64            `json:"total" bson:"total"`
	Status          Status             `json:"status" bson:"status"`
	PaymentStatus   PaymentStatus      `json:"payment_status" bson:"payment_status"`
	PaymentMethod   string             `json:"payment_method" bson:"payment_method"`
	ShippingAddress Address            `json:"shipping_address" bson:"shipping_address"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}
