package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/product"
)

var ErrValidation = errors.New("validation failed")

// ProductReader is the slice of the product service the cart needs.
type ProductReader interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*product.Product, error)
}

// TxRunner runs fn with every store call inside one transaction, keeping
// the stock pre-check consistent with the cart write. db.Mongo satisfies
// it.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*View, error)
	AddItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) (*View, error)
	UpdateItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) (*View, error)
	RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (*View, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

type service struct {
	repo     Repository
	products ProductReader
	tx       TxRunner
}

func NewService(repo Repository, products ProductReader, tx TxRunner) Service {
	return &service{repo: repo, products: products, tx: tx}
}

func (s *service) fetchOrCreate(ctx context.Context, userID primitive.ObjectID) (*Cart, error) {
	c, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return &Cart{UserID: userID, Items: []Item{}}, nil
		}
		return nil, err
	}
	return c, nil
}

// AddItem is additive: a product already in the cart has the requested
// quantity summed onto it. The stock check here is advisory; stock is
// only committed by the atomic reservation at order creation.
func (s *service) AddItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) (*View, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	var view *View
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		c, err := s.fetchOrCreate(ctx, userID)
		if err != nil {
			return err
		}

		desired := qty
		if i := c.itemIndex(productID); i >= 0 {
			desired += c.Items[i].Quantity
		}

		p, err := s.checkStock(ctx, productID, desired)
		if err != nil {
			return err
		}

		if i := c.itemIndex(productID); i >= 0 {
			c.Items[i].Quantity = desired
			c.Items[i].PriceSnapshot = p.Price
		} else {
			c.Items = append(c.Items, Item{
				ProductID:     productID,
				Quantity:      desired,
				PriceSnapshot: p.Price,
			})
		}

		if err := s.repo.Save(ctx, c); err != nil {
			return err
		}
		view, err = s.price(ctx, c)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", userID.Hex()).Str("product_id", productID.Hex()).
		Int("quantity", qty).Msg("service: item added to cart")
	return view, nil
}

// UpdateItem replaces the quantity rather than adding to it.
func (s *service) UpdateItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) (*View, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	var view *View
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}

		i := c.itemIndex(productID)
		if i < 0 {
			return fmt.Errorf("%w: product %s is not in the cart", product.ErrProductNotFound, productID.Hex())
		}

		p, err := s.checkStock(ctx, productID, qty)
		if err != nil {
			return err
		}

		c.Items[i].Quantity = qty
		c.Items[i].PriceSnapshot = p.Price

		if err := s.repo.Save(ctx, c); err != nil {
			return err
		}
		view, err = s.price(ctx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (*View, error) {
	c, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	i := c.itemIndex(productID)
	if i < 0 {
		return nil, fmt.Errorf("%w: product %s is not in the cart", product.ErrProductNotFound, productID.Hex())
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return s.price(ctx, c)
}

func (s *service) Clear(ctx context.Context, userID primitive.ObjectID) error {
	return s.repo.Clear(ctx, userID)
}

// Get is a self-healing read: items whose product has vanished or gone
// inactive are pruned and the pruned list is persisted back.
func (s *service) Get(ctx context.Context, userID primitive.ObjectID) (*View, error) {
	c, err := s.fetchOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	kept := c.Items[:0]
	pruned := 0
	for _, item := range c.Items {
		p, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrProductNotFound) {
				pruned++
				continue
			}
			return nil, err
		}
		if !p.Purchasable() {
			pruned++
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept

	if pruned > 0 {
		log.Info().Str("user_id", userID.Hex()).Int("pruned", pruned).
			Msg("service: pruned unavailable products from cart")
		if err := s.repo.Save(ctx, c); err != nil {
			return nil, err
		}
	}

	return s.price(ctx, c)
}

func (s *service) checkStock(ctx context.Context, productID primitive.ObjectID, qty int) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Purchasable() {
		return nil, fmt.Errorf("%w: product %s", product.ErrProductInactive, productID.Hex())
	}
	if p.Inventory.TrackInventory && !p.Inventory.AllowBackorder && p.Inventory.Quantity < qty {
		return nil, fmt.Errorf("%w: product %s has %d available, %d requested",
			product.ErrInsufficientStock, productID.Hex(), p.Inventory.Quantity, qty)
	}
	return p, nil
}

// price computes the subtotal from live product prices; the stored
// snapshot is informational only.
func (s *service) price(ctx context.Context, c *Cart) (*View, error) {
	view := &View{Cart: c, Items: make([]PricedItem, 0, len(c.Items))}
	for _, item := range c.Items {
		p, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		line := product.RoundMoney(p.Price * float64(item.Quantity))
		view.Items = append(view.Items, PricedItem{
			ProductID:     item.ProductID,
			Name:          p.Name,
			Quantity:      item.Quantity,
			UnitPrice:     p.Price,
			LineTotal:     line,
			PriceSnapshot: item.PriceSnapshot,
		})
		view.Subtotal += line
	}
	view.Subtotal = product.RoundMoney(view.Subtotal)
	return view, nil
}
