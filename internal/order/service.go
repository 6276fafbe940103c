package order

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/cart"
	"storefront/internal/product"
)

var (
	ErrCartEmpty     = errors.New("cart is empty")
	ErrTotalMismatch = errors.New("submitted total does not match computed total")
)

// totalTolerance absorbs float representation noise when comparing a
// client-submitted total against the server-computed one.
const totalTolerance = 0.01

// Inventory is the slice of the product service the order path needs:
// the atomic reserve/release primitives and the live product read used
// to snapshot line items.
type Inventory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*product.Product, error)
	ReserveStock(ctx context.Context, id primitive.ObjectID, qty int) error
	ReleaseStock(ctx context.Context, id primitive.ObjectID, qty int) error
}

type CartStore interface {
	GetByUserID(ctx context.Context, userID primitive.ObjectID) (*cart.Cart, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

type NumberGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// TxRunner wraps a multi-document transaction. On error every write made
// with the inner context rolls back, including stock reservations.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher emits order lifecycle events after state is committed.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Pricing holds the server-side charge parameters applied to every
// order.
type Pricing struct {
	TaxRate          float64
	ShippingFee      float64
	FreeShippingOver float64
}

type CreateInput struct {
	UserID          primitive.ObjectID
	ShippingAddress Address
	PaymentMethod   string
	// ExpectedTotal, when set, is the client's idea of the total. A
	// mismatch beyond the tolerance rejects the order; it is never
	// silently corrected.
	ExpectedTotal *float64
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*Order, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUserID(ctx context.Context, userID primitive.ObjectID) ([]Order, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, next Status) (*Order, error)
	Cancel(ctx context.Context, id primitive.ObjectID) (*Order, error)
	SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status PaymentStatus) error
}

type service struct {
	repo      Repository
	inventory Inventory
	carts     CartStore
	numbers   NumberGenerator
	tx        TxRunner
	events    Publisher
	pricing   Pricing
}

func NewService(repo Repository, inventory Inventory, carts CartStore, numbers NumberGenerator, tx TxRunner, events Publisher, pricing Pricing) Service {
	return &service{
		repo:      repo,
		inventory: inventory,
		carts:     carts,
		numbers:   numbers,
		tx:        tx,
		events:    events,
		pricing:   pricing,
	}
}

// Create turns the user's cart into an order inside one transaction:
// reserve stock per line (all-or-nothing), snapshot immutable line items
// at live prices, compute totals server-side, mint the order number,
// clear the cart, persist the order as pending. Any failure aborts the
// transaction and rolls back every reservation made within it.
func (s *service) Create(ctx context.Context, input CreateInput) (*Order, error) {
	var created *Order

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		c, err := s.carts.GetByUserID(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, cart.ErrCartNotFound) {
				return ErrCartEmpty
			}
			return err
		}
		if len(c.Items) == 0 {
			return ErrCartEmpty
		}

		items := make([]Item, 0, len(c.Items))
		subtotal := 0.0
		for _, line := range c.Items {
			p, err := s.inventory.GetByID(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if !p.Purchasable() {
				return fmt.Errorf("%w: product %s", product.ErrProductInactive, line.ProductID.Hex())
			}

			if err := s.inventory.ReserveStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}

			// Live price at purchase time, not the cart snapshot.
			items = append(items, Item{
				ProductID: p.ID,
				Name:      p.Name,
				SKU:       p.SKU,
				Quantity:  line.Quantity,
				UnitPrice: p.Price,
			})
			subtotal += p.Price * float64(line.Quantity)
		}

		subtotal = product.RoundMoney(subtotal)
		tax := product.RoundMoney(subtotal * s.pricing.TaxRate)
		shipping := s.pricing.ShippingFee
		if s.pricing.FreeShippingOver > 0 && subtotal >= s.pricing.FreeShippingOver {
			shipping = 0
		}
		total := product.RoundMoney(subtotal + tax + shipping)

		if input.ExpectedTotal != nil && math.Abs(total-*input.ExpectedTotal) > totalTolerance {
			return fmt.Errorf("%w: computed %.2f, submitted %.2f", ErrTotalMismatch, total, *input.ExpectedTotal)
		}

		number, err := s.numbers.Generate(ctx)
		if err != nil {
			return err
		}

		o := &Order{
			Number:          number,
			UserID:          input.UserID,
			Items:           items,
			Subtotal:        subtotal,
			Tax:             tax,
			Shipping:        shipping,
			Total:           total,
			Status:          StatusPending,
			PaymentStatus:   PaymentPending,
			PaymentMethod:   input.PaymentMethod,
			ShippingAddress: input.ShippingAddress,
		}
		if _, err := s.repo.Create(ctx, o); err != nil {
			return err
		}

		if err := s.carts.Clear(ctx, input.UserID); err != nil {
			return err
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", created.ID.Hex()).Str("number", created.Number).
		Str("user_id", input.UserID.Hex()).Float64("total", created.Total).
		Msg("service: order created")
	s.publish(ctx, "order.created", created)
	return created, nil
}

func (s *service) GetByID(ctx context.Context, id primitive.ObjectID) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *service) ListByUserID(ctx context.Context, userID primitive.ObjectID) ([]Order, error) {
	return s.repo.ListByUserID(ctx, userID)
}

// UpdateStatus validates the transition against the current persisted
// status, read fresh here rather than trusted from the client. The
// conditional write in the repository closes the remaining window
// between the read and the update.
func (s *service) UpdateStatus(ctx context.Context, id primitive.ObjectID, next Status) (*Order, error) {
	if next == StatusCancelled {
		return s.Cancel(ctx, id)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == next {
		return current, nil
	}
	if err := ValidateTransition(current.Status, next); err != nil {
		log.Warn().Str("order_id", id.Hex()).Stringer("current", current.Status).
			Stringer("requested", next).Msg("service: invalid status transition attempt")
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, id, current.Status, next); err != nil {
		return nil, err
	}

	current.Status = next
	log.Info().Str("order_id", id.Hex()).Stringer("status", next).
		Msg("service: order status updated")
	s.publish(ctx, "order.status_changed", current)
	return current, nil
}

// Cancel moves the order to cancelled and releases every line item's
// reserved stock, as a single transaction. Shipped and delivered orders
// cannot be cancelled.
func (s *service) Cancel(ctx context.Context, id primitive.ObjectID) (*Order, error) {
	var cancelled *Order

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusCancelled {
			cancelled = current
			return nil
		}
		if err := ValidateTransition(current.Status, StatusCancelled); err != nil {
			return err
		}

		for _, item := range current.Items {
			if err := s.inventory.ReleaseStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if err := s.repo.UpdateStatus(ctx, id, current.Status, StatusCancelled); err != nil {
			return err
		}

		current.Status = StatusCancelled
		cancelled = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", id.Hex()).Msg("service: order cancelled, stock released")
	s.publish(ctx, "order.status_changed", cancelled)
	return cancelled, nil
}

func (s *service) SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status PaymentStatus) error {
	// TODO: drive this from a payment-gateway callback once one is
	// integrated; for now it is an admin-only toggle.
	return s.repo.SetPaymentStatus(ctx, id, status)
}

// ValidateTotal recomputes the order total from its immutable line items
// and rejects any drift beyond the tolerance. Mismatches are hard
// failures, never silently corrected.
func ValidateTotal(o *Order) error {
	sum := 0.0
	for _, item := range o.Items {
		sum += item.UnitPrice * float64(item.Quantity)
	}
	computed := product.RoundMoney(sum) + o.Tax + o.Shipping
	if math.Abs(o.Total-computed) > totalTolerance {
		return fmt.Errorf("%w: stored %.2f, computed %.2f", ErrTotalMismatch, o.Total, computed)
	}
	return nil
}

func (s *service) publish(ctx context.Context, routingKey string, o *Order) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, routingKey, o); err != nil {
		// Events are best effort; the order itself is already
		// committed.
		log.Error().Err(err).Str("routing_key", routingKey).
			Str("order_id", o.ID.Hex()).Msg("service: failed to publish order event")
	}
}
