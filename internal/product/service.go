package product

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrProductInactive = errors.New("product is not available for purchase")
)

type Service interface {
	Create(ctx context.Context, p *Product) (*Product, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	Update(ctx context.Context, p *Product) (*Product, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, includeInactive bool) ([]Product, error)
	CanPurchase(ctx context.Context, id primitive.ObjectID, qty int) error
	ReserveStock(ctx context.Context, id primitive.ObjectID, qty int) error
	ReleaseStock(ctx context.Context, id primitive.ObjectID, qty int) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// RoundMoney rounds to 2 decimal places; applied to every price field on
// write so stored amounts never carry float residue.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *service) Create(ctx context.Context, p *Product) (*Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	normalizePrices(p)

	slug, err := uniqueSlug(ctx, s.repo, p.Name, primitive.NilObjectID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate slug: %w", err)
	}
	p.Slug = slug
	p.Status = StatusActive

	if _, err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrSKUExists) {
			return nil, ErrSKUExists
		}
		log.Error().Err(err).Str("sku", p.SKU).Msg("service: failed to create product")
		return nil, fmt.Errorf("service: failed to create product: %w", err)
	}

	log.Info().Str("product_id", p.ID.Hex()).Str("sku", p.SKU).Str("slug", p.Slug).
		Msg("service: product created")
	return p, nil
}

func (s *service) GetByID(ctx context.Context, id primitive.ObjectID) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	return s.repo.GetBySlug(ctx, slug)
}

func (s *service) Update(ctx context.Context, p *Product) (*Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	normalizePrices(p)

	current, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	// SKU is immutable; the stored value always wins.
	p.SKU = current.SKU
	p.CreatedAt = current.CreatedAt
	if p.Status == "" {
		p.Status = current.Status
	}

	// The slug follows the name, with suffix-counter dedup against
	// every other product.
	if p.Name != current.Name {
		slug, err := uniqueSlug(ctx, s.repo, p.Name, p.ID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to regenerate slug: %w", err)
		}
		p.Slug = slug
	} else {
		p.Slug = current.Slug
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete soft-deletes: the document survives so historical order lines
// keep resolving, but the product disappears from listings and rejects
// new purchases.
func (s *service) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := s.repo.SetStatus(ctx, id, StatusDeleted); err != nil {
		return err
	}
	log.Info().Str("product_id", id.Hex()).Msg("service: product soft-deleted")
	return nil
}

func (s *service) List(ctx context.Context, includeInactive bool) ([]Product, error) {
	return s.repo.List(ctx, includeInactive)
}

// CanPurchase is the advisory pre-flight check used at add-to-cart time.
// It is not authoritative: the true guard is the atomic reservation at
// order creation.
func (s *service) CanPurchase(ctx context.Context, id primitive.ObjectID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !p.Purchasable() {
		return fmt.Errorf("%w: product %s", ErrProductInactive, id.Hex())
	}
	if !p.Inventory.TrackInventory || p.Inventory.AllowBackorder {
		return nil
	}
	if p.Inventory.Quantity < qty {
		return fmt.Errorf("%w: product %s has %d available, %d requested",
			ErrInsufficientStock, id.Hex(), p.Inventory.Quantity, qty)
	}
	return nil
}

func (s *service) ReserveStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	return s.repo.ReserveStock(ctx, id, qty)
}

func (s *service) ReleaseStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	return s.repo.ReleaseStock(ctx, id, qty)
}

func validateProduct(p *Product) error {
	if p.SKU == "" {
		return fmt.Errorf("%w: sku is required", ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if p.Price <= 0 {
		return fmt.Errorf("%w: price must be greater than zero", ErrValidation)
	}
	if p.CompareAtPrice != nil && *p.CompareAtPrice <= p.Price {
		return fmt.Errorf("%w: compare-at price must exceed price", ErrValidation)
	}
	if p.CostPrice != nil && *p.CostPrice < 0 {
		return fmt.Errorf("%w: cost price cannot be negative", ErrValidation)
	}
	if p.Inventory.Quantity < 0 && !p.Inventory.AllowBackorder {
		return fmt.Errorf("%w: quantity cannot be negative", ErrValidation)
	}

	seen := make(map[string]bool, len(p.Variants))
	for _, v := range p.Variants {
		if v.SKU == "" {
			return fmt.Errorf("%w: variant sku is required", ErrValidation)
		}
		if v.SKU == p.SKU {
			return fmt.Errorf("%w: variant sku %s must differ from product sku", ErrValidation, v.SKU)
		}
		if seen[v.SKU] {
			return fmt.Errorf("%w: duplicate variant sku %s", ErrValidation, v.SKU)
		}
		seen[v.SKU] = true
		if v.Quantity < 0 {
			return fmt.Errorf("%w: variant %s quantity cannot be negative", ErrValidation, v.SKU)
		}
	}
	return nil
}

func normalizePrices(p *Product) {
	p.Price = RoundMoney(p.Price)
	if p.CompareAtPrice != nil {
		v := RoundMoney(*p.CompareAtPrice)
		p.CompareAtPrice = &v
	}
	if p.CostPrice != nil {
		v := RoundMoney(*p.CostPrice)
		p.CostPrice = &v
	}
	for i := range p.Variants {
		p.Variants[i].Price = RoundMoney(p.Variants[i].Price)
	}
}
