package product_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/product"
)

type mockProductRepository struct {
	createFunc          func(ctx context.Context, p *product.Product) (primitive.ObjectID, error)
	getByIDFunc         func(ctx context.Context, id primitive.ObjectID) (*product.Product, error)
	getBySlugFunc       func(ctx context.Context, slug string) (*product.Product, error)
	updateFunc          func(ctx context.Context, p *product.Product) error
	setStatusFunc       func(ctx context.Context, id primitive.ObjectID, status product.Status) error
	listFunc            func(ctx context.Context, includeInactive bool) ([]product.Product, error)
	slugExistsFunc      func(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error)
	countByCategoryFunc func(ctx context.Context, categoryID primitive.ObjectID) (int64, error)
	reserveStockFunc    func(ctx context.Context, id primitive.ObjectID, qty int) error
	releaseStockFunc    func(ctx context.Context, id primitive.ObjectID, qty int) error
}

func (m *mockProductRepository) Create(ctx context.Context, p *product.Product) (primitive.ObjectID, error) {
	return m.createFunc(ctx, p)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*product.Product, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	return m.getBySlugFunc(ctx, slug)
}

func (m *mockProductRepository) Update(ctx context.Context, p *product.Product) error {
	return m.updateFunc(ctx, p)
}

func (m *mockProductRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status product.Status) error {
	return m.setStatusFunc(ctx, id, status)
}

func (m *mockProductRepository) List(ctx context.Context, includeInactive bool) ([]product.Product, error) {
	return m.listFunc(ctx, includeInactive)
}

func (m *mockProductRepository) SlugExists(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error) {
	return m.slugExistsFunc(ctx, slug, exclude)
}

func (m *mockProductRepository) CountByCategory(ctx context.Context, categoryID primitive.ObjectID) (int64, error) {
	return m.countByCategoryFunc(ctx, categoryID)
}

func (m *mockProductRepository) ReserveStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	return m.reserveStockFunc(ctx, id, qty)
}

func (m *mockProductRepository) ReleaseStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	return m.releaseStockFunc(ctx, id, qty)
}

func noSlugCollisions() func(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error) {
	return func(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error) {
		return false, nil
	}
}

func acceptCreate() func(ctx context.Context, p *product.Product) (primitive.ObjectID, error) {
	return func(ctx context.Context, p *product.Product) (primitive.ObjectID, error) {
		p.ID = primitive.NewObjectID()
		return p.ID, nil
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestProductService_Create_Validation(t *testing.T) {
	tests := []struct {
		name       string
		product    *product.Product
		wantErrIs  error
		wantErrMsg string
	}{
		{
			name:      "missing_sku",
			product:   &product.Product{Name: "Widget", Price: 10},
			wantErrIs: product.ErrValidation,
		},
		{
			name:      "zero_price",
			product:   &product.Product{SKU: "W-1", Name: "Widget", Price: 0},
			wantErrIs: product.ErrValidation,
		},
		{
			name: "compare_at_below_price",
			product: &product.Product{
				SKU: "W-1", Name: "Widget", Price: 20, CompareAtPrice: floatPtr(15),
			},
			wantErrIs:  product.ErrValidation,
			wantErrMsg: "compare-at price must exceed price",
		},
		{
			name: "variant_sku_equals_parent",
			product: &product.Product{
				SKU: "W-1", Name: "Widget", Price: 20,
				Variants: []product.Variant{{SKU: "W-1", Name: "Small"}},
			},
			wantErrIs: product.ErrValidation,
		},
		{
			name: "duplicate_variant_sku",
			product: &product.Product{
				SKU: "W-1", Name: "Widget", Price: 20,
				Variants: []product.Variant{
					{SKU: "W-1-S", Name: "Small"},
					{SKU: "W-1-S", Name: "Small again"},
				},
			},
			wantErrIs: product.ErrValidation,
		},
		{
			name: "negative_quantity_without_backorder",
			product: &product.Product{
				SKU: "W-1", Name: "Widget", Price: 20,
				Inventory: product.Inventory{Quantity: -1, TrackInventory: true},
			},
			wantErrIs: product.ErrValidation,
		},
		{
			name: "negative_quantity_with_backorder_allowed",
			product: &product.Product{
				SKU: "W-1", Name: "Widget", Price: 20,
				Inventory: product.Inventory{Quantity: -1, TrackInventory: true, AllowBackorder: true},
			},
		},
		{
			name:    "valid_product",
			product: &product.Product{SKU: "W-1", Name: "Widget", Price: 19.99},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockProductRepository{
				createFunc:     acceptCreate(),
				slugExistsFunc: noSlugCollisions(),
			}
			svc := product.NewService(repo)

			created, err := svc.Create(context.Background(), tt.product)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				if tt.wantErrMsg != "" {
					assert.Contains(t, err.Error(), tt.wantErrMsg)
				}
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, product.StatusActive, created.Status)
		})
	}
}

func TestProductService_Create_RoundsMoney(t *testing.T) {
	repo := &mockProductRepository{
		createFunc:     acceptCreate(),
		slugExistsFunc: noSlugCollisions(),
	}
	svc := product.NewService(repo)

	created, err := svc.Create(context.Background(), &product.Product{
		SKU:            "W-1",
		Name:           "Widget",
		Price:          19.999,
		CompareAtPrice: floatPtr(29.995),
		CostPrice:      floatPtr(7.123),
		Variants:       []product.Variant{{SKU: "W-1-S", Price: 18.005}},
	})
	assert.NoError(t, err)
	assert.Equal(t, 20.00, created.Price)
	assert.Equal(t, 30.00, *created.CompareAtPrice)
	assert.Equal(t, 7.12, *created.CostPrice)
	assert.Equal(t, 18.01, created.Variants[0].Price)
}

func TestProductService_Create_SlugCollision(t *testing.T) {
	taken := map[string]bool{"blue-widget": true, "blue-widget-2": true}
	repo := &mockProductRepository{
		createFunc: acceptCreate(),
		slugExistsFunc: func(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error) {
			return taken[slug], nil
		},
	}
	svc := product.NewService(repo)

	created, err := svc.Create(context.Background(), &product.Product{
		SKU: "W-2", Name: "Blue Widget!", Price: 10,
	})
	assert.NoError(t, err)
	assert.Equal(t, "blue-widget-3", created.Slug)
}

func TestProductService_Update_KeepsSKUAndRegeneratesSlug(t *testing.T) {
	id := primitive.NewObjectID()
	stored := &product.Product{
		ID: id, SKU: "W-1", Name: "Widget", Slug: "widget", Price: 10,
		Status: product.StatusActive,
	}
	var updated *product.Product
	repo := &mockProductRepository{
		getByIDFunc: func(ctx context.Context, gotID primitive.ObjectID) (*product.Product, error) {
			assert.Equal(t, id, gotID)
			return stored, nil
		},
		updateFunc: func(ctx context.Context, p *product.Product) error {
			updated = p
			return nil
		},
		slugExistsFunc: noSlugCollisions(),
	}
	svc := product.NewService(repo)

	_, err := svc.Update(context.Background(), &product.Product{
		ID: id, SKU: "HACKED", Name: "Deluxe Widget", Price: 12,
	})
	assert.NoError(t, err)
	assert.Equal(t, "W-1", updated.SKU)
	assert.Equal(t, "deluxe-widget", updated.Slug)
}

func TestProductService_CanPurchase(t *testing.T) {
	id := primitive.NewObjectID()

	tests := []struct {
		name      string
		stored    *product.Product
		qty       int
		wantErrIs error
	}{
		{
			name: "active_with_stock",
			stored: &product.Product{
				ID: id, Status: product.StatusActive,
				Inventory: product.Inventory{Quantity: 5, TrackInventory: true},
			},
			qty: 5,
		},
		{
			name: "inactive",
			stored: &product.Product{
				ID: id, Status: product.StatusInactive,
				Inventory: product.Inventory{Quantity: 5, TrackInventory: true},
			},
			qty:       1,
			wantErrIs: product.ErrProductInactive,
		},
		{
			name: "soft_deleted",
			stored: &product.Product{
				ID: id, Status: product.StatusDeleted,
				Inventory: product.Inventory{Quantity: 5, TrackInventory: true},
			},
			qty:       1,
			wantErrIs: product.ErrProductInactive,
		},
		{
			name: "insufficient_stock",
			stored: &product.Product{
				ID: id, Status: product.StatusActive,
				Inventory: product.Inventory{Quantity: 2, TrackInventory: true},
			},
			qty:       3,
			wantErrIs: product.ErrInsufficientStock,
		},
		{
			name: "backorder_allowed",
			stored: &product.Product{
				ID: id, Status: product.StatusActive,
				Inventory: product.Inventory{Quantity: 0, TrackInventory: true, AllowBackorder: true},
			},
			qty: 10,
		},
		{
			name: "untracked_inventory",
			stored: &product.Product{
				ID: id, Status: product.StatusActive,
				Inventory: product.Inventory{Quantity: 0, TrackInventory: false},
			},
			qty: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockProductRepository{
				getByIDFunc: func(ctx context.Context, gotID primitive.ObjectID) (*product.Product, error) {
					return tt.stored, nil
				},
			}
			svc := product.NewService(repo)

			err := svc.CanPurchase(context.Background(), id, tt.qty)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Blue Widget", "blue-widget"},
		{"  Blue   Widget!  ", "blue-widget"},
		{"USB-C Cable (2m)", "usb-c-cable-2m"},
		{"ALLCAPS", "allcaps"},
		{"---", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, product.Slugify(tt.in), "input %q", tt.in)
	}
}
