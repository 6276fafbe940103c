package product_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/product"
)

var testDB *mongo.Database

// TestMain connects to the instance named by MONGO_TEST_URI. Without it
// the integration tests are skipped and only the unit tests run.
func TestMain(m *testing.M) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		os.Exit(1)
	}
	testDB = client.Database("storefront_test")

	code := m.Run()

	_ = testDB.Drop(context.Background())
	_ = client.Disconnect(context.Background())
	os.Exit(code)
}

func requireTestDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("MONGO_TEST_URI not set")
	}
}

func seedProduct(t *testing.T, repo product.Repository, sku string, qty int) *product.Product {
	t.Helper()
	p := &product.Product{
		Name:   "Widget " + sku,
		SKU:    sku,
		Slug:   "widget-" + sku,
		Price:  9.99,
		Status: product.StatusActive,
		Inventory: product.Inventory{
			Quantity:       qty,
			TrackInventory: true,
		},
	}
	_, err := repo.Create(context.Background(), p)
	require.NoError(t, err)
	return p
}

func TestRepository_CreateAndGet(t *testing.T) {
	requireTestDB(t)
	repo := product.NewRepository(testDB)
	ctx := context.Background()

	created := seedProduct(t, repo, "IT-CREATE-1", 5)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.SKU, byID.SKU)

	bySlug, err := repo.GetBySlug(ctx, created.Slug)
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	_, err = repo.GetByID(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, product.ErrProductNotFound)
}

func TestRepository_DuplicateSKU(t *testing.T) {
	requireTestDB(t)
	require.NoError(t, product.EnsureIndexes(context.Background(), testDB))
	repo := product.NewRepository(testDB)

	seedProduct(t, repo, "IT-DUP-1", 5)

	dup := &product.Product{
		Name:   "Duplicate",
		SKU:    "IT-DUP-1",
		Slug:   "duplicate",
		Price:  1.00,
		Status: product.StatusActive,
	}
	_, err := repo.Create(context.Background(), dup)
	assert.ErrorIs(t, err, product.ErrSKUExists)
}

func TestRepository_ReserveStock(t *testing.T) {
	requireTestDB(t)
	repo := product.NewRepository(testDB)
	ctx := context.Background()

	p := seedProduct(t, repo, "IT-RESERVE-1", 10)

	require.NoError(t, repo.ReserveStock(ctx, p.ID, 4))

	err := repo.ReserveStock(ctx, p.ID, 7)
	assert.ErrorIs(t, err, product.ErrInsufficientStock)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Inventory.Quantity)

	require.NoError(t, repo.ReleaseStock(ctx, p.ID, 4))
	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Inventory.Quantity)
}

func TestRepository_ReserveStock_Concurrent(t *testing.T) {
	requireTestDB(t)
	repo := product.NewRepository(testDB)
	ctx := context.Background()

	p := seedProduct(t, repo, "IT-RACE-1", 10)

	const workers = 10
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			results <- repo.ReserveStock(ctx, p.ID, 3)
		}()
	}

	var ok, insufficient int
	for i := 0; i < workers; i++ {
		switch err := <-results; {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, product.ErrInsufficientStock)
			insufficient++
		}
	}

	assert.Equal(t, 3, ok)
	assert.Equal(t, 7, insufficient)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Inventory.Quantity)
}
