package order_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/cart"
	"storefront/internal/order"
	"storefront/internal/product"
)

// memStore fakes the document store for the order path: products with
// tracked stock, one cart, persisted orders. Its transaction runner
// snapshots state before fn and restores it when fn fails, mirroring
// the all-or-nothing rollback the real store provides.
type memStore struct {
	products map[primitive.ObjectID]*product.Product
	cart     *cart.Cart
	orders   map[primitive.ObjectID]*order.Order

	reserveCalls []primitive.ObjectID
	releaseCalls []primitive.ObjectID
	failReserve  map[primitive.ObjectID]error
}

func newMemStore() *memStore {
	return &memStore{
		products:    make(map[primitive.ObjectID]*product.Product),
		orders:      make(map[primitive.ObjectID]*order.Order),
		failReserve: make(map[primitive.ObjectID]error),
	}
}

func (m *memStore) addProduct(name string, price float64, stock int) *product.Product {
	p := &product.Product{
		ID: primitive.NewObjectID(), SKU: name, Name: name, Price: price,
		Status:    product.StatusActive,
		Inventory: product.Inventory{Quantity: stock, TrackInventory: true},
	}
	m.products[p.ID] = p
	return p
}

// Inventory

func (m *memStore) GetByID(ctx context.Context, id primitive.ObjectID) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ReserveStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	m.reserveCalls = append(m.reserveCalls, id)
	if err := m.failReserve[id]; err != nil {
		return err
	}
	p, ok := m.products[id]
	if !ok {
		return product.ErrProductNotFound
	}
	if !p.Inventory.AllowBackorder && p.Inventory.Quantity < qty {
		return product.ErrInsufficientStock
	}
	p.Inventory.Quantity -= qty
	return nil
}

func (m *memStore) ReleaseStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	m.releaseCalls = append(m.releaseCalls, id)
	p, ok := m.products[id]
	if !ok {
		return product.ErrProductNotFound
	}
	p.Inventory.Quantity += qty
	return nil
}

// CartStore

func (m *memStore) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*cart.Cart, error) {
	if m.cart == nil || m.cart.UserID != userID {
		return nil, cart.ErrCartNotFound
	}
	cp := *m.cart
	return &cp, nil
}

func (m *memStore) Clear(ctx context.Context, userID primitive.ObjectID) error {
	if m.cart != nil && m.cart.UserID == userID {
		m.cart.Items = []cart.Item{}
	}
	return nil
}

// order.Repository

func (m *memStore) Create(ctx context.Context, o *order.Order) (primitive.ObjectID, error) {
	o.ID = primitive.NewObjectID()
	cp := *o
	m.orders[o.ID] = &cp
	return o.ID, nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id primitive.ObjectID) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	for _, o := range m.orders {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (m *memStore) ListByUserID(ctx context.Context, userID primitive.ObjectID) ([]order.Order, error) {
	out := make([]order.Order, 0)
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to order.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	return nil
}

func (m *memStore) SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status order.PaymentStatus) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.PaymentStatus = status
	return nil
}

// orderRepoAdapter renames GetOrderByID to the Repository method name.
type orderRepoAdapter struct{ *memStore }

func (a orderRepoAdapter) GetByID(ctx context.Context, id primitive.ObjectID) (*order.Order, error) {
	return a.GetOrderByID(ctx, id)
}

// snapshotTx restores the whole store when fn fails.
type snapshotTx struct{ store *memStore }

func (t snapshotTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	quantities := make(map[primitive.ObjectID]int, len(t.store.products))
	for id, p := range t.store.products {
		quantities[id] = p.Inventory.Quantity
	}
	var cartItems []cart.Item
	if t.store.cart != nil {
		cartItems = append([]cart.Item(nil), t.store.cart.Items...)
	}
	orderIDs := make(map[primitive.ObjectID]bool, len(t.store.orders))
	for id := range t.store.orders {
		orderIDs[id] = true
	}

	if err := fn(ctx); err != nil {
		for id, q := range quantities {
			t.store.products[id].Inventory.Quantity = q
		}
		if t.store.cart != nil {
			t.store.cart.Items = cartItems
		}
		for id := range t.store.orders {
			if !orderIDs[id] {
				delete(t.store.orders, id)
			}
		}
		return err
	}
	return nil
}

type seqNumbers struct{ n int }

func (g *seqNumbers) Generate(ctx context.Context) (string, error) {
	g.n++
	return fmt.Sprintf("ORD-20250901-%05d", g.n), nil
}

type recordingPublisher struct {
	keys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.keys = append(p.keys, routingKey)
	return nil
}

func defaultPricing() order.Pricing {
	return order.Pricing{TaxRate: 0.10, ShippingFee: 10.00, FreeShippingOver: 500.00}
}

func newOrderService(store *memStore, events order.Publisher) order.Service {
	return order.NewService(orderRepoAdapter{store}, store, store, &seqNumbers{}, snapshotTx{store}, events, defaultPricing())
}

func TestOrderService_Create_Success(t *testing.T) {
	store := newMemStore()
	productA := store.addProduct("alpha", 29.99, 100)
	productB := store.addProduct("beta", 49.99, 50)
	userID := primitive.NewObjectID()
	store.cart = &cart.Cart{
		UserID: userID,
		Items: []cart.Item{
			// Stale snapshots on purpose: the order must price from
			// the live product.
			{ProductID: productA.ID, Quantity: 2, PriceSnapshot: 19.99},
			{ProductID: productB.ID, Quantity: 1, PriceSnapshot: 39.99},
		},
	}
	events := &recordingPublisher{}
	svc := newOrderService(store, events)

	o, err := svc.Create(context.Background(), order.CreateInput{
		UserID:          userID,
		PaymentMethod:   "card",
		ShippingAddress: order.Address{Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
	})
	assert.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.InDelta(t, 109.97, o.Subtotal, 0.001)
	assert.InDelta(t, 11.00, o.Tax, 0.001)
	assert.InDelta(t, 10.00, o.Shipping, 0.001)
	assert.InDelta(t, 130.97, o.Total, 0.001)
	assert.NoError(t, order.ValidateTotal(o))

	// Line items snapshot the live unit price.
	assert.Len(t, o.Items, 2)
	assert.Equal(t, 29.99, o.Items[0].UnitPrice)

	// Stock decremented, cart cleared.
	assert.Equal(t, 98, store.products[productA.ID].Inventory.Quantity)
	assert.Equal(t, 49, store.products[productB.ID].Inventory.Quantity)
	assert.Empty(t, store.cart.Items)

	assert.Equal(t, []string{"order.created"}, events.keys)
}

func TestOrderService_Create_SecondReservationFailureRollsBack(t *testing.T) {
	store := newMemStore()
	productA := store.addProduct("alpha", 10.00, 100)
	productB := store.addProduct("beta", 20.00, 0)
	userID := primitive.NewObjectID()
	store.cart = &cart.Cart{
		UserID: userID,
		Items: []cart.Item{
			{ProductID: productA.ID, Quantity: 5},
			{ProductID: productB.ID, Quantity: 1},
		},
	}
	svc := newOrderService(store, nil)

	_, err := svc.Create(context.Background(), order.CreateInput{UserID: userID})
	assert.ErrorIs(t, err, product.ErrInsufficientStock)

	// First reservation applied and then rolled back with the
	// transaction; nothing else committed.
	assert.Equal(t, []primitive.ObjectID{productA.ID, productB.ID}, store.reserveCalls)
	assert.Equal(t, 100, store.products[productA.ID].Inventory.Quantity)
	assert.Empty(t, store.orders)
	assert.Len(t, store.cart.Items, 2)
}

func TestOrderService_Create_EmptyCart(t *testing.T) {
	store := newMemStore()
	userID := primitive.NewObjectID()
	svc := newOrderService(store, nil)

	_, err := svc.Create(context.Background(), order.CreateInput{UserID: userID})
	assert.ErrorIs(t, err, order.ErrCartEmpty)

	store.cart = &cart.Cart{UserID: userID, Items: []cart.Item{}}
	_, err = svc.Create(context.Background(), order.CreateInput{UserID: userID})
	assert.ErrorIs(t, err, order.ErrCartEmpty)
}

func TestOrderService_Create_TotalMismatchRejected(t *testing.T) {
	store := newMemStore()
	widget := store.addProduct("widget", 100.00, 10)
	userID := primitive.NewObjectID()
	store.cart = &cart.Cart{
		UserID: userID,
		Items:  []cart.Item{{ProductID: widget.ID, Quantity: 1}},
	}
	svc := newOrderService(store, nil)

	wrong := 99.00
	_, err := svc.Create(context.Background(), order.CreateInput{UserID: userID, ExpectedTotal: &wrong})
	assert.ErrorIs(t, err, order.ErrTotalMismatch)
	// The rejected order leaves no trace: stock intact, cart intact.
	assert.Equal(t, 10, store.products[widget.ID].Inventory.Quantity)
	assert.Empty(t, store.orders)
	assert.Len(t, store.cart.Items, 1)

	// computed: 100 + 10 tax + 10 shipping = 120; within tolerance.
	right := 120.004
	o, err := svc.Create(context.Background(), order.CreateInput{UserID: userID, ExpectedTotal: &right})
	assert.NoError(t, err)
	assert.InDelta(t, 120.00, o.Total, 0.001)
}

func TestOrderService_Create_InactiveProductAborts(t *testing.T) {
	store := newMemStore()
	widget := store.addProduct("widget", 10.00, 5)
	widget.Status = product.StatusInactive
	userID := primitive.NewObjectID()
	store.cart = &cart.Cart{
		UserID: userID,
		Items:  []cart.Item{{ProductID: widget.ID, Quantity: 1}},
	}
	svc := newOrderService(store, nil)

	_, err := svc.Create(context.Background(), order.CreateInput{UserID: userID})
	assert.ErrorIs(t, err, product.ErrProductInactive)
	assert.Empty(t, store.orders)
}

func TestOrderService_UpdateStatus(t *testing.T) {
	store := newMemStore()
	userID := primitive.NewObjectID()
	o := &order.Order{UserID: userID, Status: order.StatusPending, Number: "ORD-20250901-00001"}
	id, _ := store.Create(context.Background(), o)
	events := &recordingPublisher{}
	svc := newOrderService(store, events)

	updated, err := svc.UpdateStatus(context.Background(), id, order.StatusConfirmed)
	assert.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, updated.Status)
	assert.Equal(t, order.StatusConfirmed, store.orders[id].Status)
	assert.Equal(t, []string{"order.status_changed"}, events.keys)

	// Skipping ahead violates the graph and changes nothing.
	_, err = svc.UpdateStatus(context.Background(), id, order.StatusDelivered)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	assert.Equal(t, order.StatusConfirmed, store.orders[id].Status)

	// Same status is a no-op, not an error.
	updated, err = svc.UpdateStatus(context.Background(), id, order.StatusConfirmed)
	assert.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, updated.Status)
}

func TestOrderService_UpdateStatus_NotFound(t *testing.T) {
	svc := newOrderService(newMemStore(), nil)
	_, err := svc.UpdateStatus(context.Background(), primitive.NewObjectID(), order.StatusConfirmed)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOrderService_Cancel_ReleasesStock(t *testing.T) {
	store := newMemStore()
	widget := store.addProduct("widget", 25.00, 8)
	userID := primitive.NewObjectID()
	o := &order.Order{
		UserID: userID,
		Status: order.StatusConfirmed,
		Items:  []order.Item{{ProductID: widget.ID, Quantity: 3, UnitPrice: 25.00}},
	}
	id, _ := store.Create(context.Background(), o)
	svc := newOrderService(store, nil)

	cancelled, err := svc.Cancel(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, 11, store.products[widget.ID].Inventory.Quantity)
	assert.Equal(t, []primitive.ObjectID{widget.ID}, store.releaseCalls)
}

func TestOrderService_Cancel_ShippedRejected(t *testing.T) {
	store := newMemStore()
	widget := store.addProduct("widget", 25.00, 8)
	o := &order.Order{
		UserID: primitive.NewObjectID(),
		Status: order.StatusShipped,
		Items:  []order.Item{{ProductID: widget.ID, Quantity: 3, UnitPrice: 25.00}},
	}
	id, _ := store.Create(context.Background(), o)
	svc := newOrderService(store, nil)

	_, err := svc.Cancel(context.Background(), id)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	// No stock movement on a rejected cancellation.
	assert.Equal(t, 8, store.products[widget.ID].Inventory.Quantity)
}

func TestOrderService_Cancel_ViaUpdateStatusReleasesStock(t *testing.T) {
	store := newMemStore()
	widget := store.addProduct("widget", 25.00, 8)
	o := &order.Order{
		UserID: primitive.NewObjectID(),
		Status: order.StatusPending,
		Items:  []order.Item{{ProductID: widget.ID, Quantity: 2, UnitPrice: 25.00}},
	}
	id, _ := store.Create(context.Background(), o)
	svc := newOrderService(store, nil)

	cancelled, err := svc.UpdateStatus(context.Background(), id, order.StatusCancelled)
	assert.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, 10, store.products[widget.ID].Inventory.Quantity)
}

func TestValidateTotal(t *testing.T) {
	o := &order.Order{
		Items: []order.Item{
			{Quantity: 2, UnitPrice: 29.99},
			{Quantity: 1, UnitPrice: 49.99},
		},
		Tax:      11.00,
		Shipping: 10.00,
		Total:    130.97,
	}
	assert.NoError(t, order.ValidateTotal(o))

	o.Total = 130.975
	assert.NoError(t, order.ValidateTotal(o), "within tolerance")

	o.Total = 131.10
	assert.ErrorIs(t, order.ValidateTotal(o), order.ErrTotalMismatch)
}

func TestOrderService_Create_FreeShippingThreshold(t *testing.T) {
	store := newMemStore()
	big := store.addProduct("big", 600.00, 5)
	userID := primitive.NewObjectID()
	store.cart = &cart.Cart{
		UserID: userID,
		Items:  []cart.Item{{ProductID: big.ID, Quantity: 1}},
	}
	svc := newOrderService(store, nil)

	o, err := svc.Create(context.Background(), order.CreateInput{UserID: userID})
	assert.NoError(t, err)
	assert.Zero(t, o.Shipping)
	assert.InDelta(t, 660.00, o.Total, 0.001)
}
