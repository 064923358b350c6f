package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/davidpalacios/shopline-backend/internal/cart"
	"github.com/davidpalacios/shopline-backend/pkg/db/models"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/kv"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
	"github.com/davidpalacios/shopline-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakePublisher struct {
	topic   string
	data    [][]byte
	attrs   []map[string]string
	failErr error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, data []byte, attrs map[string]string) error {
	if p.failErr != nil {
		return p.failErr
	}
	p.topic = topic
	p.data = append(p.data, data)
	p.attrs = append(p.attrs, attrs)
	return nil
}

type orderFixture struct {
	svc    Service
	carts  *cart.Registry
	store  kv.Store
	pub    *fakePublisher
	userID uuid.UUID
}

func newFixture(t *testing.T) *orderFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Order{}, &models.OrderLineItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := kv.NewMemoryStore()
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	carts, err := cart.NewRegistry(store, logg)
	if err != nil {
		t.Fatalf("cart registry: %v", err)
	}

	pub := &fakePublisher{}
	svc, err := NewService(NewRepository(conn), &gormTxRunner{db: conn}, carts, pub, "order-events", logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &orderFixture{
		svc:    svc,
		carts:  carts,
		store:  store,
		pub:    pub,
		userID: uuid.New(),
	}
}

func (f *orderFixture) fillCart(t *testing.T, deviceID string, lines ...cart.Line) {
	t.Helper()
	manager, err := f.carts.Manager(context.Background(), deviceID)
	if err != nil {
		t.Fatalf("cart manager: %v", err)
	}
	for _, line := range lines {
		manager.AddItem(context.Background(), line)
	}
}

func cartLine(productID string, price float64, qty int) cart.Line {
	return cart.Line{
		ProductID: productID,
		Name:      "item " + productID,
		UnitPrice: decimal.NewFromFloat(price),
		Quantity:  qty,
	}
}

func TestCheckoutCreatesOrderFromCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	catalogID := uuid.New()
	f.fillCart(t, "device-1",
		cartLine(catalogID.String(), 4.50, 2),
		cartLine("legacy-sku-9", 10.00, 1),
	)

	order, err := f.svc.Checkout(ctx, f.userID, "device-1")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if order.UserID != f.userID {
		t.Fatalf("user id = %s, want %s", order.UserID, f.userID)
	}
	if order.Status != "pending" {
		t.Fatalf("status = %q, want pending", order.Status)
	}
	if order.ItemCount != 3 {
		t.Fatalf("item count = %d, want 3", order.ItemCount)
	}
	wantTotal := decimal.NewFromFloat(19.00)
	if !order.Total.Equal(wantTotal) {
		t.Fatalf("total = %s, want %s", order.Total, wantTotal)
	}
	if !order.Subtotal.Equal(wantTotal) {
		t.Fatalf("subtotal = %s, want %s", order.Subtotal, wantTotal)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(order.Lines))
	}

	first := order.Lines[0]
	if first.ProductID == nil || *first.ProductID != catalogID {
		t.Fatalf("catalog line product id = %v, want %s", first.ProductID, catalogID)
	}
	if !first.Total.Equal(decimal.NewFromFloat(9.00)) {
		t.Fatalf("line total = %s, want 9", first.Total)
	}

	// The legacy product ID is not a UUID, so the catalog reference is dropped
	// but the snapshot fields survive.
	second := order.Lines[1]
	if second.ProductID != nil {
		t.Fatalf("non-uuid product id should not link to the catalog")
	}
	if second.Name != "item legacy-sku-9" {
		t.Fatalf("line name = %q", second.Name)
	}
}

func TestCheckoutClearsCartAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fillCart(t, "device-1", cartLine(uuid.NewString(), 3.25, 4))

	order, err := f.svc.Checkout(ctx, f.userID, "device-1")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	manager, err := f.carts.Manager(ctx, "device-1")
	if err != nil {
		t.Fatalf("cart manager: %v", err)
	}
	if got := manager.Snapshot(); len(got) != 0 {
		t.Fatalf("cart should be empty after checkout, has %d lines", len(got))
	}

	if f.pub.topic != "order-events" {
		t.Fatalf("published to %q, want order-events", f.pub.topic)
	}
	if len(f.pub.data) != 1 {
		t.Fatalf("published %d events, want 1", len(f.pub.data))
	}
	if got := f.pub.attrs[0]["event"]; got != "order.created" {
		t.Fatalf("event attr = %q, want order.created", got)
	}
	payload := string(f.pub.data[0])
	if want := fmt.Sprintf("%q", order.ID); !strings.Contains(payload, want) {
		t.Fatalf("event payload %s missing order id %s", payload, want)
	}
}

func TestCheckoutEmptyCartIsValidationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), f.userID, "device-1")
	if err == nil {
		t.Fatal("expected error for empty cart")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("error = %v, want validation", err)
	}
}

func TestCheckoutSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.pub.failErr = errors.New("broker unavailable")

	f.fillCart(t, "device-1", cartLine(uuid.NewString(), 2.00, 1))

	order, err := f.svc.Checkout(context.Background(), f.userID, "device-1")
	if err != nil {
		t.Fatalf("checkout should succeed despite publish failure: %v", err)
	}

	// The order is still readable afterwards.
	got, err := f.svc.GetOrder(context.Background(), f.userID, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("order id = %s, want %s", got.ID, order.ID)
	}
}

func TestGetOrderHidesOtherUsersOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fillCart(t, "device-1", cartLine(uuid.NewString(), 5.00, 1))
	order, err := f.svc.Checkout(ctx, f.userID, "device-1")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	_, err = f.svc.GetOrder(ctx, uuid.New(), order.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestGetOrderUnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetOrder(context.Background(), f.userID, uuid.New())
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestListOrdersPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		device := fmt.Sprintf("device-%d", i)
		f.fillCart(t, device, cartLine(uuid.NewString(), 1.00, 1))
		if _, err := f.svc.Checkout(ctx, f.userID, device); err != nil {
			t.Fatalf("checkout %d: %v", i, err)
		}
		// sqlite stores timestamps with limited precision; keep rows ordered.
		time.Sleep(time.Millisecond)
	}

	page1, err := f.svc.ListOrders(ctx, f.userID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page1.Orders) != 2 {
		t.Fatalf("page 1 has %d orders, want 2", len(page1.Orders))
	}
	if page1.NextCursor == nil {
		t.Fatal("expected next cursor on page 1")
	}
	if len(page1.Orders[0].Lines) != 1 {
		t.Fatalf("order lines not preloaded")
	}

	page2, err := f.svc.ListOrders(ctx, f.userID, pagination.Params{Limit: 2, Cursor: *page1.NextCursor})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2.Orders) != 1 {
		t.Fatalf("page 2 has %d orders, want 1", len(page2.Orders))
	}
	if page2.NextCursor != nil {
		t.Fatal("no cursor expected on the last page")
	}

	seen := map[uuid.UUID]bool{}
	for _, o := range append(page1.Orders, page2.Orders...) {
		if seen[o.ID] {
			t.Fatalf("order %s returned twice", o.ID)
		}
		seen[o.ID] = true
	}
}

func TestListOrdersScopedToUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fillCart(t, "device-1", cartLine(uuid.NewString(), 1.00, 1))
	if _, err := f.svc.Checkout(ctx, f.userID, "device-1"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	other, err := f.svc.ListOrders(ctx, uuid.New(), pagination.Params{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(other.Orders) != 0 {
		t.Fatalf("other user sees %d orders, want 0", len(other.Orders))
	}
}
