package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	awardservice "github.com/glowhub/portal/internal/award/service"
	cartservice "github.com/glowhub/portal/internal/cart/service"
	"github.com/glowhub/portal/internal/catalog"
	checkoutdomain "github.com/glowhub/portal/internal/checkout/domain"
	"github.com/glowhub/portal/internal/clock"
	"github.com/glowhub/portal/internal/docstore"
	fulfillmentdomain "github.com/glowhub/portal/internal/fulfillment/domain"
	fulfillmentservice "github.com/glowhub/portal/internal/fulfillment/service"
	ledgerservice "github.com/glowhub/portal/internal/ledger/service"
	"github.com/glowhub/portal/internal/wallet"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	store       docstore.Store
	cart        *cartservice.Service
	fulfillment fulfillmentdomain.Service
	svc         checkoutdomain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	store, err := docstore.New(docstore.Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	seed := map[string]map[string]docstore.Record{
		catalog.ServicesCollection: {
			"svc-massage": {"name": "Deep tissue massage", "price": int64(4500)},
			"svc-facial":  {"name": "Facial treatment", "price": int64(3000)},
		},
		catalog.ProductsCollection: {
			"prod-oil":    {"name": "Aroma oil", "price": int64(1200)},
			"prod-scrub":  {"name": "Body scrub", "price": int64(900)},
			"prod-candle": {"name": "Scented candle", "price": int64(600)},
		},
	}
	for collection, docs := range seed {
		for id, rec := range docs {
			if err := store.SetDocument(ctx, collection, id, rec); err != nil {
				t.Fatalf("seed %s/%s: %v", collection, id, err)
			}
		}
	}

	resolver := catalog.New(catalog.Params{Store: store, Log: zap.NewNop()})
	cart := cartservice.New(cartservice.Params{
		Store:   store,
		Catalog: resolver,
		Log:     zap.NewNop(),
		GenID:   node,
	}).(*cartservice.Service)
	t.Cleanup(func() { _ = cart.Close() })

	ledger := ledgerservice.New(ledgerservice.Params{Store: store, Log: zap.NewNop()})
	award := awardservice.New(awardservice.Params{
		Store:   store,
		Ledger:  ledger,
		Wallets: wallet.NewCache(),
		Log:     zap.NewNop(),
		Clock:   fake,
	})
	fulfillment := fulfillmentservice.New(fulfillmentservice.Params{
		Store: store,
		Award: award,
		Log:   zap.NewNop(),
	})

	svc := New(Params{
		Cart:        cart,
		Fulfillment: fulfillment,
		Award:       award,
		Log:         zap.NewNop(),
	})

	rec, err := docstore.Encode(wallet.Wallet{CustomerID: "cust-1"})
	if err != nil {
		t.Fatalf("encode wallet: %v", err)
	}
	if err := store.SetDocument(ctx, wallet.Collection, "cust-1", rec); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	return &testEnv{store: store, cart: cart, fulfillment: fulfillment, svc: svc}
}

func (e *testEnv) addItems(t *testing.T, kind catalog.Kind, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := e.cart.AddItem(context.Background(), "cust-1", kind, id); err != nil {
			t.Fatalf("add %s %s: %v", kind, id, err)
		}
	}
}

func TestMixedCartSplitsIntoBookingsAndOneOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addItems(t, catalog.KindService, "svc-massage", "svc-facial")
	env.addItems(t, catalog.KindProduct, "prod-oil", "prod-scrub", "prod-candle")

	begin, err := env.svc.Begin(ctx, "cust-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(begin.Bookings) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(begin.Bookings))
	}
	for _, outcome := range begin.Bookings {
		if !outcome.Succeeded {
			t.Fatalf("booking failed: %+v", outcome)
		}
	}
	if !begin.AwaitingShipping || begin.ProductCount != 3 {
		t.Fatalf("expected 3 products awaiting shipping, got %+v", begin)
	}

	bookings, err := env.fulfillment.ListBookings(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}
	if len(bookings) != 2 {
		t.Fatalf("expected 2 booking records, got %d", len(bookings))
	}
	for _, b := range bookings {
		if !b.PointsAwarded {
			t.Fatalf("expected immediate award on booking %s", b.ID)
		}
	}

	// The service lines are gone; the product lines wait for shipping.
	if got := len(env.cart.Items("cust-1")); got != 3 {
		t.Fatalf("expected 3 remaining cart lines, got %d", got)
	}

	submitted, err := env.svc.SubmitShipping(ctx, "cust-1", checkoutdomain.ShippingInfo{
		Address:       "1 Main St",
		City:          "Springfield",
		Phone:         "555-0101",
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.TotalAmount != 1200+900+600 {
		t.Fatalf("expected total 2700, got %d", submitted.TotalAmount)
	}
	if submitted.LineCount != 3 {
		t.Fatalf("expected 3 order lines, got %d", submitted.LineCount)
	}
	if submitted.Points != 270 {
		t.Fatalf("expected 270 points, got %d", submitted.Points)
	}

	orders, err := env.fulfillment.ListOrders(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order record, got %d", len(orders))
	}
	if orders[0].TotalAmount != 2700 || len(orders[0].Lines) != 3 {
		t.Fatalf("unexpected order: %+v", orders[0])
	}

	if got := len(env.cart.Items("cust-1")); got != 0 {
		t.Fatalf("expected empty cart, got %d lines", got)
	}
}

func TestSubmitShippingValidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addItems(t, catalog.KindProduct, "prod-oil")

	_, err := env.svc.SubmitShipping(ctx, "cust-1", checkoutdomain.ShippingInfo{
		City: "Springfield",
	})
	var verrs checkoutdomain.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	for _, field := range []string{"address", "phone", "paymentMethod"} {
		if _, ok := verrs[field]; !ok {
			t.Fatalf("expected error for %s, got %v", field, verrs)
		}
	}
	if _, ok := verrs["city"]; ok {
		t.Fatalf("city was provided, got %v", verrs)
	}

	// A blocked submission creates nothing and keeps the cart intact.
	orders, err := env.fulfillment.ListOrders(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
	if got := len(env.cart.Items("cust-1")); got != 1 {
		t.Fatalf("expected cart untouched, got %d lines", got)
	}
}

func TestBeginEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.Begin(context.Background(), "cust-1"); !errors.Is(err, checkoutdomain.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestServiceOnlyCartTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addItems(t, catalog.KindService, "svc-massage")

	begin, err := env.svc.Begin(ctx, "cust-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if begin.AwaitingShipping {
		t.Fatal("service-only cart must not await shipping")
	}
	if len(begin.Bookings) != 1 || begin.Bookings[0].Points != 450 {
		t.Fatalf("expected one booking with 450 points, got %+v", begin.Bookings)
	}

	if _, err := env.svc.SubmitShipping(ctx, "cust-1", checkoutdomain.ShippingInfo{
		Address: "1 Main St", City: "Springfield", Phone: "555-0101", PaymentMethod: "card",
	}); !errors.Is(err, checkoutdomain.ErrNoProductItems) {
		t.Fatalf("expected ErrNoProductItems, got %v", err)
	}
}

// failingGrantStore rejects grant inserts while leaving every other
// document operation intact.
type failingGrantStore struct {
	docstore.Store
}

func (s *failingGrantStore) CreateIfAbsent(ctx context.Context, collection, uniqueKey string, rec docstore.Record) (bool, string, error) {
	return false, "", errors.New("grant insert rejected")
}

func TestBookingSurfacesFailedAward(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ledger := ledgerservice.New(ledgerservice.Params{Store: env.store, Log: zap.NewNop()})
	award := awardservice.New(awardservice.Params{
		Store:   &failingGrantStore{Store: env.store},
		Ledger:  ledger,
		Wallets: wallet.NewCache(),
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
	})
	svc := New(Params{
		Cart:        env.cart,
		Fulfillment: env.fulfillment,
		Award:       award,
		Log:         zap.NewNop(),
	})

	env.addItems(t, catalog.KindService, "svc-massage")

	begin, err := svc.Begin(ctx, "cust-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(begin.Bookings) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(begin.Bookings))
	}
	outcome := begin.Bookings[0]
	if !outcome.Succeeded || outcome.BookingID == "" {
		t.Fatalf("booking itself should have been created: %+v", outcome)
	}
	if outcome.Points != 0 {
		t.Fatalf("no points should have been granted, got %d", outcome.Points)
	}
	if len(outcome.Warnings) != 1 || outcome.Warnings[0] != "loyalty points could not be awarded" {
		t.Fatalf("expected the failed award to be surfaced, got %v", outcome.Warnings)
	}
	if got := len(env.cart.Items("cust-1")); got != 0 {
		t.Fatalf("expected purged cart, got %d lines", got)
	}
}
