package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	cartdomain "github.com/glowhub/portal/internal/cart/domain"
	"github.com/glowhub/portal/internal/catalog"
	"github.com/glowhub/portal/internal/clock"
	"github.com/glowhub/portal/internal/docstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestCart(t *testing.T) (*Service, docstore.Store) {
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

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	store, err := docstore.New(docstore.Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	seed := map[string]map[string]docstore.Record{
		catalog.ServicesCollection: {
			"svc-massage": {"name": "Deep tissue massage", "price": int64(4500), "durationMinutes": 60},
		},
		catalog.ProductsCollection: {
			"prod-oil": {"name": "Aroma oil", "price": int64(1200), "stock": 30},
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
	svc := New(Params{
		Store:   store,
		Catalog: resolver,
		Log:     zap.NewNop(),
		GenID:   node,
	}).(*Service)
	t.Cleanup(func() { _ = svc.Close() })

	return svc, store
}

func TestAddProductTwiceIncrementsQuantity(t *testing.T) {
	svc, store := newTestCart(t)
	ctx := context.Background()

	first, err := svc.AddItem(ctx, "cust-1", catalog.KindProduct, "prod-oil")
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	second, err := svc.AddItem(ctx, "cust-1", catalog.KindProduct, "prod-oil")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same line, got %s and %s", first.ID, second.ID)
	}
	if second.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", second.Quantity)
	}

	items := svc.Items("cust-1")
	if len(items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(items))
	}

	svc.drain()
	records, err := store.Query(ctx, cartdomain.Collection, docstore.Eq("customerId", "cust-1"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 remote line, got %d", len(records))
	}
}

func TestAddServiceTwiceRejected(t *testing.T) {
	svc, _ := newTestCart(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "cust-1", catalog.KindService, "svc-massage"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := svc.AddItem(ctx, "cust-1", catalog.KindService, "svc-massage"); !errors.Is(err, cartdomain.ErrDuplicateService) {
		t.Fatalf("expected ErrDuplicateService, got %v", err)
	}
	if got := len(svc.Items("cust-1")); got != 1 {
		t.Fatalf("expected 1 line, got %d", got)
	}
}

func TestAddMissingCatalogItemRejected(t *testing.T) {
	svc, _ := newTestCart(t)

	if _, err := svc.AddItem(context.Background(), "cust-1", catalog.KindProduct, "prod-gone"); !errors.Is(err, catalog.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestUpdateQuantityFloorRemoves(t *testing.T) {
	for _, quantity := range []int64{0, -5} {
		svc, store := newTestCart(t)
		ctx := context.Background()

		line, err := svc.AddItem(ctx, "cust-1", catalog.KindProduct, "prod-oil")
		if err != nil {
			t.Fatalf("add: %v", err)
		}

		if err := svc.UpdateQuantity(ctx, "cust-1", line.ID, quantity); err != nil {
			t.Fatalf("update to %d: %v", quantity, err)
		}
		if got := len(svc.Items("cust-1")); got != 0 {
			t.Fatalf("quantity %d: expected empty cart, got %d lines", quantity, got)
		}

		svc.drain()
		if _, err := store.GetDocument(ctx, cartdomain.Collection, line.ID); !errors.Is(err, docstore.ErrNotFound) {
			t.Fatalf("quantity %d: expected remote delete, got %v", quantity, err)
		}
	}
}

func TestUpdateQuantitySetsValue(t *testing.T) {
	svc, store := newTestCart(t)
	ctx := context.Background()

	line, err := svc.AddItem(ctx, "cust-1", catalog.KindProduct, "prod-oil")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.UpdateQuantity(ctx, "cust-1", line.ID, 4); err != nil {
		t.Fatalf("update: %v", err)
	}

	items := svc.Items("cust-1")
	if len(items) != 1 || items[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %+v", items)
	}

	svc.drain()
	rec, err := store.GetDocument(ctx, cartdomain.Collection, line.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got, ok := rec["quantity"].(float64); !ok || got != 4 {
		t.Fatalf("expected remote quantity 4, got %v", rec["quantity"])
	}
}

func TestRemoveItemDeletesRemote(t *testing.T) {
	svc, store := newTestCart(t)
	ctx := context.Background()

	line, err := svc.AddItem(ctx, "cust-1", catalog.KindService, "svc-massage")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.RemoveItem(ctx, "cust-1", line.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := len(svc.Items("cust-1")); got != 0 {
		t.Fatalf("expected empty cart, got %d lines", got)
	}

	svc.drain()
	if _, err := store.GetDocument(ctx, cartdomain.Collection, line.ID); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected remote delete, got %v", err)
	}
}

func TestRemoveUnknownItemRejected(t *testing.T) {
	svc, _ := newTestCart(t)

	if err := svc.RemoveItem(context.Background(), "cust-1", "nope"); !errors.Is(err, cartdomain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestApplySnapshotSkipsIdentical(t *testing.T) {
	svc, _ := newTestCart(t)

	snapshot := []cartdomain.Item{
		{ID: "a", CustomerID: "cust-1", Kind: catalog.KindProduct, ItemID: "prod-oil", Name: "Aroma oil", Price: 1200, Quantity: 2, Status: cartdomain.StatusActive},
		{ID: "b", CustomerID: "cust-1", Kind: catalog.KindService, ItemID: "svc-massage", Name: "Deep tissue massage", Price: 4500, Quantity: 1, Status: cartdomain.StatusActive},
	}

	if changed := svc.ApplySnapshot("cust-1", snapshot); !changed {
		t.Fatal("expected first snapshot to apply")
	}
	// Same content in a different order must be recognized as identical.
	reordered := []cartdomain.Item{snapshot[1], snapshot[0]}
	if changed := svc.ApplySnapshot("cust-1", reordered); changed {
		t.Fatal("expected identical snapshot to be skipped")
	}

	reordered[0].Quantity = 3
	if changed := svc.ApplySnapshot("cust-1", reordered); !changed {
		t.Fatal("expected modified snapshot to apply")
	}
}

// slowWriteStore holds cart document writes until released, modeling a
// queued add still in flight when checkout purges the line.
type slowWriteStore struct {
	docstore.Store
	release chan struct{}
}

func (s *slowWriteStore) SetDocument(ctx context.Context, collection, id string, rec docstore.Record) error {
	<-s.release
	return s.Store.SetDocument(ctx, collection, id, rec)
}

func TestPurgeWaitsForQueuedWrites(t *testing.T) {
	_, store := newTestCart(t)
	ctx := context.Background()

	gated := &slowWriteStore{Store: store, release: make(chan struct{})}
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	resolver := catalog.New(catalog.Params{Store: store, Log: zap.NewNop()})
	svc := New(Params{
		Store:   gated,
		Catalog: resolver,
		Log:     zap.NewNop(),
		GenID:   node,
	}).(*Service)
	t.Cleanup(func() { _ = svc.Close() })

	line, err := svc.AddItem(ctx, "cust-1", catalog.KindProduct, "prod-oil")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gated.release)
	}()

	// Purge must not race the held-back add: the line stays gone even
	// though its remote write had not settled when checkout started.
	if err := svc.Purge(ctx, "cust-1", line.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	svc.drain()

	if _, err := store.GetDocument(ctx, cartdomain.Collection, line.ID); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("purchased line %s still exists remotely after purge, err=%v", line.ID, err)
	}
	if items := svc.Items("cust-1"); len(items) != 0 {
		t.Fatalf("expected empty cart, got %+v", items)
	}
}
