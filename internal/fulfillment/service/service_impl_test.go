package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	awardservice "github.com/glowhub/portal/internal/award/service"
	"github.com/glowhub/portal/internal/clock"
	"github.com/glowhub/portal/internal/docstore"
	fulfillmentdomain "github.com/glowhub/portal/internal/fulfillment/domain"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	ledgerservice "github.com/glowhub/portal/internal/ledger/service"
	"github.com/glowhub/portal/internal/wallet"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	store  docstore.Store
	ledger ledgerdomain.Service
	svc    fulfillmentdomain.Service
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

	node, err := snowflake.NewNode(3)
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

	ledger := ledgerservice.New(ledgerservice.Params{Store: store, Log: zap.NewNop()})
	award := awardservice.New(awardservice.Params{
		Store:   store,
		Ledger:  ledger,
		Wallets: wallet.NewCache(),
		Log:     zap.NewNop(),
		Clock:   fake,
	})
	svc := New(Params{Store: store, Award: award, Log: zap.NewNop()})

	rec, err := docstore.Encode(wallet.Wallet{CustomerID: "cust-1"})
	if err != nil {
		t.Fatalf("encode wallet: %v", err)
	}
	if err := store.SetDocument(context.Background(), wallet.Collection, "cust-1", rec); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	return &testEnv{store: store, ledger: ledger, svc: svc}
}

func TestCompleteBookingAwardsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b, err := env.svc.CreateBooking(ctx, fulfillmentdomain.Booking{
		CustomerID:  "cust-1",
		ServiceID:   "svc-massage",
		ServiceName: "Deep tissue massage",
		Amount:      2500,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.PointsAwarded {
		t.Fatal("expected fresh booking without award")
	}

	completed, result, err := env.svc.CompleteBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !result.Transitioned || result.PointsGranted != 250 {
		t.Fatalf("expected 250 points on completion, got %+v", result)
	}
	if completed.Status != fulfillmentdomain.BookingCompleted || !completed.PointsAwarded {
		t.Fatalf("unexpected state after completion: %+v", completed)
	}

	again, result, err := env.svc.CompleteBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if result.Transitioned || result.PointsGranted != 0 {
		t.Fatalf("expected repeat completion to be a no-op, got %+v", result)
	}
	if again.Status != fulfillmentdomain.BookingCompleted {
		t.Fatalf("unexpected state on repeat: %+v", again)
	}

	txns, err := env.ledger.ListByCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txns))
	}
	if txns[0].ReferenceID != b.ID || txns[0].PointsAmount != 250 {
		t.Fatalf("unexpected transaction: %+v", txns[0])
	}
}

func TestCompleteBookingWithExistingAwardSkipsGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b, err := env.svc.CreateBooking(ctx, fulfillmentdomain.Booking{
		CustomerID:    "cust-1",
		ServiceID:     "svc-massage",
		ServiceName:   "Deep tissue massage",
		Amount:        4500,
		PointsAwarded: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, result, err := env.svc.CompleteBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !result.Transitioned || result.PointsGranted != 0 {
		t.Fatalf("expected status-only completion, got %+v", result)
	}

	txns, err := env.ledger.ListByCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("expected no transactions, got %d", len(txns))
	}
}

func TestDeliverOrderAwardsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o, err := env.svc.CreateOrder(ctx, fulfillmentdomain.Order{
		CustomerID: "cust-1",
		Lines: []fulfillmentdomain.OrderLine{
			{ProductID: "prod-oil", Name: "Aroma oil", Price: 1200, Quantity: 3},
		},
		TotalAmount:     3600,
		ShippingAddress: "1 Main St",
		City:            "Springfield",
		Phone:           "555-0101",
		PaymentMethod:   "card",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, result, err := env.svc.DeliverOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !result.Transitioned || result.PointsGranted != 360 {
		t.Fatalf("expected 360 points on delivery, got %+v", result)
	}

	_, result, err = env.svc.DeliverOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("repeat deliver: %v", err)
	}
	if result.Transitioned || result.PointsGranted != 0 {
		t.Fatalf("expected repeat delivery to be a no-op, got %+v", result)
	}
}

func TestCompleteUnknownBooking(t *testing.T) {
	env := newTestEnv(t)

	if _, _, err := env.svc.CompleteBooking(context.Background(), "nope"); !errors.Is(err, fulfillmentdomain.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}
