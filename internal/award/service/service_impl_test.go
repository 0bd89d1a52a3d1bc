package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	awarddomain "github.com/glowhub/portal/internal/award/domain"
	"github.com/glowhub/portal/internal/clock"
	"github.com/glowhub/portal/internal/config"
	"github.com/glowhub/portal/internal/docstore"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	ledgerservice "github.com/glowhub/portal/internal/ledger/service"
	"github.com/glowhub/portal/internal/wallet"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	store   docstore.Store
	ledger  ledgerdomain.Service
	wallets *wallet.Cache
	clock   *clock.FakeClock
	svc     awarddomain.Service
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

	node, err := snowflake.NewNode(1)
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
	wallets := wallet.NewCache()

	svc := New(Params{
		Store:   store,
		Ledger:  ledger,
		Wallets: wallets,
		Log:     zap.NewNop(),
		Clock:   fake,
		Loyalty: nil,
	})

	return &testEnv{store: store, ledger: ledger, wallets: wallets, clock: fake, svc: svc}
}

func (e *testEnv) seedWallet(t *testing.T, customerID string) {
	t.Helper()

	rec, err := docstore.Encode(wallet.Wallet{CustomerID: customerID})
	if err != nil {
		t.Fatalf("encode wallet: %v", err)
	}
	if err := e.store.SetDocument(context.Background(), wallet.Collection, customerID, rec); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
}

func TestRegistrationBonusGrantedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedWallet(t, "cust-1")

	first, err := env.svc.GrantRegistrationBonus(ctx, "cust-1")
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if !first.Granted {
		t.Fatal("expected first grant to apply")
	}
	if first.Wallet.LoyaltyPoints != 100 {
		t.Fatalf("expected 100 points, got %d", first.Wallet.LoyaltyPoints)
	}

	for i := 0; i < 3; i++ {
		again, err := env.svc.GrantRegistrationBonus(ctx, "cust-1")
		if err != nil {
			t.Fatalf("repeat grant %d: %v", i, err)
		}
		if again.Granted {
			t.Fatalf("repeat grant %d applied", i)
		}
		if again.Wallet.LoyaltyPoints != 100 {
			t.Fatalf("repeat grant %d changed points to %d", i, again.Wallet.LoyaltyPoints)
		}
	}

	txns, err := env.ledger.ListByCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txns))
	}
	if txns[0].Type != ledgerdomain.TypeRegistration {
		t.Fatalf("expected registration transaction, got %s", txns[0].Type)
	}
}

func TestAwardSameReferenceSkipsSecond(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedWallet(t, "cust-1")

	points := config.DefaultLoyaltyConfig().BookingOrderPoints(2500)
	if points != 250 {
		t.Fatalf("expected 250 points for 2500 minor units, got %d", points)
	}

	req := awarddomain.AwardRequest{
		CustomerID:  "cust-1",
		Category:    awarddomain.CategoryBooking,
		Points:      points,
		Description: "Booking completed",
		ReferenceID: "booking-42",
	}

	first, err := env.svc.Award(ctx, req)
	if err != nil {
		t.Fatalf("first award: %v", err)
	}
	if !first.Granted {
		t.Fatal("expected first award to apply")
	}

	second, err := env.svc.Award(ctx, req)
	if err != nil {
		t.Fatalf("second award: %v", err)
	}
	if second.Granted {
		t.Fatal("expected second award to be skipped")
	}
	if second.Wallet.LoyaltyPoints != 250 {
		t.Fatalf("expected 250 points, got %d", second.Wallet.LoyaltyPoints)
	}
}

func TestConcurrentAwardAppliesExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedWallet(t, "cust-1")

	req := awarddomain.AwardRequest{
		CustomerID:  "cust-1",
		Category:    awarddomain.CategoryOrder,
		Points:      80,
		ReferenceID: "order-7",
	}

	var wg sync.WaitGroup
	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.svc.Award(ctx, req)
			if err != nil {
				t.Errorf("award: %v", err)
				return
			}
			results <- res.Granted
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for applied := range results {
		if applied {
			granted++
		}
	}
	if granted != 1 {
		t.Fatalf("expected exactly one grant, got %d", granted)
	}

	w, err := env.svc.WalletFor(ctx, "cust-1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if w.LoyaltyPoints != 80 {
		t.Fatalf("expected 80 points, got %d", w.LoyaltyPoints)
	}
}

func TestBirthdayBonusOncePerYear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedWallet(t, "cust-1")

	first, err := env.svc.GrantBirthdayBonus(ctx, "cust-1")
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if !first.Granted || first.Wallet.LoyaltyPoints != 200 {
		t.Fatalf("expected 200 points granted, got granted=%v points=%d", first.Granted, first.Wallet.LoyaltyPoints)
	}
	if first.Wallet.LastBirthdayPointsYear != 2024 {
		t.Fatalf("expected year marker 2024, got %d", first.Wallet.LastBirthdayPointsYear)
	}

	again, err := env.svc.GrantBirthdayBonus(ctx, "cust-1")
	if err != nil {
		t.Fatalf("same-year grant: %v", err)
	}
	if again.Granted {
		t.Fatal("expected same-year grant to be skipped")
	}

	env.clock.Advance(366 * 24 * time.Hour)
	next, err := env.svc.GrantBirthdayBonus(ctx, "cust-1")
	if err != nil {
		t.Fatalf("next-year grant: %v", err)
	}
	if !next.Granted {
		t.Fatal("expected next-year grant to apply")
	}
	if next.Wallet.LoyaltyPoints != 400 {
		t.Fatalf("expected 400 points, got %d", next.Wallet.LoyaltyPoints)
	}
	if next.Wallet.LastBirthdayPointsYear != 2025 {
		t.Fatalf("expected year marker 2025, got %d", next.Wallet.LastBirthdayPointsYear)
	}
}

func TestRedeemKeepsBalanceInvariant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedWallet(t, "cust-1")

	if _, err := env.svc.Award(ctx, awarddomain.AwardRequest{
		CustomerID:  "cust-1",
		Category:    awarddomain.CategoryOrder,
		Points:      300,
		ReferenceID: "order-1",
	}); err != nil {
		t.Fatalf("award: %v", err)
	}

	w, err := env.svc.Redeem(ctx, "cust-1", 120, "Discount applied")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if w.LoyaltyPoints != 180 {
		t.Fatalf("expected 180 points, got %d", w.LoyaltyPoints)
	}
	if w.LoyaltyPoints != w.TotalPointsEarned-w.TotalPointsRedeemed {
		t.Fatalf("balance invariant broken: %d != %d - %d", w.LoyaltyPoints, w.TotalPointsEarned, w.TotalPointsRedeemed)
	}

	if _, err := env.svc.Redeem(ctx, "cust-1", 500, "Too much"); !errors.Is(err, awarddomain.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
}

func TestChargeDebitsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedWallet(t, "cust-1")

	w, err := env.svc.Charge(ctx, awarddomain.ChargeRequest{
		CustomerID:  "cust-1",
		Amount:      4500,
		Type:        ledgerdomain.TypeBooking,
		Description: "Deep tissue massage",
		ReferenceID: "booking-9",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if w.Balance != -4500 {
		t.Fatalf("expected balance -4500, got %d", w.Balance)
	}

	txns, err := env.ledger.ListByCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txns))
	}
	if txns[0].Amount != -4500 {
		t.Fatalf("expected amount -4500, got %d", txns[0].Amount)
	}
}

func TestWalletForUnknownCustomer(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.WalletFor(context.Background(), "ghost"); !errors.Is(err, wallet.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}
