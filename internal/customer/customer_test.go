package customer

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	awardservice "github.com/glowhub/portal/internal/award/service"
	"github.com/glowhub/portal/internal/clock"
	"github.com/glowhub/portal/internal/docstore"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	ledgerservice "github.com/glowhub/portal/internal/ledger/service"
	"github.com/glowhub/portal/internal/wallet"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	ledger ledgerdomain.Service
	svc    Service
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

	node, err := snowflake.NewNode(5)
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
	svc := New(Params{
		Store: store,
		Award: award,
		Log:   zap.NewNop(),
		Clock: fake,
		GenID: node,
	})

	return &testEnv{ledger: ledger, svc: svc}
}

func TestRegisterGrantsWelcomeBonusOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	profile := Customer{ID: "cust-1", Name: "Dana Lee", Email: "dana@example.com", Phone: "555-0101"}

	first, res, err := env.svc.Register(ctx, profile)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !res.Granted || res.Wallet.LoyaltyPoints != 100 {
		t.Fatalf("expected 100 welcome points, got %+v", res)
	}
	if first.ID != "cust-1" {
		t.Fatalf("unexpected customer id %s", first.ID)
	}

	for i := 0; i < 3; i++ {
		_, res, err = env.svc.Register(ctx, profile)
		if err != nil {
			t.Fatalf("repeat register %d: %v", i, err)
		}
		if res.Granted {
			t.Fatalf("repeat register %d granted again", i)
		}
	}

	txns, err := env.ledger.ListByCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	registrations := 0
	for _, txn := range txns {
		if txn.Type == ledgerdomain.TypeRegistration {
			registrations++
		}
	}
	if registrations != 1 {
		t.Fatalf("expected 1 registration transaction, got %d", registrations)
	}
}

func TestRegisterGeneratesID(t *testing.T) {
	env := newTestEnv(t)

	c, _, err := env.svc.Register(context.Background(), Customer{Name: "Ash Kim"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected generated customer id")
	}

	got, err := env.svc.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Ash Kim" {
		t.Fatalf("unexpected profile: %+v", got)
	}
}

func TestCheckBirthdayGrantsOnMatchOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Clock is fixed at June 1st.
	if _, _, err := env.svc.Register(ctx, Customer{ID: "cust-1", Name: "Dana Lee", BirthDate: "1990-06-01"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := env.svc.Register(ctx, Customer{ID: "cust-2", Name: "Ash Kim", BirthDate: "1990-12-24"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := env.svc.CheckBirthday(ctx, "cust-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Granted || res.Wallet.LoyaltyPoints != 300 {
		t.Fatalf("expected birthday grant on top of registration, got %+v", res)
	}

	again, err := env.svc.CheckBirthday(ctx, "cust-1")
	if err != nil {
		t.Fatalf("repeat check: %v", err)
	}
	if again.Granted {
		t.Fatal("expected same-year repeat to skip")
	}

	other, err := env.svc.CheckBirthday(ctx, "cust-2")
	if err != nil {
		t.Fatalf("check other: %v", err)
	}
	if other.Granted {
		t.Fatal("expected no grant off the birth date")
	}
}

func TestRegisterRejectsBadBirthDate(t *testing.T) {
	env := newTestEnv(t)

	if _, _, err := env.svc.Register(context.Background(), Customer{Name: "Dana Lee", BirthDate: "June 1"}); err != ErrInvalidBirthDate {
		t.Fatalf("expected ErrInvalidBirthDate, got %v", err)
	}
}
