package domain

import (
	"context"
	"errors"
	"strings"

	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	"github.com/glowhub/portal/internal/wallet"
)

// GrantsCollection is the idempotency-key table: one document per
// (customer, category, reference) grant ever made.
const GrantsCollection = "point_grants"

// Category identifies the earning path behind a grant.
type Category string

const (
	CategoryRegistration Category = "registration"
	CategoryBirthday     Category = "birthday"
	CategoryBooking      Category = "booking"
	CategoryOrder        Category = "order"
	CategoryFeedback     Category = "feedback"
)

// GrantKey builds the unique idempotency key for a grant.
func GrantKey(customerID string, category Category, referenceID string) string {
	return strings.Join([]string{customerID, string(category), referenceID}, "|")
}

// PointGrant is the persisted idempotency record.
type PointGrant struct {
	CustomerID  string   `json:"customerId"`
	Category    Category `json:"category"`
	ReferenceID string   `json:"referenceId"`
	Points      int64    `json:"points"`
	CreatedAt   string   `json:"createdAt,omitempty"`
}

// AwardRequest asks for a point grant tied to a reference.
type AwardRequest struct {
	CustomerID  string
	Category    Category
	Points      int64
	Description string
	ReferenceID string

	// TransactionType overrides the ledger entry type. Zero value means
	// points_earned.
	TransactionType ledgerdomain.TransactionType
}

// AwardResult reports what the engine did. Granted is false when the
// idempotency key was already consumed.
type AwardResult struct {
	Granted       bool
	TransactionID string
	Wallet        wallet.Wallet
}

// ChargeRequest records a monetary debit against the wallet balance.
type ChargeRequest struct {
	CustomerID  string
	Amount      int64
	Type        ledgerdomain.TransactionType
	Description string
	ReferenceID string
}

var (
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrInvalidPoints      = errors.New("invalid_points")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidReferenceID = errors.New("invalid_reference_id")
	ErrInsufficientPoints = errors.New("insufficient_points")
)

// Service is the only component allowed to mutate wallet state.
type Service interface {
	Award(ctx context.Context, req AwardRequest) (AwardResult, error)
	GrantRegistrationBonus(ctx context.Context, customerID string) (AwardResult, error)
	GrantBirthdayBonus(ctx context.Context, customerID string) (AwardResult, error)
	Redeem(ctx context.Context, customerID string, points int64, description string) (wallet.Wallet, error)
	Charge(ctx context.Context, req ChargeRequest) (wallet.Wallet, error)
	WalletFor(ctx context.Context, customerID string) (wallet.Wallet, error)
}
