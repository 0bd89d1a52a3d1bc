package domain

import (
	"context"
	"errors"
)

// Collection is the append-only transaction log collection.
const Collection = "transactions"

// TransactionType classifies the cause of a ledger delta.
type TransactionType string

const (
	TypeRegistration   TransactionType = "registration"
	TypeBirthday       TransactionType = "birthday"
	TypePointsEarned   TransactionType = "points_earned"
	TypePointsRedeemed TransactionType = "points_redeemed"
	TypeBooking        TransactionType = "booking"
	TypeOrder          TransactionType = "order"
	TypePurchase       TransactionType = "purchase"
	TypeRefund         TransactionType = "refund"
)

// TransactionStatus marks the settlement state of an entry.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusPending   TransactionStatus = "pending"
)

// Transaction is one immutable ledger entry. Amounts are signed minor
// units; point deltas are signed whole points.
type Transaction struct {
	ID           string            `json:"id,omitempty"`
	CustomerID   string            `json:"customerId"`
	Type         TransactionType   `json:"type"`
	Amount       int64             `json:"amount"`
	PointsAmount int64             `json:"pointsAmount"`
	Description  string            `json:"description"`
	ReferenceID  string            `json:"referenceId"`
	Status       TransactionStatus `json:"status"`
	CreatedAt    string            `json:"createdAt,omitempty"`
}

var (
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrInvalidType        = errors.New("invalid_transaction_type")
	ErrInvalidReferenceID = errors.New("invalid_reference_id")
)

// Service appends and reads the per-customer transaction log.
type Service interface {
	Append(ctx context.Context, txn Transaction) (string, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Transaction, error)
	HasType(ctx context.Context, customerID string, typ TransactionType) (bool, error)
	HasTypeInYear(ctx context.Context, customerID string, typ TransactionType, year int) (bool, error)
}
