package wallet

import (
	"errors"
)

// Collection is the document collection holding wallet records, keyed by
// customer id.
const Collection = "wallets"

// Wallet is the per-customer monetary balance and loyalty point totals.
type Wallet struct {
	CustomerID             string `json:"customerId"`
	Balance                int64  `json:"balance"`
	LoyaltyPoints          int64  `json:"loyaltyPoints"`
	TotalPointsEarned      int64  `json:"totalPointsEarned"`
	TotalPointsRedeemed    int64  `json:"totalPointsRedeemed"`
	LastBirthdayPointsYear int    `json:"lastBirthdayPointsYear,omitempty"`
	UpdatedAt              string `json:"updatedAt,omitempty"`
}

var (
	ErrInvalidCustomer   = errors.New("invalid_customer")
	ErrNotLoaded         = errors.New("wallet_not_loaded")
	ErrInvariantViolated = errors.New("wallet_invariant_violated")
)

// Validate checks the point accounting invariant.
func (w Wallet) Validate() error {
	if w.LoyaltyPoints < 0 || w.TotalPointsEarned < 0 || w.TotalPointsRedeemed < 0 {
		return ErrInvariantViolated
	}
	if w.LoyaltyPoints != w.TotalPointsEarned-w.TotalPointsRedeemed {
		return ErrInvariantViolated
	}
	return nil
}
