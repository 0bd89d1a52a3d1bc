package domain

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ShippingInfo is the product submission form. All fields are required.
type ShippingInfo struct {
	Address       string `json:"address"`
	City          string `json:"city"`
	Phone         string `json:"phone"`
	PaymentMethod string `json:"paymentMethod"`
}

// ValidationErrors maps field names to their rejection reason.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// Validate checks the form and returns nil when every field is present.
func (s ShippingInfo) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if strings.TrimSpace(s.Address) == "" {
		errs["address"] = "required"
	}
	if strings.TrimSpace(s.City) == "" {
		errs["city"] = "required"
	}
	if strings.TrimSpace(s.Phone) == "" {
		errs["phone"] = "required"
	}
	if strings.TrimSpace(s.PaymentMethod) == "" {
		errs["paymentMethod"] = "required"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// BookingOutcome is the per-item result of the service batch. The batch
// is best-effort, so one failed item does not abort the rest. Warnings
// carries follow-up steps that failed after the booking itself was
// created, so the caller can surface them instead of assuming a clean
// run.
type BookingOutcome struct {
	CartItemID  string   `json:"cartItemId"`
	ServiceName string   `json:"serviceName"`
	BookingID   string   `json:"bookingId,omitempty"`
	Points      int64    `json:"points,omitempty"`
	Succeeded   bool     `json:"succeeded"`
	Error       string   `json:"error,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// BeginResult reports the outcome of a checkout invocation. When
// AwaitingShipping is true the product lines stay in the cart until the
// shipping form is submitted.
type BeginResult struct {
	BatchID          string           `json:"batchId"`
	Bookings         []BookingOutcome `json:"bookings,omitempty"`
	ProductCount     int              `json:"productCount"`
	AwaitingShipping bool             `json:"awaitingShipping"`
}

// OrderResult reports the aggregate product order submission. Warnings
// lists follow-up steps that failed after the order was created.
type OrderResult struct {
	BatchID     string   `json:"batchId"`
	OrderID     string   `json:"orderId"`
	TotalAmount int64    `json:"totalAmount"`
	Points      int64    `json:"points"`
	LineCount   int      `json:"lineCount"`
	Warnings    []string `json:"warnings,omitempty"`
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrEmptyCart       = errors.New("empty_cart")
	ErrNoProductItems  = errors.New("no_product_items")
)

// Service converts cart lines into fulfillment units. Begin books the
// service lines immediately; product lines wait for SubmitShipping.
// Abandoning the form between the two calls leaves the cart untouched.
type Service interface {
	Begin(ctx context.Context, customerID string) (BeginResult, error)
	SubmitShipping(ctx context.Context, customerID string, info ShippingInfo) (OrderResult, error)
}
