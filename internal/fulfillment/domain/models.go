package domain

import (
	"context"
	"errors"
)

const (
	BookingsCollection = "bookings"
	OrdersCollection   = "orders"
)

// BookingStatus is the service fulfillment lifecycle.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// OrderStatus is the product fulfillment lifecycle.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Booking is one service fulfillment unit. Amount is in minor currency
// units. A unit with PointsAwarded true has exactly one matching point
// transaction referencing its id.
type Booking struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customerId"`
	ServiceID     string        `json:"serviceId"`
	ServiceName   string        `json:"serviceName"`
	Amount        int64         `json:"amount"`
	Status        BookingStatus `json:"status"`
	PointsAwarded bool          `json:"pointsAwarded"`
	CreatedAt     string        `json:"createdAt,omitempty"`
	CompletedAt   string        `json:"completedAt,omitempty"`
}

// OrderLine is one product position inside an aggregate order.
type OrderLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

// Order aggregates the product lines of one checkout submission.
type Order struct {
	ID              string      `json:"id"`
	CustomerID      string      `json:"customerId"`
	Lines           []OrderLine `json:"lines"`
	TotalAmount     int64       `json:"totalAmount"`
	Status          OrderStatus `json:"status"`
	PointsAwarded   bool        `json:"pointsAwarded"`
	ShippingAddress string      `json:"shippingAddress"`
	City            string      `json:"city"`
	Phone           string      `json:"phone"`
	PaymentMethod   string      `json:"paymentMethod"`
	CreatedAt       string      `json:"createdAt,omitempty"`
	DeliveredAt     string      `json:"deliveredAt,omitempty"`
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrBookingNotFound = errors.New("booking_not_found")
	ErrOrderNotFound   = errors.New("order_not_found")
)

// CompletionResult reports whether the status transition happened and
// whether a point grant was applied alongside it.
type CompletionResult struct {
	Transitioned  bool
	PointsGranted int64
}

// Service creates fulfillment units and drives their terminal
// transitions. Completion and delivery grant spend points at most once
// per unit; a unit that already carries its award passes through as a
// plain status change, and repeating a terminal transition is a no-op.
type Service interface {
	CreateBooking(ctx context.Context, b Booking) (Booking, error)
	CreateOrder(ctx context.Context, o Order) (Order, error)

	CompleteBooking(ctx context.Context, bookingID string) (Booking, CompletionResult, error)
	DeliverOrder(ctx context.Context, orderID string) (Order, CompletionResult, error)

	ListBookings(ctx context.Context, customerID string) ([]Booking, error)
	ListOrders(ctx context.Context, customerID string) ([]Order, error)
}
