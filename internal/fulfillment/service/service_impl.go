package service

import (
	"context"
	"errors"
	"strings"

	awarddomain "github.com/glowhub/portal/internal/award/domain"
	"github.com/glowhub/portal/internal/config"
	"github.com/glowhub/portal/internal/docstore"
	fulfillmentdomain "github.com/glowhub/portal/internal/fulfillment/domain"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store   docstore.Store
	Award   awarddomain.Service
	Loyalty *config.LoyaltyConfigHolder
	Log     *zap.Logger
}

type Service struct {
	store   docstore.Store
	award   awarddomain.Service
	loyalty *config.LoyaltyConfigHolder
	log     *zap.Logger
}

func New(p Params) fulfillmentdomain.Service {
	return &Service{
		store:   p.Store,
		award:   p.Award,
		loyalty: p.Loyalty,
		log:     p.Log.Named("fulfillment.service"),
	}
}

func (s *Service) CreateBooking(ctx context.Context, b fulfillmentdomain.Booking) (fulfillmentdomain.Booking, error) {
	b.CustomerID = strings.TrimSpace(b.CustomerID)
	if b.CustomerID == "" {
		return fulfillmentdomain.Booking{}, fulfillmentdomain.ErrInvalidCustomer
	}
	if b.Amount <= 0 {
		return fulfillmentdomain.Booking{}, fulfillmentdomain.ErrInvalidAmount
	}
	if b.Status == "" {
		b.Status = fulfillmentdomain.BookingPending
	}

	rec, err := docstore.Encode(b)
	if err != nil {
		return fulfillmentdomain.Booking{}, err
	}
	delete(rec, "id")
	rec["createdAt"] = docstore.ServerTimestamp

	id, err := s.store.AddDocument(ctx, fulfillmentdomain.BookingsCollection, rec)
	if err != nil {
		return fulfillmentdomain.Booking{}, err
	}
	b.ID = id

	s.log.Info("booking created",
		zap.String("booking_id", id),
		zap.String("customer_id", b.CustomerID),
		zap.String("service_id", b.ServiceID),
		zap.Int64("amount", b.Amount),
	)
	return b, nil
}

func (s *Service) CreateOrder(ctx context.Context, o fulfillmentdomain.Order) (fulfillmentdomain.Order, error) {
	o.CustomerID = strings.TrimSpace(o.CustomerID)
	if o.CustomerID == "" {
		return fulfillmentdomain.Order{}, fulfillmentdomain.ErrInvalidCustomer
	}
	if o.TotalAmount <= 0 || len(o.Lines) == 0 {
		return fulfillmentdomain.Order{}, fulfillmentdomain.ErrInvalidAmount
	}
	if o.Status == "" {
		o.Status = fulfillmentdomain.OrderPending
	}

	rec, err := docstore.Encode(o)
	if err != nil {
		return fulfillmentdomain.Order{}, err
	}
	delete(rec, "id")
	rec["createdAt"] = docstore.ServerTimestamp

	id, err := s.store.AddDocument(ctx, fulfillmentdomain.OrdersCollection, rec)
	if err != nil {
		return fulfillmentdomain.Order{}, err
	}
	o.ID = id

	s.log.Info("order created",
		zap.String("order_id", id),
		zap.String("customer_id", o.CustomerID),
		zap.Int("lines", len(o.Lines)),
		zap.Int64("total_amount", o.TotalAmount),
	)
	return o, nil
}

func (s *Service) CompleteBooking(ctx context.Context, bookingID string) (fulfillmentdomain.Booking, fulfillmentdomain.CompletionResult, error) {
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return fulfillmentdomain.Booking{}, fulfillmentdomain.CompletionResult{}, err
	}
	if b.Status == fulfillmentdomain.BookingCompleted {
		return b, fulfillmentdomain.CompletionResult{}, nil
	}

	var result fulfillmentdomain.CompletionResult
	result.Transitioned = true

	if !b.PointsAwarded {
		points := s.loyalty.Current().BookingOrderPoints(b.Amount)
		if points > 0 {
			res, err := s.award.Award(ctx, awarddomain.AwardRequest{
				CustomerID:      b.CustomerID,
				Category:        awarddomain.CategoryBooking,
				Points:          points,
				Description:     "Booking completed: " + b.ServiceName,
				ReferenceID:     b.ID,
				TransactionType: ledgerdomain.TypePointsEarned,
			})
			if err != nil {
				return b, fulfillmentdomain.CompletionResult{}, err
			}
			if res.Granted {
				result.PointsGranted = points
			}
		}
		b.PointsAwarded = true
	}

	b.Status = fulfillmentdomain.BookingCompleted
	if err := s.store.UpdateDocument(ctx, fulfillmentdomain.BookingsCollection, b.ID, docstore.Record{
		"status":        string(b.Status),
		"pointsAwarded": true,
		"completedAt":   docstore.ServerTimestamp,
	}); err != nil {
		return b, result, err
	}
	return b, result, nil
}

func (s *Service) DeliverOrder(ctx context.Context, orderID string) (fulfillmentdomain.Order, fulfillmentdomain.CompletionResult, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return fulfillmentdomain.Order{}, fulfillmentdomain.CompletionResult{}, err
	}
	if o.Status == fulfillmentdomain.OrderDelivered {
		return o, fulfillmentdomain.CompletionResult{}, nil
	}

	var result fulfillmentdomain.CompletionResult
	result.Transitioned = true

	if !o.PointsAwarded {
		points := s.loyalty.Current().BookingOrderPoints(o.TotalAmount)
		if points > 0 {
			res, err := s.award.Award(ctx, awarddomain.AwardRequest{
				CustomerID:      o.CustomerID,
				Category:        awarddomain.CategoryOrder,
				Points:          points,
				Description:     "Order delivered",
				ReferenceID:     o.ID,
				TransactionType: ledgerdomain.TypePointsEarned,
			})
			if err != nil {
				return o, fulfillmentdomain.CompletionResult{}, err
			}
			if res.Granted {
				result.PointsGranted = points
			}
		}
		o.PointsAwarded = true
	}

	o.Status = fulfillmentdomain.OrderDelivered
	if err := s.store.UpdateDocument(ctx, fulfillmentdomain.OrdersCollection, o.ID, docstore.Record{
		"status":        string(o.Status),
		"pointsAwarded": true,
		"deliveredAt":   docstore.ServerTimestamp,
	}); err != nil {
		return o, result, err
	}
	return o, result, nil
}

func (s *Service) ListBookings(ctx context.Context, customerID string) ([]fulfillmentdomain.Booking, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fulfillmentdomain.ErrInvalidCustomer
	}

	records, err := s.store.Query(ctx, fulfillmentdomain.BookingsCollection, docstore.Eq("customerId", customerID))
	if err != nil {
		return nil, err
	}

	bookings := make([]fulfillmentdomain.Booking, 0, len(records))
	for _, rec := range records {
		var b fulfillmentdomain.Booking
		if err := docstore.Decode(rec, &b); err != nil {
			s.log.Warn("skipping malformed booking record", zap.Error(err))
			continue
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func (s *Service) ListOrders(ctx context.Context, customerID string) ([]fulfillmentdomain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fulfillmentdomain.ErrInvalidCustomer
	}

	records, err := s.store.Query(ctx, fulfillmentdomain.OrdersCollection, docstore.Eq("customerId", customerID))
	if err != nil {
		return nil, err
	}

	orders := make([]fulfillmentdomain.Order, 0, len(records))
	for _, rec := range records {
		var o fulfillmentdomain.Order
		if err := docstore.Decode(rec, &o); err != nil {
			s.log.Warn("skipping malformed order record", zap.Error(err))
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *Service) getBooking(ctx context.Context, bookingID string) (fulfillmentdomain.Booking, error) {
	rec, err := s.store.GetDocument(ctx, fulfillmentdomain.BookingsCollection, strings.TrimSpace(bookingID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fulfillmentdomain.Booking{}, fulfillmentdomain.ErrBookingNotFound
		}
		return fulfillmentdomain.Booking{}, err
	}
	var b fulfillmentdomain.Booking
	if err := docstore.Decode(rec, &b); err != nil {
		return fulfillmentdomain.Booking{}, err
	}
	return b, nil
}

func (s *Service) getOrder(ctx context.Context, orderID string) (fulfillmentdomain.Order, error) {
	rec, err := s.store.GetDocument(ctx, fulfillmentdomain.OrdersCollection, strings.TrimSpace(orderID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fulfillmentdomain.Order{}, fulfillmentdomain.ErrOrderNotFound
		}
		return fulfillmentdomain.Order{}, err
	}
	var o fulfillmentdomain.Order
	if err := docstore.Decode(rec, &o); err != nil {
		return fulfillmentdomain.Order{}, err
	}
	return o, nil
}
