package service

import (
	"context"
	"fmt"
	"strings"

	awarddomain "github.com/glowhub/portal/internal/award/domain"
	cartdomain "github.com/glowhub/portal/internal/cart/domain"
	"github.com/glowhub/portal/internal/catalog"
	checkoutdomain "github.com/glowhub/portal/internal/checkout/domain"
	"github.com/glowhub/portal/internal/config"
	fulfillmentdomain "github.com/glowhub/portal/internal/fulfillment/domain"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	obsmetrics "github.com/glowhub/portal/internal/observability/metrics"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cart        cartdomain.Service
	Fulfillment fulfillmentdomain.Service
	Award       awarddomain.Service
	Loyalty     *config.LoyaltyConfigHolder
	Log         *zap.Logger
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cart        cartdomain.Service
	fulfillment fulfillmentdomain.Service
	award       awarddomain.Service
	loyalty     *config.LoyaltyConfigHolder
	log         *zap.Logger
	metrics     *obsmetrics.Metrics
}

func New(p Params) checkoutdomain.Service {
	return &Service{
		cart:        p.Cart,
		fulfillment: p.Fulfillment,
		award:       p.Award,
		loyalty:     p.Loyalty,
		log:         p.Log.Named("checkout.service"),
		metrics:     p.Metrics,
	}
}

func partition(items []cartdomain.Item) (services, products []cartdomain.Item) {
	for _, item := range items {
		switch item.Kind {
		case catalog.KindService:
			services = append(services, item)
		case catalog.KindProduct:
			products = append(products, item)
		}
	}
	return services, products
}

func (s *Service) Begin(ctx context.Context, customerID string) (checkoutdomain.BeginResult, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return checkoutdomain.BeginResult{}, checkoutdomain.ErrInvalidCustomer
	}

	services, products := partition(s.cart.Items(customerID))
	if len(services) == 0 && len(products) == 0 {
		return checkoutdomain.BeginResult{}, checkoutdomain.ErrEmptyCart
	}

	result := checkoutdomain.BeginResult{
		BatchID:          uuid.NewString(),
		ProductCount:     len(products),
		AwaitingShipping: len(products) > 0,
	}

	for _, item := range services {
		outcome := s.bookService(ctx, customerID, item)
		if outcome.Succeeded {
			s.metrics.RecordCheckoutUnit(ctx, "service", "success")
		} else {
			s.metrics.RecordCheckoutUnit(ctx, "service", "failure")
		}
		result.Bookings = append(result.Bookings, outcome)
	}

	s.log.Info("checkout evaluated",
		zap.String("batch_id", result.BatchID),
		zap.String("customer_id", customerID),
		zap.Int("service_items", len(services)),
		zap.Int("product_items", len(products)),
	)
	return result, nil
}

// bookService runs one service line to completion: booking record with
// its award applied at creation, cart line removed, spend debited. A
// failure is reported in the outcome and leaves the remaining lines to
// proceed. Steps that fail after the booking exists are recorded as
// warnings on the outcome rather than dropped.
func (s *Service) bookService(ctx context.Context, customerID string, item cartdomain.Item) checkoutdomain.BookingOutcome {
	outcome := checkoutdomain.BookingOutcome{
		CartItemID:  item.ID,
		ServiceName: item.Name,
	}

	booking, err := s.fulfillment.CreateBooking(ctx, fulfillmentdomain.Booking{
		CustomerID:    customerID,
		ServiceID:     item.ItemID,
		ServiceName:   item.Name,
		Amount:        item.Price,
		Status:        fulfillmentdomain.BookingPending,
		PointsAwarded: true,
	})
	if err != nil {
		s.log.Error("service booking failed",
			zap.String("customer_id", customerID),
			zap.String("cart_item_id", item.ID),
			zap.Error(err),
		)
		outcome.Error = "booking could not be created"
		return outcome
	}
	outcome.BookingID = booking.ID

	points := s.loyalty.Current().BookingOrderPoints(item.Price)
	if points > 0 {
		res, err := s.award.Award(ctx, awarddomain.AwardRequest{
			CustomerID:  customerID,
			Category:    awarddomain.CategoryBooking,
			Points:      points,
			Description: "Booking: " + item.Name,
			ReferenceID: booking.ID,
		})
		if err != nil {
			s.log.Error("booking award failed",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
			outcome.Warnings = append(outcome.Warnings, "loyalty points could not be awarded")
		} else if res.Granted {
			outcome.Points = points
		}
	}

	if err := s.cart.Purge(ctx, customerID, item.ID); err != nil {
		s.log.Error("cart cleanup failed after booking",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
		outcome.Warnings = append(outcome.Warnings, "cart line could not be removed")
	}

	if _, err := s.award.Charge(ctx, awarddomain.ChargeRequest{
		CustomerID:  customerID,
		Amount:      item.Price,
		Type:        ledgerdomain.TypeBooking,
		Description: "Booking: " + item.Name,
		ReferenceID: booking.ID,
	}); err != nil {
		s.log.Error("booking debit failed",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
		outcome.Warnings = append(outcome.Warnings, "spend could not be recorded in the ledger")
	}

	outcome.Succeeded = true
	return outcome
}

func (s *Service) SubmitShipping(ctx context.Context, customerID string, info checkoutdomain.ShippingInfo) (checkoutdomain.OrderResult, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return checkoutdomain.OrderResult{}, checkoutdomain.ErrInvalidCustomer
	}
	if errs := info.Validate(); errs != nil {
		return checkoutdomain.OrderResult{}, errs
	}

	_, products := partition(s.cart.Items(customerID))
	if len(products) == 0 {
		return checkoutdomain.OrderResult{}, checkoutdomain.ErrNoProductItems
	}

	lines := make([]fulfillmentdomain.OrderLine, 0, len(products))
	cartItemIDs := make([]string, 0, len(products))
	var total int64
	for _, item := range products {
		lines = append(lines, fulfillmentdomain.OrderLine{
			ProductID: item.ItemID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
		cartItemIDs = append(cartItemIDs, item.ID)
		total += item.Subtotal()
	}

	order, err := s.fulfillment.CreateOrder(ctx, fulfillmentdomain.Order{
		CustomerID:      customerID,
		Lines:           lines,
		TotalAmount:     total,
		Status:          fulfillmentdomain.OrderPending,
		PointsAwarded:   true,
		ShippingAddress: info.Address,
		City:            info.City,
		Phone:           info.Phone,
		PaymentMethod:   info.PaymentMethod,
	})
	if err != nil {
		s.metrics.RecordCheckoutUnit(ctx, "product", "failure")
		return checkoutdomain.OrderResult{}, err
	}

	result := checkoutdomain.OrderResult{
		BatchID:     uuid.NewString(),
		OrderID:     order.ID,
		TotalAmount: total,
		LineCount:   len(lines),
	}

	points := s.loyalty.Current().BookingOrderPoints(total)
	if points > 0 {
		res, err := s.award.Award(ctx, awarddomain.AwardRequest{
			CustomerID:  customerID,
			Category:    awarddomain.CategoryOrder,
			Points:      points,
			Description: fmt.Sprintf("Order of %d items", len(lines)),
			ReferenceID: order.ID,
		})
		if err != nil {
			s.log.Error("order award failed", zap.String("order_id", order.ID), zap.Error(err))
			result.Warnings = append(result.Warnings, "loyalty points could not be awarded")
		} else if res.Granted {
			result.Points = points
		}
	}

	if err := s.cart.Purge(ctx, customerID, cartItemIDs...); err != nil {
		s.log.Error("cart cleanup failed after order", zap.String("order_id", order.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, "cart lines could not be removed")
	}

	if _, err := s.award.Charge(ctx, awarddomain.ChargeRequest{
		CustomerID:  customerID,
		Amount:      total,
		Type:        ledgerdomain.TypeOrder,
		Description: fmt.Sprintf("Order of %d items", len(lines)),
		ReferenceID: order.ID,
	}); err != nil {
		s.log.Error("order debit failed", zap.String("order_id", order.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, "spend could not be recorded in the ledger")
	}

	s.metrics.RecordCheckoutUnit(ctx, "product", "success")
	s.log.Info("order submitted",
		zap.String("order_id", order.ID),
		zap.String("customer_id", customerID),
		zap.Int64("total_amount", total),
	)
	return result, nil
}
