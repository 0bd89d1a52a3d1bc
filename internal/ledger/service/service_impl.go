package service

import (
	"context"
	"strings"
	"time"

	"github.com/glowhub/portal/internal/docstore"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store docstore.Store
	Log   *zap.Logger
}

type Service struct {
	store docstore.Store
	log   *zap.Logger
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("ledger.service"),
	}
}

func (s *Service) Append(ctx context.Context, txn ledgerdomain.Transaction) (string, error) {
	txn.CustomerID = strings.TrimSpace(txn.CustomerID)
	if txn.CustomerID == "" {
		return "", ledgerdomain.ErrInvalidCustomer
	}
	if !validType(txn.Type) {
		return "", ledgerdomain.ErrInvalidType
	}
	txn.ReferenceID = strings.TrimSpace(txn.ReferenceID)
	if txn.ReferenceID == "" {
		return "", ledgerdomain.ErrInvalidReferenceID
	}
	if txn.Status == "" {
		txn.Status = ledgerdomain.StatusCompleted
	}

	rec, err := docstore.Encode(txn)
	if err != nil {
		return "", err
	}
	delete(rec, "id")
	rec["createdAt"] = docstore.ServerTimestamp

	id, err := s.store.AddDocument(ctx, ledgerdomain.Collection, rec)
	if err != nil {
		return "", err
	}

	s.log.Info("transaction appended",
		zap.String("customer_id", txn.CustomerID),
		zap.String("type", string(txn.Type)),
		zap.String("reference_id", txn.ReferenceID),
		zap.Int64("points", txn.PointsAmount),
		zap.Int64("amount", txn.Amount),
	)
	return id, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]ledgerdomain.Transaction, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ledgerdomain.ErrInvalidCustomer
	}

	records, err := s.store.Query(ctx, ledgerdomain.Collection, docstore.Eq("customerId", customerID))
	if err != nil {
		return nil, err
	}

	txns := make([]ledgerdomain.Transaction, 0, len(records))
	for _, rec := range records {
		var txn ledgerdomain.Transaction
		if err := docstore.Decode(rec, &txn); err != nil {
			s.log.Warn("skipping malformed transaction record", zap.Error(err))
			continue
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func (s *Service) HasType(ctx context.Context, customerID string, typ ledgerdomain.TransactionType) (bool, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return false, ledgerdomain.ErrInvalidCustomer
	}

	records, err := s.store.Query(ctx, ledgerdomain.Collection,
		docstore.Eq("customerId", customerID),
		docstore.Eq("type", string(typ)),
	)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (s *Service) HasTypeInYear(ctx context.Context, customerID string, typ ledgerdomain.TransactionType, year int) (bool, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return false, ledgerdomain.ErrInvalidCustomer
	}

	records, err := s.store.Query(ctx, ledgerdomain.Collection,
		docstore.Eq("customerId", customerID),
		docstore.Eq("type", string(typ)),
	)
	if err != nil {
		return false, err
	}

	for _, rec := range records {
		raw, _ := rec["createdAt"].(string)
		created, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			continue
		}
		if created.UTC().Year() == year {
			return true, nil
		}
	}
	return false, nil
}

func validType(typ ledgerdomain.TransactionType) bool {
	switch typ {
	case ledgerdomain.TypeRegistration,
		ledgerdomain.TypeBirthday,
		ledgerdomain.TypePointsEarned,
		ledgerdomain.TypePointsRedeemed,
		ledgerdomain.TypeBooking,
		ledgerdomain.TypeOrder,
		ledgerdomain.TypePurchase,
		ledgerdomain.TypeRefund:
		return true
	default:
		return false
	}
}
