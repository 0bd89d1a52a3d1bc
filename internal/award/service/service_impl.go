package service

import (
	"context"
	"fmt"
	"strings"

	awarddomain "github.com/glowhub/portal/internal/award/domain"
	"github.com/glowhub/portal/internal/clock"
	"github.com/glowhub/portal/internal/config"
	"github.com/glowhub/portal/internal/docstore"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	obsmetrics "github.com/glowhub/portal/internal/observability/metrics"
	"github.com/glowhub/portal/internal/wallet"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store   docstore.Store
	Ledger  ledgerdomain.Service
	Wallets *wallet.Cache
	Log     *zap.Logger
	Clock   clock.Clock
	Loyalty *config.LoyaltyConfigHolder
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	store   docstore.Store
	ledger  ledgerdomain.Service
	wallets *wallet.Cache
	log     *zap.Logger
	clock   clock.Clock
	loyalty *config.LoyaltyConfigHolder
	metrics *obsmetrics.Metrics
}

func New(p Params) awarddomain.Service {
	return &Service{
		store:   p.Store,
		ledger:  p.Ledger,
		wallets: p.Wallets,
		log:     p.Log.Named("award.service"),
		clock:   p.Clock,
		loyalty: p.Loyalty,
		metrics: p.Metrics,
	}
}

func (s *Service) Award(ctx context.Context, req awarddomain.AwardRequest) (awarddomain.AwardResult, error) {
	return s.award(ctx, req, nil, nil)
}

// award is the single grant path. extraMutate and extraFields let
// category-specific callers piggyback additional wallet updates (the
// birthday year marker) on the same logical step.
func (s *Service) award(
	ctx context.Context,
	req awarddomain.AwardRequest,
	extraMutate func(*wallet.Wallet),
	extraFields docstore.Record,
) (awarddomain.AwardResult, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		return awarddomain.AwardResult{}, awarddomain.ErrInvalidCustomer
	}
	if req.Points <= 0 {
		return awarddomain.AwardResult{}, awarddomain.ErrInvalidPoints
	}
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	if req.ReferenceID == "" {
		return awarddomain.AwardResult{}, awarddomain.ErrInvalidReferenceID
	}
	if req.TransactionType == "" {
		req.TransactionType = ledgerdomain.TypePointsEarned
	}

	current, err := s.ensureWallet(ctx, req.CustomerID)
	if err != nil {
		return awarddomain.AwardResult{}, err
	}

	grant := awarddomain.PointGrant{
		CustomerID:  req.CustomerID,
		Category:    req.Category,
		ReferenceID: req.ReferenceID,
		Points:      req.Points,
	}
	grantRec, err := docstore.Encode(grant)
	if err != nil {
		return awarddomain.AwardResult{}, err
	}
	grantRec["createdAt"] = docstore.ServerTimestamp

	key := awarddomain.GrantKey(req.CustomerID, req.Category, req.ReferenceID)
	created, _, err := s.store.CreateIfAbsent(ctx, awarddomain.GrantsCollection, key, grantRec)
	if err != nil {
		return awarddomain.AwardResult{}, err
	}
	if !created {
		s.metrics.RecordAwardSkipped(ctx, string(req.Category))
		s.log.Debug("grant already recorded, skipping",
			zap.String("customer_id", req.CustomerID),
			zap.String("category", string(req.Category)),
			zap.String("reference_id", req.ReferenceID),
		)
		return awarddomain.AwardResult{Granted: false, Wallet: current}, nil
	}

	// Optimistic local update first: the projection reflects the new
	// totals before the remote write settles.
	updated, err := s.wallets.Mutate(req.CustomerID, func(w *wallet.Wallet) error {
		w.LoyaltyPoints += req.Points
		w.TotalPointsEarned += req.Points
		if extraMutate != nil {
			extraMutate(w)
		}
		return nil
	})
	if err != nil {
		return awarddomain.AwardResult{}, err
	}

	result := awarddomain.AwardResult{Granted: true, Wallet: updated}
	s.metrics.RecordAwardGranted(ctx, string(req.Category), req.Points)

	txnID, err := s.ledger.Append(ctx, ledgerdomain.Transaction{
		CustomerID:   req.CustomerID,
		Type:         req.TransactionType,
		PointsAmount: req.Points,
		Description:  req.Description,
		ReferenceID:  req.ReferenceID,
		Status:       ledgerdomain.StatusCompleted,
	})
	if err != nil {
		// The local projection stays ahead of the store; the next
		// reconciliation pass corrects any drift.
		s.log.Error("transaction write failed after optimistic award",
			zap.String("customer_id", req.CustomerID),
			zap.String("reference_id", req.ReferenceID),
			zap.Error(err),
		)
		return result, err
	}
	result.TransactionID = txnID

	fields := docstore.Record{
		"loyaltyPoints":     updated.LoyaltyPoints,
		"totalPointsEarned": updated.TotalPointsEarned,
		"updatedAt":         docstore.ServerTimestamp,
	}
	for field, value := range extraFields {
		fields[field] = value
	}
	if err := s.store.UpdateDocument(ctx, wallet.Collection, req.CustomerID, fields); err != nil {
		s.log.Error("wallet write failed after optimistic award",
			zap.String("customer_id", req.CustomerID),
			zap.Error(err),
		)
		return result, err
	}

	return result, nil
}

func (s *Service) GrantRegistrationBonus(ctx context.Context, customerID string) (awarddomain.AwardResult, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return awarddomain.AwardResult{}, awarddomain.ErrInvalidCustomer
	}

	exists, err := s.ledger.HasType(ctx, customerID, ledgerdomain.TypeRegistration)
	if err != nil {
		return awarddomain.AwardResult{}, err
	}
	if exists {
		s.metrics.RecordAwardSkipped(ctx, string(awarddomain.CategoryRegistration))
		current, loadErr := s.ensureWallet(ctx, customerID)
		if loadErr != nil {
			return awarddomain.AwardResult{}, loadErr
		}
		return awarddomain.AwardResult{Granted: false, Wallet: current}, nil
	}

	return s.award(ctx, awarddomain.AwardRequest{
		CustomerID:      customerID,
		Category:        awarddomain.CategoryRegistration,
		Points:          s.loyalty.Current().RegistrationBonus,
		Description:     "Welcome bonus",
		ReferenceID:     "registration-" + customerID,
		TransactionType: ledgerdomain.TypeRegistration,
	}, nil, nil)
}

func (s *Service) GrantBirthdayBonus(ctx context.Context, customerID string) (awarddomain.AwardResult, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return awarddomain.AwardResult{}, awarddomain.ErrInvalidCustomer
	}

	current, err := s.ensureWallet(ctx, customerID)
	if err != nil {
		return awarddomain.AwardResult{}, err
	}

	year := s.clock.Now().UTC().Year()
	if current.LastBirthdayPointsYear == year {
		s.metrics.RecordAwardSkipped(ctx, string(awarddomain.CategoryBirthday))
		return awarddomain.AwardResult{Granted: false, Wallet: current}, nil
	}

	granted, err := s.ledger.HasTypeInYear(ctx, customerID, ledgerdomain.TypeBirthday, year)
	if err != nil {
		return awarddomain.AwardResult{}, err
	}
	if granted {
		s.metrics.RecordAwardSkipped(ctx, string(awarddomain.CategoryBirthday))
		return awarddomain.AwardResult{Granted: false, Wallet: current}, nil
	}

	return s.award(ctx, awarddomain.AwardRequest{
		CustomerID:      customerID,
		Category:        awarddomain.CategoryBirthday,
		Points:          s.loyalty.Current().BirthdayBonus,
		Description:     fmt.Sprintf("Birthday bonus %d", year),
		ReferenceID:     fmt.Sprintf("birthday-%d", year),
		TransactionType: ledgerdomain.TypeBirthday,
	}, func(w *wallet.Wallet) {
		w.LastBirthdayPointsYear = year
	}, docstore.Record{
		"lastBirthdayPointsYear": year,
	})
}

func (s *Service) Redeem(ctx context.Context, customerID string, points int64, description string) (wallet.Wallet, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return wallet.Wallet{}, awarddomain.ErrInvalidCustomer
	}
	if points <= 0 {
		return wallet.Wallet{}, awarddomain.ErrInvalidPoints
	}

	if _, err := s.ensureWallet(ctx, customerID); err != nil {
		return wallet.Wallet{}, err
	}

	updated, err := s.wallets.Mutate(customerID, func(w *wallet.Wallet) error {
		if w.LoyaltyPoints < points {
			return awarddomain.ErrInsufficientPoints
		}
		w.LoyaltyPoints -= points
		w.TotalPointsRedeemed += points
		return nil
	})
	if err != nil {
		return updated, err
	}

	s.metrics.RecordRedemption(ctx, points)

	if _, err := s.ledger.Append(ctx, ledgerdomain.Transaction{
		CustomerID:   customerID,
		Type:         ledgerdomain.TypePointsRedeemed,
		PointsAmount: -points,
		Description:  description,
		ReferenceID:  "redeem-" + uuid.NewString(),
		Status:       ledgerdomain.StatusCompleted,
	}); err != nil {
		s.log.Error("transaction write failed after redemption", zap.String("customer_id", customerID), zap.Error(err))
		return updated, err
	}

	if err := s.store.UpdateDocument(ctx, wallet.Collection, customerID, docstore.Record{
		"loyaltyPoints":       updated.LoyaltyPoints,
		"totalPointsRedeemed": updated.TotalPointsRedeemed,
		"updatedAt":           docstore.ServerTimestamp,
	}); err != nil {
		s.log.Error("wallet write failed after redemption", zap.String("customer_id", customerID), zap.Error(err))
		return updated, err
	}

	return updated, nil
}

func (s *Service) Charge(ctx context.Context, req awarddomain.ChargeRequest) (wallet.Wallet, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		return wallet.Wallet{}, awarddomain.ErrInvalidCustomer
	}
	if req.Amount <= 0 {
		return wallet.Wallet{}, awarddomain.ErrInvalidAmount
	}
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	if req.ReferenceID == "" {
		return wallet.Wallet{}, awarddomain.ErrInvalidReferenceID
	}
	if req.Type == "" {
		req.Type = ledgerdomain.TypePurchase
	}

	if _, err := s.ensureWallet(ctx, req.CustomerID); err != nil {
		return wallet.Wallet{}, err
	}

	updated, err := s.wallets.Mutate(req.CustomerID, func(w *wallet.Wallet) error {
		w.Balance -= req.Amount
		return nil
	})
	if err != nil {
		return updated, err
	}

	if _, err := s.ledger.Append(ctx, ledgerdomain.Transaction{
		CustomerID:  req.CustomerID,
		Type:        req.Type,
		Amount:      -req.Amount,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
		Status:      ledgerdomain.StatusCompleted,
	}); err != nil {
		s.log.Error("transaction write failed after charge", zap.String("customer_id", req.CustomerID), zap.Error(err))
		return updated, err
	}

	if err := s.store.UpdateDocument(ctx, wallet.Collection, req.CustomerID, docstore.Record{
		"balance":   updated.Balance,
		"updatedAt": docstore.ServerTimestamp,
	}); err != nil {
		s.log.Error("wallet write failed after charge", zap.String("customer_id", req.CustomerID), zap.Error(err))
		return updated, err
	}

	return updated, nil
}

func (s *Service) WalletFor(ctx context.Context, customerID string) (wallet.Wallet, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return wallet.Wallet{}, awarddomain.ErrInvalidCustomer
	}
	return s.ensureWallet(ctx, customerID)
}

// ensureWallet loads the wallet through the cache. The remote record is
// authoritative only on first load; afterwards the projection is owned
// by the cache and corrected by reconciliation.
func (s *Service) ensureWallet(ctx context.Context, customerID string) (wallet.Wallet, error) {
	if current, ok := s.wallets.Load(customerID); ok {
		return current, nil
	}

	rec, err := s.store.GetDocument(ctx, wallet.Collection, customerID)
	if err != nil {
		if err == docstore.ErrNotFound {
			return wallet.Wallet{}, wallet.ErrNotLoaded
		}
		return wallet.Wallet{}, err
	}

	var w wallet.Wallet
	if err := docstore.Decode(rec, &w); err != nil {
		return wallet.Wallet{}, err
	}
	return s.wallets.Seed(customerID, w), nil
}
