package customer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	awarddomain "github.com/glowhub/portal/internal/award/domain"
	"github.com/glowhub/portal/internal/clock"
	"github.com/glowhub/portal/internal/docstore"
	"github.com/glowhub/portal/internal/wallet"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Collection is the document collection holding customer profiles.
const Collection = "customers"

// Customer is the portal membership profile. BirthDate is a calendar
// date in 2006-01-02 form.
type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birthDate,omitempty"`
	BranchID  string `json:"branchId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

var (
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrCustomerNotFound = errors.New("customer_not_found")
	ErrInvalidBirthDate = errors.New("invalid_birth_date")
)

// Service owns the registration and birthday paths. Register is safe to
// repeat: the profile and wallet are created once and the welcome bonus
// is granted once.
type Service interface {
	Register(ctx context.Context, c Customer) (Customer, awarddomain.AwardResult, error)
	Get(ctx context.Context, customerID string) (Customer, error)
	CheckBirthday(ctx context.Context, customerID string) (awarddomain.AwardResult, error)
}

type Params struct {
	fx.In

	Store docstore.Store
	Award awarddomain.Service
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
}

type service struct {
	store docstore.Store
	award awarddomain.Service
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
}

func New(p Params) Service {
	return &service{
		store: p.Store,
		award: p.Award,
		log:   p.Log.Named("customer.service"),
		clock: p.Clock,
		genID: p.GenID,
	}
}

var Module = fx.Module("customer.service",
	fx.Provide(New),
)

func (s *service) Register(ctx context.Context, c Customer) (Customer, awarddomain.AwardResult, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Customer{}, awarddomain.AwardResult{}, ErrInvalidCustomer
	}
	if c.BirthDate != "" {
		if _, err := time.Parse("2006-01-02", c.BirthDate); err != nil {
			return Customer{}, awarddomain.AwardResult{}, ErrInvalidBirthDate
		}
	}
	if c.ID = strings.TrimSpace(c.ID); c.ID == "" {
		c.ID = s.genID.Generate().String()
	}

	existing, err := s.Get(ctx, c.ID)
	switch {
	case err == nil:
		c = existing
	case errors.Is(err, ErrCustomerNotFound):
		rec, encErr := docstore.Encode(c)
		if encErr != nil {
			return Customer{}, awarddomain.AwardResult{}, encErr
		}
		rec["createdAt"] = docstore.ServerTimestamp
		if err := s.store.SetDocument(ctx, Collection, c.ID, rec); err != nil {
			return Customer{}, awarddomain.AwardResult{}, err
		}
		s.log.Info("customer registered", zap.String("customer_id", c.ID))
	default:
		return Customer{}, awarddomain.AwardResult{}, err
	}

	if err := s.ensureWallet(ctx, c.ID); err != nil {
		return Customer{}, awarddomain.AwardResult{}, err
	}

	res, err := s.award.GrantRegistrationBonus(ctx, c.ID)
	if err != nil {
		return Customer{}, awarddomain.AwardResult{}, err
	}
	return c, res, nil
}

func (s *service) Get(ctx context.Context, customerID string) (Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Customer{}, ErrInvalidCustomer
	}

	rec, err := s.store.GetDocument(ctx, Collection, customerID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}

	var c Customer
	if err := docstore.Decode(rec, &c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// CheckBirthday grants the yearly bonus when today matches the stored
// birth date. Called on portal load; the award engine's year gate keeps
// repeated checks from double-granting.
func (s *service) CheckBirthday(ctx context.Context, customerID string) (awarddomain.AwardResult, error) {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return awarddomain.AwardResult{}, err
	}
	if c.BirthDate == "" {
		return awarddomain.AwardResult{}, nil
	}

	birth, err := time.Parse("2006-01-02", c.BirthDate)
	if err != nil {
		return awarddomain.AwardResult{}, ErrInvalidBirthDate
	}

	now := s.clock.Now().UTC()
	if now.Month() != birth.Month() || now.Day() != birth.Day() {
		return awarddomain.AwardResult{}, nil
	}
	return s.award.GrantBirthdayBonus(ctx, customerID)
}

// ensureWallet creates the wallet document once. The read-then-set is
// fine here: Register is the only creator and the bonus grant below is
// idempotent regardless.
func (s *service) ensureWallet(ctx context.Context, customerID string) error {
	_, err := s.store.GetDocument(ctx, wallet.Collection, customerID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}

	rec, err := docstore.Encode(wallet.Wallet{CustomerID: customerID})
	if err != nil {
		return err
	}
	rec["updatedAt"] = docstore.ServerTimestamp
	return s.store.SetDocument(ctx, wallet.Collection, customerID, rec)
}
