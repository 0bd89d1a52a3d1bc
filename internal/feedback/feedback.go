package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awarddomain "github.com/glowhub/portal/internal/award/domain"
	"github.com/glowhub/portal/internal/config"
	"github.com/glowhub/portal/internal/docstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Collection is the document collection holding feedback entries.
const Collection = "feedbacks"

// Status is the review state of one feedback entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Feedback is one customer rating. Points are granted on the pending to
// approved transition, once, tiered by rating.
type Feedback struct {
	ID            string `json:"id"`
	CustomerID    string `json:"customerId"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment,omitempty"`
	Status        Status `json:"status"`
	PointsAwarded bool   `json:"pointsAwarded"`
	CreatedAt     string `json:"createdAt,omitempty"`
	ReviewedAt    string `json:"reviewedAt,omitempty"`
}

var (
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrInvalidRating    = errors.New("invalid_rating")
	ErrFeedbackNotFound = errors.New("feedback_not_found")
	ErrAlreadyReviewed  = errors.New("feedback_already_reviewed")
)

type Service interface {
	Submit(ctx context.Context, customerID string, rating int, comment string) (Feedback, error)
	Approve(ctx context.Context, feedbackID string) (Feedback, int64, error)
	Reject(ctx context.Context, feedbackID string) (Feedback, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Feedback, error)
}

type Params struct {
	fx.In

	Store   docstore.Store
	Award   awarddomain.Service
	Loyalty *config.LoyaltyConfigHolder
	Log     *zap.Logger
}

type service struct {
	store   docstore.Store
	award   awarddomain.Service
	loyalty *config.LoyaltyConfigHolder
	log     *zap.Logger
}

func New(p Params) Service {
	return &service{
		store:   p.Store,
		award:   p.Award,
		loyalty: p.Loyalty,
		log:     p.Log.Named("feedback.service"),
	}
}

var Module = fx.Module("feedback.service",
	fx.Provide(New),
)

func (s *service) Submit(ctx context.Context, customerID string, rating int, comment string) (Feedback, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Feedback{}, ErrInvalidCustomer
	}
	if rating < 1 || rating > 5 {
		return Feedback{}, ErrInvalidRating
	}

	f := Feedback{
		CustomerID: customerID,
		Rating:     rating,
		Comment:    strings.TrimSpace(comment),
		Status:     StatusPending,
	}
	rec, err := docstore.Encode(f)
	if err != nil {
		return Feedback{}, err
	}
	delete(rec, "id")
	rec["createdAt"] = docstore.ServerTimestamp

	id, err := s.store.AddDocument(ctx, Collection, rec)
	if err != nil {
		return Feedback{}, err
	}
	f.ID = id

	s.log.Info("feedback submitted",
		zap.String("feedback_id", id),
		zap.String("customer_id", customerID),
		zap.Int("rating", rating),
	)
	return f, nil
}

// Approve transitions a pending feedback and grants its rating tier
// once. Approving an already approved entry is a no-op.
func (s *service) Approve(ctx context.Context, feedbackID string) (Feedback, int64, error) {
	f, err := s.get(ctx, feedbackID)
	if err != nil {
		return Feedback{}, 0, err
	}
	if f.Status == StatusApproved {
		return f, 0, nil
	}
	if f.Status == StatusRejected {
		return Feedback{}, 0, ErrAlreadyReviewed
	}

	var granted int64
	if !f.PointsAwarded {
		points := s.loyalty.Current().FeedbackPoints(f.Rating)
		if points > 0 {
			res, err := s.award.Award(ctx, awarddomain.AwardRequest{
				CustomerID:  f.CustomerID,
				Category:    awarddomain.CategoryFeedback,
				Points:      points,
				Description: fmt.Sprintf("Feedback approved (%d stars)", f.Rating),
				ReferenceID: f.ID,
			})
			if err != nil {
				return f, 0, err
			}
			if res.Granted {
				granted = points
			}
		}
		f.PointsAwarded = true
	}

	f.Status = StatusApproved
	if err := s.store.UpdateDocument(ctx, Collection, f.ID, docstore.Record{
		"status":        string(StatusApproved),
		"pointsAwarded": true,
		"reviewedAt":    docstore.ServerTimestamp,
	}); err != nil {
		return f, granted, err
	}
	return f, granted, nil
}

func (s *service) Reject(ctx context.Context, feedbackID string) (Feedback, error) {
	f, err := s.get(ctx, feedbackID)
	if err != nil {
		return Feedback{}, err
	}
	if f.Status == StatusRejected {
		return f, nil
	}
	if f.Status == StatusApproved {
		return Feedback{}, ErrAlreadyReviewed
	}

	f.Status = StatusRejected
	if err := s.store.UpdateDocument(ctx, Collection, f.ID, docstore.Record{
		"status":     string(StatusRejected),
		"reviewedAt": docstore.ServerTimestamp,
	}); err != nil {
		return f, err
	}
	return f, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID string) ([]Feedback, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ErrInvalidCustomer
	}

	records, err := s.store.Query(ctx, Collection, docstore.Eq("customerId", customerID))
	if err != nil {
		return nil, err
	}

	entries := make([]Feedback, 0, len(records))
	for _, rec := range records {
		var f Feedback
		if err := docstore.Decode(rec, &f); err != nil {
			s.log.Warn("skipping malformed feedback record", zap.Error(err))
			continue
		}
		entries = append(entries, f)
	}
	return entries, nil
}

func (s *service) get(ctx context.Context, feedbackID string) (Feedback, error) {
	rec, err := s.store.GetDocument(ctx, Collection, strings.TrimSpace(feedbackID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Feedback{}, ErrFeedbackNotFound
		}
		return Feedback{}, err
	}
	var f Feedback
	if err := docstore.Decode(rec, &f); err != nil {
		return Feedback{}, err
	}
	return f, nil
}
