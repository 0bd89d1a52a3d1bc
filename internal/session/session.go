package session

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/glowhub/portal/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Session is the signed-in customer blob read once at portal start. The
// portal itself does not authenticate; an upstream gateway writes this
// file.
type Session struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	BranchID   string `json:"branchId"`
}

var (
	ErrInvalidSession = errors.New("invalid_session")
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// Load reads the session blob from the configured path. A missing file
// yields an empty session, which keeps the portal usable for anonymous
// browsing; customer-scoped endpoints reject the empty customer id.
func Load(p Params) (Session, error) {
	log := p.Log.Named("session")

	path := strings.TrimSpace(p.Config.SessionPath)
	if path == "" {
		return Session{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("session file absent, starting anonymous", zap.String("path", path))
			return Session{}, nil
		}
		return Session{}, err
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, ErrInvalidSession
	}
	if strings.TrimSpace(s.CustomerID) == "" {
		return Session{}, ErrInvalidSession
	}

	log.Info("session loaded",
		zap.String("customer_id", s.CustomerID),
		zap.String("branch_id", s.BranchID),
	)
	return s, nil
}

var Module = fx.Module("session",
	fx.Provide(Load),
)
