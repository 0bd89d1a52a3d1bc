package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LoyaltyConfig holds the earning rates for the loyalty program.
type LoyaltyConfig struct {
	// PointsPerUnit is the number of points earned per whole currency
	// unit spent on bookings and orders. Amounts are kept in minor
	// units, so the grant is amountCents * PointsPerUnit / 100.
	PointsPerUnit     int64 `mapstructure:"pointsPerUnit"`
	RegistrationBonus int64 `mapstructure:"registrationBonus"`
	BirthdayBonus     int64 `mapstructure:"birthdayBonus"`

	FeedbackFiveStar int64 `mapstructure:"feedbackFiveStar"`
	FeedbackFourStar int64 `mapstructure:"feedbackFourStar"`
}

func DefaultLoyaltyConfig() LoyaltyConfig {
	return LoyaltyConfig{
		PointsPerUnit:     10,
		RegistrationBonus: 100,
		BirthdayBonus:     200,
		FeedbackFiveStar:  50,
		FeedbackFourStar:  25,
	}
}

// BookingOrderPoints applies the spend formula to an amount in minor units.
func (c LoyaltyConfig) BookingOrderPoints(amountCents int64) int64 {
	if amountCents <= 0 {
		return 0
	}
	return amountCents * c.PointsPerUnit / 100
}

// FeedbackPoints maps a rating to its grant. Ratings below four earn nothing.
func (c LoyaltyConfig) FeedbackPoints(rating int) int64 {
	switch rating {
	case 5:
		return c.FeedbackFiveStar
	case 4:
		return c.FeedbackFourStar
	default:
		return 0
	}
}

// LoyaltyConfigHolder exposes the current loyalty rates and hot-reloads
// them when the backing file changes.
type LoyaltyConfigHolder struct {
	current atomic.Value // holds LoyaltyConfig
}

func NewLoyaltyConfigHolder() (*LoyaltyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("loyalty")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/glowhub/config")
	v.AddConfigPath("/etc/glowhub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GLOWHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultLoyaltyConfig()
		v.SetDefault("loyalty.pointsPerUnit", defaults.PointsPerUnit)
		v.SetDefault("loyalty.registrationBonus", defaults.RegistrationBonus)
		v.SetDefault("loyalty.birthdayBonus", defaults.BirthdayBonus)
		v.SetDefault("loyalty.feedbackFiveStar", defaults.FeedbackFiveStar)
		v.SetDefault("loyalty.feedbackFourStar", defaults.FeedbackFourStar)
	}

	holder := &LoyaltyConfigHolder{}
	if err := holder.reload(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := holder.reload(v); err != nil {
			log.Printf("loyalty config reload failed: %v", err)
		}
	})
	v.WatchConfig()

	return holder, nil
}

func (h *LoyaltyConfigHolder) reload(v *viper.Viper) error {
	var cfg LoyaltyConfig
	if err := v.UnmarshalKey("loyalty", &cfg); err != nil {
		return err
	}
	if err := validateLoyalty(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

// Current returns the active loyalty rates.
func (h *LoyaltyConfigHolder) Current() LoyaltyConfig {
	if h == nil {
		return DefaultLoyaltyConfig()
	}
	if cfg, ok := h.current.Load().(LoyaltyConfig); ok {
		return cfg
	}
	return DefaultLoyaltyConfig()
}

func validateLoyalty(cfg LoyaltyConfig) error {
	if cfg.PointsPerUnit < 0 || cfg.RegistrationBonus < 0 || cfg.BirthdayBonus < 0 {
		return errors.New("loyalty rates must not be negative")
	}
	if cfg.FeedbackFiveStar < 0 || cfg.FeedbackFourStar < 0 {
		return errors.New("feedback rates must not be negative")
	}
	return nil
}
