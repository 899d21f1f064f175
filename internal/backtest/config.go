package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Slippage models.
const (
	SlippageNone     = "none"
	SlippageFixed    = "fixed"
	SlippageVariable = "variable"
)

// Config describes one backtest run. Normalize fills zero values of the
// fields carrying a default tag; the percentages that may legitimately be zero
// take their defaults from DefaultConfig instead.
type Config struct {
	InitialCapital           float64   `json:"initial_capital" yaml:"initial_capital" default:"100000" validate:"gt=0"`
	StartDate                time.Time `json:"start_date" yaml:"start_date" validate:"required"`
	EndDate                  time.Time `json:"end_date" yaml:"end_date" validate:"required"`
	TradingFrequency         int       `json:"trading_frequency" yaml:"trading_frequency" default:"60" validate:"gt=0"`
	SlippageModel            string    `json:"slippage_model" yaml:"slippage_model" default:"fixed" validate:"oneof=none fixed variable"`
	SlippagePercent          float64   `json:"slippage_percent" yaml:"slippage_percent" validate:"gte=0,lt=100"`
	CommissionPercent        float64   `json:"commission_percent" yaml:"commission_percent" validate:"gte=0,lt=100"`
	RiskPerTradePercent      float64   `json:"risk_per_trade_percent" yaml:"risk_per_trade_percent" default:"2" validate:"gt=0,lte=100"`
	StopLossPercent          float64   `json:"stop_loss_percent" yaml:"stop_loss_percent" validate:"gte=0,lt=100"`
	TakeProfitPercent        float64   `json:"take_profit_percent" yaml:"take_profit_percent" default:"6" validate:"gt=0"`
	MaxOpenPositions         int       `json:"max_open_positions" yaml:"max_open_positions" default:"5" validate:"gt=0"`
	ModelConfidenceThreshold float64   `json:"model_confidence_threshold" yaml:"model_confidence_threshold" validate:"gte=0,lte=1"`
	// MaxSteps stops the replay after this many steps; 0 means unbounded.
	MaxSteps int `json:"max_steps" yaml:"max_steps" validate:"gte=0"`
}

// DefaultConfig returns the standard run settings for [start, end].
func DefaultConfig(start, end time.Time) Config {
	return Config{
		InitialCapital:           100000,
		StartDate:                start,
		EndDate:                  end,
		TradingFrequency:         60,
		SlippageModel:            SlippageFixed,
		SlippagePercent:          0.05,
		CommissionPercent:        0.1,
		RiskPerTradePercent:      2,
		StopLossPercent:          2,
		TakeProfitPercent:        6,
		MaxOpenPositions:         5,
		ModelConfidenceThreshold: 0.65,
	}
}

var (
	validate = validator.New()

	ErrInvalidWindow = errors.New("end date must not be before start date")
)

// Normalize fills defaults and validates the config.
func (c *Config) Normalize(ctx context.Context) error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	if err := validate.StructCtx(ctx, c); err != nil {
		return err
	}
	if c.EndDate.Before(c.StartDate) {
		return ErrInvalidWindow
	}
	return nil
}

func (c Config) step() time.Duration {
	return time.Duration(c.TradingFrequency) * time.Minute
}
