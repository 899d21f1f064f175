package domain

import (
	"strings"
	"time"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// ParseAction normalises free-form action labels, defaulting to HOLD.
func ParseAction(v string) Action {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY", "LONG":
		return ActionBuy
	case "SELL", "SHORT":
		return ActionSell
	default:
		return ActionHold
	}
}

// VoterVote is one voter's contribution to an ensemble prediction.
type VoterVote struct {
	Prediction Action  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Weight     float64 `json:"weight"`
}

// ModelPrediction is the technical signal produced by the ensemble.
type ModelPrediction struct {
	Symbol          string               `json:"symbol"`
	Timestamp       time.Time            `json:"timestamp"`
	Action          Action               `json:"action"`
	Confidence      float64              `json:"confidence"`
	Price           float64              `json:"price"`
	PriceTarget     *float64             `json:"price_target,omitempty"`
	StopLoss        *float64             `json:"stop_loss,omitempty"`
	ExpectedReturn  *float64             `json:"expected_return,omitempty"`
	RiskRewardRatio *float64             `json:"risk_reward_ratio,omitempty"`
	Votes           map[string]VoterVote `json:"votes"`
}

// SentimentSignal is the action derived from a sentiment analysis result.
type SentimentSignal struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// TradingSignal is the final combined signal handed to order routing and backtests.
type TradingSignal struct {
	Symbol     string             `json:"symbol"`
	Action     Action             `json:"action"`
	Price      float64            `json:"price"`
	Confidence float64            `json:"confidence"`
	Timestamp  string             `json:"timestamp"`
	Indicators map[string]float64 `json:"indicators"`
	Reasoning  []string           `json:"reasoning"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
