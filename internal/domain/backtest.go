package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// BacktestPosition is an open simulated position.
type BacktestPosition struct {
	Symbol          string    `json:"symbol"`
	EntryPrice      float64   `json:"entry_price"`
	Quantity        int64     `json:"quantity"`
	EntryTime       time.Time `json:"entry_time"`
	StopLoss        float64   `json:"stop_loss"`
	TakeProfit      float64   `json:"take_profit"`
	EntryCommission float64   `json:"entry_commission"`
}

// BacktestTrade is the immutable record of a closed position.
type BacktestTrade struct {
	Symbol             string    `json:"symbol"`
	EntryTime          time.Time `json:"entry_time"`
	ExitTime           time.Time `json:"exit_time"`
	EntryPrice         float64   `json:"entry_price"`
	ExitPrice          float64   `json:"exit_price"`
	Quantity           int64     `json:"quantity"`
	PnL                float64   `json:"pnl"`
	PnLPercent         float64   `json:"pnl_percent"`
	HoldingPeriodHours float64   `json:"holding_period_hours"`
	ExitReason         string    `json:"exit_reason"`
}

type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

type SymbolPerformance struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"win_rate"`
	TotalPnL float64 `json:"total_pnl"`
}

// BacktestResult aggregates a finished run.
type BacktestResult struct {
	StartDate           time.Time                    `json:"start_date"`
	EndDate             time.Time                    `json:"end_date"`
	InitialCapital      float64                      `json:"initial_capital"`
	FinalCapital        float64                      `json:"final_capital"`
	TotalReturn         float64                      `json:"total_return"`
	TotalReturnPercent  float64                      `json:"total_return_percent"`
	TotalTrades         int                          `json:"total_trades"`
	WinningTrades       int                          `json:"winning_trades"`
	LosingTrades        int                          `json:"losing_trades"`
	WinRate             float64                      `json:"win_rate"`
	AverageWin          float64                      `json:"average_win"`
	AverageLoss         float64                      `json:"average_loss"`
	LargestWin          float64                      `json:"largest_win"`
	LargestLoss         float64                      `json:"largest_loss"`
	AverageHoldingHours float64                      `json:"average_holding_hours"`
	ProfitFactor        Ratio                        `json:"profit_factor"`
	SharpeRatio         float64                      `json:"sharpe_ratio"`
	MaxDrawdown         float64                      `json:"max_drawdown"`
	MaxDrawdownPercent  float64                      `json:"max_drawdown_percent"`
	EquityCurve         []EquityPoint                `json:"equity_curve"`
	Trades              []BacktestTrade              `json:"trades"`
	MonthlyReturns      map[string]float64           `json:"monthly_returns"`
	SymbolPerformance   map[string]SymbolPerformance `json:"symbol_performance"`
	Steps               int                          `json:"steps"`
}

// Ratio is a float that may legitimately be infinite. JSON has no encoding
// for infinity, so it is written as the strings "Infinity" or "-Infinity".
type Ratio float64

func (r Ratio) IsInf() bool {
	return math.IsInf(float64(r), 0)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	v := float64(r)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return nil, fmt.Errorf("ratio is NaN")
	}
	return json.Marshal(v)
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*r = Ratio(math.Inf(1))
			return nil
		case "-Infinity":
			*r = Ratio(math.Inf(-1))
			return nil
		}
		return fmt.Errorf("invalid ratio %q", s)
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Ratio(v)
	return nil
}
